package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/reinhart/webmd/internal/connector"
)

// renderResponse prints one row per prompt, followed by the model used.
func renderResponse(w io.Writer, prompts []string, resp connector.Response) {
	if resp.Error != "" {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(w, "%s %s\n", red("Run failed:"), resp.Error)
		return
	}
	if len(resp.Completions) == 0 {
		fmt.Fprintln(w, "No prompts given.")
		return
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Prompt", "Status", "Tokens", "Result"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignLeft, WidthMax: 40},
		{Number: 3, Align: text.AlignLeft},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignLeft, WidthMax: 80},
	})

	total := 0
	for i, c := range resp.Completions {
		prompt := ""
		if i < len(prompts) {
			prompt = prompts[i]
		}
		if c.Content == nil {
			t.AppendRow(table.Row{i + 1, prompt, red("error"), "-", c.Error})
			continue
		}
		tokens := "-"
		if c.TokenUsage != nil {
			tokens = strconv.Itoa(*c.TokenUsage)
			total += *c.TokenUsage
		}
		t.AppendRow(table.Row{i + 1, prompt, green("ok"), tokens, strings.TrimSpace(*c.Content)})
	}
	t.AppendFooter(table.Row{"", "", "", total, "model: " + resp.ModelType})
	t.Render()
}
