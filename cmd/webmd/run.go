package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/reinhart/webmd/internal/connector"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [prompts...]",
	Short: "Answer a batch of prompts in one conversation",
	Long: `Answer prompts in order within one conversation. Each prompt produces a
completion or an error; a failing prompt does not stop the ones after it.

Examples:
  webmd run "Summarize https://go.dev/blog" "List the three newest posts"
  webmd run --prompts-file prompts.txt --prop temperature=0.2 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		promptsFile, _ := cmd.Flags().GetString("prompts-file")
		props, _ := cmd.Flags().GetStringArray("prop")
		settingArgs, _ := cmd.Flags().GetStringArray("setting")
		asJSON, _ := cmd.Flags().GetBool("json")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		prompts := args
		if promptsFile != "" {
			fromFile, err := readPrompts(promptsFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			prompts = append(prompts, fromFile...)
		}

		properties, err := parseKeyValues(props, true)
		if err != nil {
			return fmt.Errorf("invalid --prop: %w", err)
		}
		settings, err := parseKeyValues(settingArgs, false)
		if err != nil {
			return fmt.Errorf("invalid --setting: %w", err)
		}

		if model == "" {
			provider, _ := settings[connector.SettingProvider].(string)
			model = defaultModel(cfg, provider)
		}

		ctx := cmd.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		resp := connector.New(cfg, newConverter(cfg)).Run(ctx, model, prompts, properties, settings)

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
		} else {
			renderResponse(out, prompts, resp)
		}

		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("model", "m", "", "model identifier (default: the configured model for the provider)")
	runCmd.Flags().StringP("prompts-file", "f", "", "file with one prompt per line, or - for stdin")
	runCmd.Flags().StringArray("prop", nil, "completion property key=value; values are parsed as JSON when possible (prompt=... sets the system prompt)")
	runCmd.Flags().StringArray("setting", nil, "setting KEY=VALUE (API_KEY, PROVIDER, BASE_URL)")
	runCmd.Flags().Bool("json", false, "print the raw response as JSON")
	runCmd.Flags().Duration("timeout", 10*time.Minute, "overall time limit for the run")
	rootCmd.AddCommand(runCmd)
}

// readPrompts returns the non-blank lines of path, or of stdin when path is "-".
func readPrompts(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var prompts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts, scanner.Err()
}

// parseKeyValues turns key=value pairs into a bag. With decodeJSON, values that
// parse as JSON keep their JSON type so temperature=0.2 stays a number.
func parseKeyValues(pairs []string, decodeJSON bool) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		if decodeJSON {
			var decoded any
			if err := json.Unmarshal([]byte(value), &decoded); err == nil {
				out[key] = decoded
				continue
			}
		}
		out[key] = value
	}
	return out, nil
}
