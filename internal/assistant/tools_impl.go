package assistant

import (
	"context"
	"encoding/json"
	"fmt"
)

// WebpageConverter fetches a page and renders it as Markdown.
type WebpageConverter interface {
	ParseWebpageToMarkdown(ctx context.Context, url string) (string, error)
}

// --- Webpage Tool ---

type WebpageTool struct {
	Converter WebpageConverter
}

var _ Tool = (*WebpageTool)(nil)

type WebpageArgs struct {
	URL string `json:"url"`
}

func (t *WebpageTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        string(ToolParseWebpageToMarkdown),
		Description: "Parse a webpage into Markdown format",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "The URL of the webpage to parse"}
			},
			"required": ["url"]
		}`),
	}
}

func (t *WebpageTool) Execute(ctx context.Context, args string) (string, error) {
	var a WebpageArgs
	if err := ParseArgs(args, &a); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", ToolParseWebpageToMarkdown, err)
	}
	if a.URL == "" {
		return "", fmt.Errorf("invalid arguments for %s: missing url", ToolParseWebpageToMarkdown)
	}
	return t.Converter.ParseWebpageToMarkdown(ctx, a.URL)
}
