package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
	"github.com/reinhart/webmd/internal/logger"
)

// ToolName identifies a tool the model may call.
type ToolName string

const (
	ToolParseWebpageToMarkdown ToolName = "parseWebpageToMarkdown"
)

// Tool defines the interface for a tool
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, args string) (string, error)
}

// ToolRegistry holds the fixed set of tools offered to the model.
type ToolRegistry struct {
	webpage Tool
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry(converter WebpageConverter) *ToolRegistry {
	return &ToolRegistry{
		webpage: &WebpageTool{Converter: converter},
	}
}

// Definitions returns the definitions of all registered tools
func (r *ToolRegistry) Definitions() []ToolDefinition {
	return []ToolDefinition{r.webpage.Definition()}
}

// Dispatch runs the tool named by the call. Names outside the closed set
// yield ErrUnknownTool.
func (r *ToolRegistry) Dispatch(ctx context.Context, tc ToolCall) (string, error) {
	switch ToolName(tc.Function.Name) {
	case ToolParseWebpageToMarkdown:
		return r.webpage.Execute(ctx, tc.Function.Arguments)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, tc.Function.Name)
	}
}

// ParseArgs decodes tool arguments. Models sometimes emit almost-JSON (single
// quotes, unquoted keys, truncated objects), so a failed decode is retried once
// on the repaired text.
func ParseArgs(args string, v interface{}) error {
	err := json.Unmarshal([]byte(args), v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(args)
	if repairErr != nil {
		return err
	}
	logger.Debug("Repaired tool arguments: %s -> %s", args, repaired)
	return json.Unmarshal([]byte(repaired), v)
}
