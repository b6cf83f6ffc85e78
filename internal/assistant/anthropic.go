package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/reinhart/webmd/internal/logger"
)

const anthropicMaxTokens = 4096

// AnthropicProvider implements LLMProvider using the Anthropic API
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	opts   ProviderOptions
}

// NewAnthropicProvider creates a new Anthropic provider instance
func NewAnthropicProvider(apiKey string, model string, opts ProviderOptions) *AnthropicProvider {
	if model == "" {
		model = string(anthropic.ModelClaude3Dot5Sonnet20240620)
	}

	clientOpts := []anthropic.ClientOption{anthropic.WithHTTPClient(opts.httpClient())}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(opts.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(apiKey, clientOpts...),
		model:  model,
		opts:   opts,
	}
}

// Chat sends the request with params written into the body as given.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if err := checkParams(req.Params); err != nil {
		return nil, err
	}
	ctx = withParams(ctx, req.Params)

	model := req.Model
	if model == "" {
		model = p.model
	}
	// max_tokens in params replaces the default on the wire
	apiReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
	}
	apiReq.System, apiReq.Messages = toAnthropicMessages(req.Messages)

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	if len(apiReq.Tools) > 0 && req.ToolChoice != "" {
		apiReq.ToolChoice = anthropicToolChoice(req.ToolChoice)
	}

	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.opts.backoff(attempt)
			logger.Debug("Retrying Anthropic request in %s (attempt %d): %v", wait, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("anthropic completion error (context): %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, err := p.client.CreateMessages(ctx, apiReq)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, fmt.Errorf("anthropic completion error (context): %w", ctx.Err())
			}
			if !anthropicRetryable(err) {
				break
			}
			continue
		}
		return replyFromAnthropic(resp), nil
	}

	return nil, fmt.Errorf("anthropic completion error: %w", lastErr)
}

// toAnthropicMessages splits out the system prompt, which Anthropic takes
// separately, and folds function results into user turns. Adjacent turns with
// the same role are merged.
func toAnthropicMessages(messages []Message) (string, []anthropic.Message) {
	var system string
	var out []anthropic.Message

	for _, msg := range messages {
		var role anthropic.ChatRole
		var text string

		switch m := msg.(type) {
		case SystemMessage:
			system += m.Content + "\n"
			continue
		case UserMessage:
			role, text = anthropic.RoleUser, m.Content
		case AssistantMessage:
			role, text = anthropic.RoleAssistant, m.Content
		case FunctionMessage:
			role, text = anthropic.RoleUser, functionResultText(m)
		default:
			continue
		}

		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, anthropic.NewTextMessageContent(text))
			continue
		}
		out = append(out, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(text)},
		})
	}
	return system, out
}

func anthropicToolChoice(choice ToolChoice) *anthropic.ToolChoice {
	switch choice {
	case ToolChoiceRequired:
		return &anthropic.ToolChoice{Type: "any"}
	case ToolChoiceNone:
		return &anthropic.ToolChoice{Type: "none"}
	default:
		return &anthropic.ToolChoice{Type: "auto"}
	}
}

func replyFromAnthropic(resp anthropic.MessagesResponse) *ChatReply {
	reply := &ChatReply{
		ID:    resp.ID,
		Model: string(resp.Model),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	for _, content := range resp.Content {
		switch content.Type {
		case anthropic.MessagesContentTypeText:
			if content.Text != nil {
				reply.Content += *content.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if content.MessageContentToolUse == nil {
				continue
			}
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:   content.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      content.Name,
					Arguments: string(content.Input),
				},
			})
		}
	}
	return reply
}

func anthropicRetryable(err error) bool {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimitErr() || apiErr.IsOverloadedErr() || apiErr.IsApiErr()
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode == 429 || reqErr.StatusCode >= 500
	}
	return true
}

// functionResultText renders a tool result for providers without a function
// role.
func functionResultText(m FunctionMessage) string {
	return fmt.Sprintf("Result of %s (call %s):\n%s", m.Name, m.ToolCallID, m.Content)
}
