package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/reinhart/webmd/internal/logger"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements LLMProvider using the OpenAI chat completions API
type OpenAIProvider struct {
	client *openai.Client
	model  string
	opts   ProviderOptions
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider(apiKey string, model string, opts ProviderOptions) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = opts.httpClient()
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		opts:   opts,
	}
}

// Chat sends the request and returns the first choice. Params are written into
// the request body as given. Transient failures are retried with exponential
// backoff.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if err := checkParams(req.Params); err != nil {
		return nil, err
	}
	apiReq := p.buildRequest(req)
	ctx = withParams(ctx, req.Params)

	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.opts.backoff(attempt)
			logger.Debug("Retrying OpenAI request in %s (attempt %d): %v", wait, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("openai completion error (context): %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, err := p.client.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, fmt.Errorf("openai completion error (context): %w", ctx.Err())
			}
			if !retryable(err) {
				break
			}
			continue
		}
		return replyFromOpenAI(resp)
	}

	return nil, fmt.Errorf("openai completion error: %w", lastErr)
}

func (p *OpenAIProvider) buildRequest(req ChatRequest) openai.ChatCompletionRequest {
	var apiReq openai.ChatCompletionRequest
	apiReq.Model = req.Model
	if apiReq.Model == "" {
		apiReq.Model = p.model
	}
	apiReq.Messages = toOpenAIMessages(req.Messages)

	if len(req.Tools) > 0 {
		apiReq.Tools = make([]openai.Tool, len(req.Tools))
		for i, t := range req.Tools {
			apiReq.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		if req.ToolChoice != "" {
			apiReq.ToolChoice = string(req.ToolChoice)
		}
	}
	return apiReq
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch m := msg.(type) {
		case SystemMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case UserMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case AssistantMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		case FunctionMessage:
			// content is omitted on the wire when empty, and the API rejects
			// function messages without it
			content := m.Content
			if content == "" {
				content = "(empty)"
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleFunction,
				Content:    content,
				Name:       m.Name,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return out
}

func replyFromOpenAI(resp openai.ChatCompletionResponse) (*ChatReply, error) {
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	msg := resp.Choices[0].Message

	reply := &ChatReply{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: msg.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return reply, nil
}

// retryable reports whether a failed request may succeed when repeated.
// Client errors other than rate limiting are final.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
