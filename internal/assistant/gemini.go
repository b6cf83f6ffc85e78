package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/reinhart/webmd/internal/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider implements LLMProvider using Google's Gemini API
type GeminiProvider struct {
	client *genai.Client
	model  string
	opts   ProviderOptions
}

// NewGeminiProvider creates a new Gemini provider instance
func NewGeminiProvider(ctx context.Context, apiKey string, model string, opts ProviderOptions) (*GeminiProvider, error) {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{
		client: client,
		model:  model,
		opts:   opts,
	}, nil
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// geminiParams is the subset of completion parameters Gemini understands. The
// SDK has no raw request body, so other keys cannot be forwarded.
type geminiParams struct {
	Temperature     *float32      `json:"temperature"`
	TopP            *float32      `json:"top_p"`
	TopK            *int32        `json:"top_k"`
	MaxTokens       *int32        `json:"max_tokens"`
	MaxOutputTokens *int32        `json:"max_output_tokens"`
	Stop            stopSequences `json:"stop"`
}

var geminiParamKeys = map[string]bool{
	"temperature":       true,
	"top_p":             true,
	"top_k":             true,
	"max_tokens":        true,
	"max_output_tokens": true,
	"stop":              true,
}

// stopSequences accepts a single string or a list, like the OpenAI API.
type stopSequences []string

func (s *stopSequences) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stopSequences{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// unsupportedGeminiParams lists the keys of params that Gemini drops.
func unsupportedGeminiParams(params map[string]any) []string {
	var keys []string
	for key := range params {
		if !geminiParamKeys[key] {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	name := req.Model
	if name == "" {
		name = p.model
	}
	model := p.client.GenerativeModel(name)

	var params geminiParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, fmt.Errorf("invalid completion parameters: %w", err)
	}
	applyGeminiParams(model, params)
	for _, key := range unsupportedGeminiParams(req.Params) {
		logger.Warn("Gemini does not support completion parameter %q, dropping it", key)
	}

	if len(req.Tools) > 0 {
		var funcDecls []*genai.FunctionDeclaration
		for _, t := range req.Tools {
			schema, err := geminiSchema(t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			funcDecls = append(funcDecls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: funcDecls}}
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: geminiCallingMode(req.ToolChoice)},
		}
	}

	system, history, last, err := geminiHistory(req.Messages)
	if err != nil {
		return nil, err
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	var resp *genai.GenerateContentResponse
	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.opts.backoff(attempt)
			logger.Debug("Retrying Gemini request in %s (attempt %d): %v", wait, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("gemini completion error (context): %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		// SendMessage appends to History even when it fails
		cs.History = history
		resp, err = cs.SendMessage(ctx, last.Parts...)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gemini completion error (context): %w", ctx.Err())
		}
		if !geminiRetryable(err) {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("gemini completion error: %w", lastErr)
	}
	return p.parseResponse(name, resp)
}

// geminiHistory splits messages into the system instruction, the replayed
// history and the newest user turn, which is sent. Function results become
// user text.
func geminiHistory(messages []Message) (string, []*genai.Content, *genai.Content, error) {
	var system string
	var history []*genai.Content
	for _, msg := range messages {
		role, text := "user", msg.Text()
		switch m := msg.(type) {
		case SystemMessage:
			system += m.Content + "\n"
			continue
		case AssistantMessage:
			role = "model"
		case FunctionMessage:
			text = functionResultText(m)
		}
		// the API rejects empty parts
		if text == "" {
			text = "(empty)"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(text)},
		})
	}

	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", nil, nil, fmt.Errorf("last message was not from user")
	}
	last := history[len(history)-1]
	return system, slices.Clip(history[:len(history)-1]), last, nil
}

func (p *GeminiProvider) parseResponse(model string, resp *genai.GenerateContentResponse) (*ChatReply, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoChoices
	}
	cand := resp.Candidates[0]

	reply := &ChatReply{Model: model}
	for i, part := range cand.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			reply.Content += string(v)
		case genai.FunctionCall:
			argsBytes, err := json.Marshal(v.Args)
			if err != nil {
				return nil, err
			}
			// Gemini does not assign call IDs
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:   fmt.Sprintf("%s-%d", v.Name, i),
				Type: "function",
				Function: FunctionCall{
					Name:      v.Name,
					Arguments: string(argsBytes),
				},
			})
		}
	}

	if md := resp.UsageMetadata; md != nil {
		reply.Usage = Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}
	return reply, nil
}

func applyGeminiParams(model *genai.GenerativeModel, params geminiParams) {
	if params.Temperature != nil {
		model.SetTemperature(*params.Temperature)
	}
	if params.TopP != nil {
		model.SetTopP(*params.TopP)
	}
	if params.TopK != nil {
		model.SetTopK(*params.TopK)
	}
	if params.MaxOutputTokens != nil {
		model.SetMaxOutputTokens(*params.MaxOutputTokens)
	} else if params.MaxTokens != nil {
		model.SetMaxOutputTokens(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		model.StopSequences = params.Stop
	}
}

func geminiRetryable(err error) bool {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

func geminiCallingMode(choice ToolChoice) genai.FunctionCallingMode {
	switch choice {
	case ToolChoiceRequired:
		return genai.FunctionCallingAny
	case ToolChoiceNone:
		return genai.FunctionCallingNone
	default:
		return genai.FunctionCallingAuto
	}
}

// jsonSchema is the part of JSON Schema that maps onto genai.Schema.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
	Enum        []string               `json:"enum"`
}

func geminiSchema(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s jsonSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid parameter schema: %w", err)
	}
	return s.toGenai(), nil
}

func (s *jsonSchema) toGenai() *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       s.Items.toGenai(),
	}
	switch s.Type {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeObject
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.toGenai()
		}
	}
	return out
}
