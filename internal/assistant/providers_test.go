package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestToAnthropicMessages(t *testing.T) {
	system, msgs := toAnthropicMessages([]Message{
		SystemMessage{Content: "be brief"},
		UserMessage{Content: "summarize"},
		AssistantMessage{Content: NoResponse},
		FunctionMessage{ToolCallID: "toolu_1", Name: "parseWebpageToMarkdown", Content: "# Page"},
		FunctionMessage{ToolCallID: "toolu_2", Name: "parseWebpageToMarkdown", Content: "# Other"},
	})

	assert.Equal(t, "be brief\n", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.RoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.RoleAssistant, msgs[1].Role)
	assert.Equal(t, anthropic.RoleUser, msgs[2].Role)

	// consecutive function results collapse into one user turn
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "Result of parseWebpageToMarkdown (call toolu_1):\n# Page", *msgs[2].Content[0].Text)
}

func TestAnthropicToolChoice(t *testing.T) {
	assert.Equal(t, "auto", anthropicToolChoice(ToolChoiceAuto).Type)
	assert.Equal(t, "any", anthropicToolChoice(ToolChoiceRequired).Type)
	assert.Equal(t, "none", anthropicToolChoice(ToolChoiceNone).Type)
}

func TestGeminiSchema(t *testing.T) {
	def := (&WebpageTool{}).Definition()
	schema, err := geminiSchema(def.Parameters)
	require.NoError(t, err)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"url"}, schema.Required)
	require.Contains(t, schema.Properties, "url")
	assert.Equal(t, genai.TypeString, schema.Properties["url"].Type)
	assert.Equal(t, "The URL of the webpage to parse", schema.Properties["url"].Description)
}

func TestGeminiSchema_Nested(t *testing.T) {
	schema, err := geminiSchema([]byte(`{"type":"object","properties":{"tags":{"type":"array","items":{"type":"string","enum":["a","b"]}}}}`))
	require.NoError(t, err)

	tags := schema.Properties["tags"]
	assert.Equal(t, genai.TypeArray, tags.Type)
	require.NotNil(t, tags.Items)
	assert.Equal(t, genai.TypeString, tags.Items.Type)
	assert.Equal(t, []string{"a", "b"}, tags.Items.Enum)
}

func TestGeminiSchema_Invalid(t *testing.T) {
	_, err := geminiSchema([]byte(`{`))
	assert.Error(t, err)
}

func TestApplyGeminiParams(t *testing.T) {
	model := &genai.GenerativeModel{}
	temp := float32(0.3)
	maxTokens := int32(64)
	applyGeminiParams(model, geminiParams{Temperature: &temp, MaxTokens: &maxTokens, Stop: []string{"END"}})

	require.NotNil(t, model.Temperature)
	assert.InDelta(t, 0.3, *model.Temperature, 0.0001)
	require.NotNil(t, model.MaxOutputTokens)
	assert.EqualValues(t, 64, *model.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, model.StopSequences)
}

func TestDecodeParams(t *testing.T) {
	var p geminiParams
	require.NoError(t, decodeParams(map[string]any{"top_k": 5, "unknown": true}, &p))
	require.NotNil(t, p.TopK)
	assert.EqualValues(t, 5, *p.TopK)

	assert.NoError(t, decodeParams(nil, &p))
}

func TestAnthropicProvider_ForwardsParamsVerbatim(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test-1",
			"content":[{"type":"text","text":"hi there"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider("test-key", "claude-test", ProviderOptions{
		BaseURL:      server.URL + "/v1",
		RetryBackoff: time.Millisecond,
	})
	reply, err := provider.Chat(context.Background(), ChatRequest{
		Messages: []Message{SystemMessage{Content: "sys"}, UserMessage{Content: "hi"}},
		Params: map[string]any{
			"temperature":    0,
			"top_k":          5,
			"max_tokens":     100,
			"stop_sequences": []string{"END"},
			"system":         "not this one",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply.Content)
	assert.Equal(t, "claude-test-1", reply.Model)
	assert.Equal(t, 5, reply.Usage.TotalTokens)

	require.Contains(t, body, "temperature")
	assert.EqualValues(t, 0, body["temperature"])
	assert.EqualValues(t, 5, body["top_k"])
	assert.EqualValues(t, 100, body["max_tokens"])
	assert.Equal(t, []any{"END"}, body["stop_sequences"])
	assert.Equal(t, "sys\n", body["system"])
	assert.Equal(t, "claude-test", body["model"])
}

func TestAnthropicProvider_DefaultMaxTokens(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider("test-key", "claude-test", ProviderOptions{BaseURL: server.URL + "/v1"})
	_, err := provider.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage{Content: "hi"}}})
	require.NoError(t, err)
	assert.EqualValues(t, anthropicMaxTokens, body["max_tokens"])
}

func TestGeminiHistory(t *testing.T) {
	system, history, last, err := geminiHistory([]Message{
		SystemMessage{Content: "be brief"},
		UserMessage{Content: "first"},
		AssistantMessage{Content: "answer"},
		UserMessage{Content: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "be brief\n", system)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)

	// an empty prompt is still sent
	require.NotNil(t, last)
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, []genai.Part{genai.Text("(empty)")}, last.Parts)
}

func TestGeminiHistory_FunctionResultIsUserTurn(t *testing.T) {
	_, history, last, err := geminiHistory([]Message{
		UserMessage{Content: "summarize"},
		AssistantMessage{Content: NoResponse},
		FunctionMessage{ToolCallID: "c-0", Name: "parseWebpageToMarkdown", Content: ""},
	})
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, []genai.Part{genai.Text("Result of parseWebpageToMarkdown (call c-0):\n")}, last.Parts)
}

func TestGeminiHistory_LastTurnNotFromUser(t *testing.T) {
	_, _, _, err := geminiHistory([]Message{UserMessage{Content: "hi"}, AssistantMessage{Content: "hello"}})
	assert.Error(t, err)

	_, _, _, err = geminiHistory(nil)
	assert.Error(t, err)
}

func TestGeminiRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"server error", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusBadGateway}), true},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"blocked", &genai.BlockedError{}, false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, geminiRetryable(tt.err))
		})
	}
}

func TestGeminiParams_StopAndUnsupportedKeys(t *testing.T) {
	params := map[string]any{"stop": "END", "temperature": 0, "seed": 1, "logit_bias": map[string]int{}}

	var p geminiParams
	require.NoError(t, decodeParams(params, &p))
	assert.Equal(t, stopSequences{"END"}, p.Stop)
	require.NotNil(t, p.Temperature)
	assert.Zero(t, *p.Temperature)

	require.NoError(t, decodeParams(map[string]any{"stop": []string{"A", "B"}}, &p))
	assert.Equal(t, stopSequences{"A", "B"}, p.Stop)

	assert.Equal(t, []string{"logit_bias", "seed"}, unsupportedGeminiParams(params))
}
