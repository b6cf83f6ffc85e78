package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	args := m.Called(ctx, req)
	reply, _ := args.Get(0).(*ChatReply)
	return reply, args.Error(1)
}

func (m *mockProvider) request(i int) ChatRequest {
	return m.Calls[i].Arguments.Get(1).(ChatRequest)
}

var (
	withTools    = mock.MatchedBy(func(req ChatRequest) bool { return len(req.Tools) > 0 })
	withoutTools = mock.MatchedBy(func(req ChatRequest) bool { return len(req.Tools) == 0 })
)

type fakeConverter struct {
	mu    sync.Mutex
	pages map[string]string
	err   error
	urls  []string
}

func (f *fakeConverter) ParseWebpageToMarkdown(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return "", f.err
	}
	return f.pages[url], nil
}

func webpageCall(id, args string) ToolCall {
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: FunctionCall{Name: string(ToolParseWebpageToMarkdown), Arguments: args},
	}
}

func TestAgentRun_SequentialWithToolCall(t *testing.T) {
	provider := &mockProvider{}
	conv := &fakeConverter{pages: map[string]string{"https://example.com": "# Example"}}

	provider.On("Chat", mock.Anything, withTools).
		Return(&ChatReply{Content: "A", Model: "gpt-x-001", Usage: Usage{TotalTokens: 10}}, nil).Once()
	provider.On("Chat", mock.Anything, withTools).
		Return(&ChatReply{ToolCalls: []ToolCall{webpageCall("call_1", `{"url":"https://example.com"}`)}, Usage: Usage{TotalTokens: 5}}, nil).Once()
	provider.On("Chat", mock.Anything, withoutTools).
		Return(&ChatReply{Content: "Summary", Usage: Usage{TotalTokens: 20}}, nil).Once()
	provider.On("Chat", mock.Anything, withTools).
		Return(&ChatReply{Content: "C", Usage: Usage{TotalTokens: 3}}, nil).Once()

	params := map[string]any{"temperature": 0.1}
	agent := NewAgent(provider, NewToolRegistry(conv), "gpt-x", "be brief", params)
	outcomes := agent.Run(context.Background(), []string{"a", "b", "c"})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}
	assert.Equal(t, "A", outcomes[0].Reply.Content)
	assert.Equal(t, "Summary", outcomes[1].Reply.Content)
	assert.Equal(t, 20, outcomes[1].Reply.Usage.TotalTokens)
	assert.Equal(t, "C", outcomes[2].Reply.Content)
	assert.Equal(t, []string{"https://example.com"}, conv.urls)

	assert.Equal(t, []Message{
		SystemMessage{Content: "be brief"},
		UserMessage{Content: "a"},
		AssistantMessage{Content: "A"},
		UserMessage{Content: "b"},
		AssistantMessage{Content: NoResponse},
		FunctionMessage{ToolCallID: "call_1", Name: "parseWebpageToMarkdown", Content: "# Example"},
		AssistantMessage{Content: "Summary"},
		UserMessage{Content: "c"},
		AssistantMessage{Content: "C"},
	}, agent.History())

	provider.AssertNumberOfCalls(t, "Chat", 4)

	first := provider.request(0)
	assert.Equal(t, "gpt-x", first.Model)
	assert.Equal(t, ToolChoiceAuto, first.ToolChoice)
	assert.Equal(t, params, first.Params)
	require.Len(t, first.Tools, 1)
	assert.Equal(t, "parseWebpageToMarkdown", first.Tools[0].Name)

	followUp := provider.request(2)
	assert.Empty(t, followUp.Tools)
	assert.Empty(t, followUp.ToolChoice)
	assert.Equal(t, params, followUp.Params)
	require.NotEmpty(t, followUp.Messages)
	assert.Equal(t, RoleFunction, followUp.Messages[len(followUp.Messages)-1].Role())

	// the last prompt sees everything before it
	assert.Len(t, provider.request(3).Messages, 8)
}

func TestAgentRun_FailureDoesNotStopBatch(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, withTools).Return(nil, errors.New("boom")).Once()
	provider.On("Chat", mock.Anything, withTools).Return(&ChatReply{Content: "ok"}, nil).Once()

	agent := NewAgent(provider, NewToolRegistry(&fakeConverter{}), "m", "", nil)
	outcomes := agent.Run(context.Background(), []string{"first", "second"})

	require.Len(t, outcomes, 2)
	assert.EqualError(t, outcomes[0].Err, "boom")
	assert.Nil(t, outcomes[0].Reply)
	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, "ok", outcomes[1].Reply.Content)

	// failed prompts leave no trace in the conversation
	assert.Equal(t, []Message{
		UserMessage{Content: "second"},
		AssistantMessage{Content: "ok"},
	}, agent.History())
}

func TestAgentRun_ToolFailureFailsPrompt(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, withTools).
		Return(&ChatReply{ToolCalls: []ToolCall{webpageCall("call_9", `{"url":"https://example.com/missing"}`)}}, nil).Once()

	conv := &fakeConverter{err: errors.New("failed to fetch the webpage: 404 Not Found")}
	agent := NewAgent(provider, NewToolRegistry(conv), "m", "sys", nil)
	outcomes := agent.Run(context.Background(), []string{"summarize it"})

	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
	assert.Contains(t, outcomes[0].Err.Error(), "404 Not Found")
	provider.AssertNumberOfCalls(t, "Chat", 1)
	assert.Equal(t, []Message{SystemMessage{Content: "sys"}}, agent.History())
}

func TestAgentRun_EmptyBatch(t *testing.T) {
	provider := &mockProvider{}
	agent := NewAgent(provider, NewToolRegistry(&fakeConverter{}), "m", "", nil)

	assert.Empty(t, agent.Run(context.Background(), nil))
	provider.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestProcessMessage_BadToolArguments(t *testing.T) {
	tests := []struct {
		name string
		call ToolCall
		want string
	}{
		{"not json", webpageCall("c1", `<<<`), "invalid arguments"},
		{"truncated json", webpageCall("c1", `{"url":`), "invalid arguments"},
		{"missing url", webpageCall("c2", `{}`), "missing url"},
		{"unknown tool", ToolCall{ID: "c3", Function: FunctionCall{Name: "deleteEverything", Arguments: `{}`}}, "unknown tool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			provider.On("Chat", mock.Anything, withTools).
				Return(&ChatReply{ToolCalls: []ToolCall{tt.call}}, nil).Once()

			agent := NewAgent(provider, NewToolRegistry(&fakeConverter{}), "m", "", nil)
			reply, err := agent.ProcessMessage(context.Background(), "go")

			require.Error(t, err)
			assert.Nil(t, reply)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProcessMessage_RepairsLooseArguments(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, withTools).
		Return(&ChatReply{ToolCalls: []ToolCall{webpageCall("c1", `{url: 'https://a.test'}`)}}, nil).Once()
	provider.On("Chat", mock.Anything, withoutTools).Return(&ChatReply{Content: "read it"}, nil).Once()

	conv := &fakeConverter{pages: map[string]string{"https://a.test": "A"}}
	agent := NewAgent(provider, NewToolRegistry(conv), "m", "", nil)

	reply, err := agent.ProcessMessage(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "read it", reply.Content)
	assert.Equal(t, []string{"https://a.test"}, conv.urls)
}

func TestWebpageTool_AsTool(t *testing.T) {
	conv := &fakeConverter{pages: map[string]string{"https://a.test": "# A"}}
	var tool Tool = &WebpageTool{Converter: conv}

	def := tool.Definition()
	assert.Equal(t, "parseWebpageToMarkdown", def.Name)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {"url": {"type": "string", "description": "The URL of the webpage to parse"}},
		"required": ["url"]
	}`, string(def.Parameters))

	out, err := tool.Execute(context.Background(), `{"url":"https://a.test"}`)
	require.NoError(t, err)
	assert.Equal(t, "# A", out)
	assert.Equal(t, []ToolDefinition{def}, NewToolRegistry(conv).Definitions())
}

func TestProcessMessage_UnknownToolSentinel(t *testing.T) {
	registry := NewToolRegistry(&fakeConverter{})
	_, err := registry.Dispatch(context.Background(), ToolCall{Function: FunctionCall{Name: "nope"}})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestProcessMessage_MultipleToolCallsKeepOrder(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, withTools).Return(&ChatReply{ToolCalls: []ToolCall{
		webpageCall("one", `{"url":"https://a.test"}`),
		webpageCall("two", `{"url":"https://b.test"}`),
	}}, nil).Once()
	provider.On("Chat", mock.Anything, withoutTools).Return(&ChatReply{Content: "both"}, nil).Once()

	conv := &fakeConverter{pages: map[string]string{"https://a.test": "A", "https://b.test": "B"}}
	agent := NewAgent(provider, NewToolRegistry(conv), "m", "", nil)

	reply, err := agent.ProcessMessage(context.Background(), "compare")
	require.NoError(t, err)
	assert.Equal(t, "both", reply.Content)

	history := agent.History()
	require.Len(t, history, 5)
	assert.Equal(t, FunctionMessage{ToolCallID: "one", Name: "parseWebpageToMarkdown", Content: "A"}, history[2])
	assert.Equal(t, FunctionMessage{ToolCallID: "two", Name: "parseWebpageToMarkdown", Content: "B"}, history[3])
}

func TestAgent_SendsStatusUpdates(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, withTools).Return(&ChatReply{Content: "hi"}, nil).Once()

	agent := NewAgent(provider, NewToolRegistry(&fakeConverter{}), "m", "", nil)
	_, err := agent.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)

	var got []string
	for len(agent.Updates()) > 0 {
		got = append(got, (<-agent.Updates()).Message)
	}
	assert.Contains(t, got, "Done")
	assert.NotEmpty(t, agent.ID())
}
