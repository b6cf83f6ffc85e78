package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/reinhart/webmd/internal/logger"
)

// NoResponse stands in for an empty assistant reply in the history.
const NoResponse = "No response."

// StatusUpdate represents a real-time update from the agent
type StatusUpdate struct {
	Message string
}

// Outcome is the result of one prompt in a batch. Exactly one of Reply and
// Err is set.
type Outcome struct {
	Prompt string
	Reply  *ChatReply
	Err    error
}

// Agent manages the conversation flow between the user, the LLM, and the tools.
// The history only grows; a prompt that fails leaves it untouched.
type Agent struct {
	provider LLMProvider
	registry *ToolRegistry
	model    string
	params   map[string]any
	history  []Message
	updates  chan StatusUpdate // Channel for sending updates to UI
	log      logger.Run
}

// NewAgent creates a new agent instance. params are forwarded with every
// completion request.
func NewAgent(provider LLMProvider, registry *ToolRegistry, model, systemPrompt string, params map[string]any) *Agent {
	agent := &Agent{
		provider: provider,
		registry: registry,
		model:    model,
		params:   params,
		history:  make([]Message, 0),
		updates:  make(chan StatusUpdate, 10), // Buffered channel
		log:      logger.ForRun(uuid.NewString()),
	}
	if systemPrompt != "" {
		agent.history = append(agent.history, SystemMessage{Content: systemPrompt})
	}
	return agent
}

// ID identifies the agent's run in log output.
func (a *Agent) ID() string {
	return a.log.ID
}

// Updates returns the channel for status updates
func (a *Agent) Updates() <-chan StatusUpdate {
	return a.updates
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []Message {
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// sendUpdate sends a status update non-blocking
func (a *Agent) sendUpdate(msg string) {
	select {
	case a.updates <- StatusUpdate{Message: msg}:
	default:
		// Drop if channel full or no listener
	}
}

// Run processes prompts one after another against the shared history. A
// failing prompt is recorded and the batch moves on.
func (a *Agent) Run(ctx context.Context, prompts []string) []Outcome {
	outcomes := make([]Outcome, 0, len(prompts))
	for i, prompt := range prompts {
		a.log.Info("prompt %d of %d", i+1, len(prompts))
		reply, err := a.ProcessMessage(ctx, prompt)
		if err != nil {
			a.log.Error("prompt %d failed: %v", i+1, err)
		}
		outcomes = append(outcomes, Outcome{Prompt: prompt, Reply: reply, Err: err})
	}
	return outcomes
}

// ProcessMessage sends one prompt, runs any requested tools, and returns the
// reply that answers the prompt. When tools were called that is the reply to
// the follow-up request made without tools.
func (a *Agent) ProcessMessage(ctx context.Context, input string) (*ChatReply, error) {
	a.log.Debug("Processing user input: %s", input)
	a.sendUpdate("Analysing request...")

	turn := []Message{UserMessage{Content: input}}

	a.sendUpdate("Thinking...")
	first, err := a.chat(ctx, turn, true)
	if err != nil {
		return nil, err
	}
	a.log.Debug("Received response from LLM (Content len: %d, ToolCalls: %d)", len(first.Content), len(first.ToolCalls))
	turn = append(turn, AssistantMessage{Content: orNoResponse(first.Content)})

	if len(first.ToolCalls) == 0 {
		a.commit(turn)
		a.sendUpdate("Done")
		return first, nil
	}

	results, err := a.runTools(ctx, first.ToolCalls)
	if err != nil {
		return nil, err
	}
	turn = append(turn, results...)

	a.sendUpdate("Summarising tool results...")
	second, err := a.chat(ctx, turn, false)
	if err != nil {
		return nil, err
	}
	turn = append(turn, AssistantMessage{Content: orNoResponse(second.Content)})

	a.commit(turn)
	a.sendUpdate("Done")
	return second, nil
}

func (a *Agent) chat(ctx context.Context, turn []Message, withTools bool) (*ChatReply, error) {
	messages := make([]Message, 0, len(a.history)+len(turn))
	messages = append(messages, a.history...)
	messages = append(messages, turn...)

	req := ChatRequest{
		Model:    a.model,
		Messages: messages,
		Params:   a.params,
	}
	if withTools {
		req.Tools = a.registry.Definitions()
		req.ToolChoice = ToolChoiceAuto
	}

	reply, err := a.provider.Chat(ctx, req)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			a.sendUpdate("Request timed out")
		case errors.Is(ctx.Err(), context.Canceled):
			a.sendUpdate("Request cancelled")
		default:
			a.sendUpdate("Error communicating with LLM")
		}
		return nil, err
	}
	return reply, nil
}

// runTools executes the calls one after another in call order and stops at the
// first failure.
func (a *Agent) runTools(ctx context.Context, calls []ToolCall) ([]Message, error) {
	results := make([]Message, 0, len(calls))
	for _, tc := range calls {
		a.log.Info("Tool Call Request: %s(%s)", tc.Function.Name, tc.Function.Arguments)
		if ToolName(tc.Function.Name) == ToolParseWebpageToMarkdown {
			a.sendUpdate("Fetching webpage...")
		}

		output, err := a.registry.Dispatch(ctx, tc)
		if err != nil {
			a.sendUpdate(fmt.Sprintf("Error in %s: %v", tc.Function.Name, err))
			return nil, fmt.Errorf("tool %s: %w", tc.Function.Name, err)
		}
		a.log.Debug("Tool Output (%s): %d bytes", tc.Function.Name, len(output))
		a.sendUpdate(fmt.Sprintf("Finished %s", tc.Function.Name))

		results = append(results, FunctionMessage{
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Content:    output,
		})
	}
	return results, nil
}

func (a *Agent) commit(turn []Message) {
	a.history = append(a.history, turn...)
}

func orNoResponse(content string) string {
	if content == "" {
		return NoResponse
	}
	return content
}
