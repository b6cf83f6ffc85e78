package assistant

import (
	"context"
	"encoding/json"
)

// Role represents the role of a message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// Message is one conversation turn. It is always one of SystemMessage,
// UserMessage, AssistantMessage or FunctionMessage.
type Message interface {
	Role() Role
	Text() string
}

type SystemMessage struct {
	Content string
}

type UserMessage struct {
	Content string
}

type AssistantMessage struct {
	Content string
}

// FunctionMessage carries a tool result back to the model, linked to the call
// that produced it.
type FunctionMessage struct {
	ToolCallID string
	Name       string
	Content    string
}

func (SystemMessage) Role() Role    { return RoleSystem }
func (UserMessage) Role() Role      { return RoleUser }
func (AssistantMessage) Role() Role { return RoleAssistant }
func (FunctionMessage) Role() Role  { return RoleFunction }

func (m SystemMessage) Text() string    { return m.Content }
func (m UserMessage) Text() string      { return m.Content }
func (m AssistantMessage) Text() string { return m.Content }
func (m FunctionMessage) Text() string  { return m.Content }

// ToolCall represents a request from the LLM to execute a tool
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

// FunctionCall represents the details of a function execution request
type FunctionCall struct {
	Name      string
	Arguments string // JSON string of arguments
}

// ToolDefinition defines a tool that can be used by the LLM
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema describing the parameters
}

// ToolChoice tells the service how to pick among advertised tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// ChatRequest is one completion request.
type ChatRequest struct {
	Model      string
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice ToolChoice
	// Params are forwarded verbatim to the service (temperature, max_tokens, ...).
	Params map[string]any
}

// Usage holds the token counters reported by the service.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatReply is the first choice of a completion.
type ChatReply struct {
	ID        string
	Model     string
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// LLMProvider defines the interface for interacting with LLM backends
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)
}
