// Package provider defines the uniform chat-completion interface the agent
// loop speaks, plus the shared message and tool types all backends convert
// from and to.
package provider

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation. ToolCalls is set only on
// assistant messages that request tools; ToolCallID only on tool-result
// messages, and must match a ToolCall.ID from the immediately preceding
// assistant message.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a structured request from the model to run a tool. Arguments
// holds the raw JSON text as the model produced it; validation happens at the
// tool boundary so a malformed payload stays a recoverable error.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Schema is a minimal JSON-schema subset, enough to describe tool parameters
// to every backend.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// ToolDefinition describes one callable tool to the model. The catalog is
// assembled once at session construction and never mutated.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Usage is a running total of token counts, accumulated across the
// iterations of one user request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response is one model turn: the assistant text, any tool calls it
// requested, and the token usage of the call.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	Model     string
}

// AssistantMessage converts the response into the conversation message to
// append before executing its tool calls.
func (r *Response) AssistantMessage() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   r.Text,
		ToolCalls: r.ToolCalls,
	}
}

// Provider is the uniform capability set implemented once per backend.
// Adapters exist only to absorb request-shape differences between backends;
// they hold no conversation state.
type Provider interface {
	// Name returns the backend identity ("openai", "gemini", "lmstudio").
	Name() string

	// Send submits the full message list plus the tool catalog and returns
	// the model's turn. Auth, network and rate-limit failures propagate
	// unchanged; a parameter-compatibility rejection is retried once inside
	// the adapter with the offending parameter removed.
	Send(ctx context.Context, msgs []Message, tools []ToolDefinition, model string) (*Response, error)
}

// Known backend identities.
const (
	NameOpenAI   = "openai"
	NameGemini   = "gemini"
	NameLMStudio = "lmstudio"
)

// DefaultModel returns the default model for a backend identity, or "" for
// an unknown one. Callers keep the chosen model on their session; this table
// is read-only.
func DefaultModel(name string) string {
	switch name {
	case NameOpenAI:
		return "gpt-5-mini"
	case NameGemini:
		return "gemini-2.5-flash"
	case NameLMStudio:
		return "gpt-oss-20b"
	}
	return ""
}

// DisplayName returns a human-readable provider/model label.
func DisplayName(name, model string) string {
	switch name {
	case NameOpenAI:
		return "OpenAI - Model: " + model
	case NameGemini:
		return "Google Gemini - Model: " + model
	case NameLMStudio:
		return "LM Studio - Model: " + model
	}
	return name + " - Model: " + model
}
