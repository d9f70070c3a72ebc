// Package llms defines the chat-completion provider boundary.
//
// The agent core consumes a Provider; the concrete Anthropic implementation
// lives alongside it. Messages carry ordered content blocks so tool calls
// and tool results round-trip exactly as the model emitted them.
package llms

import "context"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Stop reasons reported by the provider.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// Block kinds within a message.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one element of a message payload: plain text, a tool
// call requested by the model, or a tool result echoed back to it.
type ContentBlock struct {
	Type string `json:"type"`

	// Text for type "text".
	Text string `json:"text,omitempty"`

	// ID, Name, Input for type "tool_use".
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// ToolUseID, Content, IsError for type "tool_result".
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is one turn of conversation state.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a single-block text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// Text concatenates the text blocks of a message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls returns the tool_use blocks of a message, in emission order.
func (m Message) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			calls = append(calls, b)
		}
	}
	return calls
}

// ToolDefinition describes a tool in the provider's wire format.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is one chat-completion call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// Usage reports token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the provider's reply: either an end-turn text message or a
// message containing one or more tool_use blocks.
type Response struct {
	Message    Message
	StopReason string
	Usage      Usage
}

// Provider is a chat-completion backend.
type Provider interface {
	// Generate performs one blocking completion call.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelName returns the default model identifier.
	ModelName() string
}
