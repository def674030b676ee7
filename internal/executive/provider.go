package executive

import (
	"context"

	"github.com/vthunder/lifeos/internal/types"
)

// Role identifies who produced a history message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a chat's conversation history.
// Assistant messages may carry tool calls; tool messages answer one call by ID.
type Message struct {
	Role       Role             `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []types.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// Request is what the loop sends to the model on each round-trip
type Request struct {
	Instructions string
	Messages     []Message
	Tools        []types.ToolDefinition
}

// Response is the model's answer: final text, tool calls, or both
type Response struct {
	Text      string
	ToolCalls []types.ToolCall
}

// Provider is a tool-calling language model
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ToolRunner executes calls for one tool. The gateway implements it.
// Execute returns a non-nil error only when ctx is done.
type ToolRunner interface {
	Definition() types.ToolDefinition
	Execute(ctx context.Context, arguments string) (string, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ProviderFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
