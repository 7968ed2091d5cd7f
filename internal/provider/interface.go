// internal/provider/interface.go
package provider

import (
	"context"
	"errors"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var ErrNoAPIKey = errors.New("provider: api key is not configured")

// Message is one entry of a chat conversation
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ToolCall is a function call requested by the model. Arguments is raw JSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a single chat completion request
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature *float64
}

// Chunk is one increment of a streamed completion. Tool calls are only
// delivered once fully assembled.
type Chunk struct {
	Text      string
	ToolCalls []ToolCall
}

// Stream is a lazy, finite, non-restartable sequence of chunks.
// Recv returns io.EOF after the last chunk.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Provider defines the interface that model backends must implement
type Provider interface {
	// Stream starts a streamed completion
	Stream(ctx context.Context, req Request) (Stream, error)

	// Invoke runs a completion and returns the whole text
	Invoke(ctx context.Context, req Request) (string, error)
}
