package turn

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolUse is one tool invocation requested by the model.
type ToolUse struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Message is one entry in the conversation. Tool messages carry the id of
// the tool use they answer; IsError marks results for failed calls.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolUses  []ToolUse `json:"tool_uses,omitempty"`
	ToolUseID string    `json:"tool_use_id,omitempty"`
	IsError   bool      `json:"is_error,omitempty"`
}

// Usage tracks token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Reply is the model's answer to one completion request.
type Reply struct {
	Content  string    `json:"content"`
	ToolUses []ToolUse `json:"tool_uses,omitempty"`
	Usage    Usage     `json:"usage"`
}

// ToolSpec declares one callable tool to the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request contains the parameters for one completion call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// Provider is an LLM API client.
type Provider interface {
	// Complete makes one model call.
	Complete(ctx context.Context, req Request) (*Reply, error)

	// Name returns the provider name.
	Name() string
}

// NewProvider creates a provider client by name.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// IsRetryable reports whether a provider error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") || strings.Contains(msg, "connection refused") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504") {
		return true
	}

	return false
}
