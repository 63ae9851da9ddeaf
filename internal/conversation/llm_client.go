package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
	TotalTokens  int32 `json:"total_tokens"`
}

// ToolDefinition describes one action the model is allowed to request.
// InputSchema is a JSON-schema object.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// FunctionCall is a structured action request emitted by the model, distinct
// from its free-text reply.
type FunctionCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type LLMRequest struct {
	Model     string
	System    []string
	Messages  []ChatMessage
	Tools     []ToolDefinition
	MaxTokens int32

	// Temperature and TopP are omitted from the provider request when zero.
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text          string
	FunctionCalls []FunctionCall
	Usage         TokenUsage
	StopReason    string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
