// Package llm defines the language-model collaborator contract for turn
// generation. The engine talks only to the Client interface so it can be
// exercised with fakes; the production implementation calls Amazon Bedrock.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in the bounded conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes a tool the model can invoke.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"` // JSON Schema string
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"` // JSON string
}

// TurnRequest is the input to one turn generation call.
type TurnRequest struct {
	System      string           `json:"system"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"maxTokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// TurnResult is the model's structured decision for a turn: the text to
// speak plus the intended next action. Action is one of "continue",
// "transfer", "end", or empty when the model gave no explicit decision.
type TurnResult struct {
	Text      string        `json:"text"`
	Action    string        `json:"action,omitempty"`
	ToolCalls []ToolCall    `json:"toolCalls,omitempty"`
	Usage     Usage         `json:"usage"`
	Model     string        `json:"model,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface all model providers implement. Generate must
// respect ctx's deadline; the orchestrator derives it from the turn budget.
type Client interface {
	Generate(ctx context.Context, req TurnRequest) (*TurnResult, error)
	Name() string
}

// ProviderError is returned when a model provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (429, 500, ...), 0 when unknown
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
