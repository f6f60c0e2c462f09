package llm

import (
	"context"
	"fmt"
	"time"
)

// Role of a chat transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 60 * time.Second
)

// Config describes one chat-completion endpoint. Any OpenAI-compatible
// provider works: requests go to {BaseURL}/chat/completions with a bearer key.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Message is one entry of the chat transcript, in send order.
type Message struct {
	Role    Role
	Content string
}

type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client issues a single chat completion.
//
// Complete returns the first choice's content verbatim. A provider that answers
// with a non-success status or an unreadable body yields ("", nil): the caller
// treats it as "no reply". Transport failures and timeouts are returned as errors
// so the job runner can retry them.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Model() string
}

// New builds a Client for cfg. An empty API key is rejected.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return newOpenAIClient(cfg), nil
}
