package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/autoreply/common/llm"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/settings"
)

// ClientFactory builds a chat client for the endpoint named in a config snapshot.
type ClientFactory func(cfg llm.Config) (llm.Client, error)

type aiStrategy struct {
	history   *HistoryBuilder
	contexts  *ContextBuilder
	newClient ClientFactory
}

// NewAIStrategy answers with a chat completion built from the curated history
// and, when enabled, the account context. contexts may be nil.
func NewAIStrategy(history *HistoryBuilder, contexts *ContextBuilder, newClient ClientFactory) Strategy {
	if newClient == nil {
		newClient = llm.New
	}
	return &aiStrategy{history: history, contexts: contexts, newClient: newClient}
}

func (s *aiStrategy) Source() model.ReplySource {
	return model.ReplySourceAI
}

func (s *aiStrategy) Decide(ctx context.Context, req Request) (Decision, error) {
	cfg := req.Config
	if !cfg.AIReplyEnabled() {
		return Pass(), nil
	}
	if cfg.AIAPIKey() == "" {
		slog.WarnContext(ctx, "ai reply enabled without an api key, skipping")
		return Pass(), nil
	}

	history, err := s.history.Build(ctx, req.Ticket, HistoryOptions{
		MaxHistory:       cfg.MaxConversationHistory(),
		Markers:          []string{cfg.AutoReplyPrefix(), cfg.AIReplyPrefix()},
		TriggerMessageID: req.TriggerMessageID,
		TriggerText:      req.Message,
	})
	if err != nil {
		return Pass(), fmt.Errorf("building history: %w", err)
	}

	systemPrompt := cfg.AISystemPrompt()
	if cfg.UserContextEnabled() && s.contexts != nil {
		if block := s.contexts.Build(ctx, req.Ticket, cfg.SpeedLimitWarning()); block != "" {
			systemPrompt += "\n\n" + block
		}
	}

	reply, err := s.complete(ctx, systemPrompt, history, req.Message, cfg)
	if err != nil {
		return Pass(), err
	}
	if strings.TrimSpace(reply) == "" {
		slog.InfoContext(ctx, "ai provider returned no reply")
		return Pass(), nil
	}
	return Handled(reply), nil
}

func (s *aiStrategy) complete(ctx context.Context, systemPrompt string, history []model.HistoryEntry, message string, cfg settings.ResolvedConfig) (string, error) {
	client, err := s.newClient(llm.Config{
		APIKey:  cfg.AIAPIKey(),
		BaseURL: cfg.AIAPIBase(),
		Model:   cfg.AIModel(),
		Timeout: time.Duration(cfg.AITimeoutSeconds()) * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("creating llm client: %w", err)
	}

	return client.Complete(ctx, llm.ChatRequest{
		Messages:    BuildTranscript(systemPrompt, history, message),
		Temperature: cfg.AITemperature(),
		MaxTokens:   cfg.AIMaxTokens(),
	})
}

// BuildTranscript orders the chat: system prompt, history, then the current message.
func BuildTranscript(systemPrompt string, history []model.HistoryEntry, message string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, h := range history {
		role := llm.RoleAssistant
		if h.IsFromUser {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Message})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
	return msgs
}
