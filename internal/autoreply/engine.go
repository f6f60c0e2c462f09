package autoreply

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/settings"
)

// Request is everything a strategy may look at for one work item.
type Request struct {
	Ticket           *model.Ticket
	TriggerMessageID int64
	Message          string
	Config           settings.ResolvedConfig
}

// Decision is a strategy's answer: either it handled the message with Text,
// or it passed. Failures travel separately as an error.
type Decision struct {
	Handled bool
	Text    string
}

func Handled(text string) Decision {
	return Decision{Handled: true, Text: text}
}

func Pass() Decision {
	return Decision{}
}

// Strategy is one link of the decision chain.
type Strategy interface {
	Source() model.ReplySource
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Engine runs strategies in order and stops at the first that handles the message.
type Engine struct {
	strategies []Strategy
}

func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies}
}

// NewDefaultEngine wires the fixed chain: escalation, keyword, AI.
func NewDefaultEngine(history *HistoryBuilder, contexts *ContextBuilder, newClient ClientFactory) *Engine {
	return NewEngine(
		NewEscalationStrategy(),
		NewKeywordStrategy(),
		NewAIStrategy(history, contexts, newClient),
	)
}

// Decide returns the outcome for one message. "No strategy applied" is a
// normal result (source none), not an error.
func (e *Engine) Decide(ctx context.Context, req Request) (model.ReplyOutcome, error) {
	for _, s := range e.strategies {
		decision, err := s.Decide(ctx, req)
		if err != nil {
			return model.ReplyOutcome{}, fmt.Errorf("%s strategy: %w", s.Source(), err)
		}
		if decision.Handled {
			slog.InfoContext(ctx, "auto-reply decided", "source", s.Source(), "reply_length", len(decision.Text))
			return model.ReplyOutcome{Text: decision.Text, Source: s.Source()}, nil
		}
	}

	slog.InfoContext(ctx, "no auto-reply strategy applied")
	return model.NoReply(), nil
}

// MarkedText is the text actually posted to the ticket. The marker prefix lets
// later history builds recognize the reply as synthetic.
func MarkedText(outcome model.ReplyOutcome, cfg settings.ResolvedConfig) string {
	switch outcome.Source {
	case model.ReplySourceAI:
		return cfg.AIReplyPrefix() + outcome.Text
	case model.ReplySourceKeyword, model.ReplySourceEscalation:
		return cfg.AutoReplyPrefix() + outcome.Text
	default:
		return outcome.Text
	}
}
