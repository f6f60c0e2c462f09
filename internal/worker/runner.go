package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/autoreply/internal/autoreply"
	"basegraph.app/autoreply/internal/delivery"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/store"
)

type RunnerConfig struct {
	// AttemptTimeout bounds one attempt end to end, LLM call and pre-delivery delay included.
	AttemptTimeout time.Duration
}

// Runner is the per-attempt part of the job state machine: it checks the
// ticket, decides, waits the configured delay and delivers. Retry and terminal
// failure belong to the Worker.
type Runner struct {
	tickets   store.TicketStore
	decider   Decider
	deliverer delivery.Deliverer
	notifier  delivery.Notifier
	cfg       RunnerConfig
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRunner(tickets store.TicketStore, decider Decider, deliverer delivery.Deliverer, notifier delivery.Notifier, cfg RunnerConfig) *Runner {
	if notifier == nil {
		notifier = delivery.NewNopNotifier()
	}
	return &Runner{
		tickets:   tickets,
		decider:   decider,
		deliverer: deliverer,
		notifier:  notifier,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

// WithSleep replaces the pre-delivery wait.
func (r *Runner) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Runner {
	r.sleep = sleep
	return r
}

func (r *Runner) Run(ctx context.Context, item model.WorkItem) error {
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	if err := r.run(ctx, item); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("attempt timed out after %s: %w", r.cfg.AttemptTimeout, err)
		}
		return err
	}
	return nil
}

func (r *Runner) run(ctx context.Context, item model.WorkItem) error {
	ticket, err := r.tickets.GetByID(ctx, item.TicketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "ticket no longer exists, discarding work item")
			return nil
		}
		return fmt.Errorf("fetching ticket: %w", err)
	}

	outcome, err := r.decider.Decide(ctx, autoreply.Request{
		Ticket:           ticket,
		TriggerMessageID: item.MessageID,
		Message:          item.RawMessage,
		Config:           item.Config,
	})
	if err != nil {
		return fmt.Errorf("deciding reply: %w", err)
	}
	if !outcome.HasReply() {
		return nil
	}

	text := autoreply.MarkedText(outcome, item.Config)

	if outcome.Source == model.ReplySourceEscalation {
		if err := r.deliverer.Deliver(ctx, item.ID, ticket.ID, text); err != nil {
			return fmt.Errorf("delivering escalation reply: %w", err)
		}
		if item.Config.TelegramNotifyEnabled() {
			if err := r.notifier.NotifyAdmins(ctx, delivery.FormatEscalationAlert(ticket, item.RawMessage), true); err != nil {
				slog.WarnContext(ctx, "failed to notify admins of escalation", "error", err)
			}
		}
		slog.InfoContext(ctx, "ticket escalated to a human agent")
		return nil
	}

	if delay := time.Duration(item.Config.AutoReplyDelaySeconds()) * time.Second; delay > 0 {
		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("waiting before delivery: %w", err)
		}
	}

	if err := r.deliverer.Deliver(ctx, item.ID, ticket.ID, text); err != nil {
		return fmt.Errorf("delivering %s reply: %w", outcome.Source, err)
	}
	slog.InfoContext(ctx, "auto-reply delivered", "source", outcome.Source)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
