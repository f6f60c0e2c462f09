package service

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/autoreply/common/id"
	"basegraph.app/autoreply/common/logger"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/queue"
	"basegraph.app/autoreply/internal/settings"
)

// Reasons a ticket event did not produce a work item.
const (
	SkipNoMessage    = "no_message"
	SkipNotCustomer  = "not_customer_message"
	SkipSettings     = "settings_unavailable"
	SkipEnqueueError = "enqueue_failed"
)

type DispatchResult struct {
	Enqueued   bool
	WorkItemID int64
	Skipped    string
}

// Dispatcher turns a ticket event into one queued work item. It never fails
// the caller: auto-replies are best effort and must not block the event.
type Dispatcher interface {
	OnTicketEvent(ctx context.Context, eventType model.TicketEventType, ticket *model.Ticket, latest *model.TicketMessage) DispatchResult
}

type dispatcher struct {
	settings settings.Source
	producer queue.Producer
	newID    func() int64
	now      func() time.Time
}

func NewDispatcher(source settings.Source, producer queue.Producer) Dispatcher {
	return &dispatcher{
		settings: source,
		producer: producer,
		newID:    id.New,
		now:      time.Now,
	}
}

func (d *dispatcher) OnTicketEvent(ctx context.Context, eventType model.TicketEventType, ticket *model.Ticket, latest *model.TicketMessage) DispatchResult {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TicketID:  logger.Ptr(ticket.ID),
		EventType: logger.Ptr(string(eventType)),
		Component: "autoreply.service.dispatcher",
	})

	if latest == nil {
		slog.DebugContext(ctx, "ticket has no message, nothing to dispatch")
		return DispatchResult{Skipped: SkipNoMessage}
	}
	// Only the customer's own words enter the pipeline; staff and system
	// replies would otherwise trigger answers to ourselves.
	if latest.UserID != ticket.UserID {
		slog.DebugContext(ctx, "latest message is not from the ticket owner, skipping", "author_id", latest.UserID)
		return DispatchResult{Skipped: SkipNotCustomer}
	}

	cfg, err := d.settings.Load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load auto-reply settings, not dispatching", "error", err)
		return DispatchResult{Skipped: SkipSettings}
	}

	item := model.WorkItem{
		ID:         d.newID(),
		TicketID:   ticket.ID,
		MessageID:  latest.ID,
		RawMessage: latest.Message,
		EventType:  eventType,
		Config:     cfg,
		Attempt:    1,
		TraceID:    logger.CurrentTraceID(ctx),
		EnqueuedAt: d.now(),
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{WorkItemID: logger.Ptr(item.ID)})

	if err := d.producer.Enqueue(ctx, item); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue auto-reply work item", "error", err)
		return DispatchResult{WorkItemID: item.ID, Skipped: SkipEnqueueError}
	}
	return DispatchResult{Enqueued: true, WorkItemID: item.ID}
}
