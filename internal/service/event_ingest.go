package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/autoreply/common/logger"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/store"
)

// EventIngestParams is a ticket event as delivered by the helpdesk, over HTTP or Kafka.
type EventIngestParams struct {
	EventType string  `json:"event_type"`
	TicketID  int64   `json:"ticket_id"`
	TraceID   *string `json:"trace_id,omitempty"`
}

type EventIngestResult struct {
	TicketID   int64
	WorkItemID int64
	Enqueued   bool
	Skipped    string
}

type EventIngestService interface {
	Ingest(ctx context.Context, params EventIngestParams) (*EventIngestResult, error)
}

var (
	ErrInvalidEvent   = errors.New("invalid ticket event")
	ErrTicketNotFound = errors.New("ticket not found")
)

type eventIngestService struct {
	tickets    store.TicketStore
	messages   store.MessageStore
	dispatcher Dispatcher
}

// NewEventIngestService resolves the ticket and its latest message, then hands
// them to the dispatcher.
func NewEventIngestService(tickets store.TicketStore, messages store.MessageStore, dispatcher Dispatcher) EventIngestService {
	return &eventIngestService{
		tickets:    tickets,
		messages:   messages,
		dispatcher: dispatcher,
	}
}

func (s *eventIngestService) Ingest(ctx context.Context, params EventIngestParams) (*EventIngestResult, error) {
	eventType := model.TicketEventType(params.EventType)
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event_type %q", ErrInvalidEvent, params.EventType)
	}
	if params.TicketID <= 0 {
		return nil, fmt.Errorf("%w: ticket_id is required", ErrInvalidEvent)
	}

	if params.TraceID != nil && *params.TraceID != "" {
		sc := logger.StartSpanFromTraceID(ctx, *params.TraceID, "ticket_event.ingest")
		defer sc.End()
		ctx = sc.Context()
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TicketID:  logger.Ptr(params.TicketID),
		EventType: logger.Ptr(params.EventType),
	})

	ticket, err := s.tickets.GetByID(ctx, params.TicketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTicketNotFound, params.TicketID)
		}
		return nil, fmt.Errorf("fetching ticket: %w", err)
	}

	latest, err := s.messages.Latest(ctx, ticket.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("fetching latest message: %w", err)
	}
	if errors.Is(err, store.ErrNotFound) {
		latest = nil
	}

	res := s.dispatcher.OnTicketEvent(ctx, eventType, ticket, latest)
	slog.InfoContext(ctx, "ticket event ingested", "enqueued", res.Enqueued, "skipped", res.Skipped)

	return &EventIngestResult{
		TicketID:   ticket.ID,
		WorkItemID: res.WorkItemID,
		Enqueued:   res.Enqueued,
		Skipped:    res.Skipped,
	}, nil
}
