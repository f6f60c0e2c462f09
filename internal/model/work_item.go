package model

import (
	"time"

	"basegraph.app/autoreply/internal/settings"
)

// WorkItem is one unit of queued decision work for a single incoming message.
// Attempt starts at 1; only the job runner increments it. Config is the option
// bag captured at dispatch and travels unchanged through every retry.
type WorkItem struct {
	ID         int64
	TicketID   int64
	MessageID  int64
	RawMessage string
	EventType  TicketEventType
	Config     settings.ResolvedConfig
	Attempt    int
	TraceID    string
	EnqueuedAt time.Time
}
