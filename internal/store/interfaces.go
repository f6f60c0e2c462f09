package store

import (
	"context"
	"errors"

	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/settings"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// TicketStore reads tickets and records that staff (or the system) answered.
type TicketStore interface {
	GetByID(ctx context.Context, id int64) (*model.Ticket, error)
	MarkAnswered(ctx context.Context, id int64) error
}

// MessageStore reads a ticket's conversation and appends replies.
type MessageStore interface {
	// ListByTicket returns messages ordered by creation sequence, oldest first.
	ListByTicket(ctx context.Context, ticketID int64) ([]model.TicketMessage, error)
	// Latest returns the most recent message, or ErrNotFound for an empty ticket.
	Latest(ctx context.Context, ticketID int64) (*model.TicketMessage, error)
	Create(ctx context.Context, msg *model.TicketMessage) error
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type PlanStore interface {
	GetByID(ctx context.Context, id int64) (*model.Plan, error)
}

// SettingsStore exposes the settings table as a settings.Source.
type SettingsStore interface {
	settings.Source
}
