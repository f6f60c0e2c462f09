package model

import "time"

type TicketStatus int16

const (
	TicketStatusOpen   TicketStatus = 0
	TicketStatusClosed TicketStatus = 1
)

// ReplyStatus tracks who spoke last on a ticket.
type ReplyStatus int16

const (
	ReplyStatusAwaitingStaff ReplyStatus = 0
	ReplyStatusAnswered      ReplyStatus = 1
)

type Ticket struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	Subject     string       `json:"subject"`
	Level       int16        `json:"level"`
	Status      TicketStatus `json:"status"`
	ReplyStatus ReplyStatus  `json:"reply_status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type TicketMessage struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketEventType names the two triggers that start the pipeline.
type TicketEventType string

const (
	TicketEventCreated     TicketEventType = "ticket_created"
	TicketEventUserReplied TicketEventType = "user_replied"
)

func (t TicketEventType) Valid() bool {
	return t == TicketEventCreated || t == TicketEventUserReplied
}
