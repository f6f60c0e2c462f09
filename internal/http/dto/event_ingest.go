package dto

type TicketEventRequest struct {
	EventType string `json:"event_type" binding:"required,oneof=ticket_created user_replied"`
	TicketID  int64  `json:"ticket_id" binding:"required,gt=0"`
}

type TicketEventResponse struct {
	TicketID   int64  `json:"ticket_id"`
	WorkItemID int64  `json:"work_item_id,omitempty"`
	Enqueued   bool   `json:"enqueued"`
	Skipped    string `json:"skipped,omitempty"`
}
