package store

import (
	"context"
	"fmt"

	"basegraph.app/autoreply/core/db"
	"basegraph.app/autoreply/internal/model"
	"github.com/jackc/pgx/v5"
)

const (
	listTicketMessagesSQL = `
SELECT id, ticket_id, user_id, message, created_at
FROM ticket_messages
WHERE ticket_id = $1
ORDER BY id ASC`

	latestTicketMessageSQL = `
SELECT id, ticket_id, user_id, message, created_at
FROM ticket_messages
WHERE ticket_id = $1
ORDER BY id DESC
LIMIT 1`

	createTicketMessageSQL = `
INSERT INTO ticket_messages (ticket_id, user_id, message)
VALUES ($1, $2, $3)
RETURNING id, created_at`
)

type messageStore struct {
	conn db.DBTX
}

func newMessageStore(conn db.DBTX) MessageStore {
	return &messageStore{conn: conn}
}

func (s *messageStore) ListByTicket(ctx context.Context, ticketID int64) ([]model.TicketMessage, error) {
	rows, err := s.conn.Query(ctx, listTicketMessagesSQL, ticketID)
	if err != nil {
		return nil, fmt.Errorf("listing ticket messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("scanning ticket messages: %w", err)
	}
	return messages, nil
}

func (s *messageStore) Latest(ctx context.Context, ticketID int64) (*model.TicketMessage, error) {
	rows, err := s.conn.Query(ctx, latestTicketMessageSQL, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetching latest ticket message: %w", err)
	}

	msg, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (s *messageStore) Create(ctx context.Context, msg *model.TicketMessage) error {
	err := s.conn.QueryRow(ctx, createTicketMessageSQL, msg.TicketID, msg.UserID, msg.Message).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating ticket message: %w", err)
	}
	return nil
}

func scanMessage(row pgx.CollectableRow) (model.TicketMessage, error) {
	var m model.TicketMessage
	err := row.Scan(&m.ID, &m.TicketID, &m.UserID, &m.Message, &m.CreatedAt)
	return m, err
}
