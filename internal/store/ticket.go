package store

import (
	"context"
	"fmt"

	"basegraph.app/autoreply/core/db"
	"basegraph.app/autoreply/internal/model"
)

const (
	getTicketSQL = `
SELECT id, user_id, subject, level, status, reply_status, created_at, updated_at
FROM tickets
WHERE id = $1`

	markTicketAnsweredSQL = `
UPDATE tickets
SET reply_status = $2, updated_at = now()
WHERE id = $1`
)

type ticketStore struct {
	conn db.DBTX
}

func newTicketStore(conn db.DBTX) TicketStore {
	return &ticketStore{conn: conn}
}

func (s *ticketStore) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	var t model.Ticket
	err := s.conn.QueryRow(ctx, getTicketSQL, id).Scan(
		&t.ID, &t.UserID, &t.Subject, &t.Level, &t.Status, &t.ReplyStatus, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *ticketStore) MarkAnswered(ctx context.Context, id int64) error {
	tag, err := s.conn.Exec(ctx, markTicketAnsweredSQL, id, model.ReplyStatusAnswered)
	if err != nil {
		return fmt.Errorf("marking ticket answered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
