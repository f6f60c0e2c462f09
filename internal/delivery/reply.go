package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/autoreply/internal/model"
)

// ReplyDeliverer posts a reply on a ticket as the non-human system account.
type ReplyDeliverer interface {
	ReplyAsSystem(ctx context.Context, ticketID int64, text string) error
}

type storeDeliverer struct {
	txRunner     TxRunner
	systemUserID int64
}

// NewStoreDeliverer appends the reply to the ticket's messages and marks the
// ticket answered in one transaction, the same way a staff reply lands.
func NewStoreDeliverer(txRunner TxRunner, systemUserID int64) ReplyDeliverer {
	return &storeDeliverer{txRunner: txRunner, systemUserID: systemUserID}
}

func (d *storeDeliverer) ReplyAsSystem(ctx context.Context, ticketID int64, text string) error {
	err := d.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		msg := &model.TicketMessage{
			TicketID: ticketID,
			UserID:   d.systemUserID,
			Message:  text,
		}
		if err := stores.Messages().Create(ctx, msg); err != nil {
			return fmt.Errorf("creating reply message: %w", err)
		}
		if err := stores.Tickets().MarkAnswered(ctx, ticketID); err != nil {
			return fmt.Errorf("marking ticket answered: %w", err)
		}
		slog.InfoContext(ctx, "reply posted as system", "reply_message_id", msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reply as system (ticket=%d): %w", ticketID, err)
	}
	return nil
}
