package autoreply

import (
	"context"
	"fmt"
	"strings"

	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/store"
)

type HistoryOptions struct {
	// MaxHistory <= 0 means unbounded.
	MaxHistory int
	// Markers are prefixes of synthetic replies.
	Markers []string
	// TriggerMessageID is the message being answered. It and anything after
	// it are left out; the current message is sent separately.
	TriggerMessageID int64
	// TriggerText identifies the current message when TriggerMessageID is unknown.
	TriggerText string
}

// HistoryBuilder loads and curates a ticket's prior conversation.
type HistoryBuilder struct {
	messages store.MessageStore
}

func NewHistoryBuilder(messages store.MessageStore) *HistoryBuilder {
	return &HistoryBuilder{messages: messages}
}

// Build returns curated history for ticket, oldest first.
func (b *HistoryBuilder) Build(ctx context.Context, ticket *model.Ticket, opts HistoryOptions) ([]model.HistoryEntry, error) {
	msgs, err := b.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("listing ticket messages: %w", err)
	}
	return CurateHistory(msgs, ticket.UserID, opts), nil
}

// CurateHistory drops synthetic replies and the triggering message, then caps
// the result to the last MaxHistory entries. msgs must be oldest first.
func CurateHistory(msgs []model.TicketMessage, ownerID int64, opts HistoryOptions) []model.HistoryEntry {
	entries := make([]model.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if opts.TriggerMessageID != 0 && m.ID >= opts.TriggerMessageID {
			continue
		}
		if isSynthetic(m.Message, opts.Markers) {
			continue
		}
		entries = append(entries, model.HistoryEntry{
			IsFromUser: m.UserID == ownerID,
			Message:    m.Message,
		})
	}

	if opts.TriggerMessageID == 0 && opts.TriggerText != "" && len(entries) > 0 {
		last := entries[len(entries)-1]
		if last.IsFromUser && last.Message == opts.TriggerText {
			entries = entries[:len(entries)-1]
		}
	}

	if opts.MaxHistory > 0 && len(entries) > opts.MaxHistory {
		entries = entries[len(entries)-opts.MaxHistory:]
	}
	return entries
}

func isSynthetic(body string, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.HasPrefix(body, marker) {
			return true
		}
	}
	return false
}
