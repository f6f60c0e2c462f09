package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/settings"
	"github.com/redis/go-redis/v9"
)

// Stream entry fields. The config snapshot is stored as a JSON object so a
// retry sees exactly the options captured at dispatch.
const (
	fieldWorkItemID = "work_item_id"
	fieldTicketID   = "ticket_id"
	fieldMessageID  = "message_id"
	fieldRawMessage = "raw_message"
	fieldEventType  = "event_type"
	fieldConfig     = "config"
	fieldAttempt    = "attempt"
	fieldTraceID    = "trace_id"
	fieldEnqueuedAt = "enqueued_at"
	fieldLastError  = "last_error"
	fieldError      = "error"
)

// Message is a stream entry decoded back into a work item.
type Message struct {
	ID        string
	Item      model.WorkItem
	LastError string
	Raw       redis.XMessage
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	workItemID, err := parseInt64(msg.Values, fieldWorkItemID)
	if err != nil {
		return Message{}, err
	}
	ticketID, err := parseInt64(msg.Values, fieldTicketID)
	if err != nil {
		return Message{}, err
	}
	messageID, err := parseOptionalInt64(msg.Values, fieldMessageID)
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseOptionalInt(msg.Values, fieldAttempt)
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}
	enqueuedAt, err := parseOptionalInt64(msg.Values, fieldEnqueuedAt)
	if err != nil {
		return Message{}, err
	}

	var cfg settings.ResolvedConfig
	if raw := parseOptionalString(msg.Values, fieldConfig); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return Message{}, fmt.Errorf("parsing %s: %w", fieldConfig, err)
		}
	}

	item := model.WorkItem{
		ID:         workItemID,
		TicketID:   ticketID,
		MessageID:  messageID,
		RawMessage: parseOptionalString(msg.Values, fieldRawMessage),
		EventType:  model.TicketEventType(parseOptionalString(msg.Values, fieldEventType)),
		Config:     cfg,
		Attempt:    attempt,
		TraceID:    parseOptionalString(msg.Values, fieldTraceID),
	}
	if enqueuedAt > 0 {
		item.EnqueuedAt = time.UnixMilli(enqueuedAt)
	}

	return Message{
		ID:        msg.ID,
		Item:      item,
		LastError: parseOptionalString(msg.Values, fieldLastError),
		Raw:       msg,
	}, nil
}

// itemValues renders a work item as stream entry fields with the given attempt.
func itemValues(item model.WorkItem, attempt int) (map[string]any, error) {
	cfg, err := json.Marshal(item.Config)
	if err != nil {
		return nil, fmt.Errorf("encoding config snapshot: %w", err)
	}

	values := map[string]any{
		fieldWorkItemID: item.ID,
		fieldTicketID:   item.TicketID,
		fieldRawMessage: item.RawMessage,
		fieldConfig:     string(cfg),
		fieldAttempt:    attempt,
	}
	if item.MessageID != 0 {
		values[fieldMessageID] = item.MessageID
	}
	if item.EventType != "" {
		values[fieldEventType] = string(item.EventType)
	}
	if item.TraceID != "" {
		values[fieldTraceID] = item.TraceID
	}
	if !item.EnqueuedAt.IsZero() {
		values[fieldEnqueuedAt] = item.EnqueuedAt.UnixMilli()
	}
	return values, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt64(values map[string]any, key string) (int64, error) {
	if _, ok := values[key]; !ok {
		return 0, nil
	}
	return parseInt64(values, key)
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
