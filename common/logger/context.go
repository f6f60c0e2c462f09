package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A worker enriches the context once per work item and every log line below it
// (engine, strategies, delivery) carries ticket_id, work_item_id, attempt, etc.
type LogFields struct {
	TicketID   *int64  // Ticket the work item belongs to
	WorkItemID *int64  // Snowflake id assigned at dispatch
	MessageID  *string // Redis stream message ID
	Attempt    *int    // 1-based attempt number
	EventType  *string // "ticket_created" or "user_replied"
	Component  string  // Component name, e.g. "autoreply.worker.runner"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.TicketID != nil {
		result.TicketID = new.TicketID
	}
	if new.WorkItemID != nil {
		result.WorkItemID = new.WorkItemID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.Attempt != nil {
		result.Attempt = new.Attempt
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TicketID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
// Useful for logging potentially long strings like customer messages or provider bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
