package queue

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/autoreply/internal/model"
	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, item model.WorkItem) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, item model.WorkItem) error {
	attempt := item.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	values, err := itemValues(item, attempt)
	if err != nil {
		return fmt.Errorf("enqueue work item: %w", err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue work item: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued auto-reply work item",
		"work_item_id", item.ID,
		"ticket_id", item.TicketID,
		"event_type", item.EventType,
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
