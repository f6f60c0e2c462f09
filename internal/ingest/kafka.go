package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"basegraph.app/autoreply/common/logger"
	"basegraph.app/autoreply/core/config"
	"basegraph.app/autoreply/internal/service"
)

// Reader is the part of *kafka.Reader the listener uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ListenerConfig struct {
	// MaxAttempts bounds how often a transient ingest error is retried before
	// the event is committed and dropped.
	MaxAttempts int
	Backoff     time.Duration
}

// Listener feeds ticket events published by the helpdesk on Kafka into the
// same ingest path as the HTTP endpoint.
type Listener struct {
	reader  Reader
	service service.EventIngestService
	cfg     ListenerConfig
}

func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

func NewListener(reader Reader, svc service.EventIngestService, cfg ListenerConfig) *Listener {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Listener{reader: reader, service: svc, cfg: cfg}
}

// Run consumes until ctx is cancelled. Every fetched message is committed once
// handled, so a bad event never blocks the partition.
func (l *Listener) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "autoreply.ingest.kafka",
	})
	slog.InfoContext(ctx, "kafka listener started")

	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.InfoContext(ctx, "kafka listener stopping")
				return nil
			}
			return fmt.Errorf("fetching ticket event: %w", err)
		}

		l.HandleMessage(ctx, msg)

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.ErrorContext(ctx, "failed to commit ticket event", "error", err, "offset", msg.Offset)
		}
	}
}

// HandleMessage decodes one event and ingests it, retrying transient failures.
func (l *Listener) HandleMessage(ctx context.Context, msg kafka.Message) {
	var params service.EventIngestParams
	if err := json.Unmarshal(msg.Value, &params); err != nil {
		slog.WarnContext(ctx, "dropping malformed ticket event",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset)
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TicketID:  logger.Ptr(params.TicketID),
		EventType: logger.Ptr(params.EventType),
	})

	for attempt := 1; ; attempt++ {
		result, err := l.service.Ingest(ctx, params)
		if err == nil {
			slog.DebugContext(ctx, "ticket event ingested",
				"enqueued", result.Enqueued,
				"skipped", result.Skipped)
			return
		}

		if errors.Is(err, service.ErrInvalidEvent) || errors.Is(err, service.ErrTicketNotFound) {
			slog.WarnContext(ctx, "dropping ticket event", "error", err)
			return
		}
		if attempt >= l.cfg.MaxAttempts {
			slog.ErrorContext(ctx, "giving up on ticket event", "error", err, "attempts", attempt)
			return
		}

		slog.WarnContext(ctx, "ticket event ingest failed, retrying", "error", err, "attempt", attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.Backoff * time.Duration(attempt)):
		}
	}
}

func (l *Listener) Close() error {
	return l.reader.Close()
}
