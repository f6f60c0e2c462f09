package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/autoreply/common/logger"
	"basegraph.app/autoreply/internal/delivery"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/queue"
)

type Config struct {
	// MaxAttempts counts the first attempt; 2 means one retry.
	MaxAttempts int
}

type Worker struct {
	consumer Consumer
	runner   JobRunner
	onFailed TerminalFailureHook
	cfg      Config
}

func New(consumer Consumer, runner JobRunner, onFailed TerminalFailureHook, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		consumer: consumer,
		runner:   runner,
		onFailed: onFailed,
		cfg:      cfg,
	}
}

// Run reads and processes batches until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "autoreply.worker",
	})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.HandleMessage(ctx, msg)
	}
	return nil
}

// HandleMessage runs one attempt and applies the retry rule to its failure.
// The reclaimer uses it for stale entries too.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) {
	item := msg.Item
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TicketID:   logger.Ptr(item.TicketID),
		WorkItemID: logger.Ptr(item.ID),
		MessageID:  logger.Ptr(msg.ID),
		Attempt:    logger.Ptr(item.Attempt),
		EventType:  logger.Ptr(string(item.EventType)),
	})

	sc := logger.StartSpanFromTraceID(ctx, item.TraceID, "worker.process_work_item")
	defer sc.End()
	ctx = sc.Context()

	if err := w.processMessageSafe(ctx, msg); err != nil {
		sc.Fail(err)
		slog.ErrorContext(ctx, "work item attempt failed", "error", err)
		w.handleFailedMessage(ctx, msg, err)
	}
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs the job and acks on success.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	slog.InfoContext(ctx, "processing work item")

	start := time.Now()
	if err := w.runner.Run(ctx, msg.Item); err != nil {
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The entry will be reclaimed; the delivery guard prevents a second post.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}

	slog.InfoContext(ctx, "work item succeeded", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Item.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, giving up on work item",
			"attempts", msg.Item.Attempt,
			"max_attempts", w.cfg.MaxAttempts,
			"error", err)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		if w.onFailed != nil {
			w.onFailed.OnTerminalFailure(ctx, msg.Item, err)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed work item", "attempt", msg.Item.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

type alertingHook struct {
	notifier delivery.Notifier
}

// NewAlertingHook reports terminal failures to operators through notifier.
func NewAlertingHook(notifier delivery.Notifier) TerminalFailureHook {
	return &alertingHook{notifier: notifier}
}

func (h *alertingHook) OnTerminalFailure(ctx context.Context, item model.WorkItem, err error) {
	// The attempt context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if notifyErr := h.notifier.NotifyAdmins(ctx, delivery.FormatFailureAlert(item, err.Error()), true); notifyErr != nil {
		slog.WarnContext(ctx, "failed to alert admins of terminal failure", "error", notifyErr)
	}
}
