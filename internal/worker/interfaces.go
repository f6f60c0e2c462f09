package worker

import (
	"context"

	"basegraph.app/autoreply/internal/autoreply"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Decider abstracts the decision engine for testability.
type Decider interface {
	Decide(ctx context.Context, req autoreply.Request) (model.ReplyOutcome, error)
}

// JobRunner executes one attempt of a work item.
type JobRunner interface {
	Run(ctx context.Context, item model.WorkItem) error
}

// TerminalFailureHook is told about work items that exhausted their attempts.
type TerminalFailureHook interface {
	OnTerminalFailure(ctx context.Context, item model.WorkItem, err error)
}
