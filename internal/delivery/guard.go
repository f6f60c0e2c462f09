package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDeliveryInProgress means another attempt holds the work item's delivery lock.
var ErrDeliveryInProgress = errors.New("delivery already in progress")

// Guard keeps a work item that is processed twice (a reclaim after a crash, a
// duplicate stream entry) from posting twice. The delivered marker is written
// only after the reply is committed; the lock only covers the attempt itself.
type Guard interface {
	Lock(ctx context.Context, workItemID int64) (bool, error)
	Unlock(ctx context.Context, workItemID int64) error
	Delivered(ctx context.Context, workItemID int64) (bool, error)
	MarkDelivered(ctx context.Context, workItemID int64) error
}

type RedisGuardConfig struct {
	Prefix string
	// DeliveredTTL is how long a delivered marker is kept.
	DeliveredTTL time.Duration
	// LockTTL bounds a lock left behind by a crashed process.
	LockTTL time.Duration
}

type redisGuard struct {
	client *redis.Client
	cfg    RedisGuardConfig
}

func NewRedisGuard(client *redis.Client, cfg RedisGuardConfig) Guard {
	if cfg.Prefix == "" {
		cfg.Prefix = "auto_reply:"
	}
	if cfg.DeliveredTTL <= 0 {
		cfg.DeliveredTTL = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &redisGuard{client: client, cfg: cfg}
}

func (g *redisGuard) deliveredKey(workItemID int64) string {
	return g.cfg.Prefix + "delivered:" + strconv.FormatInt(workItemID, 10)
}

func (g *redisGuard) lockKey(workItemID int64) string {
	return g.cfg.Prefix + "delivering:" + strconv.FormatInt(workItemID, 10)
}

func (g *redisGuard) Lock(ctx context.Context, workItemID int64) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.lockKey(workItemID), time.Now().UTC().Format(time.RFC3339), g.cfg.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setnx delivery lock: %w", err)
	}
	return ok, nil
}

func (g *redisGuard) Unlock(ctx context.Context, workItemID int64) error {
	if err := g.client.Del(ctx, g.lockKey(workItemID)).Err(); err != nil {
		return fmt.Errorf("del delivery lock: %w", err)
	}
	return nil
}

func (g *redisGuard) Delivered(ctx context.Context, workItemID int64) (bool, error) {
	n, err := g.client.Exists(ctx, g.deliveredKey(workItemID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists delivered marker: %w", err)
	}
	return n > 0, nil
}

func (g *redisGuard) MarkDelivered(ctx context.Context, workItemID int64) error {
	err := g.client.Set(ctx, g.deliveredKey(workItemID), time.Now().UTC().Format(time.RFC3339), g.cfg.DeliveredTTL).Err()
	if err != nil {
		return fmt.Errorf("set delivered marker: %w", err)
	}
	return nil
}

type guardedDeliverer struct {
	next  ReplyDeliverer
	guard Guard
}

// Deliverer posts one work item's reply.
type Deliverer interface {
	Deliver(ctx context.Context, workItemID, ticketID int64, text string) error
}

// NewGuardedDeliverer posts a work item's reply at most once per delivered
// marker. A failed or panicking delivery leaves no marker, so the retry posts.
func NewGuardedDeliverer(next ReplyDeliverer, guard Guard) Deliverer {
	return &guardedDeliverer{next: next, guard: guard}
}

func (d *guardedDeliverer) Deliver(ctx context.Context, workItemID, ticketID int64, text string) error {
	locked, err := d.guard.Lock(ctx, workItemID)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("%w: work item %d", ErrDeliveryInProgress, workItemID)
	}
	// Runs on panic too.
	defer func() {
		if err := d.guard.Unlock(context.WithoutCancel(ctx), workItemID); err != nil {
			slog.ErrorContext(ctx, "failed to release delivery lock", "error", err)
		}
	}()

	delivered, err := d.guard.Delivered(ctx, workItemID)
	if err != nil {
		return err
	}
	if delivered {
		slog.WarnContext(ctx, "reply already delivered for work item, skipping")
		return nil
	}

	if err := d.next.ReplyAsSystem(ctx, ticketID, text); err != nil {
		return err
	}

	if err := d.guard.MarkDelivered(context.WithoutCancel(ctx), workItemID); err != nil {
		// The reply is committed; only a reclaim of this entry could post it again.
		slog.ErrorContext(ctx, "failed to record delivered marker", "error", err)
	}
	return nil
}
