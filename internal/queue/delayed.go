package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"basegraph.app/autoreply/common/logger"
	"github.com/redis/go-redis/v9"
)

// scheduleDelayed parks stream fields in a sorted set scored by due time (unix ms).
func scheduleDelayed(ctx context.Context, client *redis.Client, set string, values map[string]any, dueAt time.Time) error {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		fields[k] = fmt.Sprint(v)
	}
	member, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding delayed entry: %w", err)
	}

	if err := client.ZAdd(ctx, set, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: string(member),
	}).Err(); err != nil {
		return fmt.Errorf("zadd delayed (set=%s): %w", set, err)
	}
	return nil
}

type PromoterConfig struct {
	Stream     string
	DelayedSet string
	Interval   time.Duration
	BatchSize  int64
}

// Promoter moves due retries from the delayed set back into the stream.
type Promoter struct {
	client *redis.Client
	cfg    PromoterConfig
	now    func() time.Time
}

func NewPromoter(client *redis.Client, cfg PromoterConfig) *Promoter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Promoter{client: client, cfg: cfg, now: time.Now}
}

// Run promotes on every tick until ctx is cancelled.
func (p *Promoter) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "autoreply.queue.promoter",
	})

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "delayed retry promoter started",
		"interval", p.cfg.Interval,
		"delayed_set", p.cfg.DelayedSet)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PromoteDue(ctx); err != nil {
				slog.ErrorContext(ctx, "promote cycle error", "error", err)
			}
		}
	}
}

// PromoteDue moves every entry whose due time has passed and returns how many
// were moved. ZREM decides ownership, so concurrent promoters never double-add.
func (p *Promoter) PromoteDue(ctx context.Context) (int, error) {
	members, err := p.client.ZRangeByScore(ctx, p.cfg.DelayedSet, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(p.now().UnixMilli(), 10),
		Count: p.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore (set=%s): %w", p.cfg.DelayedSet, err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := p.client.ZRem(ctx, p.cfg.DelayedSet, member).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem delayed: %w", err)
		}
		if removed == 0 {
			continue
		}

		var fields map[string]string
		if err := json.Unmarshal([]byte(member), &fields); err != nil {
			slog.ErrorContext(ctx, "dropping undecodable delayed entry", "error", err, "member", logger.Truncate(member, 512))
			continue
		}

		values := make(map[string]any, len(fields))
		for k, v := range fields {
			values[k] = v
		}
		if err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.cfg.Stream,
			Values: values,
		}).Err(); err != nil {
			// Put it back so the next cycle retries the move.
			p.client.ZAdd(ctx, p.cfg.DelayedSet, redis.Z{Score: float64(p.now().UnixMilli()), Member: member})
			return promoted, fmt.Errorf("xadd promoted entry: %w", err)
		}
		promoted++
	}

	if promoted > 0 {
		slog.DebugContext(ctx, "promoted delayed retries", "count", promoted)
	}
	return promoted, nil
}
