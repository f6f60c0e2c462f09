package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"basegraph.app/autoreply/common/id"
	"basegraph.app/autoreply/common/llm"
	"basegraph.app/autoreply/common/logger"
	"basegraph.app/autoreply/common/otel"
	"basegraph.app/autoreply/core/config"
	"basegraph.app/autoreply/core/db"
	"basegraph.app/autoreply/internal/autoreply"
	"basegraph.app/autoreply/internal/delivery"
	"basegraph.app/autoreply/internal/queue"
	"basegraph.app/autoreply/internal/store"
	"basegraph.app/autoreply/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, config.ServiceTypeWorker)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "autoreply worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"concurrency", cfg.Worker.Concurrency,
		"max_attempts", cfg.Worker.MaxAttempts)

	// Different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	stores := store.NewStores(database.Conn())

	engine := autoreply.NewDefaultEngine(
		autoreply.NewHistoryBuilder(stores.Messages()),
		autoreply.NewContextBuilder(stores.Users(), stores.Plans()),
		llm.New,
	)

	notifier := delivery.NewNopNotifier()
	if cfg.Telegram.Enabled() {
		telegram, err := delivery.NewTelegramNotifier(cfg.Telegram, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create telegram notifier", "error", err)
			os.Exit(1)
		}
		notifier = telegram
		slog.InfoContext(ctx, "telegram admin notifications enabled", "chats", len(cfg.Telegram.ChatIDs))
	}

	deliverer := delivery.NewGuardedDeliverer(
		delivery.NewStoreDeliverer(delivery.NewTxRunner(database), cfg.SystemUserID),
		delivery.NewRedisGuard(redisClient, delivery.RedisGuardConfig{
			DeliveredTTL: cfg.Worker.DeliveryTTL,
			// Outlives any attempt, so only a crashed holder's lock expires.
			LockTTL: cfg.Worker.ReclaimIdle,
		}),
	)

	runner := worker.NewRunner(stores.Tickets(), engine, deliverer, notifier, worker.RunnerConfig{
		AttemptTimeout: cfg.Worker.AttemptTimeout,
	})
	hook := worker.NewAlertingHook(notifier)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	instance := cfg.Pipeline.RedisConsumer + "-" + uuid.NewString()[:8]
	var first *worker.Worker
	var firstConsumer *queue.RedisConsumer
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
			Stream:       cfg.Pipeline.RedisStream,
			Group:        cfg.Pipeline.RedisGroup,
			Consumer:     fmt.Sprintf("%s-%d", instance, i),
			DLQStream:    cfg.Pipeline.RedisDLQStream,
			DelayedSet:   cfg.Pipeline.RedisDelayedSet,
			BatchSize:    cfg.Worker.BatchSize,
			Block:        cfg.Worker.Block,
			RequeueDelay: cfg.Worker.RetryDelay,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create consumer", "error", err)
			os.Exit(1)
		}

		w := worker.New(consumer, runner, hook, worker.Config{
			MaxAttempts: cfg.Worker.MaxAttempts,
		})
		if first == nil {
			first, firstConsumer = w, consumer
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	if first != nil {
		reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
			Stream:   cfg.Pipeline.RedisStream,
			Group:    cfg.Pipeline.RedisGroup,
			Consumer: instance + "-reclaimer",
			MinIdle:  cfg.Worker.ReclaimIdle,
			Interval: cfg.Worker.ReclaimEvery,
		}, firstConsumer, first.HandleMessage)
		g.Go(func() error { return reclaimer.Run(gctx) })
	}

	promoter := queue.NewPromoter(redisClient, queue.PromoterConfig{
		Stream:     cfg.Pipeline.RedisStream,
		DelayedSet: cfg.Pipeline.RedisDelayedSet,
		Interval:   cfg.Worker.PromoteEvery,
	})
	g.Go(func() error { return promoter.Run(gctx) })

	slog.InfoContext(ctx, "worker initialized and running", "instance", instance)

	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "worker stopped with error", "error", err)
	}

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
autoreply worker
  queue workers, reclaimer, retry promoter
`
