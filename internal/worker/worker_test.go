package worker_test

import (
	"context"
	"errors"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/queue"
	"basegraph.app/autoreply/internal/settings"
	"basegraph.app/autoreply/internal/worker"
)

func message(id string, attempt int) queue.Message {
	return queue.Message{
		ID: id,
		Item: model.WorkItem{
			ID:         77,
			TicketID:   42,
			RawMessage: "help",
			Config:     settings.New(map[string]string{settings.KeyAIModel: "gpt-4o-mini"}),
			Attempt:    attempt,
		},
	}
}

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *mockConsumer
		runner   *mockRunner
		hook     *mockHook
		w        *worker.Worker
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		runner = &mockRunner{}
		hook = &mockHook{}
		w = worker.New(consumer, runner, hook, worker.Config{MaxAttempts: 2})
	})

	It("acks a successful attempt", func() {
		w.HandleMessage(ctx, message("1-0", 1))
		Expect(consumer.acked).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
		Expect(consumer.dlq).To(BeEmpty())
	})

	It("re-enqueues a failed first attempt as attempt 2 without reporting it terminal", func() {
		runner.runFn = func(ctx context.Context, item model.WorkItem) error { return errors.New("boom") }

		w.HandleMessage(ctx, message("1-0", 1))

		Expect(consumer.requeued).To(HaveLen(1))
		Expect(consumer.requeued[0].Item.Attempt).To(Equal(2))
		Expect(consumer.requeued[0].Item.RawMessage).To(Equal("help"))
		Expect(consumer.requeued[0].Item.Config.AIModel()).To(Equal("gpt-4o-mini"))
		Expect(consumer.errMsgs).To(Equal([]string{"boom"}))
		Expect(consumer.dlq).To(BeEmpty())
		Expect(hook.items).To(BeEmpty())
	})

	It("reports a failed final attempt as terminal and does not re-enqueue it", func() {
		runner.runFn = func(ctx context.Context, item model.WorkItem) error { return errors.New("boom") }

		w.HandleMessage(ctx, message("2-0", 2))

		Expect(consumer.requeued).To(BeEmpty())
		Expect(consumer.dlq).To(HaveLen(1))
		Expect(hook.items).To(HaveLen(1))
		Expect(hook.items[0].Attempt).To(Equal(2))
		Expect(hook.errs[0]).To(MatchError("boom"))
	})

	It("treats a panic as an ordinary failure", func() {
		runner.runFn = func(ctx context.Context, item model.WorkItem) error { panic("nil map") }

		w.HandleMessage(ctx, message("1-0", 1))

		Expect(consumer.requeued).To(HaveLen(1))
		Expect(consumer.errMsgs[0]).To(ContainSubstring("panic: nil map"))
		Expect(consumer.acked).To(BeEmpty())
	})

	It("gives up after one attempt when only one is allowed", func() {
		w = worker.New(consumer, runner, hook, worker.Config{MaxAttempts: 1})
		runner.runFn = func(ctx context.Context, item model.WorkItem) error { return errors.New("boom") }

		w.HandleMessage(ctx, message("1-0", 1))
		Expect(consumer.requeued).To(BeEmpty())
		Expect(hook.items).To(HaveLen(1))
	})

	It("processes batches until the context is cancelled", func() {
		consumer.batches = [][]queue.Message{{message("1-0", 1), message("2-0", 1)}}
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- w.Run(runCtx) }()

		Eventually(func() int {
			consumer.mu.Lock()
			defer consumer.mu.Unlock()
			return len(consumer.acked)
		}).Should(Equal(2))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	Describe("alerting hook", func() {
		It("sends an urgent operator alert", func() {
			notifier := &mockNotifier{}
			worker.NewAlertingHook(notifier).OnTerminalFailure(ctx, message("1-0", 2).Item, errors.New("timeout"))
			Expect(notifier.messages).To(HaveLen(1))
			Expect(notifier.messages[0]).To(ContainSubstring("after 2 attempts"))
			Expect(notifier.urgent).To(Equal([]bool{true}))
		})
	})
})

var _ = Describe("Worker on a Redis stream", func() {
	var (
		ctx      context.Context
		mr       *miniredis.Miniredis
		client   *redis.Client
		consumer *queue.RedisConsumer
		runner   *mockRunner
		hook     *mockHook
		w        *worker.Worker
		start    time.Time
	)

	const (
		stream = "auto_reply"
		group  = "auto_reply_group"
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr = miniredis.RunT(GinkgoT())
		start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mr.SetTime(start)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})

		var err error
		consumer, err = queue.NewRedisConsumer(client, queue.ConsumerConfig{
			Stream:    stream,
			Group:     group,
			Consumer:  "worker-a",
			DLQStream: "auto_reply_dlq",
			BatchSize: 10,
			Block:     -1,
		})
		Expect(err).NotTo(HaveOccurred())

		runner = &mockRunner{}
		hook = &mockHook{}
		w = worker.New(consumer, runner, hook, worker.Config{MaxAttempts: 2})

		producer := queue.NewRedisProducer(client, stream, nil)
		Expect(producer.Enqueue(ctx, model.WorkItem{ID: 5, TicketID: 42, RawMessage: "help", Config: settings.New(nil)})).To(Succeed())
	})

	AfterEach(func() {
		_ = client.Close()
	})

	It("retries once through the stream and then dead-letters", func() {
		runner.runFn = func(ctx context.Context, item model.WorkItem) error { return errors.New("provider down") }

		for i := 0; i < 2; i++ {
			msgs, err := consumer.Read(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
			w.HandleMessage(ctx, msgs[0])
		}

		Expect(runner.items).To(HaveLen(2))
		Expect(runner.items[0].Attempt).To(Equal(1))
		Expect(runner.items[1].Attempt).To(Equal(2))
		Expect(hook.items).To(HaveLen(1))

		dead, err := client.XRange(ctx, "auto_reply_dlq", "-", "+").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(dead).To(HaveLen(1))

		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("reclaims an entry left pending by a crashed consumer", func() {
		// worker-a reads but never acks.
		msgs, err := consumer.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))

		reclaimer := worker.NewRedisReclaimer(client, worker.RedisReclaimerConfig{
			Stream:   stream,
			Group:    group,
			Consumer: "worker-b",
			MinIdle:  2 * time.Minute,
			Interval: time.Minute,
		}, consumer, w.HandleMessage)

		claimed, err := reclaimer.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(Equal(0))

		mr.SetTime(start.Add(3 * time.Minute))
		claimed, err = reclaimer.ReclaimOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(Equal(1))
		Expect(runner.items).To(HaveLen(1))
		Expect(runner.items[0].ID).To(Equal(int64(5)))

		pending, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{Stream: stream, Group: group, Start: "-", End: "+", Count: 10}).Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})
})
