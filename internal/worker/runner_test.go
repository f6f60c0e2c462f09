package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/autoreply/internal/autoreply"
	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/settings"
	"basegraph.app/autoreply/internal/worker"
)

var _ = Describe("Runner", func() {
	var (
		ctx       context.Context
		tickets   *mockTicketStore
		decider   *mockDecider
		deliverer *mockDeliverer
		notifier  *mockNotifier
		slept     []time.Duration
		runner    *worker.Runner
		item      model.WorkItem
	)

	BeforeEach(func() {
		ctx = context.Background()
		tickets = &mockTicketStore{getByIDFn: func(ctx context.Context, id int64) (*model.Ticket, error) {
			return &model.Ticket{ID: id, UserID: 1, Subject: "Slow"}, nil
		}}
		decider = &mockDecider{}
		deliverer = &mockDeliverer{}
		notifier = &mockNotifier{}
		slept = nil
		runner = worker.NewRunner(tickets, decider, deliverer, notifier, worker.RunnerConfig{AttemptTimeout: time.Minute}).
			WithSleep(func(ctx context.Context, d time.Duration) error {
				slept = append(slept, d)
				return nil
			})
		item = model.WorkItem{
			ID:         900,
			TicketID:   42,
			MessageID:  5,
			RawMessage: "help",
			Config:     settings.New(nil),
			Attempt:    1,
		}
	})

	decideAs := func(source model.ReplySource, text string) {
		decider.decideFn = func(ctx context.Context, req autoreply.Request) (model.ReplyOutcome, error) {
			return model.ReplyOutcome{Text: text, Source: source}, nil
		}
	}

	It("discards work for a ticket that no longer exists", func() {
		tickets.getByIDFn = nil
		Expect(runner.Run(ctx, item)).To(Succeed())
		Expect(decider.requests).To(BeEmpty())
		Expect(deliverer.delivered).To(BeEmpty())
	})

	It("passes the work item to the engine unchanged", func() {
		Expect(runner.Run(ctx, item)).To(Succeed())
		Expect(decider.requests).To(HaveLen(1))
		req := decider.requests[0]
		Expect(req.Ticket.ID).To(Equal(int64(42)))
		Expect(req.TriggerMessageID).To(Equal(int64(5)))
		Expect(req.Message).To(Equal("help"))
	})

	It("sends nothing when no strategy applied", func() {
		Expect(runner.Run(ctx, item)).To(Succeed())
		Expect(deliverer.delivered).To(BeEmpty())
		Expect(notifier.messages).To(BeEmpty())
	})

	It("waits the configured delay, then delivers a marked keyword reply", func() {
		decideAs(model.ReplySourceKeyword, "See FAQ #3")
		item.Config = settings.New(map[string]string{settings.KeyAutoReplyDelay: "3"})

		Expect(runner.Run(ctx, item)).To(Succeed())
		Expect(slept).To(Equal([]time.Duration{3 * time.Second}))
		Expect(deliverer.delivered).To(Equal([]delivered{{WorkItemID: 900, TicketID: 42, Text: "[Auto-Reply] See FAQ #3"}}))
		Expect(notifier.messages).To(BeEmpty())
	})

	It("delivers AI replies with the assistant marker after the default delay", func() {
		decideAs(model.ReplySourceAI, "Try another node.")
		Expect(runner.Run(ctx, item)).To(Succeed())
		Expect(slept).To(Equal([]time.Duration{2 * time.Second}))
		Expect(deliverer.delivered[0].Text).To(Equal("[AI Assistant] Try another node."))
	})

	It("delivers escalations immediately and alerts admins", func() {
		decideAs(model.ReplySourceEscalation, autoreply.EscalationAck)
		Expect(runner.Run(ctx, item)).To(Succeed())
		Expect(slept).To(BeEmpty())
		Expect(deliverer.delivered[0].Text).To(Equal("[Auto-Reply] " + autoreply.EscalationAck))
		Expect(notifier.messages).To(HaveLen(1))
		Expect(notifier.messages[0]).To(ContainSubstring("Ticket #42 needs a human agent"))
		Expect(notifier.urgent).To(Equal([]bool{true}))
	})

	It("skips the admin alert when notifications are disabled", func() {
		decideAs(model.ReplySourceEscalation, autoreply.EscalationAck)
		item.Config = settings.New(map[string]string{settings.KeyEnableTelegramNotify: "false"})
		Expect(runner.Run(ctx, item)).To(Succeed())
		Expect(deliverer.delivered).To(HaveLen(1))
		Expect(notifier.messages).To(BeEmpty())
	})

	It("does not fail the job when the admin alert fails", func() {
		decideAs(model.ReplySourceEscalation, autoreply.EscalationAck)
		notifier.err = errors.New("telegram down")
		Expect(runner.Run(ctx, item)).To(Succeed())
	})

	It("fails the attempt when delivery fails", func() {
		decideAs(model.ReplySourceKeyword, "x")
		deliverer.err = errors.New("db down")
		Expect(runner.Run(ctx, item)).To(MatchError(ContainSubstring("db down")))
	})

	It("fails the attempt when the engine fails", func() {
		decider.decideFn = func(ctx context.Context, req autoreply.Request) (model.ReplyOutcome, error) {
			return model.ReplyOutcome{}, errors.New("provider timeout")
		}
		Expect(runner.Run(ctx, item)).To(MatchError(ContainSubstring("provider timeout")))
	})

	It("fails the attempt when it outlives the timeout", func() {
		runner = worker.NewRunner(tickets, decider, deliverer, notifier, worker.RunnerConfig{AttemptTimeout: 20 * time.Millisecond})
		decider.decideFn = func(ctx context.Context, req autoreply.Request) (model.ReplyOutcome, error) {
			<-ctx.Done()
			return model.ReplyOutcome{}, ctx.Err()
		}
		err := runner.Run(ctx, item)
		Expect(err).To(MatchError(ContainSubstring("attempt timed out")))
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("bounds the pre-delivery wait by the attempt timeout", func() {
		runner = worker.NewRunner(tickets, decider, deliverer, notifier, worker.RunnerConfig{AttemptTimeout: 20 * time.Millisecond})
		decideAs(model.ReplySourceKeyword, "x")
		item.Config = settings.New(map[string]string{settings.KeyAutoReplyDelay: "5"})

		Expect(runner.Run(ctx, item)).To(MatchError(ContainSubstring("attempt timed out")))
		Expect(deliverer.delivered).To(BeEmpty())
	})
})
