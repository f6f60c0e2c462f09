package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/service"
	"basegraph.app/autoreply/internal/settings"
	"basegraph.app/autoreply/internal/store"
)

var _ = Describe("Dispatcher", func() {
	var (
		ctx        context.Context
		producer   *mockProducer
		source     *mockSettingsSource
		dispatcher service.Dispatcher
		ticket     *model.Ticket
	)

	BeforeEach(func() {
		ctx = context.Background()
		producer = &mockProducer{}
		source = &mockSettingsSource{}
		dispatcher = service.NewDispatcher(source, producer)
		ticket = &model.Ticket{ID: 42, UserID: 1}
	})

	It("does nothing when the ticket has no message", func() {
		res := dispatcher.OnTicketEvent(ctx, model.TicketEventCreated, ticket, nil)
		Expect(res.Enqueued).To(BeFalse())
		Expect(res.Skipped).To(Equal(service.SkipNoMessage))
		Expect(producer.items).To(BeEmpty())
		Expect(source.calls).To(Equal(0))
	})

	It("ignores messages written by anyone but the ticket owner", func() {
		res := dispatcher.OnTicketEvent(ctx, model.TicketEventUserReplied, ticket, &model.TicketMessage{ID: 3, TicketID: 42, UserID: 1000, Message: "[Auto-Reply] hi"})
		Expect(res.Skipped).To(Equal(service.SkipNotCustomer))
		Expect(producer.items).To(BeEmpty())
	})

	It("enqueues a first attempt carrying the message and a settings snapshot", func() {
		values := map[string]string{settings.KeyKeywordRules: `{"reset":"x"}`}
		source.loadFn = func(ctx context.Context) (settings.ResolvedConfig, error) {
			return settings.New(values), nil
		}

		res := dispatcher.OnTicketEvent(ctx, model.TicketEventUserReplied, ticket, &model.TicketMessage{ID: 3, TicketID: 42, UserID: 1, Message: "please reset"})
		Expect(res.Enqueued).To(BeTrue())
		Expect(producer.items).To(HaveLen(1))

		item := producer.items[0]
		Expect(item.ID).To(Equal(res.WorkItemID))
		Expect(item.ID).NotTo(BeZero())
		Expect(item.TicketID).To(Equal(int64(42)))
		Expect(item.MessageID).To(Equal(int64(3)))
		Expect(item.RawMessage).To(Equal("please reset"))
		Expect(item.EventType).To(Equal(model.TicketEventUserReplied))
		Expect(item.Attempt).To(Equal(1))

		values[settings.KeyKeywordRules] = `{}`
		Expect(item.Config.KeywordRulesRaw()).To(Equal(`{"reset":"x"}`))
	})

	It("swallows enqueue failures", func() {
		producer.enqueueFn = func(ctx context.Context, item model.WorkItem) error {
			return errors.New("redis down")
		}
		res := dispatcher.OnTicketEvent(ctx, model.TicketEventCreated, ticket, &model.TicketMessage{ID: 1, UserID: 1, Message: "hi"})
		Expect(res.Enqueued).To(BeFalse())
		Expect(res.Skipped).To(Equal(service.SkipEnqueueError))
	})

	It("skips dispatch when settings cannot be loaded", func() {
		source.loadFn = func(ctx context.Context) (settings.ResolvedConfig, error) {
			return settings.ResolvedConfig{}, errors.New("db down")
		}
		res := dispatcher.OnTicketEvent(ctx, model.TicketEventCreated, ticket, &model.TicketMessage{ID: 1, UserID: 1, Message: "hi"})
		Expect(res.Skipped).To(Equal(service.SkipSettings))
		Expect(producer.items).To(BeEmpty())
	})
})

var _ = Describe("EventIngestService", func() {
	var (
		ctx      context.Context
		tickets  *mockTicketStore
		messages *mockMessageStore
		producer *mockProducer
		svc      service.EventIngestService
	)

	BeforeEach(func() {
		ctx = context.Background()
		tickets = &mockTicketStore{getByIDFn: func(ctx context.Context, id int64) (*model.Ticket, error) {
			return &model.Ticket{ID: id, UserID: 1}, nil
		}}
		messages = &mockMessageStore{latestFn: func(ctx context.Context, ticketID int64) (*model.TicketMessage, error) {
			return &model.TicketMessage{ID: 5, TicketID: ticketID, UserID: 1, Message: "hello"}, nil
		}}
		producer = &mockProducer{}
		svc = service.NewEventIngestService(tickets, messages, service.NewDispatcher(&mockSettingsSource{}, producer))
	})

	It("dispatches the ticket's latest message", func() {
		res, err := svc.Ingest(ctx, service.EventIngestParams{EventType: "ticket_created", TicketID: 42})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Enqueued).To(BeTrue())
		Expect(res.TicketID).To(Equal(int64(42)))
		Expect(producer.items).To(HaveLen(1))
		Expect(producer.items[0].RawMessage).To(Equal("hello"))
	})

	It("rejects unknown event types", func() {
		_, err := svc.Ingest(ctx, service.EventIngestParams{EventType: "ticket_closed", TicketID: 42})
		Expect(errors.Is(err, service.ErrInvalidEvent)).To(BeTrue())
	})

	It("rejects a missing ticket id", func() {
		_, err := svc.Ingest(ctx, service.EventIngestParams{EventType: "user_replied"})
		Expect(errors.Is(err, service.ErrInvalidEvent)).To(BeTrue())
	})

	It("reports unknown tickets", func() {
		tickets.getByIDFn = nil
		_, err := svc.Ingest(ctx, service.EventIngestParams{EventType: "user_replied", TicketID: 9})
		Expect(errors.Is(err, service.ErrTicketNotFound)).To(BeTrue())
	})

	It("treats a ticket without messages as a silent no-op", func() {
		messages.latestFn = nil
		res, err := svc.Ingest(ctx, service.EventIngestParams{EventType: "user_replied", TicketID: 42})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Enqueued).To(BeFalse())
		Expect(res.Skipped).To(Equal(service.SkipNoMessage))
	})

	It("returns store failures", func() {
		messages.latestFn = func(ctx context.Context, ticketID int64) (*model.TicketMessage, error) {
			return nil, errors.New("db down")
		}
		_, err := svc.Ingest(ctx, service.EventIngestParams{EventType: "user_replied", TicketID: 42})
		Expect(err).To(MatchError(ContainSubstring("db down")))
		Expect(errors.Is(err, store.ErrNotFound)).To(BeFalse())
	})
})
