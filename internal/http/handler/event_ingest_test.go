package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/autoreply/internal/http/handler"
	"basegraph.app/autoreply/internal/service"
)

var _ = Describe("EventIngestHandler", func() {
	var (
		router *gin.Engine
		svc    *mockEventIngestService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockEventIngestService{}
		h := handler.NewEventIngestHandler(svc, "X-Trace-Id")
		router.POST("/events", h.Ingest)
	})

	post := func(body any, headers map[string]string) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("returns 202 with the work item id when enqueued", func() {
		svc.ingestFn = func(_ context.Context, p service.EventIngestParams) (*service.EventIngestResult, error) {
			return &service.EventIngestResult{TicketID: p.TicketID, WorkItemID: 991, Enqueued: true}, nil
		}

		w := post(map[string]any{"event_type": "ticket_created", "ticket_id": 42}, nil)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["ticket_id"]).To(BeEquivalentTo(42))
		Expect(resp["work_item_id"]).To(BeEquivalentTo(991))
		Expect(resp["enqueued"]).To(BeTrue())
		Expect(resp).NotTo(HaveKey("skipped"))
	})

	It("returns 202 with the skip reason when nothing was enqueued", func() {
		svc.ingestFn = func(_ context.Context, p service.EventIngestParams) (*service.EventIngestResult, error) {
			return &service.EventIngestResult{TicketID: p.TicketID, Skipped: service.SkipNotCustomer}, nil
		}

		w := post(map[string]any{"event_type": "user_replied", "ticket_id": 42}, nil)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(w.Body.String()).To(ContainSubstring(`"enqueued":false`))
		Expect(w.Body.String()).To(ContainSubstring(service.SkipNotCustomer))
	})

	It("forwards the trace header to the service", func() {
		post(map[string]any{"event_type": "user_replied", "ticket_id": 7}, map[string]string{"X-Trace-Id": "abc123"})

		Expect(svc.calls).To(HaveLen(1))
		Expect(svc.calls[0].TraceID).NotTo(BeNil())
		Expect(*svc.calls[0].TraceID).To(Equal("abc123"))
		Expect(svc.calls[0].EventType).To(Equal("user_replied"))
	})

	It("returns 400 for an unknown event type without calling the service", func() {
		w := post(map[string]any{"event_type": "ticket_closed", "ticket_id": 42}, nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(svc.calls).To(BeEmpty())
	})

	It("returns 400 when ticket_id is missing", func() {
		w := post(map[string]any{"event_type": "ticket_created"}, nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 when the service rejects the event", func() {
		svc.ingestFn = func(context.Context, service.EventIngestParams) (*service.EventIngestResult, error) {
			return nil, fmt.Errorf("%w: bad", service.ErrInvalidEvent)
		}
		w := post(map[string]any{"event_type": "ticket_created", "ticket_id": 1}, nil)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 when the ticket does not exist", func() {
		svc.ingestFn = func(context.Context, service.EventIngestParams) (*service.EventIngestResult, error) {
			return nil, service.ErrTicketNotFound
		}
		w := post(map[string]any{"event_type": "ticket_created", "ticket_id": 1}, nil)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("returns 500 on other errors", func() {
		svc.ingestFn = func(context.Context, service.EventIngestParams) (*service.EventIngestResult, error) {
			return nil, errors.New("db down")
		}
		w := post(map[string]any{"event_type": "ticket_created", "ticket_id": 1}, nil)
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).NotTo(ContainSubstring("db down"))
	})
})
