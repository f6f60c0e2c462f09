package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/autoreply/internal/http/dto"
	"basegraph.app/autoreply/internal/service"
)

type EventIngestHandler struct {
	service     service.EventIngestService
	traceHeader string
}

func NewEventIngestHandler(service service.EventIngestService, traceHeader string) *EventIngestHandler {
	return &EventIngestHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

// Ingest accepts a ticket_created or user_replied event. The reply itself is
// produced asynchronously, so success is 202 whether or not work was enqueued.
func (h *EventIngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.TicketEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ticket event request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	traceID := c.GetHeader(h.traceHeader)
	if traceID == "" {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
		}
	}
	params := service.EventIngestParams{
		EventType: req.EventType,
		TicketID:  req.TicketID,
	}
	if traceID != "" {
		params.TraceID = &traceID
	}

	result, err := h.service.Ingest(ctx, params)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, service.ErrInvalidEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to ingest ticket event", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest ticket event"})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.TicketEventResponse{
		TicketID:   result.TicketID,
		WorkItemID: result.WorkItemID,
		Enqueued:   result.Enqueued,
		Skipped:    result.Skipped,
	})
}
