package kafkahandlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"connect-go/internal/metrics"
	"connect-go/internal/models"
	"connect-go/internal/services"
)

// Reconciler re-drives the side effects of a resolved request.
type Reconciler interface {
	Reconcile(ctx context.Context, requestID uint) error
}

// RequestEventHandler consumes connection request lifecycle events and makes
// sure every accepted request has its connection in place.
type RequestEventHandler struct {
	reconciler Reconciler
	metrics    *metrics.Metrics
}

// NewRequestEventHandler creates a new instance of RequestEventHandler.
func NewRequestEventHandler(r Reconciler, m *metrics.Metrics) *RequestEventHandler {
	if r == nil {
		log.Panic("Reconciler cannot be nil")
	}
	return &RequestEventHandler{reconciler: r, metrics: m}
}

// Handle is the kafka.MessageHandler for the connection events topic.
func (h *RequestEventHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	var event models.RequestEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 无法解析的消息不重试
		log.Printf("Skipping malformed request event (Key: %s): %v", string(msg.Key), err)
		return nil
	}
	return h.HandleEvent(ctx, event)
}

// HandleEvent applies one decoded event. Only store failures are retried.
func (h *RequestEventHandler) HandleEvent(ctx context.Context, event models.RequestEvent) error {
	if event.Type != models.EventRequestAccepted || event.RequestID == 0 {
		return nil
	}
	if !event.Consistent() {
		// 类型与状态不符的事件不可信，丢弃
		log.Printf("Dropping %s event for request %d with status %q", event.Type, event.RequestID, event.Status)
		return nil
	}

	err := h.reconciler.Reconcile(ctx, event.RequestID)
	h.metrics.ObserveEventConsumed(string(event.Type), err)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrStoreFailure):
		return err
	default:
		log.Printf("Dropping %s event for request %d: %v", event.Type, event.RequestID, err)
		return nil
	}
}
