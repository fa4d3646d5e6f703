package kafkahandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connect-go/internal/models"
	"connect-go/internal/services"
)

type fakeReconciler struct {
	calls []uint
	err   error
}

func (f *fakeReconciler) Reconcile(_ context.Context, id uint) error {
	f.calls = append(f.calls, id)
	return f.err
}

func message(t *testing.T, e models.RequestEvent) *kafka.Message {
	t.Helper()
	payload, err := json.Marshal(e)
	require.NoError(t, err)
	topic := "events"
	return &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic}, Key: e.PartitionKey(), Value: payload}
}

func TestHandle_ReconcilesAcceptedOnly(t *testing.T) {
	rec := &fakeReconciler{}
	h := NewRequestEventHandler(rec, nil)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, message(t, models.RequestEvent{Type: models.EventRequestCreated, RequestID: 1})))
	require.NoError(t, h.Handle(ctx, message(t, models.RequestEvent{Type: models.EventRequestRejected, RequestID: 2})))
	require.NoError(t, h.Handle(ctx, message(t, models.RequestEvent{Type: models.EventRequestAccepted, RequestID: 3, Status: models.RequestStatusAccepted})))

	assert.Equal(t, []uint{3}, rec.calls)
}

func TestHandle_MalformedIsSkipped(t *testing.T) {
	rec := &fakeReconciler{}
	h := NewRequestEventHandler(rec, nil)
	topic := "events"

	err := h.Handle(context.Background(), &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic}, Value: []byte("{")})
	assert.NoError(t, err)
	assert.Empty(t, rec.calls)
}

func TestHandle_RetriesOnlyStoreFailures(t *testing.T) {
	ctx := context.Background()
	accepted := models.RequestEvent{Type: models.EventRequestAccepted, RequestID: 9, Status: models.RequestStatusAccepted}

	rec := &fakeReconciler{err: fmt.Errorf("%w: db down: %w", services.ErrStoreFailure, errors.New("conn refused"))}
	assert.Error(t, NewRequestEventHandler(rec, nil).HandleEvent(ctx, accepted))

	rec = &fakeReconciler{err: services.ErrRequestNotFound}
	assert.NoError(t, NewRequestEventHandler(rec, nil).HandleEvent(ctx, accepted))
}

func TestHandle_InconsistentStatusIsDropped(t *testing.T) {
	rec := &fakeReconciler{}
	h := NewRequestEventHandler(rec, nil)
	ctx := context.Background()

	for _, status := range []models.RequestStatus{"", "bogus", models.RequestStatusPending, models.RequestStatusRejected} {
		e := models.RequestEvent{Type: models.EventRequestAccepted, RequestID: 4, Status: status}
		assert.NoError(t, h.Handle(ctx, message(t, e)), status)
	}
	assert.Empty(t, rec.calls)
}
