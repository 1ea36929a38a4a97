package notify_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"booking-service/internal/db"
	"booking-service/internal/notify"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

type capturingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	written  chan struct{}
}

func newCapturingWriter() *capturingWriter {
	return &capturingWriter{written: make(chan struct{}, 10)}
}

func (w *capturingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	w.written <- struct{}{}
	return w.err
}

func (w *capturingWriter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-w.written:
	case <-time.After(time.Second):
		t.Fatal("no message written")
	}
}

func TestPublishKeysByBookingID(t *testing.T) {
	writer := newCapturingWriter()
	dispatcher := notify.NewDispatcher(writer, slog.Default())

	entity := &db.BookingEntity{ID: uuid.New(), Status: "PAID_PENDING_ADMIN"}
	dispatcher.Publish(context.Background(), "booking.paid", entity)
	writer.wait(t)

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Len(t, writer.messages, 1)
	assert.Equal(t, entity.ID.String(), string(writer.messages[0].Key))

	var event notify.BookingEvent
	assert.NoError(t, json.Unmarshal(writer.messages[0].Value, &event))
	assert.Equal(t, "booking.paid", event.Kind)
	assert.Equal(t, entity.ID, event.Booking.ID)
	assert.Equal(t, "PAID_PENDING_ADMIN", event.Booking.Status)
}

func TestPublishSwallowsWriterErrors(t *testing.T) {
	writer := newCapturingWriter()
	writer.err = errors.New("broker unavailable")
	dispatcher := notify.NewDispatcher(writer, slog.Default())

	// Must not panic or block the caller.
	dispatcher.Publish(context.Background(), "booking.cancelled", &db.BookingEntity{ID: uuid.New()})
	writer.wait(t)
}
