package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"booking-service/internal/config"
	"booking-service/internal/db"
	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 100

	publishTimeout = 5 * time.Second
)

var (
	publishSuccessCounter = metrics.GetOrCreateCounter(`booking_events_published_total{result="success"}`)
	publishErrorCounter   = metrics.GetOrCreateCounter(`booking_events_published_total{result="error"}`)
)

func NewWriter(cfg config.Kafka) *kafka.Writer {
	batchSize := cfg.Writer.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchTimeout := cfg.Writer.BatchTimeoutMs
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Broker.URL),
		Topic:                  cfg.Topic.BookingEvents,
		Balancer:               &kafka.ReferenceHash{},
		BatchSize:              batchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(batchTimeout) * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type BookingEvent struct {
	Kind    string            `json:"kind"`
	Booking *db.BookingEntity `json:"booking"`
}

// Dispatcher publishes booking transition events. Publishing is
// fire-and-forget: failures are counted and logged, never returned, so a
// broker outage cannot roll back or fail a transition.
type Dispatcher struct {
	writer messageWriter
	logger *slog.Logger
}

func NewDispatcher(writer messageWriter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{writer: writer, logger: logger}
}

func (d *Dispatcher) Publish(ctx context.Context, kind string, entity *db.BookingEntity) {
	messageBytes, err := json.Marshal(BookingEvent{Kind: kind, Booking: entity})
	if err != nil {
		publishErrorCounter.Inc()
		d.logger.ErrorContext(ctx, "Error marshalling booking event", "kind", kind, "error", err)
		return
	}

	msg := kafka.Message{
		// Key by booking ID so events for one booking stay ordered.
		Key:   []byte(entity.ID.String()),
		Value: messageBytes,
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := d.writer.WriteMessages(writeCtx, msg); err != nil {
			publishErrorCounter.Inc()
			d.logger.Error("Error publishing booking event",
				"kind", kind, "bookingId", entity.ID, "error", err)
			return
		}
		publishSuccessCounter.Inc()
	}()
}
