package webhook

import (
	"context"
	"log/slog"

	"booking-service/internal/booking"
	"booking-service/internal/db"
	"booking-service/internal/fault"
	"booking-service/internal/gateway"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

const paymentFailedReason = "payment failed"

var (
	signatureRejectedCounter = metrics.GetOrCreateCounter(`payment_webhook_total{result="signature_rejected"}`)
	parseErrorCounter        = metrics.GetOrCreateCounter(`payment_webhook_total{result="parse_error"}`)
	capturedCounter          = metrics.GetOrCreateCounter(`payment_webhook_total{result="captured"}`)
	failedCounter            = metrics.GetOrCreateCounter(`payment_webhook_total{result="failed"}`)
	replayedCounter          = metrics.GetOrCreateCounter(`payment_webhook_total{result="replayed"}`)
	staleCounter             = metrics.GetOrCreateCounter(`payment_webhook_total{result="stale"}`)
	orphanCounter            = metrics.GetOrCreateCounter(`payment_webhook_total{result="orphan"}`)
	unknownKindCounter       = metrics.GetOrCreateCounter(`payment_webhook_total{result="unknown_kind"}`)
	refundStatusCounter      = metrics.GetOrCreateCounter(`payment_webhook_total{result="refund_status"}`)
)

type PaymentStore interface {
	FindByGatewayRef(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*db.PaymentEntity, error)
	Capture(ctx context.Context, id uuid.UUID, gatewayPaymentID, signature, method string) (*db.PaymentEntity, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (*db.PaymentEntity, error)
	UpdateRefundStatus(ctx context.Context, gatewayPaymentID, refundID, refundStatus string) (bool, error)
}

type Machine interface {
	ApplyTransition(ctx context.Context, id uuid.UUID, actor booking.Actor, target, expected booking.Status, note booking.Note) (*db.BookingEntity, error)
}

// Reconciler ingests gateway webhooks and maps them onto idempotent ledger
// transitions. Signature verification over the raw body is the first hard
// gate; after it, losing a conditional update means another path already
// recorded the fact and the event is acknowledged as a no-op.
type Reconciler struct {
	payments PaymentStore
	machine  Machine
	secret   string
	logger   *slog.Logger
}

func NewReconciler(payments PaymentStore, machine Machine, webhookSecret string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		payments: payments,
		machine:  machine,
		secret:   webhookSecret,
		logger:   logger,
	}
}

func (r *Reconciler) Handle(ctx context.Context, rawBody []byte, signature string) error {
	if err := gateway.VerifyWebhookSignature(rawBody, signature, r.secret); err != nil {
		signatureRejectedCounter.Inc()
		r.logger.WarnContext(ctx, "Webhook signature rejected")
		return err
	}

	event, err := ParseEvent(rawBody)
	if err != nil {
		parseErrorCounter.Inc()
		return err
	}

	switch e := event.(type) {
	case PaymentCaptured:
		return r.handleCaptured(ctx, e.Payment)
	case PaymentFailed:
		return r.handleFailed(ctx, e.Payment)
	case RefundCreated:
		return r.handleRefundCreated(ctx, e.Refund)
	case UnknownEvent:
		unknownKindCounter.Inc()
		r.logger.InfoContext(ctx, "Acknowledging unknown webhook event", "kind", e.Kind)
		return nil
	default:
		unknownKindCounter.Inc()
		return nil
	}
}

func (r *Reconciler) handleCaptured(ctx context.Context, data PaymentData) error {
	entity, err := r.payments.FindByGatewayRef(ctx, data.OrderID, data.ID)
	if err != nil {
		return err
	}
	if entity == nil {
		orphanCounter.Inc()
		r.logger.WarnContext(ctx, "Orphan capture event, no matching payment",
			"gatewayPaymentId", data.ID, "gatewayOrderId", data.OrderID)
		return nil
	}
	if entity.Status == db.PaymentStatusPaid {
		replayedCounter.Inc()
		r.logger.InfoContext(ctx, "Replayed capture event", "paymentId", entity.ID)
		return nil
	}

	captured, err := r.payments.Capture(ctx, entity.ID, data.ID, "", data.Method)
	if fault.IsKind(err, fault.KindConflict) {
		replayedCounter.Inc()
		r.logger.InfoContext(ctx, "Capture already recorded elsewhere", "paymentId", entity.ID)
		return nil
	}
	if err != nil {
		return err
	}

	capturedCounter.Inc()

	_, err = r.machine.ApplyTransition(ctx, captured.BookingID, booking.ActorPayment,
		booking.StatusPaidPendingAdmin, booking.StatusAwaitingPayment, booking.Note{})
	if fault.IsKind(err, fault.KindConflict) {
		// The client callback advanced the booking first; the capture above
		// already carries the authoritative fact.
		r.logger.InfoContext(ctx, "Booking already advanced", "bookingId", captured.BookingID)
		return nil
	}
	return err
}

func (r *Reconciler) handleFailed(ctx context.Context, data PaymentData) error {
	entity, err := r.payments.FindByGatewayRef(ctx, data.OrderID, data.ID)
	if err != nil {
		return err
	}
	if entity == nil {
		orphanCounter.Inc()
		r.logger.WarnContext(ctx, "Orphan failure event, no matching payment",
			"gatewayPaymentId", data.ID, "gatewayOrderId", data.OrderID)
		return nil
	}
	if entity.Status == db.PaymentStatusFailed {
		replayedCounter.Inc()
		return nil
	}

	failed, err := r.payments.MarkFailed(ctx, entity.ID)
	if fault.IsKind(err, fault.KindConflict) {
		// A failure delivered after a confirmed capture is stale and must
		// never cancel a paid booking.
		staleCounter.Inc()
		r.logger.InfoContext(ctx, "Stale failure event ignored",
			"paymentId", entity.ID, "status", entity.Status)
		return nil
	}
	if err != nil {
		return err
	}

	failedCounter.Inc()

	_, err = r.machine.ApplyTransition(ctx, failed.BookingID, booking.ActorPayment,
		booking.StatusCancelled, booking.StatusAwaitingPayment,
		booking.Note{Reason: paymentFailedReason})
	if fault.IsKind(err, fault.KindConflict) {
		// Booking already past AWAITING_PAYMENT: skip, out-of-order event.
		staleCounter.Inc()
		r.logger.InfoContext(ctx, "Booking already past awaiting payment, failure skipped",
			"bookingId", failed.BookingID)
		return nil
	}
	return err
}

// handleRefundCreated only records the gateway-reported refund status; the
// booking side of a refund is owned by the refund orchestrator.
func (r *Reconciler) handleRefundCreated(ctx context.Context, data RefundData) error {
	found, err := r.payments.UpdateRefundStatus(ctx, data.PaymentID, data.ID, data.Status)
	if err != nil {
		return err
	}
	if !found {
		orphanCounter.Inc()
		r.logger.WarnContext(ctx, "Orphan refund event, no matching payment",
			"gatewayPaymentId", data.PaymentID)
		return nil
	}

	refundStatusCounter.Inc()
	r.logger.InfoContext(ctx, "Refund status recorded",
		"gatewayRefundId", data.ID, "status", data.Status)
	return nil
}
