package refund

import (
	"context"
	"log/slog"

	"booking-service/internal/booking"
	"booking-service/internal/db"
	"booking-service/internal/fault"
	"booking-service/internal/gateway"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	refundIssuedCounter   = metrics.GetOrCreateCounter(`payment_refunds_total{result="issued"}`)
	refundRejectedCounter = metrics.GetOrCreateCounter(`payment_refunds_total{result="rejected"}`)
	refundGatewayCounter  = metrics.GetOrCreateCounter(`payment_refunds_total{result="gateway_failed"}`)
)

type PaymentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db.PaymentEntity, error)
	ApplyRefund(ctx context.Context, id uuid.UUID, newStatus, refundID string, amount decimal.Decimal, reason, refundStatus string) (*db.PaymentEntity, error)
}

type BookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db.BookingEntity, error)
}

type Machine interface {
	ApplyTransition(ctx context.Context, id uuid.UUID, actor booking.Actor, target, expected booking.Status, note booking.Note) (*db.BookingEntity, error)
}

type RefundGateway interface {
	CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, reason string) (*gateway.Refund, error)
}

// Orchestrator drives refunds: eligibility and amount checks first, then the
// gateway call, and only after the gateway confirms does the ledger change.
// A gateway failure leaves payment and booking untouched so the caller can
// retry safely.
type Orchestrator struct {
	payments PaymentStore
	bookings BookingStore
	machine  Machine
	gw       RefundGateway
	logger   *slog.Logger
}

func NewOrchestrator(payments PaymentStore, bookings BookingStore, machine Machine, gw RefundGateway, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		payments: payments,
		bookings: bookings,
		machine:  machine,
		gw:       gw,
		logger:   logger,
	}
}

// Refund refunds amount (defaulting to the full captured amount) of a paid
// payment and moves the associated booking to REFUNDED.
func (o *Orchestrator) Refund(ctx context.Context, paymentID uuid.UUID, amount *decimal.Decimal, reason string) (*db.PaymentEntity, error) {
	entity, err := o.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if entity.Status != db.PaymentStatusPaid {
		refundRejectedCounter.Inc()
		return nil, fault.New(fault.KindInvalidRefundAmount,
			"payment %s is %s, only paid payments are refundable", paymentID, entity.Status)
	}

	refundAmount := entity.Amount
	if amount != nil {
		refundAmount = *amount
	}
	if !refundAmount.IsPositive() || refundAmount.GreaterThan(entity.Amount) {
		refundRejectedCounter.Inc()
		return nil, fault.New(fault.KindInvalidRefundAmount,
			"refund amount %s exceeds captured amount %s", refundAmount, entity.Amount)
	}

	// Validate the booking edge before touching the gateway so an ineligible
	// refund never moves money it cannot record.
	current, err := o.bookings.GetByID(ctx, entity.BookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.ValidateTransition(booking.ActorRefund, booking.Status(current.Status), booking.StatusRefunded); err != nil {
		refundRejectedCounter.Inc()
		return nil, err
	}

	gwRefund, err := o.gw.CreateRefund(ctx, *entity.GatewayPaymentID, refundAmount, reason)
	if err != nil {
		if fault.IsKind(err, fault.KindGatewayUnavailable) {
			refundGatewayCounter.Inc()
		} else {
			refundRejectedCounter.Inc()
		}
		return nil, err
	}

	newStatus := db.PaymentStatusRefunded
	if refundAmount.LessThan(entity.Amount) {
		newStatus = db.PaymentStatusPartiallyRefunded
	}

	refunded, err := o.payments.ApplyRefund(ctx, entity.ID, newStatus, gwRefund.ID, refundAmount, reason, gwRefund.Status)
	if err != nil {
		return nil, err
	}

	refundIssuedCounter.Inc()
	o.logger.InfoContext(ctx, "Refund applied",
		"paymentId", entity.ID, "gatewayRefundId", gwRefund.ID, "amount", refundAmount, "status", newStatus)

	_, err = o.machine.ApplyTransition(ctx, current.ID, booking.ActorRefund,
		booking.StatusRefunded, booking.Status(current.Status),
		booking.Note{Reason: reason, RefundAmount: &refundAmount})
	if fault.IsKind(err, fault.KindConflict) {
		// The refund itself is recorded on the payment; a concurrent booking
		// change is logged for follow-up rather than failing the refund.
		o.logger.ErrorContext(ctx, "Booking moved during refund, not marked refunded",
			"bookingId", current.ID, "error", err)
		return refunded, nil
	}
	if err != nil {
		return nil, err
	}
	return refunded, nil
}
