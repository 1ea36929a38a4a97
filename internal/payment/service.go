package payment

import (
	"context"
	"log/slog"
	"time"

	"booking-service/internal/booking"
	"booking-service/internal/db"
	"booking-service/internal/fault"
	"booking-service/internal/gateway"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	verifySignatureRejectedCounter = metrics.GetOrCreateCounter(`payment_verify_total{result="signature_rejected"}`)
	verifyCapturedCounter          = metrics.GetOrCreateCounter(`payment_verify_total{result="captured"}`)
	verifyReplayedCounter          = metrics.GetOrCreateCounter(`payment_verify_total{result="replayed"}`)
	orderCreatedCounter            = metrics.GetOrCreateCounter(`payment_orders_total{result="created"}`)
	orderFailedCounter             = metrics.GetOrCreateCounter(`payment_orders_total{result="gateway_failed"}`)
)

type Store interface {
	Create(ctx context.Context, entity *db.PaymentEntity) (*db.PaymentEntity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db.PaymentEntity, error)
	Capture(ctx context.Context, id uuid.UUID, gatewayPaymentID, signature, method string) (*db.PaymentEntity, error)
}

type BookingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db.BookingEntity, error)
	SetPaymentRef(ctx context.Context, id, paymentID uuid.UUID) error
}

// Machine drives booking transitions; it is the same state machine the
// webhook reconciler uses, so both entry points race through one
// compare-and-swap.
type Machine interface {
	ApplyTransition(ctx context.Context, id uuid.UUID, actor booking.Actor, target, expected booking.Status, note booking.Note) (*db.BookingEntity, error)
}

type OrderGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*gateway.Order, error)
}

type Service struct {
	payments    Store
	bookings    BookingStore
	machine     Machine
	gw          OrderGateway
	orderSecret string
	logger      *slog.Logger
}

func NewService(payments Store, bookings BookingStore, machine Machine, gw OrderGateway, orderSecret string, logger *slog.Logger) *Service {
	return &Service{
		payments:    payments,
		bookings:    bookings,
		machine:     machine,
		gw:          gw,
		orderSecret: orderSecret,
		logger:      logger,
	}
}

type OrderResult struct {
	Order   *gateway.Order
	Payment *db.PaymentEntity
}

// CreateOrder requests a gateway order for a booking awaiting payment and
// persists the payment attempt in created state. The booking status itself is
// untouched; only the capture advances it.
func (s *Service) CreateOrder(ctx context.Context, bookingID uuid.UUID) (*OrderResult, error) {
	entity, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if entity.Status != string(booking.StatusAwaitingPayment) {
		return nil, fault.New(fault.KindInvalidTransition,
			"booking %s is %s, orders are only created while awaiting payment", bookingID, entity.Status)
	}

	order, err := s.gw.CreateOrder(ctx, entity.TotalAmount, entity.Currency, entity.ID.String())
	if err != nil {
		orderFailedCounter.Inc()
		return nil, err
	}

	created, err := s.payments.Create(ctx, &db.PaymentEntity{
		ID:             uuid.New(),
		BookingID:      entity.ID,
		GatewayOrderID: order.ID,
		Amount:         entity.TotalAmount,
		Currency:       entity.Currency,
		Status:         db.PaymentStatusCreated,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.bookings.SetPaymentRef(ctx, entity.ID, created.ID); err != nil {
		return nil, err
	}

	orderCreatedCounter.Inc()
	s.logger.InfoContext(ctx, "Payment order created",
		"bookingId", bookingID, "paymentId", created.ID, "gatewayOrderId", order.ID)
	return &OrderResult{Order: order, Payment: created}, nil
}

type VerifyParams struct {
	PaymentID        uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
}

// Verify is the synchronous client-callback confirmation. The signature gate
// short-circuits before any state mutation; the capture itself is the same
// conditional created -> paid transition the webhook path applies, so
// whichever arrives first wins and the other becomes a no-op.
func (s *Service) Verify(ctx context.Context, params VerifyParams) (*db.PaymentEntity, error) {
	if err := gateway.VerifyPaymentSignature(params.GatewayOrderID, params.GatewayPaymentID,
		params.GatewaySignature, s.orderSecret); err != nil {
		verifySignatureRejectedCounter.Inc()
		s.logger.WarnContext(ctx, "Payment signature rejected", "paymentId", params.PaymentID)
		return nil, err
	}

	entity, err := s.payments.GetByID(ctx, params.PaymentID)
	if err != nil {
		return nil, err
	}
	if entity.GatewayOrderID != params.GatewayOrderID {
		verifySignatureRejectedCounter.Inc()
		return nil, fault.New(fault.KindSignatureMismatch,
			"order %s does not belong to payment %s", params.GatewayOrderID, params.PaymentID)
	}

	captured, err := s.payments.Capture(ctx, entity.ID, params.GatewayPaymentID, params.GatewaySignature, "")
	if fault.IsKind(err, fault.KindConflict) {
		// The webhook got here first. Already paid means the confirmation is
		// a replay of a success; anything else is a genuine conflict the
		// caller must look at.
		current, getErr := s.payments.GetByID(ctx, entity.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != db.PaymentStatusPaid {
			return nil, err
		}
		verifyReplayedCounter.Inc()
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	verifyCapturedCounter.Inc()

	_, err = s.machine.ApplyTransition(ctx, captured.BookingID, booking.ActorPayment,
		booking.StatusPaidPendingAdmin, booking.StatusAwaitingPayment, booking.Note{})
	if fault.IsKind(err, fault.KindConflict) {
		// Expected when the booking already advanced through the other path;
		// the payment-side capture above carries the authoritative fact.
		s.logger.InfoContext(ctx, "Booking already advanced past awaiting payment",
			"bookingId", captured.BookingID)
		return captured, nil
	}
	if err != nil {
		return nil, err
	}
	return captured, nil
}
