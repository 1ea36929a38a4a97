package payment_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"testing"
	"time"

	"booking-service/internal/booking"
	"booking-service/internal/db"
	"booking-service/internal/fault"
	"booking-service/internal/gateway"
	"booking-service/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const orderSecret = "order-secret"

func signPayment(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(orderSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type fakePaymentStore struct {
	payments     map[uuid.UUID]*db.PaymentEntity
	captureCalls int
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[uuid.UUID]*db.PaymentEntity)}
}

func (f *fakePaymentStore) Create(_ context.Context, entity *db.PaymentEntity) (*db.PaymentEntity, error) {
	copied := *entity
	f.payments[entity.ID] = &copied
	return &copied, nil
}

func (f *fakePaymentStore) GetByID(_ context.Context, id uuid.UUID) (*db.PaymentEntity, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "payment %s not found", id)
	}
	copied := *p
	return &copied, nil
}

func (f *fakePaymentStore) Capture(_ context.Context, id uuid.UUID, gatewayPaymentID, signature, method string) (*db.PaymentEntity, error) {
	f.captureCalls++
	p, ok := f.payments[id]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "payment %s not found", id)
	}
	if p.Status != db.PaymentStatusCreated {
		return nil, fault.New(fault.KindConflict, "payment %s is %s, expected %s", id, p.Status, db.PaymentStatusCreated)
	}
	p.Status = db.PaymentStatusPaid
	p.GatewayPaymentID = &gatewayPaymentID
	p.GatewaySignature = &signature
	if method != "" {
		p.PaymentMethod = &method
	}
	copied := *p
	return &copied, nil
}

type fakeBookingStore struct {
	bookings map[uuid.UUID]*db.BookingEntity
	refs     map[uuid.UUID]uuid.UUID
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{
		bookings: make(map[uuid.UUID]*db.BookingEntity),
		refs:     make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeBookingStore) GetByID(_ context.Context, id uuid.UUID) (*db.BookingEntity, error) {
	entity, ok := f.bookings[id]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "booking %s not found", id)
	}
	copied := *entity
	return &copied, nil
}

func (f *fakeBookingStore) SetPaymentRef(_ context.Context, id, paymentID uuid.UUID) error {
	f.refs[id] = paymentID
	return nil
}

type fakeMachine struct {
	statuses map[uuid.UUID]booking.Status
	calls    int
}

func (f *fakeMachine) ApplyTransition(_ context.Context, id uuid.UUID, actor booking.Actor, target, expected booking.Status, _ booking.Note) (*db.BookingEntity, error) {
	if err := booking.ValidateTransition(actor, expected, target); err != nil {
		return nil, err
	}
	if f.statuses[id] != expected {
		return nil, fault.New(fault.KindConflict, "booking %s is %s, expected %s", id, f.statuses[id], expected)
	}
	f.statuses[id] = target
	f.calls++
	return &db.BookingEntity{ID: id, Status: string(target)}, nil
}

type fakeGateway struct {
	order *gateway.Order
	err   error
	calls int
}

func (f *fakeGateway) CreateOrder(_ context.Context, amount decimal.Decimal, currency, receipt string) (*gateway.Order, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

type fixture struct {
	svc      *payment.Service
	payments *fakePaymentStore
	bookings *fakeBookingStore
	machine  *fakeMachine
	gw       *fakeGateway
	booking  *db.BookingEntity
}

func newFixture(status booking.Status) *fixture {
	payments := newFakePaymentStore()
	bookings := newFakeBookingStore()
	machine := &fakeMachine{statuses: make(map[uuid.UUID]booking.Status)}
	gw := &fakeGateway{order: &gateway.Order{ID: "order_1", Amount: 10000, Currency: "INR", Status: "created"}}

	entity := &db.BookingEntity{
		ID:          uuid.New(),
		CustomerID:  uuid.New(),
		Status:      string(status),
		HourlyRate:  decimal.NewFromInt(25),
		TotalAmount: decimal.NewFromInt(100),
		Currency:    "INR",
		CreatedAt:   time.Now().UTC(),
	}
	bookings.bookings[entity.ID] = entity
	machine.statuses[entity.ID] = status

	svc := payment.NewService(payments, bookings, machine, gw, orderSecret, slog.Default())
	return &fixture{svc: svc, payments: payments, bookings: bookings, machine: machine, gw: gw, booking: entity}
}

func (f *fixture) seedPayment(status string) *db.PaymentEntity {
	entity := &db.PaymentEntity{
		ID:             uuid.New(),
		BookingID:      f.booking.ID,
		GatewayOrderID: "order_1",
		Amount:         f.booking.TotalAmount,
		Currency:       "INR",
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	}
	f.payments.payments[entity.ID] = entity
	return entity
}

func TestCreateOrder_PersistsPaymentAndLinksBooking(t *testing.T) {
	f := newFixture(booking.StatusAwaitingPayment)

	result, err := f.svc.CreateOrder(context.Background(), f.booking.ID)

	assert.NoError(t, err)
	assert.Equal(t, "order_1", result.Order.ID)
	assert.Equal(t, db.PaymentStatusCreated, result.Payment.Status)
	assert.Equal(t, "order_1", result.Payment.GatewayOrderID)
	assert.True(t, result.Payment.Amount.Equal(f.booking.TotalAmount))
	assert.Equal(t, result.Payment.ID, f.bookings.refs[f.booking.ID])
	// Order creation never touches booking status.
	assert.Equal(t, booking.StatusAwaitingPayment, f.machine.statuses[f.booking.ID])
}

func TestCreateOrder_RequiresAwaitingPayment(t *testing.T) {
	f := newFixture(booking.StatusPaidPendingAdmin)

	_, err := f.svc.CreateOrder(context.Background(), f.booking.ID)

	assert.Equal(t, fault.KindInvalidTransition, fault.KindOf(err))
	assert.Zero(t, f.gw.calls)
}

func TestCreateOrder_GatewayFailureLeavesNoPayment(t *testing.T) {
	f := newFixture(booking.StatusAwaitingPayment)
	f.gw.err = fault.New(fault.KindGatewayUnavailable, "gateway timeout")

	_, err := f.svc.CreateOrder(context.Background(), f.booking.ID)

	assert.Equal(t, fault.KindGatewayUnavailable, fault.KindOf(err))
	assert.Empty(t, f.payments.payments)
	assert.Empty(t, f.bookings.refs)
}

func TestVerify_CapturesAndAdvancesBooking(t *testing.T) {
	f := newFixture(booking.StatusAwaitingPayment)
	entity := f.seedPayment(db.PaymentStatusCreated)

	captured, err := f.svc.Verify(context.Background(), payment.VerifyParams{
		PaymentID:        entity.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		GatewaySignature: signPayment("order_1", "pay_1"),
	})

	assert.NoError(t, err)
	assert.Equal(t, db.PaymentStatusPaid, captured.Status)
	assert.Equal(t, "pay_1", *captured.GatewayPaymentID)
	assert.Equal(t, booking.StatusPaidPendingAdmin, f.machine.statuses[f.booking.ID])
}

func TestVerify_BadSignatureShortCircuits(t *testing.T) {
	f := newFixture(booking.StatusAwaitingPayment)
	entity := f.seedPayment(db.PaymentStatusCreated)

	_, err := f.svc.Verify(context.Background(), payment.VerifyParams{
		PaymentID:        entity.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		GatewaySignature: "forged",
	})

	assert.Equal(t, fault.KindSignatureMismatch, fault.KindOf(err))
	assert.Zero(t, f.payments.captureCalls)
	assert.Equal(t, db.PaymentStatusCreated, f.payments.payments[entity.ID].Status)
	assert.Equal(t, booking.StatusAwaitingPayment, f.machine.statuses[f.booking.ID])
}

func TestVerify_WrongOrderForPayment(t *testing.T) {
	f := newFixture(booking.StatusAwaitingPayment)
	entity := f.seedPayment(db.PaymentStatusCreated)

	_, err := f.svc.Verify(context.Background(), payment.VerifyParams{
		PaymentID:        entity.ID,
		GatewayOrderID:   "order_other",
		GatewayPaymentID: "pay_1",
		GatewaySignature: signPayment("order_other", "pay_1"),
	})

	assert.Equal(t, fault.KindSignatureMismatch, fault.KindOf(err))
	assert.Zero(t, f.payments.captureCalls)
}

func TestVerify_AfterWebhookWonIsNoOp(t *testing.T) {
	f := newFixture(booking.StatusPaidPendingAdmin)
	entity := f.seedPayment(db.PaymentStatusPaid)

	captured, err := f.svc.Verify(context.Background(), payment.VerifyParams{
		PaymentID:        entity.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		GatewaySignature: signPayment("order_1", "pay_1"),
	})

	assert.NoError(t, err)
	assert.Equal(t, db.PaymentStatusPaid, captured.Status)
	assert.Zero(t, f.machine.calls)
}

func TestVerify_FailedPaymentIsConflict(t *testing.T) {
	f := newFixture(booking.StatusCancelled)
	entity := f.seedPayment(db.PaymentStatusFailed)

	_, err := f.svc.Verify(context.Background(), payment.VerifyParams{
		PaymentID:        entity.ID,
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		GatewaySignature: signPayment("order_1", "pay_1"),
	})

	assert.Equal(t, fault.KindConflict, fault.KindOf(err))
}
