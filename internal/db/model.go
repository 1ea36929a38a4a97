package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment statuses. A payment never regresses from paid or refunded back to
// created; the repositories enforce this with conditional updates.
const (
	PaymentStatusCreated           = "created"
	PaymentStatusPaid              = "paid"
	PaymentStatusFailed            = "failed"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
)

type BookingEntity struct {
	ID                 uuid.UUID        `json:"id"`
	CustomerID         uuid.UUID        `json:"customerId"`
	CaregiverID        uuid.UUID        `json:"caregiverId"`
	OrganizationID     uuid.UUID        `json:"organizationId"`
	Status             string           `json:"status"`
	HourlyRate         decimal.Decimal  `json:"hourlyRate"`
	TotalAmount        decimal.Decimal  `json:"totalAmount"`
	Currency           string           `json:"currency"`
	PaymentID          *uuid.UUID       `json:"paymentId,omitempty"`
	CancellationReason *string          `json:"cancellationReason,omitempty"`
	AdminNotes         *string          `json:"adminNotes,omitempty"`
	OrgNotes           *string          `json:"orgNotes,omitempty"`
	RefundAmount       *decimal.Decimal `json:"refundAmount,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
	CancelledAt        *time.Time       `json:"cancelledAt,omitempty"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
}

// BookingPatch carries the annotation columns a transition may set alongside
// the status write. Nil fields are left untouched.
type BookingPatch struct {
	CancellationReason *string
	AdminNotes         *string
	OrgNotes           *string
	RefundAmount       *decimal.Decimal
	CancelledAt        *time.Time
	CompletedAt        *time.Time
}

type PaymentEntity struct {
	ID               uuid.UUID        `json:"id"`
	BookingID        uuid.UUID        `json:"bookingId"`
	GatewayOrderID   string           `json:"gatewayOrderId"`
	GatewayPaymentID *string          `json:"gatewayPaymentId,omitempty"`
	GatewaySignature *string          `json:"-"`
	PaymentMethod    *string          `json:"paymentMethod,omitempty"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	Status           string           `json:"status"`
	RefundID         *string          `json:"refundId,omitempty"`
	RefundAmount     *decimal.Decimal `json:"refundAmount,omitempty"`
	RefundReason     *string          `json:"refundReason,omitempty"`
	RefundStatus     *string          `json:"refundStatus,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

type CaregiverEntity struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Active         bool      `json:"active"`
	Approved       bool      `json:"approved"`
}
