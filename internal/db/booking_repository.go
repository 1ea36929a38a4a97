package db

import (
	"context"

	"booking-service/internal/fault"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const bookingColumns = `id, customer_id, caregiver_id, organization_id, status,
	hourly_rate::text, total_amount::text, currency, payment_id,
	cancellation_reason, admin_notes, org_notes, refund_amount::text,
	created_at, updated_at, cancelled_at, completed_at`

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Create(ctx context.Context, entity *BookingEntity) (*BookingEntity, error) {
	query := `INSERT INTO booking (id, customer_id, caregiver_id, organization_id, status,
	              hourly_rate, total_amount, currency, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $9)
	          RETURNING ` + bookingColumns
	row := r.pool.QueryRow(ctx, query, entity.ID, entity.CustomerID, entity.CaregiverID,
		entity.OrganizationID, entity.Status, entity.HourlyRate.String(), entity.TotalAmount.String(),
		entity.Currency, entity.CreatedAt)
	return scanBooking(row)
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*BookingEntity, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking WHERE id = $1`
	entity, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.KindNotFound, "booking %s not found", id)
	}
	return entity, err
}

// UpdateStatus is the compare-and-swap every transition funnels through: the
// row is only written when the stored status still equals expected. Losing
// the race surfaces as KindConflict with the winner's status in the message.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string, patch BookingPatch) (*BookingEntity, error) {
	query := `UPDATE booking SET status = $3, updated_at = now(),
	              cancellation_reason = COALESCE($4, cancellation_reason),
	              admin_notes = COALESCE($5, admin_notes),
	              org_notes = COALESCE($6, org_notes),
	              refund_amount = COALESCE($7::numeric, refund_amount),
	              cancelled_at = COALESCE($8, cancelled_at),
	              completed_at = COALESCE($9, completed_at)
	          WHERE id = $1 AND status = $2
	          RETURNING ` + bookingColumns
	row := r.pool.QueryRow(ctx, query, id, expected, next,
		patch.CancellationReason, patch.AdminNotes, patch.OrgNotes,
		decimalPtrString(patch.RefundAmount), patch.CancelledAt, patch.CompletedAt)

	entity, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fault.New(fault.KindConflict,
			"booking %s is %s, expected %s", id, current.Status, expected)
	}
	return entity, err
}

// SetPaymentRef links the active payment attempt without touching status.
func (r *BookingRepository) SetPaymentRef(ctx context.Context, id, paymentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE booking SET payment_id = $2, updated_at = now() WHERE id = $1`, id, paymentID)
	if err != nil {
		return errors.Wrap(err, "setting booking payment ref")
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.KindNotFound, "booking %s not found", id)
	}
	return nil
}

func scanBooking(row pgx.Row) (*BookingEntity, error) {
	var entity BookingEntity
	var hourlyRate, totalAmount string
	var refundAmount *string

	err := row.Scan(&entity.ID, &entity.CustomerID, &entity.CaregiverID, &entity.OrganizationID,
		&entity.Status, &hourlyRate, &totalAmount, &entity.Currency, &entity.PaymentID,
		&entity.CancellationReason, &entity.AdminNotes, &entity.OrgNotes, &refundAmount,
		&entity.CreatedAt, &entity.UpdatedAt, &entity.CancelledAt, &entity.CompletedAt)
	if err != nil {
		return nil, err
	}

	if entity.HourlyRate, err = decimal.NewFromString(hourlyRate); err != nil {
		return nil, errors.Wrap(err, "parsing hourly_rate")
	}
	if entity.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, errors.Wrap(err, "parsing total_amount")
	}
	if refundAmount != nil {
		amount, err := decimal.NewFromString(*refundAmount)
		if err != nil {
			return nil, errors.Wrap(err, "parsing refund_amount")
		}
		entity.RefundAmount = &amount
	}
	return &entity, nil
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
