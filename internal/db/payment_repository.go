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

const paymentColumns = `id, booking_id, gateway_order_id, gateway_payment_id,
	gateway_signature, payment_method, amount::text, currency, status,
	refund_id, refund_amount::text, refund_reason, refund_status,
	created_at, updated_at`

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, entity *PaymentEntity) (*PaymentEntity, error) {
	query := `INSERT INTO payment (id, booking_id, gateway_order_id, amount, currency, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $7)
	          RETURNING ` + paymentColumns
	row := r.pool.QueryRow(ctx, query, entity.ID, entity.BookingID, entity.GatewayOrderID,
		entity.Amount.String(), entity.Currency, entity.Status, entity.CreatedAt)
	return scanPayment(row)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*PaymentEntity, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment WHERE id = $1`
	entity, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.KindNotFound, "payment %s not found", id)
	}
	return entity, err
}

// FindByGatewayRef locates the payment a gateway event refers to. Before the
// first capture only gateway_order_id is populated, so the lookup matches on
// either reference. A nil result with nil error is an orphan event.
func (r *PaymentRepository) FindByGatewayRef(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*PaymentEntity, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment
	          WHERE gateway_payment_id = $2 OR gateway_order_id = $1
	          ORDER BY created_at DESC LIMIT 1`
	entity, err := scanPayment(r.pool.QueryRow(ctx, query, gatewayOrderID, gatewayPaymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entity, err
}

// Capture applies the single allowed created -> paid transition. The
// conditional WHERE is what guarantees at most one capture is ever recorded,
// no matter how many times the client callback and the webhook race or replay.
func (r *PaymentRepository) Capture(ctx context.Context, id uuid.UUID, gatewayPaymentID, signature, method string) (*PaymentEntity, error) {
	query := `UPDATE payment SET status = $2, gateway_payment_id = $3, gateway_signature = $4,
	              payment_method = NULLIF($5, ''), updated_at = now()
	          WHERE id = $1 AND status = $6
	          RETURNING ` + paymentColumns
	row := r.pool.QueryRow(ctx, query, id, PaymentStatusPaid, gatewayPaymentID, signature, method, PaymentStatusCreated)

	entity, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.conflictOrNotFound(ctx, id, PaymentStatusCreated)
	}
	return entity, err
}

// MarkFailed applies created -> failed. A failure event arriving after a
// capture loses the conditional update and is reported as a conflict.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID) (*PaymentEntity, error) {
	query := `UPDATE payment SET status = $2, updated_at = now()
	          WHERE id = $1 AND status = $3
	          RETURNING ` + paymentColumns
	row := r.pool.QueryRow(ctx, query, id, PaymentStatusFailed, PaymentStatusCreated)

	entity, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.conflictOrNotFound(ctx, id, PaymentStatusCreated)
	}
	return entity, err
}

// ApplyRefund moves a paid payment to refunded or partially_refunded and
// records the refund sub-record, in one conditional write.
func (r *PaymentRepository) ApplyRefund(ctx context.Context, id uuid.UUID, newStatus, refundID string, amount decimal.Decimal, reason, refundStatus string) (*PaymentEntity, error) {
	query := `UPDATE payment SET status = $2, refund_id = $3, refund_amount = $4::numeric,
	              refund_reason = NULLIF($5, ''), refund_status = $6, updated_at = now()
	          WHERE id = $1 AND status = $7
	          RETURNING ` + paymentColumns
	row := r.pool.QueryRow(ctx, query, id, newStatus, refundID, amount.String(), reason, refundStatus, PaymentStatusPaid)

	entity, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.conflictOrNotFound(ctx, id, PaymentStatusPaid)
	}
	return entity, err
}

// UpdateRefundStatus records the gateway-reported refund status. It is an
// annotation, not a state transition, so the write is unconditional and a
// missing payment is not an error.
func (r *PaymentRepository) UpdateRefundStatus(ctx context.Context, gatewayPaymentID, refundID, refundStatus string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment SET refund_id = COALESCE(refund_id, $2), refund_status = $3, updated_at = now()
		 WHERE gateway_payment_id = $1`, gatewayPaymentID, refundID, refundStatus)
	if err != nil {
		return false, errors.Wrap(err, "updating refund status")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PaymentRepository) conflictOrNotFound(ctx context.Context, id uuid.UUID, expected string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fault.New(fault.KindConflict,
		"payment %s is %s, expected %s", id, current.Status, expected)
}

func scanPayment(row pgx.Row) (*PaymentEntity, error) {
	var entity PaymentEntity
	var amount string
	var refundAmount *string

	err := row.Scan(&entity.ID, &entity.BookingID, &entity.GatewayOrderID, &entity.GatewayPaymentID,
		&entity.GatewaySignature, &entity.PaymentMethod, &amount, &entity.Currency, &entity.Status,
		&entity.RefundID, &refundAmount, &entity.RefundReason, &entity.RefundStatus,
		&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if entity.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, errors.Wrap(err, "parsing amount")
	}
	if refundAmount != nil {
		parsed, err := decimal.NewFromString(*refundAmount)
		if err != nil {
			return nil, errors.Wrap(err, "parsing refund_amount")
		}
		entity.RefundAmount = &parsed
	}
	return &entity, nil
}
