package db

import (
	"context"

	"booking-service/internal/fault"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type CaregiverRepository struct {
	pool *pgxpool.Pool
}

func NewCaregiverRepository(pool *pgxpool.Pool) *CaregiverRepository {
	return &CaregiverRepository{pool: pool}
}

func (r *CaregiverRepository) GetByID(ctx context.Context, id uuid.UUID) (*CaregiverEntity, error) {
	query := `SELECT id, organization_id, active, approved FROM caregiver WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)

	var entity CaregiverEntity
	err := row.Scan(&entity.ID, &entity.OrganizationID, &entity.Active, &entity.Approved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.KindNotFound, "caregiver %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
