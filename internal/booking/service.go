package booking

import (
	"context"
	"log/slog"
	"time"

	"booking-service/internal/db"
	"booking-service/internal/fault"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventCreated = "booking.created"

type Store interface {
	Create(ctx context.Context, entity *db.BookingEntity) (*db.BookingEntity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db.BookingEntity, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next string, patch db.BookingPatch) (*db.BookingEntity, error)
}

type CaregiverStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db.CaregiverEntity, error)
}

// Notifier is fire-and-forget: implementations log and count failures but
// never surface them, so a lost notification cannot roll back a transition.
type Notifier interface {
	Publish(ctx context.Context, kind string, entity *db.BookingEntity)
}

type Service struct {
	bookings   Store
	caregivers CaregiverStore
	notifier   Notifier
	logger     *slog.Logger
}

func NewService(bookings Store, caregivers CaregiverStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		bookings:   bookings,
		caregivers: caregivers,
		notifier:   notifier,
		logger:     logger,
	}
}

type CreateParams struct {
	CustomerID     uuid.UUID
	CaregiverID    uuid.UUID
	OrganizationID uuid.UUID
	HourlyRate     decimal.Decimal
	Hours          int64
	Currency       string
}

// Note carries the free-form annotations a transition may record. All fields
// are non-authoritative; status is the only source of truth.
type Note struct {
	Reason       string
	AdminNotes   string
	OrgNotes     string
	RefundAmount *decimal.Decimal
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*db.BookingEntity, error) {
	if params.Hours <= 0 || !params.HourlyRate.IsPositive() {
		return nil, fault.New(fault.KindInvalidTransition, "booking requires a positive rate and duration")
	}

	entity := &db.BookingEntity{
		ID:             uuid.New(),
		CustomerID:     params.CustomerID,
		CaregiverID:    params.CaregiverID,
		OrganizationID: params.OrganizationID,
		Status:         string(StatusAwaitingPayment),
		HourlyRate:     params.HourlyRate,
		TotalAmount:    params.HourlyRate.Mul(decimal.NewFromInt(params.Hours)),
		Currency:       params.Currency,
		CreatedAt:      time.Now().UTC(),
	}

	created, err := s.bookings.Create(ctx, entity)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Booking created", "id", created.ID, "total", created.TotalAmount)
	s.notifier.Publish(ctx, EventCreated, created)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*db.BookingEntity, error) {
	return s.bookings.GetByID(ctx, id)
}

// ApplyTransition validates the (actor, expected, target) edge against the
// transition table and applies it with a single compare-and-swap on status.
// A stored status that no longer equals expected comes back as KindConflict;
// the caller reloads and decides whether the change is now moot.
func (s *Service) ApplyTransition(ctx context.Context, id uuid.UUID, actor Actor, target, expected Status, note Note) (*db.BookingEntity, error) {
	if err := ValidateTransition(actor, expected, target); err != nil {
		return nil, err
	}

	if actor == ActorOrganization && target == StatusOrgAccepted {
		if err := s.checkCaregiver(ctx, id); err != nil {
			return nil, err
		}
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, string(expected), string(target), buildPatch(target, note))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Booking transitioned",
		"id", id, "actor", actor, "from", expected, "to", target)
	s.notifier.Publish(ctx, EventKindFor(target), updated)
	return updated, nil
}

func (s *Service) checkCaregiver(ctx context.Context, bookingID uuid.UUID) error {
	entity, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	caregiver, err := s.caregivers.GetByID(ctx, entity.CaregiverID)
	if err != nil {
		return err
	}
	if caregiver.OrganizationID != entity.OrganizationID {
		return fault.New(fault.KindInvalidTransition,
			"caregiver %s does not belong to organization %s", caregiver.ID, entity.OrganizationID)
	}
	if !caregiver.Active || !caregiver.Approved {
		return fault.New(fault.KindInvalidTransition,
			"caregiver %s is not active and approved", caregiver.ID)
	}
	return nil
}

func buildPatch(target Status, note Note) db.BookingPatch {
	patch := db.BookingPatch{RefundAmount: note.RefundAmount}
	if note.Reason != "" {
		patch.CancellationReason = &note.Reason
	}
	if note.AdminNotes != "" {
		patch.AdminNotes = &note.AdminNotes
	}
	if note.OrgNotes != "" {
		patch.OrgNotes = &note.OrgNotes
	}

	now := time.Now().UTC()
	switch target {
	case StatusCancelled:
		patch.CancelledAt = &now
	case StatusCompleted:
		patch.CompletedAt = &now
	}
	return patch
}
