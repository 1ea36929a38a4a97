package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"booking-service/internal/booking"
	"booking-service/internal/db"
	"booking-service/internal/fault"
	"booking-service/internal/logcontext"
	"booking-service/internal/payment"
	"booking-service/internal/webhook"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const signatureHeader = "X-Signature"

type BookingAPI interface {
	Create(ctx context.Context, params booking.CreateParams) (*db.BookingEntity, error)
	Get(ctx context.Context, id uuid.UUID) (*db.BookingEntity, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, actor booking.Actor, target, expected booking.Status, note booking.Note) (*db.BookingEntity, error)
}

type PaymentAPI interface {
	CreateOrder(ctx context.Context, bookingID uuid.UUID) (*payment.OrderResult, error)
	Verify(ctx context.Context, params payment.VerifyParams) (*db.PaymentEntity, error)
}

type RefundAPI interface {
	Refund(ctx context.Context, paymentID uuid.UUID, amount *decimal.Decimal, reason string) (*db.PaymentEntity, error)
}

type WebhookAPI interface {
	Handle(ctx context.Context, rawBody []byte, signature string) error
}

type Handler struct {
	bookings BookingAPI
	payments PaymentAPI
	refunds  RefundAPI
	webhooks WebhookAPI
	logger   *slog.Logger
}

func NewHandler(bookings BookingAPI, payments PaymentAPI, refunds RefundAPI, webhooks WebhookAPI, logger *slog.Logger) *Handler {
	return &Handler{
		bookings: bookings,
		payments: payments,
		refunds:  refunds,
		webhooks: webhooks,
		logger:   logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /bookings", h.createBooking)
	mux.HandleFunc("GET /bookings/{id}", h.getBooking)
	mux.HandleFunc("POST /bookings/{id}/cancel", h.cancelBooking)
	mux.HandleFunc("POST /bookings/{id}/forward", h.forwardBooking)
	mux.HandleFunc("POST /bookings/{id}/accept", h.acceptBooking)
	mux.HandleFunc("POST /bookings/{id}/reject", h.rejectBooking)
	mux.HandleFunc("POST /bookings/{id}/status", h.updateBookingStatus)

	mux.HandleFunc("POST /payments/orders", h.createOrder)
	mux.HandleFunc("POST /payments/verify", h.verifyPayment)
	mux.HandleFunc("POST /payments/{id}/refund", h.refundPayment)

	mux.HandleFunc("POST /webhooks/payment", h.paymentWebhook)
}

type createBookingRequest struct {
	CustomerID     uuid.UUID       `json:"customerId"`
	CaregiverID    uuid.UUID       `json:"caregiverId"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	HourlyRate     decimal.Decimal `json:"hourlyRate"`
	Hours          int64           `json:"hours"`
	Currency       string          `json:"currency"`
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	entity, err := h.bookings.Create(r.Context(), booking.CreateParams{
		CustomerID:     req.CustomerID,
		CaregiverID:    req.CaregiverID,
		OrganizationID: req.OrganizationID,
		HourlyRate:     req.HourlyRate,
		Hours:          req.Hours,
		Currency:       req.Currency,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entity)
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entity, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entity)
}

type transitionRequest struct {
	ExpectedStatus string `json:"expectedStatus"`
	Target         string `json:"target,omitempty"`
	Reason         string `json:"reason,omitempty"`
	AdminNotes     string `json:"adminNotes,omitempty"`
	OrgNotes       string `json:"orgNotes,omitempty"`
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, booking.ActorCustomer, booking.StatusCancelled)
}

func (h *Handler) forwardBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, booking.ActorAdmin, booking.StatusForwardedToOrg)
}

func (h *Handler) acceptBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, booking.ActorOrganization, booking.StatusOrgAccepted)
}

func (h *Handler) rejectBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, booking.ActorOrganization, booking.StatusCancelled)
}

// updateBookingStatus covers the organization's monotonic progress updates:
// IN_PROGRESS and COMPLETED.
func (h *Handler) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	target := booking.Status(req.Target)
	if target != booking.StatusInProgress && target != booking.StatusCompleted {
		h.writeError(w, r, fault.New(fault.KindInvalidTransition,
			"target must be %s or %s", booking.StatusInProgress, booking.StatusCompleted))
		return
	}

	h.apply(w, r, id, booking.ActorOrganization, target, req)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, actor booking.Actor, target booking.Status) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, id, actor, target, req)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor booking.Actor, target booking.Status, req transitionRequest) {
	entity, err := h.bookings.ApplyTransition(r.Context(), id, actor, target,
		booking.Status(req.ExpectedStatus), booking.Note{
			Reason:     req.Reason,
			AdminNotes: req.AdminNotes,
			OrgNotes:   req.OrgNotes,
		})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entity)
}

type createOrderRequest struct {
	BookingID uuid.UUID `json:"bookingId"`
}

type createOrderResponse struct {
	GatewayOrder any       `json:"gatewayOrder"`
	PaymentID    uuid.UUID `json:"paymentId"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.payments.CreateOrder(r.Context(), req.BookingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createOrderResponse{
		GatewayOrder: result.Order,
		PaymentID:    result.Payment.ID,
	})
}

type verifyPaymentRequest struct {
	PaymentID        uuid.UUID `json:"paymentId"`
	GatewayOrderID   string    `json:"gatewayOrderId"`
	GatewayPaymentID string    `json:"gatewayPaymentId"`
	GatewaySignature string    `json:"gatewaySignature"`
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	entity, err := h.payments.Verify(r.Context(), payment.VerifyParams{
		PaymentID:        req.PaymentID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewaySignature: req.GatewaySignature,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entity)
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason"`
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if !h.decode(w, r, &req) {
		return
	}

	entity, err := h.refunds.Refund(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entity)
}

// paymentWebhook responds 200 once signature and parsing succeed, regardless
// of business-logic no-ops, so the gateway never builds a retry storm out of
// replays or orphans.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, r, errors.Wrap(err, "reading webhook body"))
		return
	}

	ctx := logcontext.AppendCtx(r.Context(), slog.String("runId", uuid.New().String()))

	err = h.webhooks.Handle(ctx, rawBody, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case fault.IsKind(err, fault.KindSignatureMismatch):
		h.logger.WarnContext(ctx, "Webhook rejected", "error", err)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	case errors.Is(err, webhook.ErrMalformed):
		h.logger.WarnContext(ctx, "Webhook body malformed", "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event"})
	default:
		// Retryable on the gateway side.
		h.logger.ErrorContext(ctx, "Webhook processing failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Error encoding response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	status := statusFor(kind)

	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.InfoContext(r.Context(), "Request rejected", "path", r.URL.Path, "error", err)
	}

	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindInvalidTransition, fault.KindRefundRejected, fault.KindInvalidRefundAmount:
		return http.StatusBadRequest
	case fault.KindSignatureMismatch:
		return http.StatusUnauthorized
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindConflict:
		return http.StatusConflict
	case fault.KindGatewayUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
