package webhook

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrMalformed marks an event body that cannot be parsed; retrying the
// delivery cannot help, so the HTTP layer rejects it as a bad request.
var ErrMalformed = errors.New("malformed webhook event")

// Event kinds the gateway delivers. Anything else is acknowledged untouched
// so a new gateway event never turns into a retry storm.
const (
	KindPaymentCaptured = "payment.captured"
	KindPaymentFailed   = "payment.failed"
	KindRefundCreated   = "refund.created"
)

type PaymentData struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

type RefundData struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// Event is the parsed gateway event, one concrete type per kind so the
// reconciler's dispatch is exhaustive rather than a stringly default
// fallthrough.
type Event interface {
	kind() string
}

type PaymentCaptured struct{ Payment PaymentData }

type PaymentFailed struct{ Payment PaymentData }

type RefundCreated struct{ Refund RefundData }

// UnknownEvent keeps forward compatibility: it is logged and acknowledged.
type UnknownEvent struct{ Kind string }

func (PaymentCaptured) kind() string { return KindPaymentCaptured }
func (PaymentFailed) kind() string   { return KindPaymentFailed }
func (RefundCreated) kind() string   { return KindRefundCreated }
func (e UnknownEvent) kind() string  { return e.Kind }

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentData `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity RefundData `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

func ParseEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "unmarshalling event: %v", err)
	}

	switch env.Event {
	case KindPaymentCaptured:
		if env.Payload.Payment == nil {
			return nil, errors.Wrapf(ErrMalformed, "%s event without payment payload", env.Event)
		}
		return PaymentCaptured{Payment: env.Payload.Payment.Entity}, nil
	case KindPaymentFailed:
		if env.Payload.Payment == nil {
			return nil, errors.Wrapf(ErrMalformed, "%s event without payment payload", env.Event)
		}
		return PaymentFailed{Payment: env.Payload.Payment.Entity}, nil
	case KindRefundCreated:
		if env.Payload.Refund == nil {
			return nil, errors.Wrapf(ErrMalformed, "%s event without refund payload", env.Event)
		}
		return RefundCreated{Refund: env.Payload.Refund.Entity}, nil
	default:
		return UnknownEvent{Kind: env.Event}, nil
	}
}
