package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide between retry, reload and abort.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindInvalidTransition   Kind = "invalid_transition"
	KindConflict            Kind = "conflict"
	KindSignatureMismatch   Kind = "signature_mismatch"
	KindGatewayUnavailable  Kind = "gateway_unavailable"
	KindRefundRejected      Kind = "refund_rejected"
	KindInvalidRefundAmount Kind = "invalid_refund_amount"
	KindNotFound            Kind = "not_found"
)

type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(cause error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
