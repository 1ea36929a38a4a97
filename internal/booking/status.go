package booking

import (
	"booking-service/internal/fault"
)

type Status string

const (
	StatusAwaitingPayment  Status = "AWAITING_PAYMENT"
	StatusPaidPendingAdmin Status = "PAID_PENDING_ADMIN"
	StatusForwardedToOrg   Status = "FORWARDED_TO_ORG"
	StatusOrgAccepted      Status = "ORG_ACCEPTED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelled        Status = "CANCELLED"
	StatusRefunded         Status = "REFUNDED"
)

// Actor identifies who initiates a transition. The payment and refund actors
// are internal: the webhook reconciler, the client-callback path and the
// refund orchestrator use them, never the HTTP API directly.
type Actor string

const (
	ActorCustomer     Actor = "customer"
	ActorAdmin        Actor = "admin"
	ActorOrganization Actor = "organization"
	ActorPayment      Actor = "payment"
	ActorRefund       Actor = "refund"
)

// Rules is the authoritative transition table: per actor, the valid target
// states from each source state. Anything not listed is an invalid transition.
var Rules = map[Actor]map[Status][]Status{
	ActorPayment: {
		StatusAwaitingPayment: {StatusPaidPendingAdmin, StatusCancelled},
	},
	ActorAdmin: {
		StatusPaidPendingAdmin: {StatusForwardedToOrg},
	},
	ActorOrganization: {
		StatusForwardedToOrg: {StatusOrgAccepted, StatusCancelled},
		StatusOrgAccepted:    {StatusInProgress},
		StatusInProgress:     {StatusCompleted},
	},
	ActorCustomer: {
		StatusAwaitingPayment:  {StatusCancelled},
		StatusPaidPendingAdmin: {StatusCancelled},
		StatusForwardedToOrg:   {StatusCancelled},
	},
	ActorRefund: {
		StatusPaidPendingAdmin: {StatusRefunded},
		StatusForwardedToOrg:   {StatusRefunded},
		StatusOrgAccepted:      {StatusRefunded},
		StatusInProgress:       {StatusRefunded},
		StatusCancelled:        {StatusRefunded},
	},
}

func CanTransition(actor Actor, from, to Status) bool {
	for _, allowed := range Rules[actor][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ValidateTransition(actor Actor, from, to Status) error {
	if !CanTransition(actor, from, to) {
		return fault.New(fault.KindInvalidTransition,
			"%s cannot move booking from %s to %s", actor, from, to)
	}
	return nil
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

// EventKindFor names the notification emitted when a booking enters target.
func EventKindFor(target Status) string {
	switch target {
	case StatusPaidPendingAdmin:
		return "booking.paid"
	case StatusForwardedToOrg:
		return "booking.forwarded"
	case StatusOrgAccepted:
		return "booking.accepted"
	case StatusInProgress:
		return "booking.started"
	case StatusCompleted:
		return "booking.completed"
	case StatusCancelled:
		return "booking.cancelled"
	case StatusRefunded:
		return "booking.refunded"
	default:
		return "booking.updated"
	}
}
