package subscription

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// EventKind is the provider-neutral notification type.
type EventKind string

const (
	KindSubscriptionCreated EventKind = "subscription.created"
	KindSubscriptionUpdated EventKind = "subscription.updated"
	KindSubscriptionDeleted EventKind = "subscription.deleted"
	KindPaymentSucceeded    EventKind = "invoice.payment_succeeded"
	KindPaymentFailed       EventKind = "invoice.payment_failed"
	KindIgnored             EventKind = "ignored"
)

// Event is a billing notification. The concrete types are SubscriptionEvent,
// SubscriptionCanceledEvent, PaymentSucceededEvent, PaymentFailedEvent and IgnoredEvent.
type Event interface {
	Kind() EventKind
	isEvent()
}

// Envelope carries a decoded event with its delivery metadata.
type Envelope struct {
	ID           string    // provider event id, used for deduplication
	ProviderType string    // provider's own event name
	OccurredAt   time.Time // zero when not reported
	Event        Event
}

// SubscriptionEvent reports a created or updated subscription.
type SubscriptionEvent struct {
	Type              EventKind `validate:"oneof=subscription.created subscription.updated"`
	SubscriptionID    string    `validate:"required"`
	CustomerID        string    `validate:"required_without=UserID"`
	UserID            string    `validate:"omitempty,uuid"` // from checkout custom data
	PriceID           string    `validate:"required"`
	Status            Status    `validate:"required"`
	PeriodStart       time.Time `validate:"required"`
	PeriodEnd         time.Time `validate:"required"`
	CancelAtPeriodEnd bool
	OccurredAt        time.Time // provider event time, zero when not reported
}

func (e SubscriptionEvent) Kind() EventKind { return e.Type }
func (SubscriptionEvent) isEvent()          {}

// SubscriptionCanceledEvent reports a subscription that ended.
type SubscriptionCanceledEvent struct {
	SubscriptionID string `validate:"required"`
	CustomerID     string
	OccurredAt     time.Time // recorded as the end of the subscription when set
}

func (SubscriptionCanceledEvent) Kind() EventKind { return KindSubscriptionDeleted }
func (SubscriptionCanceledEvent) isEvent()        {}

// PaymentSucceededEvent reports a paid invoice that opens a new billing period.
type PaymentSucceededEvent struct {
	TransactionID  string
	SubscriptionID string    `validate:"required"`
	CustomerID     string    `validate:"required_without=UserID"`
	UserID         string    `validate:"omitempty,uuid"` // from checkout custom data
	PeriodStart    time.Time `validate:"required"`
	PeriodEnd      time.Time `validate:"required"`
}

func (PaymentSucceededEvent) Kind() EventKind { return KindPaymentSucceeded }
func (PaymentSucceededEvent) isEvent()        {}

// PaymentFailedEvent reports a failed invoice payment.
type PaymentFailedEvent struct {
	TransactionID  string
	SubscriptionID string `validate:"required"`
	CustomerID     string
}

func (PaymentFailedEvent) Kind() EventKind { return KindPaymentFailed }
func (PaymentFailedEvent) isEvent()        {}

// IgnoredEvent is a notification this service does not act on.
type IgnoredEvent struct {
	Type string
}

func (IgnoredEvent) Kind() EventKind { return KindIgnored }
func (IgnoredEvent) isEvent()        {}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEvent checks the required fields of an event.
func ValidateEvent(ev Event) error {
	if ev == nil {
		return ErrInvalidEvent
	}
	if _, ok := ev.(IgnoredEvent); ok {
		return nil
	}
	if err := validate.Struct(ev); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	return nil
}

// stampOccurredAt copies the envelope time onto subscription events that carry none.
func stampOccurredAt(ev Event, at time.Time) Event {
	if at.IsZero() {
		return ev
	}
	switch e := ev.(type) {
	case SubscriptionEvent:
		if e.OccurredAt.IsZero() {
			e.OccurredAt = at
		}
		return e
	case SubscriptionCanceledEvent:
		if e.OccurredAt.IsZero() {
			e.OccurredAt = at
		}
		return e
	default:
		return ev
	}
}
