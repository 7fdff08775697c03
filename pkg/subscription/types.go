package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

// Status is the provider-reported subscription status.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusPaused   Status = "paused"
	StatusCanceled Status = "canceled"
)

// Current reports whether the status grants paid access.
func (s Status) Current() bool {
	return s == StatusActive || s == StatusTrialing
}

func (s Status) String() string {
	return string(s)
}

// User is the application account as seen by billing.
type User struct {
	ID                 uuid.UUID
	ExternalID         string // identity provider subject
	Email              string
	Name               string
	SubscriptionID     string // mirrored provider subscription id, empty when none
	SubscriptionStatus string // cached label, safe to recompute
	CancelScheduled    bool
	BillingCustomerID  string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Subscription is a provider subscription mirrored locally.
type Subscription struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	ExternalID        string
	Tier              tiers.Tier
	Cycle             tiers.BillingCycle
	StartsAt          time.Time
	EndsAt            time.Time
	Active            bool
	CancelAtPeriodEnd bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LiveSubscription is the provider's current view of a subscription.
type LiveSubscription struct {
	ID                string
	Status            Status
	CustomerID        string
	PriceID           string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// BillingMirror is the billing state copied onto the user record for fast lookups.
type BillingMirror struct {
	SubscriptionID  string
	Status          string
	CancelScheduled bool
	CustomerID      string
}
