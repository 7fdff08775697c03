package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
)

// UserStore reads and updates user billing fields.
type UserStore interface {
	// GetUser returns ErrUserNotFound when the user does not exist.
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// GetUserByBillingCustomer returns ErrUserNotFound when no user has the customer id.
	GetUserByBillingCustomer(ctx context.Context, customerID string) (*User, error)

	// SetBillingMirror overwrites the user's mirrored billing fields.
	// An empty CustomerID keeps the stored one. A CustomerID held by another user
	// returns ErrCustomerInUse.
	SetBillingMirror(ctx context.Context, userID uuid.UUID, m BillingMirror) error

	// ClearSubscriptionMirror clears the mirrored subscription id only if it still
	// equals externalID, and records status as the cached label.
	ClearSubscriptionMirror(ctx context.Context, userID uuid.UUID, externalID, status string) error
}

// SubscriptionStore persists local subscription records.
type SubscriptionStore interface {
	// GetActiveSubscription returns the user's most recent active record,
	// or ErrSubscriptionNotFound.
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetSubscriptionByExternalID returns ErrSubscriptionNotFound when missing.
	GetSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error)

	// UpsertSubscription inserts or updates the record keyed by ExternalID and
	// deactivates every other active record of the same user in one transaction.
	UpsertSubscription(ctx context.Context, sub *Subscription) (*Subscription, error)

	// DeactivateSubscription sets active=false and the end date on the record.
	DeactivateSubscription(ctx context.Context, externalID string, endedAt time.Time) error
}

// WindowStore opens credit windows for paid renewals.
type WindowStore interface {
	CreateWindow(ctx context.Context, w credits.Window) (bool, error)
}

// EventClaims deduplicates provider deliveries by event id.
type EventClaims interface {
	// Claim reports false when the event id was already claimed.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release drops a claim so a redelivery is processed again.
	Release(ctx context.Context, eventID string) error
}
