package credits

import (
	"time"

	"github.com/google/uuid"
)

// Window is one billing period's usage counter for a paid tier user.
type Window struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	SubscriptionID uuid.UUID // local subscription record id
	StartsAt       time.Time
	EndsAt         time.Time // exclusive
	CreditsUsed    int64
	CreatedAt      time.Time
}

// Contains reports whether t falls in [StartsAt, EndsAt).
func (w *Window) Contains(t time.Time) bool {
	return !t.Before(w.StartsAt) && t.Before(w.EndsAt)
}

// NewWindow builds a zeroed window for a reported billing period. When the provider
// reports an end that is not after the start, the end is pushed to start plus one day.
func NewWindow(userID, subscriptionID uuid.UUID, start, end time.Time) Window {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return Window{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: subscriptionID,
		StartsAt:       start,
		EndsAt:         end,
	}
}

// UsageEntry is one free tier debit. Entries are append-only.
type UsageEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Credits   int64
	Action    string
	CreatedAt time.Time
}

// Balance is the credit state of a user for a tier.
type Balance struct {
	Remaining int64 `json:"remaining"`
	Used      int64 `json:"used"`
	Max       int64 `json:"max"`
}

// DebitResult reports a debit outcome. Err is a soft failure such as
// ErrNoActiveWindow or ErrInvalidAmount; it is nil on success.
type DebitResult struct {
	Used int64 // usage after the debit, valid when OK
	Err  error
}

// OK reports whether the debit was recorded.
func (r DebitResult) OK() bool {
	return r.Err == nil
}
