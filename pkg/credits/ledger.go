package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

// Ledger computes balances and records debits.
type Ledger struct {
	store Store
	now   func() time.Time
	log   *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the time source used to pick the current window.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(log *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLedger creates a Ledger. Panics if store is nil.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	if store == nil {
		panic("credits: Store is required")
	}
	l := &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(logger.Component("credits"))
	return l
}

// Remaining returns the user's balance for the given tier.
// A paid tier user without a current window has zero usage, not zero remaining.
func (l *Ledger) Remaining(ctx context.Context, userID uuid.UUID, tier tiers.Tier) (Balance, error) {
	limit := tiers.Allotment(tier)

	used, err := l.used(ctx, userID, tier)
	if err != nil {
		return Balance{}, err
	}

	return Balance{
		Remaining: max(0, limit-used),
		Used:      used,
		Max:       limit,
	}, nil
}

func (l *Ledger) used(ctx context.Context, userID uuid.UUID, tier tiers.Tier) (int64, error) {
	if !tier.Paid() {
		used, err := l.store.SumUsage(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("failed to sum usage: %w", err)
		}
		return used, nil
	}

	w, err := l.store.CurrentWindow(ctx, userID, l.now())
	if errors.Is(err, ErrWindowNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current window: %w", err)
	}
	return w.CreditsUsed, nil
}

// Debit records amount credits of usage. It does not check the balance.
// Free tier debits always append a log entry. Paid tier debits increment the current
// window and report ErrNoActiveWindow in the result when there is none.
func (l *Ledger) Debit(ctx context.Context, userID uuid.UUID, tier tiers.Tier, action string, amount int64) (DebitResult, error) {
	if amount <= 0 {
		return DebitResult{Err: ErrInvalidAmount}, nil
	}

	if !tier.Paid() {
		entry := UsageEntry{
			ID:        uuid.New(),
			UserID:    userID,
			Credits:   amount,
			Action:    action,
			CreatedAt: l.now(),
		}
		if err := l.store.AppendUsage(ctx, entry); err != nil {
			return DebitResult{}, fmt.Errorf("failed to append usage: %w", err)
		}
		used, err := l.store.SumUsage(ctx, userID)
		if err != nil {
			return DebitResult{}, fmt.Errorf("failed to sum usage: %w", err)
		}
		return DebitResult{Used: used}, nil
	}

	w, err := l.store.CurrentWindow(ctx, userID, l.now())
	if errors.Is(err, ErrWindowNotFound) {
		l.log.WarnContext(ctx, "paid tier debit without an open credit window",
			logger.UserID(userID), logger.Tier(tier.String()))
		return DebitResult{Err: ErrNoActiveWindow}, nil
	}
	if err != nil {
		return DebitResult{}, fmt.Errorf("failed to get current window: %w", err)
	}

	used, err := l.store.IncrementWindow(ctx, w.ID, amount)
	if errors.Is(err, ErrWindowNotFound) {
		return DebitResult{Err: ErrNoActiveWindow}, nil
	}
	if err != nil {
		return DebitResult{}, fmt.Errorf("failed to increment window: %w", err)
	}
	return DebitResult{Used: used}, nil
}
