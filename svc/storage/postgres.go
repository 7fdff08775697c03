package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/pg"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store. Panics if pool is nil.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("storage: pgx pool is required")
	}
	return &Postgres{pool: pool}
}

const userColumns = `id, external_id, email, name, COALESCE(subscription_id, ''), subscription_status,
	cancel_scheduled, COALESCE(billing_customer_id, ''), created_at, updated_at`

func scanUser(row pgx.Row) (*subscription.User, error) {
	var u subscription.User
	if err := row.Scan(
		&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.SubscriptionID, &u.SubscriptionStatus,
		&u.CancelScheduled, &u.BillingCustomerID, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrUserNotFound
		}
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return &u, nil
}

// EnsureUser returns the user for externalID, creating it when missing.
func (s *Postgres) EnsureUser(ctx context.Context, externalID, email, name string) (*subscription.User, error) {
	if externalID == "" {
		return nil, ErrEmptyExternalID
	}
	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, external_id, email, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO UPDATE SET
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE users.email END,
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			updated_at = now()
		RETURNING `+userColumns,
		uuid.New(), externalID, email, name,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return u, nil
}

// GetUser returns subscription.ErrUserNotFound when missing.
func (s *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*subscription.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByBillingCustomer returns subscription.ErrUserNotFound when missing.
func (s *Postgres) GetUserByBillingCustomer(ctx context.Context, customerID string) (*subscription.User, error) {
	if customerID == "" {
		return nil, subscription.ErrUserNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE billing_customer_id = $1`, customerID))
}

// SetBillingMirror overwrites the mirrored billing fields, keeping the stored customer id
// when m.CustomerID is empty. The unique customer id maps to subscription.ErrCustomerInUse.
func (s *Postgres) SetBillingMirror(ctx context.Context, userID uuid.UUID, m subscription.BillingMirror) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			subscription_id = NULLIF($2, ''),
			subscription_status = $3,
			cancel_scheduled = $4,
			billing_customer_id = COALESCE(NULLIF($5, ''), billing_customer_id),
			updated_at = now()
		WHERE id = $1`,
		userID, m.SubscriptionID, m.Status, m.CancelScheduled, m.CustomerID,
	)
	if pg.IsDuplicateKeyError(err) {
		return subscription.ErrCustomerInUse
	}
	if err != nil {
		return fmt.Errorf("failed to set billing mirror: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrUserNotFound
	}
	return nil
}

// ClearSubscriptionMirror clears the mirrored id only when it still equals externalID.
func (s *Postgres) ClearSubscriptionMirror(ctx context.Context, userID uuid.UUID, externalID, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET
			subscription_id = NULL,
			subscription_status = $3,
			cancel_scheduled = FALSE,
			updated_at = now()
		WHERE id = $1 AND subscription_id = $2`,
		userID, externalID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to clear billing mirror: %w", err)
	}
	return nil
}

// DeleteUser removes the user; foreign keys cascade to owned rows.
func (s *Postgres) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrUserNotFound
	}
	return nil
}

const subscriptionColumns = `id, user_id, external_id, tier, billing_cycle, starts_at, ends_at,
	active, cancel_at_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub         subscription.Subscription
		tier, cycle string
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ExternalID, &tier, &cycle, &sub.StartsAt, &sub.EndsAt,
		&sub.Active, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	sub.Tier, sub.Cycle = tiers.Tier(tier), tiers.BillingCycle(cycle)
	sub.StartsAt, sub.EndsAt = sub.StartsAt.UTC(), sub.EndsAt.UTC()
	sub.CreatedAt, sub.UpdatedAt = sub.CreatedAt.UTC(), sub.UpdatedAt.UTC()
	return &sub, nil
}

// GetActiveSubscription returns the most recently updated active record.
func (s *Postgres) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1 AND active
		ORDER BY updated_at DESC
		LIMIT 1`, userID))
}

// GetSubscriptionByExternalID returns subscription.ErrSubscriptionNotFound when missing.
func (s *Postgres) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*subscription.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_id = $1`, externalID))
}

// UpsertSubscription writes the record keyed by external id and deactivates the user's
// other active records in the same transaction.
func (s *Postgres) UpsertSubscription(ctx context.Context, in *subscription.Subscription) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if in.Active {
			if _, err := tx.Exec(ctx, `
				UPDATE subscriptions SET active = FALSE, updated_at = now()
				WHERE user_id = $1 AND active AND external_id <> $2`,
				in.UserID, in.ExternalID,
			); err != nil {
				return err
			}
		}

		sub, err := scanSubscription(tx.QueryRow(ctx, `
			INSERT INTO subscriptions (id, user_id, external_id, tier, billing_cycle, starts_at, ends_at, active, cancel_at_period_end)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (external_id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				tier = EXCLUDED.tier,
				billing_cycle = EXCLUDED.billing_cycle,
				starts_at = EXCLUDED.starts_at,
				ends_at = EXCLUDED.ends_at,
				active = EXCLUDED.active,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				updated_at = now()
			RETURNING `+subscriptionColumns,
			uuid.New(), in.UserID, in.ExternalID, string(in.Tier), string(in.Cycle),
			in.StartsAt, in.EndsAt, in.Active, in.CancelAtPeriodEnd,
		))
		if err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return out, nil
}

// DeactivateSubscription returns subscription.ErrSubscriptionNotFound when missing.
func (s *Postgres) DeactivateSubscription(ctx context.Context, externalID string, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET active = FALSE, ends_at = $2, updated_at = now()
		WHERE external_id = $1`,
		externalID, endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

// SumUsage returns the lifetime usage log total.
func (s *Postgres) SumUsage(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(credits), 0)::BIGINT FROM credit_usage_log WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}

// AppendUsage inserts a usage log entry.
func (s *Postgres) AppendUsage(ctx context.Context, e credits.UsageEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO credit_usage_log (id, user_id, credits, action, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.Credits, e.Action, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to append usage: %w", err)
	}
	return nil
}

const windowColumns = `id, user_id, subscription_id, starts_at, ends_at, credits_used, created_at`

// CurrentWindow returns the window containing at, preferring the latest start.
func (s *Postgres) CurrentWindow(ctx context.Context, userID uuid.UUID, at time.Time) (*credits.Window, error) {
	var w credits.Window
	err := s.pool.QueryRow(ctx, `
		SELECT `+windowColumns+` FROM credit_windows
		WHERE user_id = $1 AND starts_at <= $2 AND ends_at > $2
		ORDER BY starts_at DESC
		LIMIT 1`,
		userID, at,
	).Scan(&w.ID, &w.UserID, &w.SubscriptionID, &w.StartsAt, &w.EndsAt, &w.CreditsUsed, &w.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, credits.ErrWindowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current window: %w", err)
	}
	w.StartsAt, w.EndsAt, w.CreatedAt = w.StartsAt.UTC(), w.EndsAt.UTC(), w.CreatedAt.UTC()
	return &w, nil
}

// IncrementWindow adds amount to the counter in a single UPDATE.
func (s *Postgres) IncrementWindow(ctx context.Context, windowID uuid.UUID, amount int64) (int64, error) {
	var used int64
	err := s.pool.QueryRow(ctx, `
		UPDATE credit_windows SET credits_used = credits_used + $2
		WHERE id = $1
		RETURNING credits_used`,
		windowID, amount,
	).Scan(&used)
	if pg.IsNotFoundError(err) {
		return 0, credits.ErrWindowNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment window: %w", err)
	}
	return used, nil
}

// CreateWindow inserts w unless the subscription already has a window with the same start.
func (s *Postgres) CreateWindow(ctx context.Context, w credits.Window) (bool, error) {
	if !w.EndsAt.After(w.StartsAt) {
		return false, credits.ErrInvalidWindow
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO credit_windows (id, user_id, subscription_id, starts_at, ends_at, credits_used)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (subscription_id, starts_at) DO NOTHING`,
		w.ID, w.UserID, w.SubscriptionID, w.StartsAt, w.EndsAt,
	)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return false, subscription.ErrSubscriptionNotFound
		}
		return false, fmt.Errorf("failed to create window: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
