package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
	"github.com/dmitrymomot/promptdesk/svc/storage"
)

var periodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// runStoreSuite checks the Store contract against any implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	seed := func(t *testing.T, s storage.Store, externalID string) (*subscription.User, *subscription.Subscription) {
		t.Helper()
		ctx := context.Background()

		user, err := s.EnsureUser(ctx, "idp|"+externalID, externalID+"@example.com", "")
		require.NoError(t, err)

		sub, err := s.UpsertSubscription(ctx, &subscription.Subscription{
			UserID:     user.ID,
			ExternalID: externalID,
			Tier:       tiers.Pro,
			Cycle:      tiers.Monthly,
			StartsAt:   periodStart,
			EndsAt:     periodStart.AddDate(0, 1, 0),
			Active:     true,
		})
		require.NoError(t, err)
		return user, sub
	}

	t.Run("ensure user is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.EnsureUser(ctx, "idp|1", "a@example.com", "Ann")
		require.NoError(t, err)
		second, err := s.EnsureUser(ctx, "idp|1", "", "")
		require.NoError(t, err)
		third, err := s.EnsureUser(ctx, "idp|1", "b@example.com", "")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "a@example.com", second.Email)
		assert.Equal(t, "b@example.com", third.Email)
		assert.Equal(t, "Ann", third.Name)

		_, err = s.EnsureUser(ctx, "", "", "")
		assert.ErrorIs(t, err, storage.ErrEmptyExternalID)
	})

	t.Run("billing mirror", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		user, err := s.EnsureUser(ctx, "idp|2", "", "")
		require.NoError(t, err)

		_, err = s.GetUserByBillingCustomer(ctx, "ctm_2")
		assert.ErrorIs(t, err, subscription.ErrUserNotFound)

		require.NoError(t, s.SetBillingMirror(ctx, user.ID, subscription.BillingMirror{
			SubscriptionID:  "sub_2",
			Status:          "active",
			CancelScheduled: true,
			CustomerID:      "ctm_2",
		}))

		got, err := s.GetUserByBillingCustomer(ctx, "ctm_2")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "sub_2", got.SubscriptionID)
		assert.True(t, got.CancelScheduled)

		// empty customer id keeps the stored one
		require.NoError(t, s.SetBillingMirror(ctx, user.ID, subscription.BillingMirror{SubscriptionID: "sub_3", Status: "active"}))
		got, err = s.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "ctm_2", got.BillingCustomerID)

		other, err := s.EnsureUser(ctx, "idp|2b", "", "")
		require.NoError(t, err)
		err = s.SetBillingMirror(ctx, other.ID, subscription.BillingMirror{SubscriptionID: "sub_9", Status: "active", CustomerID: "ctm_2"})
		assert.ErrorIs(t, err, subscription.ErrCustomerInUse)
		got, err = s.GetUserByBillingCustomer(ctx, "ctm_2")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		// clearing a stale id leaves the mirror alone
		require.NoError(t, s.ClearSubscriptionMirror(ctx, user.ID, "sub_2", "canceled"))
		got, err = s.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "sub_3", got.SubscriptionID)

		require.NoError(t, s.ClearSubscriptionMirror(ctx, user.ID, "sub_3", "canceled"))
		got, err = s.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, got.SubscriptionID)
		assert.Equal(t, "canceled", got.SubscriptionStatus)
		assert.False(t, got.CancelScheduled)
	})

	t.Run("upsert keeps one active record per user", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		user, first := seed(t, s, "sub_a")

		again, err := s.UpsertSubscription(ctx, &subscription.Subscription{
			UserID: user.ID, ExternalID: "sub_a", Tier: tiers.Max, Cycle: tiers.Yearly,
			StartsAt: periodStart, EndsAt: periodStart.AddDate(1, 0, 0), Active: true,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, tiers.Max, again.Tier)

		_, err = s.UpsertSubscription(ctx, &subscription.Subscription{
			UserID: user.ID, ExternalID: "sub_b", Tier: tiers.Starter, Cycle: tiers.Monthly,
			StartsAt: periodStart, EndsAt: periodStart.AddDate(0, 1, 0), Active: true,
		})
		require.NoError(t, err)

		active, err := s.GetActiveSubscription(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "sub_b", active.ExternalID)

		old, err := s.GetSubscriptionByExternalID(ctx, "sub_a")
		require.NoError(t, err)
		assert.False(t, old.Active)
	})

	t.Run("deactivate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		user, _ := seed(t, s, "sub_c")
		endedAt := periodStart.AddDate(0, 0, 10)

		require.NoError(t, s.DeactivateSubscription(ctx, "sub_c", endedAt))

		sub, err := s.GetSubscriptionByExternalID(ctx, "sub_c")
		require.NoError(t, err)
		assert.False(t, sub.Active)
		assert.True(t, sub.EndsAt.Equal(endedAt))

		_, err = s.GetActiveSubscription(ctx, user.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

		assert.ErrorIs(t, s.DeactivateSubscription(ctx, "sub_missing", endedAt), subscription.ErrSubscriptionNotFound)
	})

	t.Run("credit windows", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		user, sub := seed(t, s, "sub_d")
		w := credits.NewWindow(user.ID, sub.ID, periodStart, periodStart.AddDate(0, 1, 0))

		created, err := s.CreateWindow(ctx, w)
		require.NoError(t, err)
		assert.True(t, created)

		dup := credits.NewWindow(user.ID, sub.ID, periodStart, periodStart.AddDate(0, 1, 0))
		created, err = s.CreateWindow(ctx, dup)
		require.NoError(t, err)
		assert.False(t, created)

		// overlapping later window wins
		later := credits.NewWindow(user.ID, sub.ID, periodStart.AddDate(0, 0, 15), periodStart.AddDate(0, 1, 15))
		created, err = s.CreateWindow(ctx, later)
		require.NoError(t, err)
		require.True(t, created)

		current, err := s.CurrentWindow(ctx, user.ID, periodStart.AddDate(0, 0, 20))
		require.NoError(t, err)
		assert.Equal(t, later.ID, current.ID)

		current, err = s.CurrentWindow(ctx, user.ID, periodStart.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, w.ID, current.ID)

		_, err = s.CurrentWindow(ctx, user.ID, periodStart.AddDate(0, 3, 0))
		assert.ErrorIs(t, err, credits.ErrWindowNotFound)

		_, err = s.IncrementWindow(ctx, credits.NewWindow(user.ID, sub.ID, periodStart, periodStart).ID, 1)
		assert.ErrorIs(t, err, credits.ErrWindowNotFound)

		bad := credits.Window{UserID: user.ID, SubscriptionID: sub.ID, StartsAt: periodStart, EndsAt: periodStart}
		_, err = s.CreateWindow(ctx, bad)
		assert.ErrorIs(t, err, credits.ErrInvalidWindow)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		user, sub := seed(t, s, "sub_e")
		w := credits.NewWindow(user.ID, sub.ID, periodStart, periodStart.AddDate(0, 1, 0))
		_, err := s.CreateWindow(ctx, w)
		require.NoError(t, err)

		const n = 40
		g, gctx := errgroup.WithContext(ctx)
		for range n {
			g.Go(func() error {
				_, err := s.IncrementWindow(gctx, w.ID, 1)
				return err
			})
		}
		require.NoError(t, g.Wait())

		current, err := s.CurrentWindow(ctx, user.ID, periodStart.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, int64(n), current.CreditsUsed)
	})

	t.Run("usage log and account deletion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		user, sub := seed(t, s, "sub_f")
		for range 3 {
			require.NoError(t, s.AppendUsage(ctx, credits.UsageEntry{UserID: user.ID, Credits: 2, Action: "chat"}))
		}
		total, err := s.SumUsage(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)

		_, err = s.CreateWindow(ctx, credits.NewWindow(user.ID, sub.ID, periodStart, periodStart.AddDate(0, 1, 0)))
		require.NoError(t, err)

		require.NoError(t, s.DeleteUser(ctx, user.ID))

		_, err = s.GetUser(ctx, user.ID)
		assert.ErrorIs(t, err, subscription.ErrUserNotFound)
		_, err = s.GetSubscriptionByExternalID(ctx, "sub_f")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
		_, err = s.CurrentWindow(ctx, user.ID, periodStart.AddDate(0, 0, 1))
		assert.ErrorIs(t, err, credits.ErrWindowNotFound)
		total, err = s.SumUsage(ctx, user.ID)
		require.NoError(t, err)
		assert.Zero(t, total)

		assert.ErrorIs(t, s.DeleteUser(ctx, user.ID), subscription.ErrUserNotFound)
	})
}
