package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

type processorDeps struct {
	users   *mockUserStore
	subs    *mockSubscriptionStore
	windows *mockWindowStore
}

func newProcessor(t *testing.T, opts ...subscription.Option) (*subscription.Processor, processorDeps) {
	t.Helper()
	deps := processorDeps{
		users:   &mockUserStore{},
		subs:    &mockSubscriptionStore{},
		windows: &mockWindowStore{},
	}
	opts = append([]subscription.Option{
		subscription.WithRetryPolicy(fastRetry),
		subscription.WithClock(clock),
	}, opts...)
	return subscription.NewProcessor(testCatalog(), deps.users, deps.subs, deps.windows, opts...), deps
}

func subscriptionEvent(userID uuid.UUID) subscription.SubscriptionEvent {
	return subscription.SubscriptionEvent{
		Type:           subscription.KindSubscriptionUpdated,
		SubscriptionID: "sub_1",
		CustomerID:     "ctm_1",
		UserID:         userID.String(),
		PriceID:        "pri_pro_monthly",
		Status:         subscription.StatusActive,
		PeriodStart:    fixedNow,
		PeriodEnd:      fixedNow.AddDate(0, 1, 0),
	}
}

func TestNewProcessor_PanicsOnNilDependencies(t *testing.T) {
	t.Parallel()

	catalog := testCatalog()
	assert.Panics(t, func() { subscription.NewProcessor(nil, &mockUserStore{}, &mockSubscriptionStore{}, &mockWindowStore{}) })
	assert.Panics(t, func() { subscription.NewProcessor(catalog, nil, &mockSubscriptionStore{}, &mockWindowStore{}) })
	assert.Panics(t, func() { subscription.NewProcessor(catalog, &mockUserStore{}, nil, &mockWindowStore{}) })
	assert.Panics(t, func() { subscription.NewProcessor(catalog, &mockUserStore{}, &mockSubscriptionStore{}, nil) })
}

func TestProcessor_SubscriptionChanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("new subscription is upserted and mirrored", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		ev := subscriptionEvent(user.ID)
		ev.Type = subscription.KindSubscriptionCreated
		ev.CancelAtPeriodEnd = true

		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(nil, subscription.ErrSubscriptionNotFound)
		deps.subs.On("UpsertSubscription", mock.Anything, mock.MatchedBy(func(s *subscription.Subscription) bool {
			return s.UserID == user.ID &&
				s.ExternalID == "sub_1" &&
				s.Tier == tiers.Pro &&
				s.Cycle == tiers.Monthly &&
				s.Active &&
				s.CancelAtPeriodEnd &&
				s.StartsAt.Equal(ev.PeriodStart) &&
				s.EndsAt.Equal(ev.PeriodEnd)
		})).Return(&subscription.Subscription{}, nil).Once()
		deps.users.On("SetBillingMirror", mock.Anything, user.ID, subscription.BillingMirror{
			SubscriptionID:  "sub_1",
			Status:          "active",
			CancelScheduled: true,
			CustomerID:      "ctm_1",
		}).Return(nil).Once()

		res, err := processor.SubscriptionChanged(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		assert.Equal(t, user.ID, res.UserID)
		deps.subs.AssertExpectations(t)
		deps.users.AssertExpectations(t)
	})

	t.Run("unknown price is rejected without writes", func(t *testing.T) {
		t.Parallel()

		ev := subscriptionEvent(uuid.New())
		ev.PriceID = "price_unknown_123"

		processor, deps := newProcessor(t)
		res, err := processor.SubscriptionChanged(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeRejected, res.Outcome)
		assert.ErrorIs(t, res.Reason, subscription.ErrUnknownPriceID)
		deps.subs.AssertNotCalled(t, "UpsertSubscription", mock.Anything, mock.Anything)
		deps.users.AssertNotCalled(t, "SetBillingMirror", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to billing customer lookup", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		ev := subscriptionEvent(user.ID)
		ev.UserID = ""

		processor, deps := newProcessor(t)
		deps.users.On("GetUserByBillingCustomer", mock.Anything, "ctm_1").Return(nil, subscription.ErrUserNotFound).Once()
		deps.users.On("GetUserByBillingCustomer", mock.Anything, "ctm_1").Return(user, nil).Once()
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(&subscription.Subscription{UserID: user.ID, Active: true}, nil)
		deps.subs.On("UpsertSubscription", mock.Anything, mock.Anything).Return(&subscription.Subscription{}, nil)
		deps.users.On("SetBillingMirror", mock.Anything, user.ID, mock.Anything).Return(nil)

		res, err := processor.SubscriptionChanged(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		deps.users.AssertNumberOfCalls(t, "GetUserByBillingCustomer", 2)
	})

	t.Run("unknown owner is rejected", func(t *testing.T) {
		t.Parallel()

		ev := subscriptionEvent(uuid.New())
		ev.CustomerID = ""

		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, mock.Anything).Return(nil, subscription.ErrUserNotFound)

		res, err := processor.SubscriptionChanged(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeRejected, res.Outcome)
		assert.ErrorIs(t, res.Reason, subscription.ErrUserNotFound)
		deps.subs.AssertNotCalled(t, "UpsertSubscription", mock.Anything, mock.Anything)
	})

	t.Run("record owned by another user is rejected", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(&subscription.Subscription{UserID: uuid.New(), Active: true}, nil)

		res, err := processor.SubscriptionChanged(ctx, subscriptionEvent(user.ID))

		require.NoError(t, err)
		assert.ErrorIs(t, res.Reason, subscription.ErrOwnerMismatch)
	})

	t.Run("invalid payload is rejected", func(t *testing.T) {
		t.Parallel()

		ev := subscriptionEvent(uuid.New())
		ev.PeriodStart = time.Time{}

		processor, _ := newProcessor(t)
		res, err := processor.SubscriptionChanged(ctx, ev)

		require.NoError(t, err)
		assert.ErrorIs(t, res.Reason, subscription.ErrInvalidEvent)
	})

	t.Run("storage failure is returned", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		storeErr := errors.New("deadlock detected")
		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(nil, subscription.ErrSubscriptionNotFound)
		deps.subs.On("UpsertSubscription", mock.Anything, mock.Anything).Return(nil, storeErr)

		_, err := processor.SubscriptionChanged(ctx, subscriptionEvent(user.ID))

		assert.ErrorIs(t, err, storeErr)
	})

	t.Run("customer id held by another user is rejected", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(nil, subscription.ErrSubscriptionNotFound)
		deps.subs.On("UpsertSubscription", mock.Anything, mock.Anything).Return(&subscription.Subscription{}, nil)
		deps.users.On("SetBillingMirror", mock.Anything, user.ID, mock.Anything).Return(subscription.ErrCustomerInUse)

		res, err := processor.SubscriptionChanged(ctx, subscriptionEvent(user.ID))

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeRejected, res.Outcome)
		assert.ErrorIs(t, res.Reason, subscription.ErrCustomerInUse)
	})

	t.Run("update that occurred before cancellation is skipped", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		canceled := &subscription.Subscription{
			UserID: user.ID, ExternalID: "sub_1", Active: false,
			EndsAt: fixedNow, UpdatedAt: fixedNow.Add(time.Second),
		}
		ev := subscriptionEvent(user.ID)
		ev.OccurredAt = fixedNow.Add(-time.Minute)

		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(canceled, nil)

		res, err := processor.SubscriptionChanged(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeNoop, res.Outcome)
		deps.subs.AssertNotCalled(t, "UpsertSubscription", mock.Anything, mock.Anything)
		deps.users.AssertNotCalled(t, "SetBillingMirror", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("update that occurred after cancellation reactivates", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		canceled := &subscription.Subscription{
			UserID: user.ID, ExternalID: "sub_1", Active: false,
			EndsAt: fixedNow, UpdatedAt: fixedNow.Add(time.Second),
		}
		ev := subscriptionEvent(user.ID)
		ev.OccurredAt = fixedNow.Add(time.Hour)

		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(canceled, nil)
		deps.subs.On("UpsertSubscription", mock.Anything, mock.MatchedBy(func(s *subscription.Subscription) bool {
			return s.Active
		})).Return(&subscription.Subscription{}, nil).Once()
		deps.users.On("SetBillingMirror", mock.Anything, user.ID, mock.Anything).Return(nil).Once()

		res, err := processor.SubscriptionChanged(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		deps.subs.AssertExpectations(t)
	})

	t.Run("events without a timestamp are not treated as stale", func(t *testing.T) {
		t.Parallel()

		user := &subscription.User{ID: uuid.New()}
		canceled := &subscription.Subscription{
			UserID: user.ID, ExternalID: "sub_1", Active: false,
			EndsAt: fixedNow, UpdatedAt: fixedNow,
		}

		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(canceled, nil)
		deps.subs.On("UpsertSubscription", mock.Anything, mock.Anything).Return(&subscription.Subscription{}, nil).Once()
		deps.users.On("SetBillingMirror", mock.Anything, user.ID, mock.Anything).Return(nil).Once()

		res, err := processor.SubscriptionChanged(ctx, subscriptionEvent(user.ID))

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
	})
}

func TestProcessor_SubscriptionDeleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ev := subscription.SubscriptionCanceledEvent{SubscriptionID: "sub_1"}

	t.Run("no local record is rejected and nothing is created", func(t *testing.T) {
		t.Parallel()

		processor, deps := newProcessor(t)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(nil, subscription.ErrSubscriptionNotFound)

		res, err := processor.SubscriptionDeleted(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeRejected, res.Outcome)
		assert.ErrorIs(t, res.Reason, subscription.ErrSubscriptionNotFound)
		deps.subs.AssertNotCalled(t, "UpsertSubscription", mock.Anything, mock.Anything)
		deps.subs.AssertNotCalled(t, "DeactivateSubscription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("active record is deactivated and mirror cleared", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		processor, deps := newProcessor(t)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(&subscription.Subscription{UserID: userID, ExternalID: "sub_1", Active: true}, nil)
		deps.subs.On("DeactivateSubscription", mock.Anything, "sub_1", fixedNow).Return(nil).Once()
		deps.users.On("ClearSubscriptionMirror", mock.Anything, userID, "sub_1", "canceled").Return(nil).Once()

		res, err := processor.SubscriptionDeleted(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		deps.subs.AssertExpectations(t)
		deps.users.AssertExpectations(t)
	})

	t.Run("provider event time is recorded as the end", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		occurred := fixedNow.Add(-2 * time.Hour)
		processor, deps := newProcessor(t)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(&subscription.Subscription{UserID: userID, ExternalID: "sub_1", Active: true}, nil)
		deps.subs.On("DeactivateSubscription", mock.Anything, "sub_1", occurred).Return(nil).Once()
		deps.users.On("ClearSubscriptionMirror", mock.Anything, userID, "sub_1", "canceled").Return(nil).Once()

		res, err := processor.SubscriptionDeleted(ctx, subscription.SubscriptionCanceledEvent{SubscriptionID: "sub_1", OccurredAt: occurred})

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		deps.subs.AssertExpectations(t)
	})

	t.Run("redelivery on inactive record is a no-op", func(t *testing.T) {
		t.Parallel()

		processor, deps := newProcessor(t)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(&subscription.Subscription{UserID: uuid.New(), Active: false}, nil)

		res, err := processor.SubscriptionDeleted(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeNoop, res.Outcome)
		assert.True(t, res.OK())
		deps.subs.AssertNotCalled(t, "DeactivateSubscription", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestProcessor_PaymentSucceeded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := &subscription.User{ID: uuid.New(), BillingCustomerID: "ctm_1"}
	local := &subscription.Subscription{ID: uuid.New(), UserID: user.ID, ExternalID: "sub_1", Active: true}

	ev := subscription.PaymentSucceededEvent{
		TransactionID:  "txn_1",
		SubscriptionID: "sub_1",
		CustomerID:     "ctm_1",
		PeriodStart:    fixedNow,
		PeriodEnd:      fixedNow.AddDate(0, 1, 0),
	}

	t.Run("opens a zeroed window", func(t *testing.T) {
		t.Parallel()

		processor, deps := newProcessor(t)
		deps.users.On("GetUserByBillingCustomer", mock.Anything, "ctm_1").Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(local, nil)
		deps.windows.On("CreateWindow", mock.Anything, mock.MatchedBy(func(w credits.Window) bool {
			return w.UserID == user.ID &&
				w.SubscriptionID == local.ID &&
				w.StartsAt.Equal(ev.PeriodStart) &&
				w.EndsAt.Equal(ev.PeriodEnd) &&
				w.CreditsUsed == 0
		})).Return(true, nil).Once()

		res, err := processor.PaymentSucceeded(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		deps.windows.AssertExpectations(t)
	})

	t.Run("degenerate period end is clamped", func(t *testing.T) {
		t.Parallel()

		bad := ev
		bad.PeriodEnd = bad.PeriodStart.Add(-time.Hour)

		processor, deps := newProcessor(t)
		deps.users.On("GetUserByBillingCustomer", mock.Anything, "ctm_1").Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(local, nil)
		deps.windows.On("CreateWindow", mock.Anything, mock.MatchedBy(func(w credits.Window) bool {
			return w.EndsAt.Equal(bad.PeriodStart.AddDate(0, 0, 1))
		})).Return(true, nil).Once()

		res, err := processor.PaymentSucceeded(ctx, bad)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		deps.windows.AssertExpectations(t)
	})

	t.Run("redelivery is reported as duplicate", func(t *testing.T) {
		t.Parallel()

		processor, deps := newProcessor(t)
		deps.users.On("GetUserByBillingCustomer", mock.Anything, "ctm_1").Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(local, nil)
		deps.windows.On("CreateWindow", mock.Anything, mock.Anything).Return(true, nil).Once()
		deps.windows.On("CreateWindow", mock.Anything, mock.Anything).Return(false, nil).Once()

		first, err := processor.PaymentSucceeded(ctx, ev)
		require.NoError(t, err)
		second, err := processor.PaymentSucceeded(ctx, ev)
		require.NoError(t, err)

		assert.Equal(t, subscription.OutcomeApplied, first.Outcome)
		assert.Equal(t, subscription.OutcomeDuplicate, second.Outcome)
	})

	t.Run("unknown user after retry is rejected", func(t *testing.T) {
		t.Parallel()

		processor, deps := newProcessor(t)
		deps.users.On("GetUserByBillingCustomer", mock.Anything, "ctm_1").Return(nil, subscription.ErrUserNotFound)

		res, err := processor.PaymentSucceeded(ctx, ev)

		require.NoError(t, err)
		assert.ErrorIs(t, res.Reason, subscription.ErrUserNotFound)
		deps.users.AssertNumberOfCalls(t, "GetUserByBillingCustomer", 2)
		deps.windows.AssertNotCalled(t, "CreateWindow", mock.Anything, mock.Anything)
	})

	t.Run("owner is found by checkout user id", func(t *testing.T) {
		t.Parallel()

		byUser := ev
		byUser.CustomerID = ""
		byUser.UserID = user.ID.String()

		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(local, nil)
		deps.windows.On("CreateWindow", mock.Anything, mock.Anything).Return(true, nil).Once()

		res, err := processor.PaymentSucceeded(ctx, byUser)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		assert.Equal(t, user.ID, res.UserID)
		deps.users.AssertNotCalled(t, "GetUserByBillingCustomer", mock.Anything, mock.Anything)
	})

	t.Run("checkout user id that does not own the record is rejected", func(t *testing.T) {
		t.Parallel()

		other := &subscription.User{ID: uuid.New()}
		byUser := ev
		byUser.UserID = other.ID.String()

		processor, deps := newProcessor(t)
		deps.users.On("GetUser", mock.Anything, other.ID).Return(other, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(local, nil)

		res, err := processor.PaymentSucceeded(ctx, byUser)

		require.NoError(t, err)
		assert.ErrorIs(t, res.Reason, subscription.ErrOwnerMismatch)
		deps.windows.AssertNotCalled(t, "CreateWindow", mock.Anything, mock.Anything)
	})

	t.Run("unknown subscription is rejected", func(t *testing.T) {
		t.Parallel()

		processor, deps := newProcessor(t)
		deps.users.On("GetUserByBillingCustomer", mock.Anything, "ctm_1").Return(user, nil)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_1").Return(nil, subscription.ErrSubscriptionNotFound)

		res, err := processor.PaymentSucceeded(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeRejected, res.Outcome)
		assert.ErrorIs(t, res.Reason, subscription.ErrSubscriptionNotFound)
		deps.windows.AssertNotCalled(t, "CreateWindow", mock.Anything, mock.Anything)
	})
}

func TestProcessor_PaymentFailed(t *testing.T) {
	t.Parallel()

	processor, deps := newProcessor(t)
	res, err := processor.PaymentFailed(context.Background(), subscription.PaymentFailedEvent{SubscriptionID: "sub_1"})

	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeNoop, res.Outcome)
	deps.subs.AssertNotCalled(t, "DeactivateSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_Process(t *testing.T) {
	t.Parallel()

	processor, _ := newProcessor(t)

	res, err := processor.Process(context.Background(), subscription.IgnoredEvent{Type: "customer.updated"})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeNoop, res.Outcome)

	res, err = processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Reason, subscription.ErrInvalidEvent)
}

func TestProcessor_HandleWebhook(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	payload := []byte(`{}`)
	envelope := &subscription.Envelope{
		ID:           "evt_1",
		ProviderType: "transaction.payment_failed",
		Event:        subscription.PaymentFailedEvent{SubscriptionID: "sub_1"},
	}

	t.Run("without parser", func(t *testing.T) {
		t.Parallel()

		processor, _ := newProcessor(t)
		_, err := processor.HandleWebhook(ctx, payload, "sig")
		assert.ErrorIs(t, err, subscription.ErrNoWebhookParser)
	})

	t.Run("verification failure is returned", func(t *testing.T) {
		t.Parallel()

		parser := &mockParser{}
		parser.On("ParseWebhook", mock.Anything, payload, "bad").Return(nil, subscription.ErrWebhookVerificationFailed)

		processor, _ := newProcessor(t, subscription.WithWebhookParser(parser))
		_, err := processor.HandleWebhook(ctx, payload, "bad")
		assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
	})

	t.Run("claimed event is processed once", func(t *testing.T) {
		t.Parallel()

		parser := &mockParser{}
		parser.On("ParseWebhook", mock.Anything, payload, "sig").Return(envelope, nil)
		claims := &mockClaims{}
		claims.On("Claim", mock.Anything, "evt_1").Return(true, nil).Once()
		claims.On("Claim", mock.Anything, "evt_1").Return(false, nil).Once()

		reg := prometheus.NewRegistry()
		metrics := subscription.NewMetrics(reg)
		processor, _ := newProcessor(t,
			subscription.WithWebhookParser(parser),
			subscription.WithEventClaims(claims),
			subscription.WithMetrics(metrics),
		)

		first, err := processor.HandleWebhook(ctx, payload, "sig")
		require.NoError(t, err)
		second, err := processor.HandleWebhook(ctx, payload, "sig")
		require.NoError(t, err)

		assert.Equal(t, subscription.OutcomeNoop, first.Outcome)
		assert.Equal(t, subscription.OutcomeDuplicate, second.Outcome)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("invoice.payment_failed", "duplicate")))
		claims.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})

	t.Run("claim is released when processing fails", func(t *testing.T) {
		t.Parallel()

		storeErr := errors.New("connection reset")
		env := &subscription.Envelope{
			ID:    "evt_2",
			Event: subscription.SubscriptionCanceledEvent{SubscriptionID: "sub_2"},
		}
		parser := &mockParser{}
		parser.On("ParseWebhook", mock.Anything, payload, "sig").Return(env, nil)
		claims := &mockClaims{}
		claims.On("Claim", mock.Anything, "evt_2").Return(true, nil)
		claims.On("Release", mock.Anything, "evt_2").Return(nil).Once()

		processor, deps := newProcessor(t,
			subscription.WithWebhookParser(parser),
			subscription.WithEventClaims(claims),
		)
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_2").Return(nil, storeErr)

		_, err := processor.HandleWebhook(ctx, payload, "sig")

		assert.ErrorIs(t, err, storeErr)
		claims.AssertExpectations(t)
	})

	t.Run("envelope time reaches the cancellation", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		occurred := fixedNow.Add(-time.Hour)
		env := &subscription.Envelope{
			ID:         "evt_3",
			OccurredAt: occurred,
			Event:      subscription.SubscriptionCanceledEvent{SubscriptionID: "sub_3"},
		}
		parser := &mockParser{}
		parser.On("ParseWebhook", mock.Anything, payload, "sig").Return(env, nil)

		processor, deps := newProcessor(t, subscription.WithWebhookParser(parser))
		deps.subs.On("GetSubscriptionByExternalID", mock.Anything, "sub_3").Return(&subscription.Subscription{UserID: userID, ExternalID: "sub_3", Active: true}, nil)
		deps.subs.On("DeactivateSubscription", mock.Anything, "sub_3", occurred).Return(nil).Once()
		deps.users.On("ClearSubscriptionMirror", mock.Anything, userID, "sub_3", "canceled").Return(nil).Once()

		res, err := processor.HandleWebhook(ctx, payload, "sig")

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
		deps.subs.AssertExpectations(t)
	})

	t.Run("claim store outage does not block processing", func(t *testing.T) {
		t.Parallel()

		parser := &mockParser{}
		parser.On("ParseWebhook", mock.Anything, payload, "sig").Return(envelope, nil)
		claims := &mockClaims{}
		claims.On("Claim", mock.Anything, "evt_1").Return(false, errors.New("redis down"))

		processor, _ := newProcessor(t,
			subscription.WithWebhookParser(parser),
			subscription.WithEventClaims(claims),
		)

		res, err := processor.HandleWebhook(ctx, payload, "sig")

		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeNoop, res.Outcome)
	})
}
