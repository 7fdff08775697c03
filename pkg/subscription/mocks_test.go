package subscription_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/retry"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetUser(ctx context.Context, id uuid.UUID) (*subscription.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.User), args.Error(1)
}

func (m *mockUserStore) GetUserByBillingCustomer(ctx context.Context, customerID string) (*subscription.User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.User), args.Error(1)
}

func (m *mockUserStore) SetBillingMirror(ctx context.Context, userID uuid.UUID, mirror subscription.BillingMirror) error {
	args := m.Called(ctx, userID, mirror)
	return args.Error(0)
}

func (m *mockUserStore) ClearSubscriptionMirror(ctx context.Context, userID uuid.UUID, externalID, status string) error {
	args := m.Called(ctx, userID, externalID, status)
	return args.Error(0)
}

type mockSubscriptionStore struct {
	mock.Mock
}

func (m *mockSubscriptionStore) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubscriptionStore) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubscriptionStore) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubscriptionStore) DeactivateSubscription(ctx context.Context, externalID string, endedAt time.Time) error {
	args := m.Called(ctx, externalID, endedAt)
	return args.Error(0)
}

type mockWindowStore struct {
	mock.Mock
}

func (m *mockWindowStore) CreateWindow(ctx context.Context, w credits.Window) (bool, error) {
	args := m.Called(ctx, w)
	return args.Bool(0), args.Error(1)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) GetSubscription(ctx context.Context, externalID string) (*subscription.LiveSubscription, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.LiveSubscription), args.Error(1)
}

type mockParser struct {
	mock.Mock
}

func (m *mockParser) ParseWebhook(ctx context.Context, payload []byte, signature string) (*subscription.Envelope, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Envelope), args.Error(1)
}

type mockClaims struct {
	mock.Mock
}

func (m *mockClaims) Claim(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *mockClaims) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// fastRetry keeps the single retry but waits only a millisecond.
var fastRetry = retry.Policy{MaxAttempts: 2, Delay: time.Millisecond}

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func testCatalog() *tiers.Catalog {
	return tiers.MustDefault()
}
