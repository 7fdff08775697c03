package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
)

// Memory implements Store in process memory with the same semantics as Postgres.
// Returned values are copies.
type Memory struct {
	mu      sync.RWMutex
	now     func() time.Time
	users   map[uuid.UUID]subscription.User
	subs    map[string]subscription.Subscription // keyed by external id
	windows map[uuid.UUID]credits.Window
	usage   []credits.UsageEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:     func() time.Time { return time.Now().UTC() },
		users:   make(map[uuid.UUID]subscription.User),
		subs:    make(map[string]subscription.Subscription),
		windows: make(map[uuid.UUID]credits.Window),
	}
}

func (m *Memory) EnsureUser(_ context.Context, externalID, email, name string) (*subscription.User, error) {
	if externalID == "" {
		return nil, ErrEmptyExternalID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, u := range m.users {
		if u.ExternalID != externalID {
			continue
		}
		if email != "" {
			u.Email = email
		}
		if name != "" {
			u.Name = name
		}
		u.UpdatedAt = now
		m.users[id] = u
		return &u, nil
	}

	u := subscription.User{
		ID:         uuid.New(),
		ExternalID: externalID,
		Email:      email,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.users[u.ID] = u
	return &u, nil
}

func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*subscription.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, subscription.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByBillingCustomer(_ context.Context, customerID string) (*subscription.User, error) {
	if customerID == "" {
		return nil, subscription.ErrUserNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.BillingCustomerID == customerID {
			return &u, nil
		}
	}
	return nil, subscription.ErrUserNotFound
}

func (m *Memory) SetBillingMirror(_ context.Context, userID uuid.UUID, mirror subscription.BillingMirror) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return subscription.ErrUserNotFound
	}
	if mirror.CustomerID != "" {
		for id, other := range m.users {
			if id != userID && other.BillingCustomerID == mirror.CustomerID {
				return subscription.ErrCustomerInUse
			}
		}
	}
	u.SubscriptionID = mirror.SubscriptionID
	u.SubscriptionStatus = mirror.Status
	u.CancelScheduled = mirror.CancelScheduled
	if mirror.CustomerID != "" {
		u.BillingCustomerID = mirror.CustomerID
	}
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return nil
}

func (m *Memory) ClearSubscriptionMirror(_ context.Context, userID uuid.UUID, externalID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok || u.SubscriptionID != externalID {
		return nil
	}
	u.SubscriptionID = ""
	u.SubscriptionStatus = status
	u.CancelScheduled = false
	u.UpdatedAt = m.now()
	m.users[userID] = u
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return subscription.ErrUserNotFound
	}
	delete(m.users, id)
	for key, sub := range m.subs {
		if sub.UserID == id {
			delete(m.subs, key)
		}
	}
	for key, w := range m.windows {
		if w.UserID == id {
			delete(m.windows, key)
		}
	}
	kept := m.usage[:0]
	for _, e := range m.usage {
		if e.UserID != id {
			kept = append(kept, e)
		}
	}
	m.usage = kept
	return nil
}

func (m *Memory) GetActiveSubscription(_ context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *subscription.Subscription
	for _, sub := range m.subs {
		if sub.UserID != userID || !sub.Active {
			continue
		}
		if latest == nil || sub.UpdatedAt.After(latest.UpdatedAt) {
			s := sub
			latest = &s
		}
	}
	if latest == nil {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return latest, nil
}

func (m *Memory) GetSubscriptionByExternalID(_ context.Context, externalID string) (*subscription.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[externalID]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (m *Memory) UpsertSubscription(_ context.Context, in *subscription.Subscription) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[in.UserID]; !ok {
		return nil, subscription.ErrUserNotFound
	}

	now := m.now()
	if in.Active {
		for key, sub := range m.subs {
			if sub.UserID == in.UserID && sub.Active && key != in.ExternalID {
				sub.Active = false
				sub.UpdatedAt = now
				m.subs[key] = sub
			}
		}
	}

	sub, ok := m.subs[in.ExternalID]
	if !ok {
		sub = subscription.Subscription{
			ID:         uuid.New(),
			ExternalID: in.ExternalID,
			CreatedAt:  now,
		}
	}
	sub.UserID = in.UserID
	sub.Tier = in.Tier
	sub.Cycle = in.Cycle
	sub.StartsAt = in.StartsAt.UTC()
	sub.EndsAt = in.EndsAt.UTC()
	sub.Active = in.Active
	sub.CancelAtPeriodEnd = in.CancelAtPeriodEnd
	sub.UpdatedAt = now
	m.subs[in.ExternalID] = sub

	out := sub
	return &out, nil
}

func (m *Memory) DeactivateSubscription(_ context.Context, externalID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[externalID]
	if !ok {
		return subscription.ErrSubscriptionNotFound
	}
	sub.Active = false
	sub.EndsAt = endedAt.UTC()
	sub.UpdatedAt = m.now()
	m.subs[externalID] = sub
	return nil
}

func (m *Memory) SumUsage(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, e := range m.usage {
		if e.UserID == userID {
			total += e.Credits
		}
	}
	return total, nil
}

func (m *Memory) AppendUsage(_ context.Context, e credits.UsageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[e.UserID]; !ok {
		return subscription.ErrUserNotFound
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.usage = append(m.usage, e)
	return nil
}

func (m *Memory) CurrentWindow(_ context.Context, userID uuid.UUID, at time.Time) (*credits.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var current *credits.Window
	for _, w := range m.windows {
		if w.UserID != userID || !w.Contains(at) {
			continue
		}
		if current == nil || w.StartsAt.After(current.StartsAt) {
			c := w
			current = &c
		}
	}
	if current == nil {
		return nil, credits.ErrWindowNotFound
	}
	return current, nil
}

func (m *Memory) IncrementWindow(_ context.Context, windowID uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowID]
	if !ok {
		return 0, credits.ErrWindowNotFound
	}
	w.CreditsUsed += amount
	m.windows[windowID] = w
	return w.CreditsUsed, nil
}

func (m *Memory) CreateWindow(_ context.Context, w credits.Window) (bool, error) {
	if !w.EndsAt.After(w.StartsAt) {
		return false, credits.ErrInvalidWindow
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	owned := false
	for _, sub := range m.subs {
		if sub.ID == w.SubscriptionID {
			owned = true
			break
		}
	}
	if !owned {
		return false, subscription.ErrSubscriptionNotFound
	}

	for _, existing := range m.windows {
		if existing.SubscriptionID == w.SubscriptionID && existing.StartsAt.Equal(w.StartsAt) {
			return false, nil
		}
	}

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.StartsAt, w.EndsAt = w.StartsAt.UTC(), w.EndsAt.UTC()
	w.CreditsUsed = 0
	w.CreatedAt = m.now()
	m.windows[w.ID] = w
	return true, nil
}
