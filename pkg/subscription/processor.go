package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/retry"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

// Processor applies provider notifications to local subscription and credit window records.
// Every entry point returns a Result for expected failures and an error only when
// storage fails unexpectedly.
type Processor struct {
	catalog *tiers.Catalog
	users   UserStore
	subs    SubscriptionStore
	windows WindowStore
	options
}

// NewProcessor creates a Processor. Panics if any dependency is nil.
func NewProcessor(catalog *tiers.Catalog, users UserStore, subs SubscriptionStore, windows WindowStore, opts ...Option) *Processor {
	if catalog == nil {
		panic("subscription: tier catalog is required")
	}
	if users == nil {
		panic("subscription: UserStore is required")
	}
	if subs == nil {
		panic("subscription: SubscriptionStore is required")
	}
	if windows == nil {
		panic("subscription: WindowStore is required")
	}
	return &Processor{
		catalog: catalog,
		users:   users,
		subs:    subs,
		windows: windows,
		options: newOptions("subscription.processor", opts),
	}
}

// HandleWebhook verifies and decodes a provider notification, claims its event id and
// processes it. A claim is released when processing fails so the redelivery is retried.
func (p *Processor) HandleWebhook(ctx context.Context, payload []byte, signature string) (Result, error) {
	if p.parser == nil {
		return Result{}, ErrNoWebhookParser
	}

	env, err := p.parser.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return Result{}, err
	}
	if env.Event == nil {
		return Result{}, ErrInvalidPayload
	}

	log := p.logger.With(logger.EventID(env.ID), logger.EventType(env.ProviderType))

	claimed := false
	if p.claims != nil && env.ID != "" {
		ok, err := p.claims.Claim(ctx, env.ID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "failed to claim billing event, processing without deduplication", logger.Error(err))
		case !ok:
			res := Result{Outcome: OutcomeDuplicate, Kind: env.Event.Kind()}
			p.metrics.observeEvent(res.Kind, res.Outcome)
			log.DebugContext(ctx, "billing event already claimed")
			return res, nil
		default:
			claimed = true
		}
	}

	res, err := p.Process(ctx, stampOccurredAt(env.Event, env.OccurredAt))
	if err != nil && claimed {
		if rerr := p.claims.Release(context.WithoutCancel(ctx), env.ID); rerr != nil {
			log.ErrorContext(ctx, "failed to release billing event claim", logger.Error(rerr))
		}
	}
	return res, err
}

// Process dispatches an event to its entry point.
func (p *Processor) Process(ctx context.Context, ev Event) (Result, error) {
	switch e := ev.(type) {
	case SubscriptionEvent:
		return p.SubscriptionChanged(ctx, e)
	case SubscriptionCanceledEvent:
		return p.SubscriptionDeleted(ctx, e)
	case PaymentSucceededEvent:
		return p.PaymentSucceeded(ctx, e)
	case PaymentFailedEvent:
		return p.PaymentFailed(ctx, e)
	case IgnoredEvent:
		return p.finish(ctx, Result{Outcome: OutcomeNoop, Kind: KindIgnored}, nil)
	case nil:
		return p.finish(ctx, Result{}.reject(ErrInvalidEvent), nil)
	default:
		return p.finish(ctx, Result{Kind: ev.Kind()}.reject(ErrUnsupportedEvent), nil)
	}
}

// SubscriptionChanged handles created and updated notifications. The record keyed by the
// external id is upserted as active and mirrored onto the owning user. An unknown price id
// rejects the event without writing anything. An event that occurred before a canceled
// record ended is stale and skipped.
func (p *Processor) SubscriptionChanged(ctx context.Context, ev SubscriptionEvent) (Result, error) {
	res, err := p.subscriptionChanged(ctx, ev)
	return p.finish(ctx, res, err)
}

func (p *Processor) subscriptionChanged(ctx context.Context, ev SubscriptionEvent) (Result, error) {
	res := Result{Kind: ev.Kind(), SubscriptionID: ev.SubscriptionID}
	if err := ValidateEvent(ev); err != nil {
		return res.reject(err), nil
	}

	entry, ok := p.catalog.TierForPriceID(ev.PriceID)
	if !ok {
		return res.reject(errors.Join(ErrUnknownPriceID, fmt.Errorf("price id %q", ev.PriceID))), nil
	}

	user, err := p.findOwner(ctx, ev.UserID, ev.CustomerID)
	if errors.Is(err, ErrUserNotFound) {
		return res.reject(err), nil
	}
	if err != nil {
		return res, err
	}
	res.UserID = user.ID

	existing, err := p.existing(ctx, ev.SubscriptionID)
	if err != nil {
		return res, err
	}
	if existing != nil && existing.UserID != user.ID {
		return res.reject(ErrOwnerMismatch), nil
	}

	if nextTransition(stateOf(existing), ev.Kind()) != doUpsert {
		return res.with(OutcomeNoop), nil
	}
	if endedAfter(existing, ev.OccurredAt) {
		p.logger.DebugContext(ctx, "stale subscription event after cancellation",
			logger.SubscriptionID(ev.SubscriptionID))
		return res.with(OutcomeNoop), nil
	}

	if _, err := p.subs.UpsertSubscription(ctx, &Subscription{
		UserID:            user.ID,
		ExternalID:        ev.SubscriptionID,
		Tier:              entry.Tier,
		Cycle:             entry.Cycle,
		StartsAt:          ev.PeriodStart,
		EndsAt:            ev.PeriodEnd,
		Active:            true,
		CancelAtPeriodEnd: ev.CancelAtPeriodEnd,
	}); err != nil {
		return res, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	if err := p.users.SetBillingMirror(ctx, user.ID, BillingMirror{
		SubscriptionID:  ev.SubscriptionID,
		Status:          ev.Status.String(),
		CancelScheduled: ev.CancelAtPeriodEnd,
		CustomerID:      ev.CustomerID,
	}); err != nil {
		if errors.Is(err, ErrCustomerInUse) {
			return res.reject(err), nil
		}
		return res, fmt.Errorf("failed to update user billing mirror: %w", err)
	}

	return res.with(OutcomeApplied), nil
}

// SubscriptionDeleted handles cancellation. A missing record is rejected and nothing is
// created; an already inactive record is a no-op.
func (p *Processor) SubscriptionDeleted(ctx context.Context, ev SubscriptionCanceledEvent) (Result, error) {
	res, err := p.subscriptionDeleted(ctx, ev)
	return p.finish(ctx, res, err)
}

func (p *Processor) subscriptionDeleted(ctx context.Context, ev SubscriptionCanceledEvent) (Result, error) {
	res := Result{Kind: ev.Kind(), SubscriptionID: ev.SubscriptionID}
	if err := ValidateEvent(ev); err != nil {
		return res.reject(err), nil
	}

	existing, err := p.existing(ctx, ev.SubscriptionID)
	if err != nil {
		return res, err
	}
	if existing != nil {
		res.UserID = existing.UserID
	}

	switch nextTransition(stateOf(existing), ev.Kind()) {
	case doReject:
		return res.reject(ErrSubscriptionNotFound), nil
	case doDeactivate:
	default:
		return res.with(OutcomeNoop), nil
	}

	endedAt := ev.OccurredAt
	if endedAt.IsZero() {
		endedAt = p.now()
	}
	err = p.subs.DeactivateSubscription(ctx, ev.SubscriptionID, endedAt)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return res.reject(err), nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	err = p.users.ClearSubscriptionMirror(ctx, existing.UserID, ev.SubscriptionID, StatusCanceled.String())
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return res, fmt.Errorf("failed to clear user billing mirror: %w", err)
	}

	return res.with(OutcomeApplied), nil
}

// PaymentSucceeded opens a zeroed credit window for the paid period. The owner is found by
// the checkout user id when the transaction carries one, else by billing customer id. A
// second delivery for the same subscription and period start is reported as a duplicate.
func (p *Processor) PaymentSucceeded(ctx context.Context, ev PaymentSucceededEvent) (Result, error) {
	res, err := p.paymentSucceeded(ctx, ev)
	return p.finish(ctx, res, err)
}

func (p *Processor) paymentSucceeded(ctx context.Context, ev PaymentSucceededEvent) (Result, error) {
	res := Result{Kind: ev.Kind(), SubscriptionID: ev.SubscriptionID}
	if err := ValidateEvent(ev); err != nil {
		return res.reject(err), nil
	}

	user, err := p.findOwner(ctx, ev.UserID, ev.CustomerID)
	if errors.Is(err, ErrUserNotFound) {
		return res.reject(err), nil
	}
	if err != nil {
		return res, err
	}
	res.UserID = user.ID

	existing, err := p.existing(ctx, ev.SubscriptionID)
	if err != nil {
		return res, err
	}
	if existing != nil && existing.UserID != user.ID {
		return res.reject(ErrOwnerMismatch), nil
	}

	switch nextTransition(stateOf(existing), ev.Kind()) {
	case doReject:
		return res.reject(ErrSubscriptionNotFound), nil
	case doOpenWindow:
	default:
		return res.with(OutcomeNoop), nil
	}

	w := credits.NewWindow(existing.UserID, existing.ID, ev.PeriodStart, ev.PeriodEnd)
	created, err := p.windows.CreateWindow(ctx, w)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return res.reject(err), nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to create credit window: %w", err)
	}
	if !created {
		return res.with(OutcomeDuplicate), nil
	}
	return res.with(OutcomeApplied), nil
}

// PaymentFailed only records the failure. Dunning is left to the provider.
func (p *Processor) PaymentFailed(ctx context.Context, ev PaymentFailedEvent) (Result, error) {
	res := Result{Kind: ev.Kind(), SubscriptionID: ev.SubscriptionID}
	if err := ValidateEvent(ev); err != nil {
		return p.finish(ctx, res.reject(err), nil)
	}

	p.logger.WarnContext(ctx, "invoice payment failed",
		logger.SubscriptionID(ev.SubscriptionID),
		logger.CustomerID(ev.CustomerID))
	return p.finish(ctx, res.with(OutcomeNoop), nil)
}

// findOwner resolves the owning user by internal id when given, falling back to the billing
// customer id. The customer lookup is retried because the user row may only just exist.
func (p *Processor) findOwner(ctx context.Context, userID, customerID string) (*User, error) {
	if userID != "" {
		id, err := uuid.Parse(userID)
		if err == nil {
			user, err := p.users.GetUser(ctx, id)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, ErrUserNotFound) {
				return nil, fmt.Errorf("failed to get user: %w", err)
			}
		}
		if customerID == "" {
			return nil, ErrUserNotFound
		}
	}

	var user *User
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		u, err := p.users.GetUserByBillingCustomer(ctx, customerID)
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to get user by billing customer: %w", err))
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// endedAfter reports whether sub is an inactive record that ended after occurredAt.
// A record deactivated by a newer subscription ends at its last update.
func endedAfter(sub *Subscription, occurredAt time.Time) bool {
	if sub == nil || sub.Active || occurredAt.IsZero() {
		return false
	}
	ended := sub.EndsAt
	if !sub.UpdatedAt.IsZero() && sub.UpdatedAt.Before(ended) {
		ended = sub.UpdatedAt
	}
	return occurredAt.Before(ended)
}

// existing returns the local record for externalID or nil when there is none.
func (p *Processor) existing(ctx context.Context, externalID string) (*Subscription, error) {
	sub, err := p.subs.GetSubscriptionByExternalID(ctx, externalID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (p *Processor) finish(ctx context.Context, res Result, err error) (Result, error) {
	attrs := []any{
		logger.EventType(string(res.Kind)),
		logger.SubscriptionID(res.SubscriptionID),
	}
	if res.UserID != uuid.Nil {
		attrs = append(attrs, logger.UserID(res.UserID))
	}

	if err != nil {
		p.logger.ErrorContext(ctx, "billing event processing failed", append(attrs, logger.Error(err))...)
		return res, err
	}

	p.metrics.observeEvent(res.Kind, res.Outcome)

	attrs = append(attrs, logger.Outcome(string(res.Outcome)))
	switch res.Outcome {
	case OutcomeRejected:
		p.logger.WarnContext(ctx, "billing event rejected", append(attrs, logger.Error(res.Reason))...)
	case OutcomeApplied:
		p.logger.InfoContext(ctx, "billing event applied", attrs...)
	default:
		p.logger.DebugContext(ctx, "billing event skipped", attrs...)
	}
	return res, nil
}
