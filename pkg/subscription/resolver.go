package subscription

import (
	"context"
	"errors"

	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/retry"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

// Reason explains how a tier was resolved.
type Reason string

const (
	ReasonLive                Reason = "live"                 // provider reports a current subscription
	ReasonNoUser              Reason = "no_user"              // nil user
	ReasonNoSubscription      Reason = "no_subscription"      // no external id after the recheck
	ReasonInactive            Reason = "inactive"             // live status is not active or trialing
	ReasonUnknownPrice        Reason = "unknown_price"        // live price id missing from the catalog
	ReasonProviderUnavailable Reason = "provider_unavailable" // provider lookup failed twice
	ReasonStoreError          Reason = "store_error"          // local lookup failed
)

// Resolution is a resolved tier with the data it was derived from.
type Resolution struct {
	Tier              tiers.Tier         `json:"tier"`
	Reason            Reason             `json:"reason"`
	SubscriptionID    string             `json:"subscription_id,omitempty"`
	Status            Status             `json:"status,omitempty"`
	Cycle             tiers.BillingCycle `json:"cycle,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
}

var errNoExternalID = errors.New("no external subscription id")

// Resolver derives a user's effective tier from local records and the provider's live state.
type Resolver struct {
	catalog *tiers.Catalog
	users   UserStore
	subs    SubscriptionStore
	oracle  Oracle
	options
}

// NewResolver creates a Resolver. Panics if any dependency is nil.
func NewResolver(catalog *tiers.Catalog, users UserStore, subs SubscriptionStore, oracle Oracle, opts ...Option) *Resolver {
	if catalog == nil {
		panic("subscription: tier catalog is required")
	}
	if users == nil {
		panic("subscription: UserStore is required")
	}
	if subs == nil {
		panic("subscription: SubscriptionStore is required")
	}
	if oracle == nil {
		panic("subscription: Oracle is required")
	}
	return &Resolver{
		catalog: catalog,
		users:   users,
		subs:    subs,
		oracle:  oracle,
		options: newOptions("subscription.resolver", opts),
	}
}

// ResolveTier returns the user's effective tier. It never fails: any ambiguity or
// failure resolves to the free tier.
func (r *Resolver) ResolveTier(ctx context.Context, user *User) tiers.Tier {
	return r.Resolve(ctx, user).Tier
}

// Resolve is ResolveTier with diagnostics.
func (r *Resolver) Resolve(ctx context.Context, user *User) Resolution {
	res := r.resolve(ctx, user)
	r.metrics.observeResolution(res)
	return res
}

func (r *Resolver) resolve(ctx context.Context, user *User) Resolution {
	if user == nil {
		return Resolution{Tier: tiers.Free, Reason: ReasonNoUser}
	}
	log := r.logger.With(logger.UserID(user.ID))

	externalID, err := r.findExternalID(ctx, user)
	if err != nil {
		log.ErrorContext(ctx, "failed to look up local subscription", logger.Error(err))
		return Resolution{Tier: tiers.Free, Reason: ReasonStoreError}
	}
	if externalID == "" {
		return Resolution{Tier: tiers.Free, Reason: ReasonNoSubscription}
	}

	live, err := r.lookupLive(ctx, externalID)
	if err != nil {
		log.WarnContext(ctx, "live subscription lookup failed, falling back to free tier",
			logger.SubscriptionID(externalID), logger.Error(err))
		return Resolution{Tier: tiers.Free, Reason: ReasonProviderUnavailable, SubscriptionID: externalID}
	}

	res := Resolution{
		Tier:              tiers.Free,
		SubscriptionID:    externalID,
		Status:            live.Status,
		CancelAtPeriodEnd: live.CancelAtPeriodEnd,
	}
	if !live.Status.Current() {
		res.Reason = ReasonInactive
		return res
	}

	entry, ok := r.catalog.TierForPriceID(live.PriceID)
	if !ok {
		log.WarnContext(ctx, "live subscription price is not in the tier catalog",
			logger.SubscriptionID(externalID), logger.PriceID(live.PriceID))
		res.Reason = ReasonUnknownPrice
		return res
	}

	res.Tier = entry.Tier
	res.Cycle = entry.Cycle
	res.Reason = ReasonLive
	return res
}

// findExternalID returns the user's provider subscription id. When none is found it waits
// once and re-reads both the user and the local records, since the created notification
// may still be in flight. Returns "" when there is still nothing.
func (r *Resolver) findExternalID(ctx context.Context, user *User) (string, error) {
	current := user
	attempt := 0
	var externalID string

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			fresh, err := r.users.GetUser(ctx, user.ID)
			if errors.Is(err, ErrUserNotFound) {
				return retry.Permanent(errNoExternalID)
			}
			if err != nil {
				return retry.Permanent(err)
			}
			current = fresh
		}

		id, err := r.localExternalID(ctx, current)
		if err != nil {
			return retry.Permanent(err)
		}
		if id == "" {
			return errNoExternalID
		}
		externalID = id
		return nil
	})

	switch {
	case err == nil:
		return externalID, nil
	case errors.Is(err, errNoExternalID), ctx.Err() != nil:
		return "", nil
	default:
		return "", err
	}
}

func (r *Resolver) localExternalID(ctx context.Context, user *User) (string, error) {
	if user.SubscriptionID != "" {
		return user.SubscriptionID, nil
	}
	sub, err := r.subs.GetActiveSubscription(ctx, user.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sub.ExternalID, nil
}

// lookupLive queries the provider, retrying once on any failure.
func (r *Resolver) lookupLive(ctx context.Context, externalID string) (*LiveSubscription, error) {
	var live *LiveSubscription
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		sub, err := r.oracle.GetSubscription(ctx, externalID)
		r.metrics.observeLookup(err)
		if err != nil {
			return err
		}
		live = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return live, nil
}
