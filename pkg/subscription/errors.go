package subscription

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUnknownPriceID       = errors.New("price id is not in the tier catalog")
	ErrOwnerMismatch        = errors.New("subscription belongs to a different user")
	ErrCustomerInUse        = errors.New("billing customer id belongs to a different user")
	ErrInvalidEvent         = errors.New("invalid billing event")
	ErrUnsupportedEvent     = errors.New("unsupported billing event")
	ErrNoWebhookParser      = errors.New("webhook parser is not configured")

	// Provider errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrInvalidPayload             = errors.New("invalid webhook payload")
	ErrProviderError              = errors.New("subscription provider error")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL                = errors.New("no portal URL returned from provider")
	ErrMissingCustomerID          = errors.New("billing customer id not available")
	ErrMissingPriceID             = errors.New("price ID is required")
)
