package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Oracle returns the payments provider's live view of a subscription.
// Implementations must bypass any local cache.
type Oracle interface {
	GetSubscription(ctx context.Context, externalID string) (*LiveSubscription, error)
}

// WebhookParser verifies a signed provider notification and decodes it into an Envelope.
// Returns ErrWebhookVerificationFailed or ErrInvalidPayload on bad input.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Envelope, error)
}

// BillingProvider is the full payments provider integration.
// Checkout and portal are hosted by the provider, so no card data touches this service.
type BillingProvider interface {
	Oracle
	WebhookParser

	// CreateCheckoutLink creates a hosted checkout session. The user id travels in the
	// provider's custom data and comes back on subscription events.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// GetCustomerPortalLink returns a temporary pre-authenticated portal link.
	GetCustomerPortalLink(ctx context.Context, customerID, subscriptionID string) (*PortalLink, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string    // provider price identifier
	UserID     uuid.UUID // internal user id
	CustomerID string    // optional existing billing customer
	Email      string    // optional billing email
	SuccessURL string    // redirect after successful payment
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PortalLink represents a customer portal session.
type PortalLink struct {
	URL              string    `json:"url"`
	CancelURL        string    `json:"cancel_url,omitempty"`
	UpdatePaymentURL string    `json:"update_payment_url,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}
