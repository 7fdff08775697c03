package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements BillingProvider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	now      func() time.Time
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, errors.Join(ErrInvalidProviderEnvironment, fmt.Errorf("environment %q", config.Environment))
	}
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		now:      time.Now,
	}, nil
}

// GetSubscription fetches the live subscription from the Paddle API.
// Every failure, including not-found right after creation, is returned as is;
// callers treat it as transient.
func (p *PaddleProvider) GetSubscription(ctx context.Context, externalID string) (*LiveSubscription, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: externalID,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	live := &LiveSubscription{
		ID:         sub.ID,
		Status:     Status(string(sub.Status)),
		CustomerID: sub.CustomerID,
	}
	if len(sub.Items) > 0 {
		live.PriceID = sub.Items[0].Price.ID
	}
	if period := sub.CurrentBillingPeriod; period != nil {
		live.PeriodStart = parsePaddleTime(period.StartsAt)
		live.PeriodEnd = parsePaddleTime(period.EndsAt)
	}
	if change := sub.ScheduledChange; change != nil {
		live.CancelAtPeriodEnd = string(change.Action) == paddleActionCancel
	}
	return live, nil
}

// CreateCheckoutLink creates a Paddle transaction and returns its hosted checkout URL.
func (p *PaddleProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			paddleUserIDKey: req.UserID.String(),
		},
	}
	if req.CustomerID != "" {
		transactionReq.CustomerID = paddle.PtrTo(req.CustomerID)
	}
	if req.Email != "" {
		transactionReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: p.now().Add(24 * time.Hour),
	}, nil
}

// GetCustomerPortalLink creates a Paddle customer portal session.
func (p *PaddleProvider) GetCustomerPortalLink(ctx context.Context, customerID, subscriptionID string) (*PortalLink, error) {
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}

	sessionReq := &paddle.CreateCustomerPortalSessionRequest{CustomerID: customerID}
	if subscriptionID != "" {
		sessionReq.SubscriptionIDs = []string{subscriptionID}
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, sessionReq)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	if session.URLs.General.Overview == "" {
		return nil, ErrNoPortalURL
	}

	link := &PortalLink{
		URL:       session.URLs.General.Overview,
		ExpiresAt: p.now().Add(24 * time.Hour),
	}
	for _, subURL := range session.URLs.Subscriptions {
		if subURL.ID == subscriptionID {
			link.CancelURL = subURL.CancelSubscription
			link.UpdatePaymentURL = subURL.UpdateSubscriptionPaymentMethod
			break
		}
	}
	return link, nil
}
