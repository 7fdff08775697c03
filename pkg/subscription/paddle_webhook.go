package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

const (
	PaddleSignatureHeader = "Paddle-Signature" // request header carrying the webhook signature
	paddleUserIDKey       = "user_id"
	paddleActionCancel    = "cancel"
)

// ParseWebhook verifies the Paddle-Signature header value and decodes the payload.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	req.Header.Set(PaddleSignatureHeader, signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	return decodePaddleEvent(payload)
}

type paddleNotification struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddlePeriod struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

type paddleItem struct {
	PriceID string `json:"price_id"`
	Price   *struct {
		ID string `json:"id"`
	} `json:"price"`
}

func (i paddleItem) priceID() string {
	if i.Price != nil && i.Price.ID != "" {
		return i.Price.ID
	}
	return i.PriceID
}

type paddleSubscriptionData struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	CustomData           map[string]any `json:"custom_data"`
	Items                []paddleItem   `json:"items"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
	ScheduledChange      *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
}

type paddleTransactionData struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	CustomData     map[string]any `json:"custom_data"`
	BillingPeriod  *paddlePeriod  `json:"billing_period"`
}

// decodePaddleEvent maps a Paddle notification onto the provider-neutral event union.
func decodePaddleEvent(payload []byte) (*Envelope, error) {
	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if n.EventType == "" {
		return nil, ErrInvalidPayload
	}

	env := &Envelope{
		ID:           n.EventID,
		ProviderType: n.EventType,
		OccurredAt:   parsePaddleTime(n.OccurredAt),
	}

	var err error
	switch n.EventType {
	case "subscription.created", "subscription.updated", "subscription.activated",
		"subscription.resumed", "subscription.trialing", "subscription.past_due",
		"subscription.paused", "subscription.canceled":
		env.Event, err = decodePaddleSubscription(n.EventType, n.Data)
	case "transaction.completed", "transaction.payment_failed":
		env.Event, err = decodePaddleTransaction(n.EventType, n.Data)
	default:
		env.Event = IgnoredEvent{Type: n.EventType}
	}
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	return env, nil
}

func decodePaddleSubscription(eventType string, raw json.RawMessage) (Event, error) {
	var data paddleSubscriptionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	if eventType == "subscription.canceled" || Status(data.Status) == StatusCanceled {
		return SubscriptionCanceledEvent{
			SubscriptionID: data.ID,
			CustomerID:     data.CustomerID,
		}, nil
	}

	ev := SubscriptionEvent{
		Type:           KindSubscriptionUpdated,
		SubscriptionID: data.ID,
		CustomerID:     data.CustomerID,
		Status:         Status(data.Status),
	}
	if eventType == "subscription.created" {
		ev.Type = KindSubscriptionCreated
	}
	if userID, ok := data.CustomData[paddleUserIDKey].(string); ok {
		ev.UserID = userID
	}
	if len(data.Items) > 0 {
		ev.PriceID = data.Items[0].priceID()
	}
	if data.CurrentBillingPeriod != nil {
		ev.PeriodStart = parsePaddleTime(data.CurrentBillingPeriod.StartsAt)
		ev.PeriodEnd = parsePaddleTime(data.CurrentBillingPeriod.EndsAt)
	}
	if data.ScheduledChange != nil {
		ev.CancelAtPeriodEnd = data.ScheduledChange.Action == paddleActionCancel
	}
	return ev, nil
}

func decodePaddleTransaction(eventType string, raw json.RawMessage) (Event, error) {
	var data paddleTransactionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	// One-off purchases carry no subscription and do not affect tiers.
	if data.SubscriptionID == "" {
		return IgnoredEvent{Type: eventType}, nil
	}

	if eventType == "transaction.payment_failed" {
		return PaymentFailedEvent{
			TransactionID:  data.ID,
			SubscriptionID: data.SubscriptionID,
			CustomerID:     data.CustomerID,
		}, nil
	}

	ev := PaymentSucceededEvent{
		TransactionID:  data.ID,
		SubscriptionID: data.SubscriptionID,
		CustomerID:     data.CustomerID,
	}
	if userID, ok := data.CustomData[paddleUserIDKey].(string); ok {
		ev.UserID = userID
	}
	if data.BillingPeriod != nil {
		ev.PeriodStart = parsePaddleTime(data.BillingPeriod.StartsAt)
		ev.PeriodEnd = parsePaddleTime(data.BillingPeriod.EndsAt)
	}
	return ev, nil
}

// parsePaddleTime parses an RFC 3339 timestamp, returning the zero time when empty or malformed.
func parsePaddleTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
