package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultClaimPrefix = "billing:event:"

// EventClaims remembers processed webhook event ids with SETNX and a TTL.
type EventClaims struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewEventClaims creates an EventClaims. Panics if client is nil.
// A non-positive ttl keeps claims forever.
func NewEventClaims(client redis.UniversalClient, ttl time.Duration) *EventClaims {
	if client == nil {
		panic("redis: client is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &EventClaims{client: client, ttl: ttl, prefix: defaultClaimPrefix}
}

// Claim reports true when the event id was not claimed before.
func (c *EventClaims) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyEventID
	}
	ok, err := c.client.SetNX(ctx, c.prefix+eventID, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		return false, errors.Join(ErrClaimFailed, err)
	}
	return ok, nil
}

// Release removes a claim. Releasing an unknown id is not an error.
func (c *EventClaims) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return ErrEmptyEventID
	}
	if err := c.client.Del(ctx, c.prefix+eventID).Err(); err != nil {
		return errors.Join(ErrClaimFailed, err)
	}
	return nil
}
