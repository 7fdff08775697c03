// Package redis provides helpers for connecting to Redis and the webhook event
// claim store built on it.
//
// The package wraps the go-redis client and adds:
//
//   - Connect, which pings the server with a bounded number of attempts.
//   - EventClaims, which records processed webhook event ids with SETNX and a TTL
//     so provider redeliveries are recognised as duplicates.
//   - Healthcheck, for liveness and readiness checks.
//
// Configuration is described by the Config struct whose fields are populated from
// environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		// handle error, probably terminate the application
//	}
//	defer client.Close()
//
//	claims := redis.NewEventClaims(client, cfg.EventClaimTTL)
//	fresh, err := claims.Claim(ctx, "evt_01h...")
//	if err == nil && !fresh {
//		// already processed
//	}
//
// # Errors
//
// Sentinel errors (e.g. ErrRedisNotReady) are joined with the underlying go-redis
// errors using errors.Join, so errors.Is works on both.
package redis
