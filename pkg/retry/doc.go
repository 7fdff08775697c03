// Package retry provides the single bounded retry policy used on interactive and
// webhook request paths.
//
// A Policy is a fixed number of attempts separated by a fixed delay. It exists to
// absorb short eventual-consistency gaps (a provider object that was created a moment
// ago, a user row that is being inserted by a concurrent request) and never grows
// into an unbounded backoff loop.
//
// # Usage
//
//	p := retry.Policy{MaxAttempts: 2, Delay: 2 * time.Second}
//	err := p.Do(ctx, func(ctx context.Context) error {
//		sub, err := provider.GetSubscription(ctx, id)
//		if err != nil {
//			return err // retried once, then returned
//		}
//		live = sub
//		return nil
//	})
//
// Return Permanent(err) from the callback to stop retrying immediately.
//
// Delays are plain configuration, so tests construct policies with millisecond
// delays instead of waiting on production values.
package retry
