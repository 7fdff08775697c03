package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Func is a unit of work executed under a Policy.
type Func func(ctx context.Context) error

// Policy retries a Func a fixed number of times with a constant delay between attempts.
// The zero value runs the callback exactly once.
type Policy struct {
	MaxAttempts int           `env:"ATTEMPTS" envDefault:"2"`
	Delay       time.Duration `env:"DELAY" envDefault:"2s"`
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return errors.Join(ErrInvalidPolicy, fmt.Errorf("max attempts must not be negative: %d", p.MaxAttempts))
	}
	if p.Delay < 0 {
		return errors.Join(ErrInvalidPolicy, fmt.Errorf("delay must not be negative: %s", p.Delay))
	}
	return nil
}

// Do runs fn until it succeeds, returns a Permanent error, or MaxAttempts is exhausted.
// The last error is returned unwrapped. Waiting between attempts stops early when ctx is done.
func (p Policy) Do(ctx context.Context, fn Func) error {
	if p.MaxAttempts <= 1 {
		return unwrapPermanent(fn(ctx))
	}

	// go-retry rejects a non-positive constant backoff
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	backoff := goretry.WithMaxRetries(uint64(p.MaxAttempts-1), goretry.NewConstant(delay))

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || IsPermanent(err) {
			return err
		}
		return goretry.RetryableError(err)
	})
	return unwrapPermanent(err)
}

func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}
