package subscription

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/retry"
)

// DefaultRetryPolicy is one retry after a fixed two second delay.
var DefaultRetryPolicy = retry.Policy{MaxAttempts: 2, Delay: 2 * time.Second}

// Config holds the billing retry policy shared by the resolver and the processor.
type Config struct {
	Retry retry.Policy `envPrefix:"BILLING_RETRY_"`
}

// Option configures a Resolver or a Processor.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	now     func() time.Time
	retry   retry.Policy
	metrics *Metrics
	claims  EventClaims
	parser  WebhookParser
}

func newOptions(component string, opts []Option) options {
	o := options{
		logger: logger.Discard(),
		now:    func() time.Time { return time.Now().UTC() },
		retry:  DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(logger.Component(component))
	return o
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetryPolicy sets the bounded retry used for the missing subscription recheck,
// the provider lookup and the billing customer lookup.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		if p.Validate() == nil {
			o.retry = p
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithEventClaims enables event id deduplication in HandleWebhook.
func WithEventClaims(c EventClaims) Option {
	return func(o *options) {
		o.claims = c
	}
}

// WithWebhookParser sets the parser used by HandleWebhook.
func WithWebhookParser(p WebhookParser) Option {
	return func(o *options) {
		o.parser = p
	}
}
