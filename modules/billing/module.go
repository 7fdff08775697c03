package billing

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/generate"
	"github.com/dmitrymomot/promptdesk/pkg/identity"
	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

// Accounts provisions and removes local users.
type Accounts interface {
	EnsureUser(ctx context.Context, externalID, email, name string) (*subscription.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// TierResolver resolves the effective tier of a user.
type TierResolver interface {
	Resolve(ctx context.Context, user *subscription.User) subscription.Resolution
}

// Balances reports remaining credits.
type Balances interface {
	Remaining(ctx context.Context, userID uuid.UUID, tier tiers.Tier) (credits.Balance, error)
}

// Generator runs generation tools.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (generate.Response, error)
}

// Webhooks processes signed billing notifications.
type Webhooks interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (subscription.Result, error)
}

// Links creates hosted checkout and portal sessions.
type Links interface {
	CreateCheckoutLink(ctx context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutLink, error)
	GetCustomerPortalLink(ctx context.Context, customerID, subscriptionID string) (*subscription.PortalLink, error)
}

// Deps are the services behind the routes. All are required.
type Deps struct {
	Catalog   *tiers.Catalog
	Verifier  *identity.Verifier
	Accounts  Accounts
	Resolver  TierResolver
	Balances  Balances
	Generator Generator
	Webhooks  Webhooks
	Links     Links
}

// Option configures a Module.
type Option func(*Module)

// WithLogger sets the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMaxWebhookBody limits the webhook payload size.
func WithMaxWebhookBody(n int64) Option {
	return func(m *Module) {
		if n > 0 {
			m.maxWebhookBody = n
		}
	}
}

// WithGenerateTimeout bounds a single /me/generate request.
func WithGenerateTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.generateTimeout = d
		}
	}
}

// Module holds the HTTP handlers.
type Module struct {
	Deps
	log             *slog.Logger
	validate        *validator.Validate
	maxWebhookBody  int64
	generateTimeout time.Duration
}

// New builds a Module. Panics if a dependency is missing.
func New(deps Deps, opts ...Option) *Module {
	switch {
	case deps.Catalog == nil:
		panic("billing: tier catalog is required")
	case deps.Verifier == nil:
		panic("billing: identity verifier is required")
	case deps.Accounts == nil:
		panic("billing: accounts store is required")
	case deps.Resolver == nil:
		panic("billing: tier resolver is required")
	case deps.Balances == nil:
		panic("billing: credit balances are required")
	case deps.Generator == nil:
		panic("billing: generator is required")
	case deps.Webhooks == nil:
		panic("billing: webhook processor is required")
	case deps.Links == nil:
		panic("billing: billing links provider is required")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	m := &Module{
		Deps:            deps,
		log:             logger.Discard(),
		validate:        v,
		maxWebhookBody:  1 << 20,
		generateTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("http"))
	return m
}

// Router returns the module routes.
func (m *Module) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/webhooks/paddle", m.paddleWebhook)
	r.Get("/tools", m.listTools)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(m.Verifier, func(w http.ResponseWriter, _ *http.Request, err error) {
			writeError(w, err)
		}))
		r.Use(m.provisionUser)

		r.Route("/me", func(r chi.Router) {
			r.Get("/", m.me)
			r.Delete("/", m.deleteMe)
			r.Get("/credits", m.credits)
			r.With(middleware.Timeout(m.generateTimeout)).Post("/generate", m.generate)
		})
		r.Route("/billing", func(r chi.Router) {
			r.Post("/checkout", m.checkout)
			r.Get("/portal", m.portal)
		})
	})

	return r
}
