// Command server runs the promptdesk API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/promptdesk/modules/billing"
	"github.com/dmitrymomot/promptdesk/pkg/config"
	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/generate"
	"github.com/dmitrymomot/promptdesk/pkg/httpserver"
	"github.com/dmitrymomot/promptdesk/pkg/identity"
	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/pg"
	"github.com/dmitrymomot/promptdesk/pkg/redis"
	"github.com/dmitrymomot/promptdesk/pkg/requestid"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
	"github.com/dmitrymomot/promptdesk/svc/storage"
)

const serviceName = "promptdesk"

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	HTTP     httpserver.Config
	Postgres pg.Config
	Redis    redis.Config
	Paddle   subscription.PaddleConfig
	Billing  subscription.Config
	Identity identity.Config
	OpenAI   generate.Config
	Tiers    tiers.Config
}

func main() {
	issueFor := flag.String("issue-token", "", "print a one hour bearer token for this subject and exit")
	flag.Parse()

	if *issueFor != "" {
		if err := issueToken(*issueFor); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(requestid.LogExtractor),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

// issueToken loads only the identity settings.
func issueToken(subject string) error {
	var cfg identity.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	v, err := identity.NewVerifier(cfg)
	if err != nil {
		return err
	}
	token, err := v.Issue(identity.Identity{Subject: subject}, time.Hour)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, token)
	return err
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	catalog, err := tiers.Load(cfg.Tiers)
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, storage.Migrations, storage.MigrationsDir, cfg.Postgres, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	paddle, err := subscription.NewPaddleProvider(cfg.Paddle)
	if err != nil {
		return err
	}

	verifier, err := identity.NewVerifier(cfg.Identity)
	if err != nil {
		return err
	}

	openaiClient, err := generate.NewClient(cfg.OpenAI)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := subscription.NewMetrics(reg)

	retryPolicy := cfg.Billing.Retry
	if err := retryPolicy.Validate(); err != nil {
		log.WarnContext(ctx, "invalid billing retry policy, using default", logger.Error(err))
		retryPolicy = subscription.DefaultRetryPolicy
	}

	store := storage.NewPostgres(pool)
	ledger := credits.NewLedger(store, credits.WithLogger(log))

	resolver := subscription.NewResolver(catalog, store, store, paddle,
		subscription.WithLogger(log),
		subscription.WithRetryPolicy(retryPolicy),
		subscription.WithMetrics(metrics),
	)
	processor := subscription.NewProcessor(catalog, store, store, store,
		subscription.WithLogger(log),
		subscription.WithRetryPolicy(retryPolicy),
		subscription.WithMetrics(metrics),
		subscription.WithWebhookParser(paddle),
		subscription.WithEventClaims(redis.NewEventClaims(rdb, cfg.Redis.EventClaimTTL)),
	)
	generator := generate.NewService(openaiClient, ledger, cfg.OpenAI, generate.WithLogger(log))

	api := billing.New(billing.Deps{
		Catalog:   catalog,
		Verifier:  verifier,
		Accounts:  store,
		Resolver:  resolver,
		Balances:  ledger,
		Generator: generator,
		Webhooks:  processor,
		Links:     paddle,
	}, billing.WithLogger(log))

	health := httpserver.NewHealth(log, map[string]httpserver.Check{
		"postgres": pg.Healthcheck(pool),
		"redis":    redis.Healthcheck(rdb),
	})

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", api.Router())

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
