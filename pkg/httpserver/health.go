package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/promptdesk/pkg/logger"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Health serves liveness and readiness endpoints.
type Health struct {
	checks  map[string]Check
	timeout time.Duration
	log     *slog.Logger
}

// NewHealth builds health handlers over named checks.
func NewHealth(log *slog.Logger, checks map[string]Check) *Health {
	if log == nil {
		log = logger.Discard()
	}
	return &Health{checks: checks, timeout: 3 * time.Second, log: log}
}

// Live always answers 200.
func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready runs every check concurrently and answers 503 if any fails.
func (h *Health) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		g.Go(func() error {
			if err := check(gctx); err != nil {
				h.log.WarnContext(ctx, "readiness check failed",
					slog.String("check", name), logger.Error(err))
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		writeHealth(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failed": failed})
		return
	}
	writeHealth(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
