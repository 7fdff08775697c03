package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds billing Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	EventsTotal          *prometheus.CounterVec
	ResolutionsTotal     *prometheus.CounterVec
	ProviderLookupsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptdesk_billing_events_total",
				Help: "Total number of processed billing events",
			},
			[]string{"kind", "outcome"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptdesk_tier_resolutions_total",
				Help: "Total number of tier resolutions",
			},
			[]string{"tier", "reason"},
		),
		ProviderLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptdesk_provider_lookups_total",
				Help: "Total number of live subscription lookups",
			},
			[]string{"status"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.EventsTotal, m.ResolutionsTotal, m.ProviderLookupsTotal)
	}
	return m
}

func (m *Metrics) observeEvent(kind EventKind, outcome Outcome) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (m *Metrics) observeResolution(res Resolution) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(res.Tier.String(), string(res.Reason)).Inc()
}

func (m *Metrics) observeLookup(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProviderLookupsTotal.WithLabelValues(status).Inc()
}
