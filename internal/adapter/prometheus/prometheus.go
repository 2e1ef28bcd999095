// Package prometheus exposes fleet state and hook traffic in the Prometheus
// text format.
package prometheus

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/service"
)

const namespace = "fleetwatch"

// Exporter owns a private registry so tests and multiple instances never
// collide on the global default registry.
type Exporter struct {
	registry *prometheus.Registry
	orch     *service.Orchestrator
	subID    string

	hooks  *prometheus.CounterVec
	alerts *prometheus.CounterVec
}

// New registers the fleet gauges for orch.
func New(orch *service.Orchestrator) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		orch:     orch,
		hooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hooks_total",
			Help:      "Hooks delivered to the exporter by type.",
		}, []string{"type"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_alerts_total",
			Help:      "Threshold alerts by rule and severity.",
		}, []string{"threshold_id", "severity"}),
	}
	e.registry.MustRegister(e.hooks, e.alerts)

	counts := []struct {
		name, help string
		value      func(service.OrchestratorCounts) int
	}{
		{"agents", "Agents currently tracked.", func(c service.OrchestratorCounts) int { return c.Agents }},
		{"agents_active", "Agents whose status is active.", func(c service.OrchestratorCounts) int { return c.ActiveAgents }},
		{"commands", "Commands currently tracked.", func(c service.OrchestratorCounts) int { return c.Commands }},
		{"commands_running", "Commands whose status is running.", func(c service.OrchestratorCounts) int { return c.RunningCommands }},
		{"connections", "Inter-agent connections currently tracked.", func(c service.OrchestratorCounts) int { return c.Connections }},
		{"logs_retained", "Log entries in the retention buffer.", func(c service.OrchestratorCounts) int { return c.Logs }},
		{"errors_retained", "Error entries in the retention buffer.", func(c service.OrchestratorCounts) int { return c.Errors }},
		{"audit_retained", "Audit entries in the retention buffer.", func(c service.OrchestratorCounts) int { return c.Audit }},
		{"metrics_retained", "Performance metrics in the retention buffer.", func(c service.OrchestratorCounts) int { return c.Metrics }},
		{"hooks_retained", "Hooks in the history buffer.", func(c service.OrchestratorCounts) int { return c.Hooks }},
		{"subscriptions", "Active hook bus subscriptions.", func(c service.OrchestratorCounts) int { return c.Subscriptions }},
	}
	for _, c := range counts {
		value := c.value
		e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(value(orch.Counts())) }))
	}
	e.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_mutations_total",
		Help:      "Entity store mutations since start.",
	}, func() float64 { return float64(orch.Version()) }))

	return e
}

// RegisterGauge adds a gauge read from fn at scrape time.
func (e *Exporter) RegisterGauge(name, help string, fn func() float64) {
	e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// RegisterCounter adds a monotonic counter read from fn at scrape time.
func (e *Exporter) RegisterCounter(name, help string, fn func() float64) {
	e.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Start subscribes to every hook type.
func (e *Exporter) Start() {
	if e.subID == "" {
		e.subID = e.orch.Subscribe(hook.TypeAny, e.Observe)
	}
}

// Stop removes the hook subscription.
func (e *Exporter) Stop() {
	if e.subID != "" {
		e.orch.Unsubscribe(e.subID)
		e.subID = ""
	}
}

// Observe counts one hook.
func (e *Exporter) Observe(_ context.Context, h hook.Hook) error {
	e.hooks.WithLabelValues(string(h.Type)).Inc()
	if a, ok := h.Payload.(hook.ThresholdAlert); ok {
		e.alerts.WithLabelValues(a.ThresholdID, a.Severity).Inc()
	}
	return nil
}

// Handler serves the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}
