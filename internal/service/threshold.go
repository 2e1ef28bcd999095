package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/fleetwatch/internal/adapter/otel"
	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
)

// ThresholdEngine evaluates threshold rules against performance-metric
// hooks and publishes a resource-threshold alert for every rule that matches.
type ThresholdEngine struct {
	mu    sync.RWMutex
	order []string
	rules map[string]threshold.Rule

	bus     *HookBus
	subID   string
	metrics *cfotel.Metrics
}

// NewThresholdEngine creates an engine holding the given rules. It does
// not listen to the bus until Start is called.
func NewThresholdEngine(bus *HookBus, rules ...threshold.Named) *ThresholdEngine {
	e := &ThresholdEngine{
		rules: make(map[string]threshold.Rule),
		bus:   bus,
	}
	for _, r := range rules {
		e.AddRule(r.ID, r.Rule)
	}
	return e
}

// SetMetrics attaches OpenTelemetry instruments.
func (e *ThresholdEngine) SetMetrics(m *cfotel.Metrics) {
	e.metrics = m
}

// SeedDefaults installs the default rule set.
func (e *ThresholdEngine) SeedDefaults() {
	for _, r := range threshold.DefaultRules() {
		e.AddRule(r.ID, r.Rule)
	}
}

// AddRule registers or replaces a rule. A replaced rule keeps its position.
func (e *ThresholdEngine) AddRule(id string, r threshold.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		e.order = append(e.order, id)
	}
	e.rules[id] = r
}

// RemoveRule deletes a rule and reports whether it existed.
func (e *ThresholdEngine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return false
	}
	delete(e.rules, id)
	e.order = slices.DeleteFunc(e.order, func(x string) bool { return x == id })
	return true
}

// Rule returns one rule.
func (e *ThresholdEngine) Rule(id string) (threshold.Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	return r, ok
}

// Rules returns the registered rules in registration order.
func (e *ThresholdEngine) Rules() []threshold.Named {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]threshold.Named, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, threshold.Named{ID: id, Rule: e.rules[id]})
	}
	return out
}

// Start subscribes the engine to performance-metric hooks. Calling it
// twice is a no-op.
func (e *ThresholdEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subID != "" {
		return
	}
	e.subID = e.bus.Subscribe(hook.TypePerformanceMetric, e.Evaluate)
}

// Stop unsubscribes the engine.
func (e *ThresholdEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subID == "" {
		return
	}
	e.bus.Unsubscribe(e.subID)
	e.subID = ""
}

// Evaluate checks every rule against the hook payload and publishes an
// alert for each match. Alerts never feed back into evaluation.
func (e *ThresholdEngine) Evaluate(ctx context.Context, h hook.Hook) error {
	if h.Type == hook.TypeResourceThreshold {
		return nil
	}
	fields := h.Fields()

	var errs []error
	for _, r := range e.Rules() {
		v, ok := hook.Number(fields[r.Metric])
		if !ok || !r.Evaluate(v) {
			continue
		}
		alert := hook.New(hook.TriggerResourceExceeded, h.AgentID, hook.ThresholdAlert{
			ThresholdID:    r.ID,
			Metric:         r.Metric,
			Operator:       string(r.Operator),
			ThresholdValue: r.Value,
			CurrentValue:   v,
			Severity:       string(r.Severity),
			SourceHookID:   h.ID,
			SourceHookType: h.Type,
			Source:         maps.Clone(fields),
		})
		slog.Debug("threshold exceeded",
			"threshold_id", r.ID, "metric", r.Metric, "value", v, "agent_id", h.AgentID, "severity", r.Severity)
		if e.metrics != nil {
			e.metrics.ThresholdAlerts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("threshold.id", r.ID),
				attribute.String("threshold.severity", string(r.Severity)),
			))
		}
		if _, err := e.bus.Publish(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("threshold %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}
