package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	cfotel "github.com/Strob0t/fleetwatch/internal/adapter/otel"
	"github.com/Strob0t/fleetwatch/internal/config"
	"github.com/Strob0t/fleetwatch/internal/domain"
	"github.com/Strob0t/fleetwatch/internal/domain/agent"
	"github.com/Strob0t/fleetwatch/internal/domain/command"
	"github.com/Strob0t/fleetwatch/internal/domain/connection"
	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/domain/journal"
	dmetric "github.com/Strob0t/fleetwatch/internal/domain/metric"
	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
	"github.com/Strob0t/fleetwatch/internal/port/sampler"
)

// Orchestrator is the public facade over the entity store, hook bus and
// threshold engine. The process builds exactly one and passes it to every
// adapter; adapters never reach the store directly.
type Orchestrator struct {
	store  *EntityStore
	bus    *HookBus
	engine *ThresholdEngine

	mu        sync.Mutex
	knowledge map[string]map[string]int // entity type -> operation -> count
}

// NewOrchestrator wires store -> bus -> engine from cfg and starts the
// threshold engine.
func NewOrchestrator(cfg *config.Config) *Orchestrator {
	bus := NewHookBus(cfg.Retention.Hooks, cfg.Bus.MaxDepth)
	store := NewEntityStore(bus, cfg.Retention)
	engine := NewThresholdEngine(bus)
	if cfg.Threshold.SeedDefaults {
		engine.SeedDefaults()
	}
	for _, r := range cfg.Threshold.Rules {
		engine.AddRule(r.ID, r.Rule)
	}
	engine.Start()

	return &Orchestrator{
		store:     store,
		bus:       bus,
		engine:    engine,
		knowledge: make(map[string]map[string]int),
	}
}

// SetMetrics attaches OpenTelemetry instruments to every component.
func (o *Orchestrator) SetMetrics(m *cfotel.Metrics) {
	o.bus.SetMetrics(m)
	o.store.SetMetrics(m)
	o.engine.SetMetrics(m)
}

// SetSampler replaces the resource sampler used for usage and tool hooks.
func (o *Orchestrator) SetSampler(s sampler.Sampler) {
	o.store.SetSampler(s)
}

// Close stops the threshold engine and waits for asynchronous subscribers.
func (o *Orchestrator) Close() {
	o.engine.Stop()
	o.bus.Wait()
}

// --- Mutations ---

// UpsertAgent creates or merges an agent.
func (o *Orchestrator) UpsertAgent(ctx context.Context, p agent.Patch) (agent.Agent, error) {
	return o.store.UpsertAgent(ctx, p)
}

// RemoveAgent deletes an agent and its connections.
func (o *Orchestrator) RemoveAgent(ctx context.Context, id string) int {
	return o.store.RemoveAgent(ctx, id)
}

// UpsertCommand creates or merges a command.
func (o *Orchestrator) UpsertCommand(ctx context.Context, p command.Patch) (command.Command, error) {
	return o.store.UpsertCommand(ctx, p)
}

// RetryCommand requeues a command within its retry budget.
func (o *Orchestrator) RetryCommand(ctx context.Context, id string) bool {
	return o.store.RetryCommand(ctx, id)
}

// CancelCommand cancels a queued or running command.
func (o *Orchestrator) CancelCommand(ctx context.Context, id string) bool {
	return o.store.CancelCommand(ctx, id)
}

// UpsertConnection creates or merges a connection.
func (o *Orchestrator) UpsertConnection(ctx context.Context, p connection.Patch) (connection.Connection, error) {
	return o.store.UpsertConnection(ctx, p)
}

// AppendLog records a log line.
func (o *Orchestrator) AppendLog(ctx context.Context, req journal.LogRequest) journal.LogEntry {
	return o.store.AppendLog(ctx, req)
}

// AppendError records an error report.
func (o *Orchestrator) AppendError(ctx context.Context, req journal.ErrorRequest) journal.ErrorEntry {
	return o.store.AppendError(ctx, req)
}

// AppendAudit records an audit entry.
func (o *Orchestrator) AppendAudit(ctx context.Context, req journal.AuditRequest) journal.AuditEntry {
	return o.store.AppendAudit(ctx, req)
}

// AppendMetric records a performance sample.
func (o *Orchestrator) AppendMetric(ctx context.Context, req dmetric.Request) dmetric.PerformanceMetric {
	return o.store.AppendMetric(ctx, req)
}

// RecordDecision publishes a decision-point hook for an agent.
func (o *Orchestrator) RecordDecision(ctx context.Context, agentID string, d hook.DecisionPoint) (hook.Hook, error) {
	if agentID == "" {
		return hook.Hook{}, fmt.Errorf("%w: agent id is required", domain.ErrValidation)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return hook.Hook{}, fmt.Errorf("%w: confidence must be within [0, 1]", domain.ErrValidation)
	}
	return o.bus.Publish(ctx, hook.New(hook.TriggerCriticalDecision, agentID, d))
}

// RecordKnowledgeUpdate publishes a knowledge-update hook and counts the
// operation per entity type.
func (o *Orchestrator) RecordKnowledgeUpdate(ctx context.Context, agentID string, k hook.KnowledgeUpdate) (hook.Hook, error) {
	if k.Operation == "" || k.EntityType == "" {
		return hook.Hook{}, fmt.Errorf("%w: operation and entity type are required", domain.ErrValidation)
	}
	o.mu.Lock()
	ops := o.knowledge[k.EntityType]
	if ops == nil {
		ops = make(map[string]int)
		o.knowledge[k.EntityType] = ops
	}
	ops[k.Operation]++
	o.mu.Unlock()

	return o.bus.Publish(ctx, hook.New(hook.TriggerKnowledgeModified, agentID, k))
}

// SampleResources samples every active agent and publishes a usage hook
// for each. It returns the number of hooks published.
func (o *Orchestrator) SampleResources(ctx context.Context) int {
	published := 0
	for _, a := range o.store.ActiveAgents() {
		if ctx.Err() != nil {
			break
		}
		m, err := o.store.sampler.Sample(ctx, a.ID)
		if err != nil {
			slog.Warn("resource sample failed", "agent_id", a.ID, "error", err)
			continue
		}
		if _, err := o.bus.Publish(ctx, hook.New(hook.TriggerResourceUsageUpdate, a.ID, usageOf(m))); err == nil {
			published++
		}
	}
	return published
}

// --- Subscriptions and thresholds ---

// Subscribe registers a hook handler. See HookBus.Subscribe.
func (o *Orchestrator) Subscribe(selector hook.Type, h Handler, opts ...SubscribeOption) string {
	return o.bus.Subscribe(selector, h, opts...)
}

// Unsubscribe removes a subscription.
func (o *Orchestrator) Unsubscribe(id string) bool {
	return o.bus.Unsubscribe(id)
}

// AddRule registers or replaces a threshold rule.
func (o *Orchestrator) AddRule(id string, r threshold.Rule) {
	o.engine.AddRule(id, r)
}

// RemoveRule deletes a threshold rule.
func (o *Orchestrator) RemoveRule(id string) bool {
	return o.engine.RemoveRule(id)
}

// Rules returns the threshold rules in registration order.
func (o *Orchestrator) Rules() []threshold.Named {
	return o.engine.Rules()
}

// --- Queries ---

func (o *Orchestrator) ListAgents() []agent.Agent                   { return o.store.Agents() }
func (o *Orchestrator) Agent(id string) (agent.Agent, error)        { return o.store.Agent(id) }
func (o *Orchestrator) ListCommands() []command.Command             { return o.store.Commands() }
func (o *Orchestrator) Command(id string) (command.Command, error)  { return o.store.Command(id) }
func (o *Orchestrator) ListConnections() []connection.Connection    { return o.store.Connections() }
func (o *Orchestrator) ActiveAgents() []agent.Agent                 { return o.store.ActiveAgents() }
func (o *Orchestrator) RunningCommands() []command.Command          { return o.store.RunningCommands() }
func (o *Orchestrator) RecentErrors(limit int) []journal.ErrorEntry { return o.store.RecentErrors(limit) }
func (o *Orchestrator) ListLogs() []journal.LogEntry                { return o.store.Logs() }
func (o *Orchestrator) ListAudit() []journal.AuditEntry             { return o.store.Audit() }
func (o *Orchestrator) ListMetrics() []dmetric.PerformanceMetric    { return o.store.Metrics() }
func (o *Orchestrator) CriticalMetrics() []dmetric.PerformanceMetric {
	return o.store.CriticalMetrics()
}
func (o *Orchestrator) ListHooks() []hook.Hook                       { return o.bus.Hooks() }
func (o *Orchestrator) HooksByType(t hook.Type) []hook.Hook          { return o.bus.HooksByType(t) }
func (o *Orchestrator) Hook(id string) (hook.Hook, error)            { return o.bus.Hook(id) }
func (o *Orchestrator) Snapshot(r TimeRange) Snapshot                { return o.store.Snapshot(r) }
func (o *Orchestrator) CollaborationStats() []CollaborationStat      { return o.store.CollaborationStats() }
func (o *Orchestrator) Version() uint64                              { return o.store.Version() }
func (o *Orchestrator) SubscriptionCount() int                       { return o.bus.SubscriptionCount() }

// KnowledgeStats returns the knowledge-update counters per entity type and operation.
func (o *Orchestrator) KnowledgeStats() map[string]map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]map[string]int, len(o.knowledge))
	for k, ops := range o.knowledge {
		out[k] = maps.Clone(ops)
	}
	return out
}

// OrchestratorCounts adds bus sizes to the store counts.
type OrchestratorCounts struct {
	Counts
	Hooks         int `json:"hooks"`
	Subscriptions int `json:"subscriptions"`
}

// Counts returns the current sizes of the store and the bus.
func (o *Orchestrator) Counts() OrchestratorCounts {
	return OrchestratorCounts{
		Counts:        o.store.Counts(),
		Hooks:         o.bus.HookCount(),
		Subscriptions: o.bus.SubscriptionCount(),
	}
}

// Clear drops all store state, history and retained hooks. Subscriptions
// and rules are kept.
func (o *Orchestrator) Clear() {
	o.store.Clear()
	o.bus.Clear()
	o.mu.Lock()
	clear(o.knowledge)
	o.mu.Unlock()
	slog.Info("fleet state cleared")
}
