package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/fleetwatch/internal/adapter/otel"
	"github.com/Strob0t/fleetwatch/internal/config"
	"github.com/Strob0t/fleetwatch/internal/domain"
	"github.com/Strob0t/fleetwatch/internal/domain/agent"
	"github.com/Strob0t/fleetwatch/internal/domain/command"
	"github.com/Strob0t/fleetwatch/internal/domain/connection"
	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/domain/journal"
	dmetric "github.com/Strob0t/fleetwatch/internal/domain/metric"
	"github.com/Strob0t/fleetwatch/internal/port/sampler"
	"github.com/Strob0t/fleetwatch/internal/retention"
)

// DefaultRecentErrors is the number of errors RecentErrors returns when no
// positive limit is given.
const DefaultRecentErrors = 50

// Error types and recovery actions carried on error-recovery hooks.
const (
	ErrorTypeCommandRetry = "command_retry"
	RecoveryManualRetry   = "manual_retry"
	RecoveryLogged        = "logged"
)

const defaultTransitionReason = "External update"

// EntityStore owns the current fleet state and the bounded history
// buffers. Only its methods write them. Hooks produced by a mutation are
// published after the lock is released, so subscribers may query the store.
type EntityStore struct {
	mu            sync.RWMutex
	agents        map[string]agent.Agent
	statusSince   map[string]time.Time
	commands      map[string]command.Command
	connections   map[string]connection.Connection
	collaboration map[pair]*collabCounter

	logs    *retention.Buffer[journal.LogEntry]
	errors  *retention.Buffer[journal.ErrorEntry]
	audit   *retention.Buffer[journal.AuditEntry]
	metrics *retention.Buffer[dmetric.PerformanceMetric]

	version uint64

	bus     *HookBus
	sampler sampler.Sampler
	now     func() time.Time
	otel    *cfotel.Metrics
}

type pair struct {
	source, target string
}

type collabCounter struct {
	messages int
	byType   map[string]int
}

// NewEntityStore creates an empty store publishing onto bus. The default
// sampler reads the agents' last reported metrics from the store itself.
func NewEntityStore(bus *HookBus, limits config.Retention) *EntityStore {
	s := &EntityStore{
		agents:        make(map[string]agent.Agent),
		statusSince:   make(map[string]time.Time),
		commands:      make(map[string]command.Command),
		connections:   make(map[string]connection.Connection),
		collaboration: make(map[pair]*collabCounter),
		logs:          retention.New[journal.LogEntry](limits.Logs),
		errors:        retention.New[journal.ErrorEntry](limits.Errors),
		audit:         retention.New[journal.AuditEntry](limits.Audit),
		metrics:       retention.New[dmetric.PerformanceMetric](limits.Metrics),
		bus:           bus,
		now:           time.Now,
	}
	s.sampler = NewStoreSampler(s)
	return s
}

// SetSampler replaces the resource sampler.
func (s *EntityStore) SetSampler(sm sampler.Sampler) {
	s.sampler = sm
}

// SetMetrics attaches OpenTelemetry instruments.
func (s *EntityStore) SetMetrics(m *cfotel.Metrics) {
	s.otel = m
}

// publish forwards a hook to the bus. Bus errors are already logged there.
func (s *EntityStore) publish(ctx context.Context, h hook.Hook) {
	if _, err := s.bus.Publish(ctx, h); err != nil {
		slog.Debug("store hook not published", "hook_type", h.Type, "trigger", h.Trigger, "error", err)
	}
}

// --- Agents ---

// UpsertAgent creates the agent or merges the patch over it. A status
// change publishes an agent-state-change hook; a patch carrying metrics
// publishes a resource usage sample.
func (s *EntityStore) UpsertAgent(ctx context.Context, p agent.Patch) (agent.Agent, error) {
	if err := p.Validate(); err != nil {
		slog.Warn("agent upsert rejected", "agent_id", p.ID, "error", err)
		return agent.Agent{}, err
	}
	now := s.now()

	s.mu.Lock()
	prev, existed := s.agents[p.ID]
	var next agent.Agent
	if existed {
		next = agent.Apply(prev, p)
	} else {
		next = agent.New(p, now)
		s.statusSince[p.ID] = now
	}
	s.agents[p.ID] = next

	var change *hook.StateChange
	if existed && next.Status != prev.Status {
		dwell := max(now.Sub(s.statusSince[p.ID]).Milliseconds(), 0)
		s.statusSince[p.ID] = now
		reason := p.Reason
		if reason == "" {
			reason = defaultTransitionReason
		}
		change = &hook.StateChange{
			PreviousState: string(prev.Status),
			NewState:      string(next.Status),
			Reason:        reason,
			DwellTime:     dwell,
		}
	}
	s.version++
	s.mu.Unlock()

	if change != nil {
		s.onTransition(ctx, next, *change)
	}
	if p.Metrics != nil {
		s.publishUsage(ctx, next.ID, *p.Metrics)
	}
	return next.Clone(), nil
}

func (s *EntityStore) onTransition(ctx context.Context, a agent.Agent, c hook.StateChange) {
	if a.Status == agent.StatusError {
		slog.Error("agent entered error state", "agent_id", a.ID, "previous_state", c.PreviousState, "reason", c.Reason)
	} else {
		slog.Debug("agent state changed", "agent_id", a.ID, "from", c.PreviousState, "to", c.NewState)
	}
	if s.otel != nil {
		s.otel.StateTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("agent.status", c.NewState)))
	}
	s.publish(ctx, hook.New(hook.TriggerStateTransition, a.ID, c))
}

// publishUsage samples the agent outside the lock and publishes a
// performance-metric hook. The reported figures are used when sampling fails.
func (s *EntityStore) publishUsage(ctx context.Context, agentID string, reported agent.Metrics) {
	m, err := s.sampler.Sample(ctx, agentID)
	if err != nil {
		slog.Debug("resource sample failed, using reported metrics", "agent_id", agentID, "error", err)
		m = reported
	}
	s.publish(ctx, hook.New(hook.TriggerResourceUsageUpdate, agentID, usageOf(m)))
}

func usageOf(m agent.Metrics) hook.ResourceUsage {
	return hook.ResourceUsage{
		CPUUsage:            m.CPUUsage,
		MemoryUsage:         m.MemoryUsage,
		DiskIO:              m.DiskIO,
		NetworkIO:           m.NetworkActivity,
		ActiveConnections:   m.ActiveConnections,
		AverageResponseTime: m.AverageResponseTime,
		ErrorCount:          m.ErrorCount,
		TasksCompleted:      m.TasksCompleted,
		ErrorRate:           m.ErrorRate(),
	}
}

// RemoveAgent deletes the agent and every connection touching it, and
// returns how many connections were removed. Unknown ids are a no-op.
func (s *EntityStore) RemoveAgent(_ context.Context, id string) int {
	s.mu.Lock()
	_, existed := s.agents[id]
	delete(s.agents, id)
	delete(s.statusSince, id)
	removed := 0
	for cid, c := range s.connections {
		if c.Touches(id) {
			delete(s.connections, cid)
			removed++
		}
	}
	if existed || removed > 0 {
		s.version++
	}
	s.mu.Unlock()

	if existed {
		slog.Info("agent removed", "agent_id", id, "connections_removed", removed)
	}
	return removed
}

// Agent returns one agent.
func (s *EntityStore) Agent(id string) (agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return agent.Agent{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return a.Clone(), nil
}

// Agents returns every agent, sorted by id.
func (s *EntityStore) Agents() []agent.Agent {
	return s.selectAgents(func(agent.Agent) bool { return true })
}

// ActiveAgents returns the agents whose status is active, sorted by id.
func (s *EntityStore) ActiveAgents() []agent.Agent {
	return s.selectAgents(func(a agent.Agent) bool { return a.Status == agent.StatusActive })
}

func (s *EntityStore) selectAgents(keep func(agent.Agent) bool) []agent.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b agent.Agent) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// --- Commands ---

// UpsertCommand creates the command or merges the patch over it. A
// running -> completed transition publishes a tool execution hook.
// Transitions outside the lifecycle are applied and logged.
func (s *EntityStore) UpsertCommand(ctx context.Context, p command.Patch) (command.Command, error) {
	if err := p.Validate(); err != nil {
		slog.Warn("command upsert rejected", "command_id", p.ID, "error", err)
		return command.Command{}, err
	}
	now := s.now()

	s.mu.Lock()
	prev, existed := s.commands[p.ID]
	var next command.Command
	if existed {
		next = command.Apply(prev, p)
	} else {
		next = command.New(p, now)
	}

	var completed bool
	var elapsed int64
	if existed && prev.Status == command.StatusRunning && next.Status == command.StatusCompleted {
		completed = true
		elapsed = max(now.Sub(next.Timestamp).Milliseconds(), 0)
		if next.Duration == nil {
			d := elapsed
			next.Duration = &d
		}
	}
	s.commands[p.ID] = next
	s.version++
	s.mu.Unlock()

	if existed && !command.CanTransition(prev.Status, next.Status) {
		slog.Warn("command transition outside lifecycle applied",
			"command_id", next.ID, "from", prev.Status, "to", next.Status)
	}
	if completed {
		s.publishToolExecution(ctx, next, elapsed)
	}
	return next.Clone(), nil
}

func (s *EntityStore) publishToolExecution(ctx context.Context, c command.Command, elapsed int64) {
	p := hook.ToolExecution{
		CommandID:     c.ID,
		AgentID:       c.AgentID,
		ExecutionTime: elapsed,
	}
	if m, err := s.sampler.Sample(ctx, c.AgentID); err == nil {
		u := usageOf(m)
		p.Resources = &u
	} else {
		slog.Debug("resource sample failed for completed command", "command_id", c.ID, "agent_id", c.AgentID, "error", err)
	}
	s.publish(ctx, hook.New(hook.TriggerToolExecutionComplete, c.AgentID, p))
}

// RetryCommand requeues the command if its retry budget allows, and
// reports whether it did.
func (s *EntityStore) RetryCommand(ctx context.Context, id string) bool {
	s.mu.Lock()
	c, ok := s.commands[id]
	if !ok || !c.Retryable() {
		s.mu.Unlock()
		return false
	}
	lastErr := c.Error
	c.RetryCount++
	c.Status = command.StatusQueued
	c.Error = ""
	s.commands[id] = c
	s.version++
	s.mu.Unlock()

	slog.Info("command requeued", "command_id", id, "retry_count", c.RetryCount, "max_retries", c.MaxRetries)
	s.publish(ctx, hook.New(hook.TriggerErrorOccurred, c.AgentID, hook.ErrorRecovery{
		ErrorType:      ErrorTypeCommandRetry,
		ErrorMessage:   lastErr,
		RecoveryAction: RecoveryManualRetry,
		CommandID:      id,
		RetryCount:     c.RetryCount,
	}))
	return true
}

// CancelCommand cancels a queued or running command and reports whether it did.
func (s *EntityStore) CancelCommand(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[id]
	if !ok || !c.Cancellable() {
		return false
	}
	c.Status = command.StatusCancelled
	s.commands[id] = c
	s.version++
	slog.Info("command cancelled", "command_id", id)
	return true
}

// Command returns one command.
func (s *EntityStore) Command(id string) (command.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commands[id]
	if !ok {
		return command.Command{}, fmt.Errorf("command %s: %w", id, domain.ErrNotFound)
	}
	return c.Clone(), nil
}

// Commands returns every command, sorted by id.
func (s *EntityStore) Commands() []command.Command {
	return s.selectCommands(func(command.Command) bool { return true })
}

// RunningCommands returns the commands whose status is running, sorted by id.
func (s *EntityStore) RunningCommands() []command.Command {
	return s.selectCommands(func(c command.Command) bool { return c.Status == command.StatusRunning })
}

func (s *EntityStore) selectCommands(keep func(command.Command) bool) []command.Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]command.Command, 0, len(s.commands))
	for _, c := range s.commands {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b command.Command) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// --- Connections ---

// UpsertConnection creates the connection or merges the patch over it.
// A patch naming both endpoints publishes a collaboration hook.
func (s *EntityStore) UpsertConnection(ctx context.Context, p connection.Patch) (connection.Connection, error) {
	if err := p.Validate(); err != nil {
		slog.Warn("connection upsert rejected", "connection_id", p.ID, "error", err)
		return connection.Connection{}, err
	}
	now := s.now()

	s.mu.Lock()
	prev, existed := s.connections[p.ID]
	var next connection.Connection
	if existed {
		next = connection.Apply(prev, p)
	} else {
		next = connection.New(p, now)
	}
	s.connections[p.ID] = next

	msgType := connection.TypeData
	if p.Type != nil {
		msgType = *p.Type
	}
	var unknown []string
	if p.HasEndpoints() {
		key := pair{next.SourceAgentID, next.TargetAgentID}
		c, ok := s.collaboration[key]
		if !ok {
			c = &collabCounter{byType: make(map[string]int)}
			s.collaboration[key] = c
		}
		c.messages++
		c.byType[string(msgType)]++
		for _, id := range []string{next.SourceAgentID, next.TargetAgentID} {
			if _, ok := s.agents[id]; !ok {
				unknown = append(unknown, id)
			}
		}
	}
	s.version++
	s.mu.Unlock()

	if len(unknown) > 0 {
		slog.Warn("connection references unknown agents", "connection_id", next.ID, "agents", unknown)
	}
	if p.HasEndpoints() {
		s.publish(ctx, hook.New(hook.TriggerCommunication, next.SourceAgentID, hook.Collaboration{
			SourceAgent: next.SourceAgentID,
			TargetAgent: next.TargetAgentID,
			MessageType: string(msgType),
			PayloadSize: next.Bandwidth,
			Latency:     next.Latency,
		}))
	}
	return next, nil
}

// Connections returns every connection, sorted by id.
func (s *EntityStore) Connections() []connection.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Collect(maps.Values(s.connections))
	slices.SortFunc(out, func(a, b connection.Connection) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// CollaborationStat counts the collaboration events seen between two agents,
// in total and per message type.
type CollaborationStat struct {
	SourceAgent  string         `json:"source_agent"`
	TargetAgent  string         `json:"target_agent"`
	Messages     int            `json:"messages"`
	MessageTypes map[string]int `json:"message_types"`
}

// CollaborationStats returns the per-pair collaboration counters, sorted by
// source then target.
func (s *EntityStore) CollaborationStats() []CollaborationStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CollaborationStat, 0, len(s.collaboration))
	for p, c := range s.collaboration {
		out = append(out, CollaborationStat{
			SourceAgent:  p.source,
			TargetAgent:  p.target,
			Messages:     c.messages,
			MessageTypes: maps.Clone(c.byType),
		})
	}
	slices.SortFunc(out, func(a, b CollaborationStat) int {
		return cmp.Or(cmp.Compare(a.SourceAgent, b.SourceAgent), cmp.Compare(a.TargetAgent, b.TargetAgent))
	})
	return out
}

// --- Journal ---

// AppendLog records a log line. An error-level line also records an error
// entry and, when it names an agent, publishes an error-recovery hook.
func (s *EntityStore) AppendLog(ctx context.Context, req journal.LogRequest) journal.LogEntry {
	e := journal.NewLogEntry(req, s.now())
	isError := e.Level == journal.LevelError

	s.mu.Lock()
	s.logs.Push(e)
	previous := 0
	if isError {
		if e.AgentID != "" {
			previous = len(s.errors.Filter(func(x journal.ErrorEntry) bool { return x.AgentID == e.AgentID }))
		}
		s.errors.Push(journal.ErrorFromLog(e))
	}
	s.version++
	s.mu.Unlock()

	if isError && e.AgentID != "" {
		s.publish(ctx, hook.New(hook.TriggerErrorOccurred, e.AgentID, hook.ErrorRecovery{
			ErrorType:      journal.ErrorTypeApplication,
			ErrorMessage:   e.Message,
			RecoveryAction: RecoveryLogged,
			PreviousErrors: previous,
		}))
	}
	return e
}

// AppendError records an error report.
func (s *EntityStore) AppendError(_ context.Context, req journal.ErrorRequest) journal.ErrorEntry {
	e := journal.NewErrorEntry(req, s.now())
	s.mu.Lock()
	s.errors.Push(e)
	s.version++
	s.mu.Unlock()
	return e
}

// AppendAudit records an audit entry.
func (s *EntityStore) AppendAudit(_ context.Context, req journal.AuditRequest) journal.AuditEntry {
	e := journal.NewAuditEntry(req, s.now())
	s.mu.Lock()
	s.audit.Push(e)
	s.version++
	s.mu.Unlock()
	return e
}

// AppendMetric records a performance sample, classified against its
// threshold when it has one.
func (s *EntityStore) AppendMetric(_ context.Context, req dmetric.Request) dmetric.PerformanceMetric {
	m := dmetric.New(req, s.now())
	s.mu.Lock()
	s.metrics.Push(m)
	s.version++
	s.mu.Unlock()
	return m
}

// Logs returns the retained log lines, oldest first.
func (s *EntityStore) Logs() []journal.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Items()
}

// RecentErrors returns up to limit errors, newest first. A non-positive
// limit means DefaultRecentErrors.
func (s *EntityStore) RecentErrors(limit int) []journal.ErrorEntry {
	if limit <= 0 {
		limit = DefaultRecentErrors
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errors.Last(limit)
}

// Audit returns the retained audit entries, oldest first.
func (s *EntityStore) Audit() []journal.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audit.Items()
}

// Metrics returns the retained performance samples, oldest first.
func (s *EntityStore) Metrics() []dmetric.PerformanceMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics.Items()
}

// CriticalMetrics returns the retained samples classified critical, oldest first.
func (s *EntityStore) CriticalMetrics() []dmetric.PerformanceMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics.Filter(func(m dmetric.PerformanceMetric) bool { return m.Status == dmetric.StatusCritical })
}

// --- Snapshots and housekeeping ---

// Counts summarizes the size of every collection.
type Counts struct {
	Agents          int `json:"agents"`
	ActiveAgents    int `json:"active_agents"`
	Commands        int `json:"commands"`
	RunningCommands int `json:"running_commands"`
	Connections     int `json:"connections"`
	Logs            int `json:"logs"`
	Errors          int `json:"errors"`
	Audit           int `json:"audit"`
	Metrics         int `json:"metrics"`
}

// Counts returns the current collection sizes.
func (s *EntityStore) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{
		Agents:      len(s.agents),
		Commands:    len(s.commands),
		Connections: len(s.connections),
		Logs:        s.logs.Len(),
		Errors:      s.errors.Len(),
		Audit:       s.audit.Len(),
		Metrics:     s.metrics.Len(),
	}
	for _, a := range s.agents {
		if a.Status == agent.StatusActive {
			c.ActiveAgents++
		}
	}
	for _, cmd := range s.commands {
		if cmd.Status == command.StatusRunning {
			c.RunningCommands++
		}
	}
	return c
}

// Version increases on every mutation.
func (s *EntityStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// TimeRange bounds a snapshot. A zero Start or End leaves that side open.
type TimeRange struct {
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// Contains reports whether t falls inside the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Snapshot is a read-only copy of the store for export and reporting.
type Snapshot struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Range       TimeRange                   `json:"range"`
	Agents      []agent.Agent               `json:"agents"`
	Commands    []command.Command           `json:"commands"`
	Connections []connection.Connection     `json:"connections"`
	Logs        []journal.LogEntry          `json:"logs"`
	Errors      []journal.ErrorEntry        `json:"errors"`
	Audit       []journal.AuditEntry        `json:"audit"`
	Metrics     []dmetric.PerformanceMetric `json:"metrics"`
}

// Snapshot copies the current state. Agents and connections are included
// whole; commands and history entries are filtered by their timestamp.
func (s *EntityStore) Snapshot(r TimeRange) Snapshot {
	commands := s.selectCommands(func(c command.Command) bool { return r.Contains(c.Timestamp) })
	snap := Snapshot{
		GeneratedAt: s.now(),
		Range:       r,
		Agents:      s.Agents(),
		Commands:    commands,
		Connections: s.Connections(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap.Logs = s.logs.Filter(func(e journal.LogEntry) bool { return r.Contains(e.Timestamp) })
	snap.Errors = s.errors.Filter(func(e journal.ErrorEntry) bool { return r.Contains(e.Timestamp) })
	snap.Audit = s.audit.Filter(func(e journal.AuditEntry) bool { return r.Contains(e.Timestamp) })
	snap.Metrics = s.metrics.Filter(func(m dmetric.PerformanceMetric) bool { return r.Contains(m.Timestamp) })
	return snap
}

// Clear drops all state and history.
func (s *EntityStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.agents)
	clear(s.statusSince)
	clear(s.commands)
	clear(s.connections)
	clear(s.collaboration)
	s.logs.Clear()
	s.errors.Clear()
	s.audit.Clear()
	s.metrics.Clear()
	s.version++
}
