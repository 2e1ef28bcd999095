package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain/agent"
	"github.com/Strob0t/fleetwatch/internal/domain/command"
	"github.com/Strob0t/fleetwatch/internal/domain/connection"
	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/domain/journal"
	dmetric "github.com/Strob0t/fleetwatch/internal/domain/metric"
	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
	"github.com/Strob0t/fleetwatch/internal/port/cache"
	"github.com/Strob0t/fleetwatch/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Orchestrator *service.Orchestrator

	// Cache holds serialized list responses keyed by store version. Nil disables it.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// cachedJSON serves build() from the response cache while the store is
// unchanged. Hook listings are not store-backed and never go through here.
func (h *Handlers) cachedJSON(w http.ResponseWriter, r *http.Request, build func() any) {
	if h.Cache == nil {
		writeJSON(w, http.StatusOK, build())
		return
	}
	ctx := r.Context()
	key := "q:" + r.URL.Path + "?" + r.URL.RawQuery + "@" + strconv.FormatUint(h.Orchestrator.Version(), 10)

	if data, ok, err := h.Cache.Get(ctx, key); err == nil && ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	data, err := json.Marshal(build())
	if err != nil {
		slog.Error("marshal response", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	data = append(data, '\n')
	if err := h.Cache.Set(ctx, key, data, h.CacheTTL); err != nil {
		slog.Debug("response cache set failed", "key", key, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- Agents ---

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.ListAgents() })
}

// ListActiveAgents handles GET /api/v1/agents/active
func (h *Handlers) ListActiveAgents(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.ActiveAgents() })
}

// GetAgent handles GET /api/v1/agents/{id}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Orchestrator.Agent(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UpsertAgent handles POST /api/v1/agents
func (h *Handlers) UpsertAgent(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[agent.Patch](w, r)
	if !ok {
		return
	}
	a, err := h.Orchestrator.UpsertAgent(r.Context(), p)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAgent handles DELETE /api/v1/agents/{id}. Removing an unknown agent
// succeeds.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	n := h.Orchestrator.RemoveAgent(r.Context(), urlParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]int{"connections_removed": n})
}

// --- Commands ---

// ListCommands handles GET /api/v1/commands
func (h *Handlers) ListCommands(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.ListCommands() })
}

// ListRunningCommands handles GET /api/v1/commands/running
func (h *Handlers) ListRunningCommands(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.RunningCommands() })
}

// GetCommand handles GET /api/v1/commands/{id}
func (h *Handlers) GetCommand(w http.ResponseWriter, r *http.Request) {
	c, err := h.Orchestrator.Command(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpsertCommand handles POST /api/v1/commands
func (h *Handlers) UpsertCommand(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[command.Patch](w, r)
	if !ok {
		return
	}
	c, err := h.Orchestrator.UpsertCommand(r.Context(), p)
	if err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RetryCommand handles POST /api/v1/commands/{id}/retry
func (h *Handlers) RetryCommand(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if h.Orchestrator.RetryCommand(r.Context(), id) {
		h.writeCommand(w, id)
		return
	}
	if _, err := h.Orchestrator.Command(id); err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeError(w, http.StatusConflict, "retry budget exhausted")
}

// CancelCommand handles POST /api/v1/commands/{id}/cancel
func (h *Handlers) CancelCommand(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if h.Orchestrator.CancelCommand(r.Context(), id) {
		h.writeCommand(w, id)
		return
	}
	if _, err := h.Orchestrator.Command(id); err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeError(w, http.StatusConflict, "command is not queued or running")
}

func (h *Handlers) writeCommand(w http.ResponseWriter, id string) {
	c, err := h.Orchestrator.Command(id)
	if err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- Connections ---

// ListConnections handles GET /api/v1/connections
func (h *Handlers) ListConnections(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.ListConnections() })
}

// UpsertConnection handles POST /api/v1/connections
func (h *Handlers) UpsertConnection(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[connection.Patch](w, r)
	if !ok {
		return
	}
	c, err := h.Orchestrator.UpsertConnection(r.Context(), p)
	if err != nil {
		writeDomainError(w, err, "connection not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- Journals ---

// ListLogs handles GET /api/v1/logs
func (h *Handlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.ListLogs() })
}

// AppendLog handles POST /api/v1/logs
func (h *Handlers) AppendLog(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[journal.LogRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, h.Orchestrator.AppendLog(r.Context(), req))
}

// ListErrors handles GET /api/v1/errors?limit=N (newest first)
func (h *Handlers) ListErrors(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	h.cachedJSON(w, r, func() any { return h.Orchestrator.RecentErrors(limit) })
}

// AppendError handles POST /api/v1/errors
func (h *Handlers) AppendError(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[journal.ErrorRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, h.Orchestrator.AppendError(r.Context(), req))
}

// ListAudit handles GET /api/v1/audit
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.ListAudit() })
}

// AppendAudit handles POST /api/v1/audit
func (h *Handlers) AppendAudit(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[journal.AuditRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, h.Orchestrator.AppendAudit(r.Context(), req))
}

// ListMetrics handles GET /api/v1/metrics
func (h *Handlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.ListMetrics() })
}

// ListCriticalMetrics handles GET /api/v1/metrics/critical
func (h *Handlers) ListCriticalMetrics(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.CriticalMetrics() })
}

// AppendMetric handles POST /api/v1/metrics
func (h *Handlers) AppendMetric(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[dmetric.Request](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, h.Orchestrator.AppendMetric(r.Context(), req))
}

// --- Hooks ---

// ListHooks handles GET /api/v1/hooks?type=T
func (h *Handlers) ListHooks(w http.ResponseWriter, r *http.Request) {
	selector := r.URL.Query().Get("type")
	if selector == "" {
		writeJSON(w, http.StatusOK, h.Orchestrator.ListHooks())
		return
	}
	if !hook.ValidSelector(selector) {
		writeError(w, http.StatusBadRequest, "unknown hook type "+strconv.Quote(selector))
		return
	}
	writeJSON(w, http.StatusOK, h.Orchestrator.HooksByType(hook.Type(selector)))
}

// GetHook handles GET /api/v1/hooks/{id}
func (h *Handlers) GetHook(w http.ResponseWriter, r *http.Request) {
	hk, err := h.Orchestrator.Hook(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "hook not found")
		return
	}
	writeJSON(w, http.StatusOK, hk)
}

type decisionRequest struct {
	AgentID string `json:"agent_id"`
	hook.DecisionPoint
}

// RecordDecision handles POST /api/v1/decisions
func (h *Handlers) RecordDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}
	hk, err := h.Orchestrator.RecordDecision(r.Context(), req.AgentID, req.DecisionPoint)
	if err != nil {
		writeDomainError(w, err, "decision not recorded")
		return
	}
	writeJSON(w, http.StatusCreated, hk)
}

type knowledgeRequest struct {
	AgentID string `json:"agent_id"`
	hook.KnowledgeUpdate
}

// RecordKnowledgeUpdate handles POST /api/v1/knowledge
func (h *Handlers) RecordKnowledgeUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[knowledgeRequest](w, r)
	if !ok {
		return
	}
	hk, err := h.Orchestrator.RecordKnowledgeUpdate(r.Context(), req.AgentID, req.KnowledgeUpdate)
	if err != nil {
		writeDomainError(w, err, "knowledge update not recorded")
		return
	}
	writeJSON(w, http.StatusCreated, hk)
}

// --- Thresholds ---

// ListThresholds handles GET /api/v1/thresholds
func (h *Handlers) ListThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Rules())
}

// PutThreshold handles PUT /api/v1/thresholds/{id}
func (h *Handlers) PutThreshold(w http.ResponseWriter, r *http.Request) {
	rule, ok := readJSON[threshold.Rule](w, r)
	if !ok {
		return
	}
	if err := rule.Validate(); err != nil {
		writeDomainError(w, err, "invalid threshold")
		return
	}
	id := urlParam(r, "id")
	h.Orchestrator.AddRule(id, rule)
	writeJSON(w, http.StatusOK, threshold.Named{ID: id, Rule: rule})
}

// DeleteThreshold handles DELETE /api/v1/thresholds/{id}
func (h *Handlers) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	if !h.Orchestrator.RemoveRule(urlParam(r, "id")) {
		writeError(w, http.StatusNotFound, "threshold not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Snapshots & stats ---

// GetSnapshot handles GET /api/v1/snapshot?start=&end=
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	start, ok := queryTime(w, r, "start")
	if !ok {
		return
	}
	end, ok := queryTime(w, r, "end")
	if !ok {
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must not be before start")
		return
	}
	h.cachedJSON(w, r, func() any {
		return h.Orchestrator.Snapshot(service.TimeRange{Start: start, End: end})
	})
}

// CollaborationStats handles GET /api/v1/stats/collaboration
func (h *Handlers) CollaborationStats(w http.ResponseWriter, r *http.Request) {
	h.cachedJSON(w, r, func() any { return h.Orchestrator.CollaborationStats() })
}

// KnowledgeStats handles GET /api/v1/stats/knowledge
func (h *Handlers) KnowledgeStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.KnowledgeStats())
}

// Stats handles GET /api/v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Counts())
}
