package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.UpsertAgent)
		r.Get("/agents/active", h.ListActiveAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Delete("/agents/{id}", h.DeleteAgent)

		// Commands
		r.Get("/commands", h.ListCommands)
		r.Post("/commands", h.UpsertCommand)
		r.Get("/commands/running", h.ListRunningCommands)
		r.Get("/commands/{id}", h.GetCommand)
		r.Post("/commands/{id}/retry", h.RetryCommand)
		r.Post("/commands/{id}/cancel", h.CancelCommand)

		// Connections
		r.Get("/connections", h.ListConnections)
		r.Post("/connections", h.UpsertConnection)

		// Journals
		r.Get("/logs", h.ListLogs)
		r.Post("/logs", h.AppendLog)
		r.Get("/errors", h.ListErrors)
		r.Post("/errors", h.AppendError)
		r.Get("/audit", h.ListAudit)
		r.Post("/audit", h.AppendAudit)
		r.Get("/metrics", h.ListMetrics)
		r.Post("/metrics", h.AppendMetric)
		r.Get("/metrics/critical", h.ListCriticalMetrics)

		// Hooks
		r.Get("/hooks", h.ListHooks)
		r.Get("/hooks/{id}", h.GetHook)
		r.Post("/decisions", h.RecordDecision)
		r.Post("/knowledge", h.RecordKnowledgeUpdate)

		// Thresholds
		r.Get("/thresholds", h.ListThresholds)
		r.Put("/thresholds/{id}", h.PutThreshold)
		r.Delete("/thresholds/{id}", h.DeleteThreshold)

		// Snapshots & stats
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/stats", h.Stats)
		r.Get("/stats/collaboration", h.CollaborationStats)
		r.Get("/stats/knowledge", h.KnowledgeStats)
	})
}
