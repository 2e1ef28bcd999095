package messagequeue

import (
	"github.com/Strob0t/fleetwatch/internal/domain/agent"
	"github.com/Strob0t/fleetwatch/internal/domain/command"
	"github.com/Strob0t/fleetwatch/internal/domain/connection"
	"github.com/Strob0t/fleetwatch/internal/domain/journal"
	"github.com/Strob0t/fleetwatch/internal/domain/metric"
)

// IDPayload is the schema for fleet.agents.remove, fleet.commands.retry and
// fleet.commands.cancel messages.
type IDPayload struct {
	ID string `json:"id"`
}

// AgentUpsertPayload is the schema for fleet.agents.upsert messages.
type AgentUpsertPayload = agent.Patch

// CommandUpsertPayload is the schema for fleet.commands.upsert messages.
type CommandUpsertPayload = command.Patch

// ConnectionUpsertPayload is the schema for fleet.connections.upsert messages.
type ConnectionUpsertPayload = connection.Patch

// LogPayload is the schema for fleet.logs messages.
type LogPayload = journal.LogRequest

// AuditPayload is the schema for fleet.audit messages.
type AuditPayload = journal.AuditRequest

// MetricPayload is the schema for fleet.metrics messages.
type MetricPayload = metric.Request
