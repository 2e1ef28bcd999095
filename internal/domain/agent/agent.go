// Package agent defines the Agent domain entity.
package agent

import (
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain"
)

// Type classifies what an agent does in the fleet.
type Type string

const (
	TypeResearch     Type = "research"
	TypeAnalysis     Type = "analysis"
	TypeExecution    Type = "execution"
	TypeCoordination Type = "coordination"
	TypeMonitoring   Type = "monitoring"
)

// ValidType reports whether t is a known agent type.
func ValidType(t string) bool {
	switch Type(t) {
	case TypeResearch, TypeAnalysis, TypeExecution, TypeCoordination, TypeMonitoring:
		return true
	}
	return false
}

// Status represents the current state of an agent.
type Status string

const (
	StatusActive      Status = "active"
	StatusIdle        Status = "idle"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
)

// ValidStatus reports whether s is a known agent status.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusActive, StatusIdle, StatusError, StatusMaintenance:
		return true
	}
	return false
}

// DefaultVersion is assigned to agents created without a version.
const DefaultVersion = "1.0.0"

// Metrics holds the resource figures an agent last reported.
type Metrics struct {
	TasksCompleted      int     `json:"tasks_completed"`
	CPUUsage            float64 `json:"cpu_usage"`
	MemoryUsage         float64 `json:"memory_usage"`
	NetworkActivity     float64 `json:"network_activity"`
	DiskIO              float64 `json:"disk_io"`
	ActiveConnections   int     `json:"active_connections"`
	ErrorCount          int     `json:"error_count"`
	AverageResponseTime float64 `json:"average_response_time"`
}

// ErrorRate returns errors as a percentage of all finished work
// (completed tasks plus errors). Zero when nothing has finished yet.
func (m Metrics) ErrorRate() float64 {
	total := m.TasksCompleted + m.ErrorCount
	if total == 0 {
		return 0
	}
	return float64(m.ErrorCount) * 100 / float64(total)
}

// Agent is one autonomous worker in the observed fleet.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         Type      `json:"type"`
	Status       Status    `json:"status"`
	Metrics      Metrics   `json:"metrics"`
	Uptime       int64     `json:"uptime"`
	LastActivity time.Time `json:"last_activity"`
	Capabilities []string  `json:"capabilities"`
	Version      string    `json:"version"`
}

// Patch is a partial agent update. Nil fields are left untouched.
type Patch struct {
	ID           string     `json:"id"`
	Name         *string    `json:"name,omitempty"`
	Type         *Type      `json:"type,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	Metrics      *Metrics   `json:"metrics,omitempty"`
	Uptime       *int64     `json:"uptime,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
	Version      *string    `json:"version,omitempty"`

	// Reason describes why the status changed. It is carried on the
	// state-change hook and never stored on the agent.
	Reason string `json:"reason,omitempty"`
}

// Validate checks the id and that enumerated fields hold known values.
func (p Patch) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: agent id is required", domain.ErrValidation)
	}
	if p.Type != nil && !ValidType(string(*p.Type)) {
		return fmt.Errorf("%w: unknown agent type %q", domain.ErrValidation, *p.Type)
	}
	if p.Status != nil && !ValidStatus(string(*p.Status)) {
		return fmt.Errorf("%w: unknown agent status %q", domain.ErrValidation, *p.Status)
	}
	return nil
}

// New builds an Agent from a patch, filling defaults for absent fields.
func New(p Patch, now time.Time) Agent {
	a := Agent{
		ID:           p.ID,
		Name:         "Agent " + p.ID,
		Type:         TypeExecution,
		Status:       StatusIdle,
		LastActivity: now,
		Capabilities: []string{},
		Version:      DefaultVersion,
	}
	return Apply(a, p)
}

// Apply merges the overridable fields of p over a and returns the result.
// The ID is never changed.
func Apply(a Agent, p Patch) Agent {
	out := a
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Metrics != nil {
		out.Metrics = *p.Metrics
	}
	if p.Uptime != nil {
		out.Uptime = *p.Uptime
	}
	if p.LastActivity != nil {
		out.LastActivity = *p.LastActivity
	}
	if p.Capabilities != nil {
		out.Capabilities = slices.Clone(p.Capabilities)
	} else {
		out.Capabilities = slices.Clone(a.Capabilities)
	}
	if p.Version != nil {
		out.Version = *p.Version
	}
	return out
}

// Clone returns a copy of a that shares no mutable state with it.
func (a Agent) Clone() Agent {
	a.Capabilities = slices.Clone(a.Capabilities)
	return a
}
