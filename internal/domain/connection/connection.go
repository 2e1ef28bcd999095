// Package connection defines the link between two agents.
package connection

import (
	"fmt"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain"
)

// Type is the kind of traffic carried by a connection.
type Type string

const (
	TypeData      Type = "data"
	TypeCommand   Type = "command"
	TypeSync      Type = "sync"
	TypeHeartbeat Type = "heartbeat"
)

// Valid reports whether t is a known connection type.
func (t Type) Valid() bool {
	switch t {
	case TypeData, TypeCommand, TypeSync, TypeHeartbeat:
		return true
	}
	return false
}

// Status is the health of a connection.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// Valid reports whether s is a known connection status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusError:
		return true
	}
	return false
}

// UnknownAgent is the placeholder endpoint for connections created
// without a source or target.
const UnknownAgent = "unknown"

// Connection links a source agent to a target agent.
type Connection struct {
	ID            string    `json:"id"`
	SourceAgentID string    `json:"source_agent_id"`
	TargetAgentID string    `json:"target_agent_id"`
	Type          Type      `json:"type"`
	Status        Status    `json:"status"`
	Bandwidth     float64   `json:"bandwidth"`
	Latency       float64   `json:"latency"`
	Established   time.Time `json:"established"`
	LastActivity  time.Time `json:"last_activity"`
	MessageCount  int       `json:"message_count"`
}

// Touches reports whether agentID is either endpoint of the connection.
func (c Connection) Touches(agentID string) bool {
	return c.SourceAgentID == agentID || c.TargetAgentID == agentID
}

// Patch is a partial connection update. Nil fields are left untouched.
type Patch struct {
	ID            string     `json:"id"`
	SourceAgentID *string    `json:"source_agent_id,omitempty"`
	TargetAgentID *string    `json:"target_agent_id,omitempty"`
	Type          *Type      `json:"type,omitempty"`
	Status        *Status    `json:"status,omitempty"`
	Bandwidth     *float64   `json:"bandwidth,omitempty"`
	Latency       *float64   `json:"latency,omitempty"`
	Established   *time.Time `json:"established,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
	MessageCount  *int       `json:"message_count,omitempty"`
}

// Validate checks the id and that enumerated fields hold known values.
func (p Patch) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: connection id is required", domain.ErrValidation)
	}
	if p.Type != nil && !p.Type.Valid() {
		return fmt.Errorf("%w: unknown connection type %q", domain.ErrValidation, *p.Type)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown connection status %q", domain.ErrValidation, *p.Status)
	}
	return nil
}

// HasEndpoints reports whether the patch names both agents.
func (p Patch) HasEndpoints() bool {
	return p.SourceAgentID != nil && *p.SourceAgentID != "" &&
		p.TargetAgentID != nil && *p.TargetAgentID != ""
}

// New builds a Connection from a patch, filling defaults for absent fields.
func New(p Patch, now time.Time) Connection {
	c := Connection{
		ID:            p.ID,
		SourceAgentID: UnknownAgent,
		TargetAgentID: UnknownAgent,
		Type:          TypeData,
		Status:        StatusInactive,
		Established:   now,
		LastActivity:  now,
	}
	return Apply(c, p)
}

// Apply merges the overridable fields of p over c and returns the result.
func Apply(c Connection, p Patch) Connection {
	out := c
	if p.SourceAgentID != nil {
		out.SourceAgentID = *p.SourceAgentID
	}
	if p.TargetAgentID != nil {
		out.TargetAgentID = *p.TargetAgentID
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Bandwidth != nil {
		out.Bandwidth = *p.Bandwidth
	}
	if p.Latency != nil {
		out.Latency = *p.Latency
	}
	if p.Established != nil {
		out.Established = *p.Established
	}
	if p.LastActivity != nil {
		out.LastActivity = *p.LastActivity
	}
	if p.MessageCount != nil {
		out.MessageCount = *p.MessageCount
	}
	return out
}
