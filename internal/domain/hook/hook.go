// Package hook defines the typed observability events published on the hook bus.
package hook

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Type identifies the kind of hook.
type Type string

const (
	TypePerformanceMetric Type = "performance-metric"
	TypeAgentStateChange  Type = "agent-state-change"
	TypeResourceThreshold Type = "resource-threshold"
	TypeCollaboration     Type = "collaboration"
	TypeErrorRecovery     Type = "error-recovery"
	TypeDecisionPoint     Type = "decision-point"
	TypeKnowledgeUpdate   Type = "knowledge-update"

	// TypeAny is the subscription selector that matches every hook type.
	// It is never the type of a published hook.
	TypeAny Type = "*"
)

// Types lists every concrete hook type.
func Types() []Type {
	return []Type{
		TypePerformanceMetric,
		TypeAgentStateChange,
		TypeResourceThreshold,
		TypeCollaboration,
		TypeErrorRecovery,
		TypeDecisionPoint,
		TypeKnowledgeUpdate,
	}
}

// ValidType reports whether s names a concrete hook type.
func ValidType(s string) bool {
	for _, t := range Types() {
		if string(t) == s {
			return true
		}
	}
	return false
}

// ValidSelector reports whether s is a concrete type or the wildcard.
func ValidSelector(s string) bool {
	return s == string(TypeAny) || ValidType(s)
}

// Matches reports whether the selector s accepts hooks of type t.
func (s Type) Matches(t Type) bool {
	return s == TypeAny || s == t
}

// Trigger labels describing what produced a hook.
const (
	TriggerToolExecutionComplete = "tool_execution_complete"
	TriggerResourceUsageUpdate   = "resource_usage_update"
	TriggerStateTransition       = "agent_state_transition"
	TriggerCommunication         = "agent_communication"
	TriggerErrorOccurred         = "error_occurred"
	TriggerCriticalDecision      = "critical_decision"
	TriggerKnowledgeModified     = "knowledge_graph_modified"
	TriggerResourceExceeded      = "resource_usage_exceeded"
)

// Priority is a classification label. It never reorders delivery.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// PriorityFor derives the priority label from the hook type name.
func PriorityFor(t Type) Priority {
	name := string(t)
	switch {
	case strings.Contains(name, "error"), strings.Contains(name, "threshold"):
		return PriorityHigh
	case strings.Contains(name, "performance"), strings.Contains(name, "state-change"):
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Metadata carries bus bookkeeping for a hook.
type Metadata struct {
	Priority  Priority `json:"priority"`
	Processed bool     `json:"processed"`
	Retries   int      `json:"retries"`

	// Depth counts how many hooks caused this one: 0 for hooks published
	// directly by a mutation, 1 for an alert raised while dispatching it.
	Depth int `json:"depth"`
	// CascadeRoot is the id of the depth-0 hook that started the cascade.
	CascadeRoot string `json:"cascade_root,omitempty"`
}

// Hook is an immutable record of something that happened in the fleet.
// The payload's concrete type always matches Type.
type Hook struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Payload   Payload   `json:"data"`
	Metadata  Metadata  `json:"metadata"`
}

// New builds an unpublished hook whose type is taken from the payload.
func New(trigger, agentID string, p Payload) Hook {
	return Hook{
		Type:    p.Kind(),
		Trigger: trigger,
		AgentID: agentID,
		Payload: p,
	}
}

// Clone returns a copy of h whose payload shares no maps, slices or
// pointers with the original.
func (h Hook) Clone() Hook {
	switch p := h.Payload.(type) {
	case ThresholdAlert:
		p.Source = maps.Clone(p.Source)
		h.Payload = p
	case ToolExecution:
		if p.Resources != nil {
			r := *p.Resources
			p.Resources = &r
		}
		h.Payload = p
	case DecisionPoint:
		p.Options = slices.Clone(p.Options)
		h.Payload = p
	}
	return h
}

// Fields returns the flattened payload fields, or an empty map when the
// hook has no payload.
func (h Hook) Fields() map[string]any {
	if h.Payload == nil {
		return map[string]any{}
	}
	return h.Payload.Fields()
}

// Field returns a single payload field.
func (h Hook) Field(name string) (any, bool) {
	v, ok := h.Fields()[name]
	return v, ok
}
