package hook

import "maps"

// Payload is the typed body of a hook. Each hook type has its own payload
// struct; Fields flattens it for filters and threshold rules.
type Payload interface {
	Kind() Type
	Fields() map[string]any
}

// ResourceUsage is a sampled snapshot of one agent's resource figures.
type ResourceUsage struct {
	CPUUsage            float64 `json:"cpu_usage"`
	MemoryUsage         float64 `json:"memory_usage"`
	DiskIO              float64 `json:"disk_io"`
	NetworkIO           float64 `json:"network_io"`
	ActiveConnections   int     `json:"active_connections"`
	AverageResponseTime float64 `json:"average_response_time"`
	ErrorCount          int     `json:"error_count"`
	TasksCompleted      int     `json:"tasks_completed"`
	ErrorRate           float64 `json:"error_rate"`
}

func (ResourceUsage) Kind() Type { return TypePerformanceMetric }

func (p ResourceUsage) Fields() map[string]any {
	return map[string]any{
		"cpu_usage":             p.CPUUsage,
		"memory_usage":          p.MemoryUsage,
		"disk_io":               p.DiskIO,
		"network_io":            p.NetworkIO,
		"active_connections":    p.ActiveConnections,
		"average_response_time": p.AverageResponseTime,
		"error_count":           p.ErrorCount,
		"tasks_completed":       p.TasksCompleted,
		"error_rate":            p.ErrorRate,
	}
}

// ToolExecution reports a command that finished running. Resources is nil
// when the agent could not be sampled.
type ToolExecution struct {
	CommandID     string         `json:"command_id"`
	AgentID       string         `json:"agent_id"`
	ExecutionTime int64          `json:"execution_time"`
	Resources     *ResourceUsage `json:"resources,omitempty"`
}

func (ToolExecution) Kind() Type { return TypePerformanceMetric }

func (p ToolExecution) Fields() map[string]any {
	f := map[string]any{
		"command_id":     p.CommandID,
		"agent_id":       p.AgentID,
		"execution_time": p.ExecutionTime,
	}
	if p.Resources != nil {
		f["cpu_usage"] = p.Resources.CPUUsage
		f["memory_usage"] = p.Resources.MemoryUsage
	}
	return f
}

// StateChange reports an agent moving between statuses.
type StateChange struct {
	PreviousState string `json:"previous_state"`
	NewState      string `json:"new_state"`
	Reason        string `json:"transition_reason"`
	// DwellTime is how long the agent stayed in PreviousState, in milliseconds.
	DwellTime int64 `json:"duration_in_previous_state"`
}

func (StateChange) Kind() Type { return TypeAgentStateChange }

func (p StateChange) Fields() map[string]any {
	return map[string]any{
		"previous_state":             p.PreviousState,
		"new_state":                  p.NewState,
		"transition_reason":          p.Reason,
		"duration_in_previous_state": p.DwellTime,
	}
}

// Collaboration reports traffic between two agents.
type Collaboration struct {
	SourceAgent string  `json:"source_agent"`
	TargetAgent string  `json:"target_agent"`
	MessageType string  `json:"message_type"`
	PayloadSize float64 `json:"payload_size"`
	Latency     float64 `json:"latency"`
}

func (Collaboration) Kind() Type { return TypeCollaboration }

func (p Collaboration) Fields() map[string]any {
	return map[string]any{
		"source_agent": p.SourceAgent,
		"target_agent": p.TargetAgent,
		"message_type": p.MessageType,
		"payload_size": p.PayloadSize,
		"latency":      p.Latency,
	}
}

// ErrorRecovery reports an error and what was done about it.
type ErrorRecovery struct {
	ErrorType      string `json:"error_type"`
	ErrorMessage   string `json:"error_message"`
	RecoveryAction string `json:"recovery_action"`
	CommandID      string `json:"command_id,omitempty"`
	RetryCount     int    `json:"retry_count"`
	PreviousErrors int    `json:"previous_errors"`
}

func (ErrorRecovery) Kind() Type { return TypeErrorRecovery }

func (p ErrorRecovery) Fields() map[string]any {
	f := map[string]any{
		"error_type":      p.ErrorType,
		"error_message":   p.ErrorMessage,
		"recovery_action": p.RecoveryAction,
		"retry_count":     p.RetryCount,
		"previous_errors": p.PreviousErrors,
	}
	if p.CommandID != "" {
		f["command_id"] = p.CommandID
	}
	return f
}

// DecisionPoint records a decision an agent made and the options it had.
type DecisionPoint struct {
	DecisionType string   `json:"decision_type"`
	Options      []string `json:"options"`
	Selected     string   `json:"selected_option"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
}

func (DecisionPoint) Kind() Type { return TypeDecisionPoint }

func (p DecisionPoint) Fields() map[string]any {
	return map[string]any{
		"decision_type":   p.DecisionType,
		"options":         append([]string(nil), p.Options...),
		"selected_option": p.Selected,
		"confidence":      p.Confidence,
		"reasoning":       p.Reasoning,
	}
}

// KnowledgeUpdate records a change to the shared knowledge graph.
type KnowledgeUpdate struct {
	Operation    string `json:"operation"`
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`
	ChangesCount int    `json:"changes_count"`
}

func (KnowledgeUpdate) Kind() Type { return TypeKnowledgeUpdate }

func (p KnowledgeUpdate) Fields() map[string]any {
	return map[string]any{
		"operation":     p.Operation,
		"entity_type":   p.EntityType,
		"entity_id":     p.EntityID,
		"changes_count": p.ChangesCount,
	}
}

// ThresholdAlert is raised when a threshold rule matches a hook payload.
// Source holds the fields of the hook that triggered it.
type ThresholdAlert struct {
	ThresholdID    string         `json:"threshold_id"`
	Metric         string         `json:"metric"`
	Operator       string         `json:"operator"`
	ThresholdValue float64        `json:"threshold_value"`
	CurrentValue   float64        `json:"current_value"`
	Severity       string         `json:"severity"`
	SourceHookID   string         `json:"source_hook_id"`
	SourceHookType Type           `json:"source_hook_type"`
	Source         map[string]any `json:"source,omitempty"`
}

func (ThresholdAlert) Kind() Type { return TypeResourceThreshold }

// Fields merges the source payload under the alert's own fields, so an
// alert can still be filtered by the agent figures that caused it.
func (p ThresholdAlert) Fields() map[string]any {
	f := maps.Clone(p.Source)
	if f == nil {
		f = make(map[string]any, 8)
	}
	f["threshold_id"] = p.ThresholdID
	f["metric"] = p.Metric
	f["operator"] = p.Operator
	f["threshold_value"] = p.ThresholdValue
	f["current_value"] = p.CurrentValue
	f["severity"] = p.Severity
	f["source_hook_id"] = p.SourceHookID
	f["source_hook_type"] = string(p.SourceHookType)
	return f
}
