// Package journal defines the append-only records kept about the fleet:
// log lines, error reports and audit entries.
package journal

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Category groups log lines by origin.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryApplication Category = "application"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
)

// Severity ranks errors and audit entries.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorTypeApplication marks error entries synthesized from error-level logs.
const ErrorTypeApplication = "application_error"

// LogEntry is one immutable log line.
type LogEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      Level          `json:"level"`
	Message    string         `json:"message"`
	Source     string         `json:"source"`
	AgentID    string         `json:"agent_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Category   Category       `json:"category"`
}

// LogRequest carries the caller-supplied fields of a log line.
// Zero values are replaced by defaults.
type LogRequest struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitzero"`
	Level      Level          `json:"level,omitempty"`
	Message    string         `json:"message"`
	Source     string         `json:"source,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Category   Category       `json:"category,omitempty"`
}

// NewLogEntry builds a LogEntry, defaulting id, timestamp, level, source and category.
func NewLogEntry(req LogRequest, now time.Time) LogEntry {
	e := LogEntry{
		ID:         req.ID,
		Timestamp:  req.Timestamp,
		Level:      req.Level,
		Message:    req.Message,
		Source:     req.Source,
		AgentID:    req.AgentID,
		Metadata:   maps.Clone(req.Metadata),
		StackTrace: req.StackTrace,
		Category:   req.Category,
	}
	if e.ID == "" {
		e.ID = newID("log")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	if e.Source == "" {
		e.Source = "system"
	}
	if e.Category == "" {
		e.Category = CategorySystem
	}
	return e
}

// ErrorEntry is one immutable error report.
type ErrorEntry struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Type            string    `json:"type"`
	Message         string    `json:"message"`
	Stack           string    `json:"stack,omitempty"`
	AgentID         string    `json:"agent_id,omitempty"`
	CommandID       string    `json:"command_id,omitempty"`
	Severity        Severity  `json:"severity"`
	Resolved        bool      `json:"resolved"`
	Resolution      string    `json:"resolution,omitempty"`
	Occurrences     int       `json:"occurrences"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}

// ErrorRequest carries the caller-supplied fields of an error report.
type ErrorRequest struct {
	ID         string    `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	Type       string    `json:"type,omitempty"`
	Message    string    `json:"message"`
	Stack      string    `json:"stack,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	CommandID  string    `json:"command_id,omitempty"`
	Severity   Severity  `json:"severity,omitempty"`
	Resolved   bool      `json:"resolved,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
}

// NewErrorEntry builds an ErrorEntry with a single occurrence.
func NewErrorEntry(req ErrorRequest, now time.Time) ErrorEntry {
	e := ErrorEntry{
		ID:          req.ID,
		Timestamp:   req.Timestamp,
		Type:        req.Type,
		Message:     req.Message,
		Stack:       req.Stack,
		AgentID:     req.AgentID,
		CommandID:   req.CommandID,
		Severity:    req.Severity,
		Resolved:    req.Resolved,
		Resolution:  req.Resolution,
		Occurrences: 1,
	}
	if e.ID == "" {
		e.ID = newID("error")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Type == "" {
		e.Type = ErrorTypeApplication
	}
	if e.Severity == "" {
		e.Severity = SeverityMedium
	}
	e.FirstOccurrence = e.Timestamp
	e.LastOccurrence = e.Timestamp
	return e
}

// ErrorFromLog synthesizes the error report that accompanies an error-level log line.
func ErrorFromLog(e LogEntry) ErrorEntry {
	return NewErrorEntry(ErrorRequest{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      ErrorTypeApplication,
		Message:   e.Message,
		Stack:     e.StackTrace,
		AgentID:   e.AgentID,
		Severity:  SeverityMedium,
	}, e.Timestamp)
}

// AuditResult is the outcome of an audited action.
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditFailure AuditResult = "failure"
)

// AuditCategory groups audited actions.
type AuditCategory string

const (
	AuditAccess        AuditCategory = "access"
	AuditModification  AuditCategory = "modification"
	AuditDeletion      AuditCategory = "deletion"
	AuditConfiguration AuditCategory = "configuration"
)

// Compliance records a regulatory check attached to an audit entry.
type Compliance struct {
	Regulation string `json:"regulation"`
	Status     string `json:"status"` // "compliant", "violation", "warning"
}

// AuditEntry is one immutable audit record.
type AuditEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	UserID     string         `json:"user_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	Resource   string         `json:"resource"`
	Result     AuditResult    `json:"result"`
	Details    map[string]any `json:"details"`
	Severity   Severity       `json:"severity"`
	Category   AuditCategory  `json:"category"`
	Compliance *Compliance    `json:"compliance,omitempty"`
}

// AuditRequest carries the caller-supplied fields of an audit record.
type AuditRequest struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitzero"`
	Action     string         `json:"action"`
	UserID     string         `json:"user_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	Resource   string         `json:"resource"`
	Result     AuditResult    `json:"result,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Severity   Severity       `json:"severity,omitempty"`
	Category   AuditCategory  `json:"category,omitempty"`
	Compliance *Compliance    `json:"compliance,omitempty"`
}

// NewAuditEntry builds an AuditEntry, defaulting id, timestamp, result,
// details, severity and category.
func NewAuditEntry(req AuditRequest, now time.Time) AuditEntry {
	e := AuditEntry{
		ID:         req.ID,
		Timestamp:  req.Timestamp,
		Action:     req.Action,
		UserID:     req.UserID,
		AgentID:    req.AgentID,
		Resource:   req.Resource,
		Result:     req.Result,
		Details:    maps.Clone(req.Details),
		Severity:   req.Severity,
		Category:   req.Category,
		Compliance: req.Compliance,
	}
	if e.ID == "" {
		e.ID = newID("audit")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Result == "" {
		e.Result = AuditSuccess
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	if e.Severity == "" {
		e.Severity = SeverityLow
	}
	if e.Category == "" {
		e.Category = AuditAccess
	}
	return e
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
