// Package command defines the Command domain entity and its lifecycle.
package command

import (
	"fmt"
	"maps"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain"
)

// Status represents the lifecycle state of a command.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known command status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the command will not run again without a retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority orders commands for operators; it does not affect scheduling here.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// DefaultMaxRetries is the retry budget assigned to new commands.
const DefaultMaxRetries = 3

// Command is a unit of work dispatched to an agent.
type Command struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	AgentID    string         `json:"agent_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     Status         `json:"status"`
	Priority   Priority       `json:"priority"`
	Parameters map[string]any `json:"parameters,omitempty"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
	Duration   *int64         `json:"duration,omitempty"` // milliseconds
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Retryable reports whether the retry budget still allows another attempt.
func (c Command) Retryable() bool {
	return c.RetryCount < c.MaxRetries
}

// Cancellable reports whether the command can still be cancelled.
func (c Command) Cancellable() bool {
	return c.Status == StatusQueued || c.Status == StatusRunning
}

// Patch is a partial command update. Nil fields are left untouched.
type Patch struct {
	ID         string         `json:"id"`
	Type       *string        `json:"type,omitempty"`
	AgentID    *string        `json:"agent_id,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Status     *Status        `json:"status,omitempty"`
	Priority   *Priority      `json:"priority,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	RetryCount *int           `json:"retry_count,omitempty"`
	MaxRetries *int           `json:"max_retries,omitempty"`
	Duration   *int64         `json:"duration,omitempty"`
	Output     *string        `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
}

// Validate checks the id and that enumerated fields hold known values.
func (p Patch) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: command id is required", domain.ErrValidation)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown command status %q", domain.ErrValidation, *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: unknown command priority %q", domain.ErrValidation, *p.Priority)
	}
	if p.MaxRetries != nil && *p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", domain.ErrValidation)
	}
	return nil
}

// New builds a Command from a patch, filling defaults for absent fields.
func New(p Patch, now time.Time) Command {
	c := Command{
		ID:         p.ID,
		Type:       "unknown",
		AgentID:    "unknown",
		Timestamp:  now,
		Status:     StatusQueued,
		Priority:   PriorityMedium,
		MaxRetries: DefaultMaxRetries,
	}
	return Apply(c, p)
}

// Apply merges the overridable fields of p over c and returns the result.
// The ID is never changed.
func Apply(c Command, p Patch) Command {
	out := c
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.AgentID != nil {
		out.AgentID = *p.AgentID
	}
	if p.Timestamp != nil {
		out.Timestamp = *p.Timestamp
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Parameters != nil {
		out.Parameters = maps.Clone(p.Parameters)
	} else {
		out.Parameters = maps.Clone(c.Parameters)
	}
	if p.RetryCount != nil {
		out.RetryCount = *p.RetryCount
	}
	if p.MaxRetries != nil {
		out.MaxRetries = *p.MaxRetries
	}
	if p.Duration != nil {
		d := *p.Duration
		out.Duration = &d
	} else if c.Duration != nil {
		d := *c.Duration
		out.Duration = &d
	}
	if p.Output != nil {
		out.Output = *p.Output
	}
	if p.Error != nil {
		out.Error = *p.Error
	}
	return out
}

// transitions lists the legal lifecycle moves. Retry (failed -> queued)
// is included so a manual retry never shows up as illegal.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:    {StatusQueued},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

// CanTransition reports whether from -> to is on the legal lifecycle path.
// A no-op (from == to) is always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Clone returns a copy of c that shares no mutable state with it.
func (c Command) Clone() Command {
	c.Parameters = maps.Clone(c.Parameters)
	if c.Duration != nil {
		d := *c.Duration
		c.Duration = &d
	}
	return c
}
