// Package metric defines performance samples reported by agents.
package metric

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Category groups samples by resource.
type Category string

const (
	CategoryCPU     Category = "cpu"
	CategoryMemory  Category = "memory"
	CategoryNetwork Category = "network"
	CategoryDisk    Category = "disk"
	CategoryCustom  Category = "custom"
)

// Status is the health classification of a sample.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Threshold holds the per-sample warning and critical bounds.
type Threshold struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Classify returns the status of value against t.
func (t Threshold) Classify(value float64) Status {
	switch {
	case value >= t.Critical:
		return StatusCritical
	case value >= t.Warning:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// PerformanceMetric is one immutable sample.
type PerformanceMetric struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Timestamp time.Time         `json:"timestamp"`
	AgentID   string            `json:"agent_id,omitempty"`
	Category  Category          `json:"category"`
	Status    Status            `json:"status"`
	Threshold *Threshold        `json:"threshold,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Request carries the caller-supplied fields of a sample.
type Request struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitzero"`
	AgentID   string            `json:"agent_id,omitempty"`
	Category  Category          `json:"category,omitempty"`
	Status    Status            `json:"status,omitempty"`
	Threshold *Threshold        `json:"threshold,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// New builds a PerformanceMetric. When a threshold is attached, the status
// is derived from it and any supplied status is ignored.
func New(req Request, now time.Time) PerformanceMetric {
	m := PerformanceMetric{
		ID:        req.ID,
		Name:      req.Name,
		Value:     req.Value,
		Unit:      req.Unit,
		Timestamp: req.Timestamp,
		AgentID:   req.AgentID,
		Category:  req.Category,
		Status:    req.Status,
		Tags:      maps.Clone(req.Tags),
	}
	if m.ID == "" {
		m.ID = "metric-" + uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	if m.Category == "" {
		m.Category = CategoryCustom
	}
	if m.Status == "" {
		m.Status = StatusNormal
	}
	if req.Threshold != nil {
		t := *req.Threshold
		m.Threshold = &t
		m.Status = t.Classify(m.Value)
	}
	return m
}
