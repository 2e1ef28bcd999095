// Package threshold defines numeric alert rules evaluated against hook payloads.
package threshold

import (
	"fmt"

	"github.com/Strob0t/fleetwatch/internal/domain"
)

// Operator is the comparison applied between a payload value and the bound.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Severity is the alert level attached to a rule.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Rule compares the payload field Metric against Value.
type Rule struct {
	Metric   string   `json:"metric" yaml:"metric"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    float64  `json:"value" yaml:"value"`
	Severity Severity `json:"severity" yaml:"severity"`
}

// Evaluate reports whether v satisfies the rule. Unknown operators never match.
func (r Rule) Evaluate(v float64) bool {
	switch r.Operator {
	case OpGreater:
		return v > r.Value
	case OpLess:
		return v < r.Value
	case OpEqual:
		return v == r.Value
	case OpGreaterEqual:
		return v >= r.Value
	case OpLessEqual:
		return v <= r.Value
	default:
		return false
	}
}

// Validate checks that the rule can ever match.
func (r Rule) Validate() error {
	if r.Metric == "" {
		return fmt.Errorf("%w: metric is required", domain.ErrValidation)
	}
	switch r.Operator {
	case OpGreater, OpLess, OpEqual, OpGreaterEqual, OpLessEqual:
	default:
		return fmt.Errorf("%w: unknown operator %q", domain.ErrValidation, r.Operator)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", domain.ErrValidation, r.Severity)
	}
	return nil
}

// Named pairs a rule with its registry id.
type Named struct {
	ID   string `json:"id" yaml:"id"`
	Rule `yaml:",inline"`
}

// DefaultRules returns the seed rule set, in registration order.
// Callers may remove or override any of them.
func DefaultRules() []Named {
	return []Named{
		{ID: "cpu-usage-warning", Rule: Rule{Metric: "cpu_usage", Operator: OpGreater, Value: 80, Severity: SeverityMedium}},
		{ID: "cpu-usage-critical", Rule: Rule{Metric: "cpu_usage", Operator: OpGreater, Value: 95, Severity: SeverityCritical}},
		{ID: "memory-usage-warning", Rule: Rule{Metric: "memory_usage", Operator: OpGreater, Value: 85, Severity: SeverityMedium}},
		{ID: "memory-usage-critical", Rule: Rule{Metric: "memory_usage", Operator: OpGreater, Value: 95, Severity: SeverityCritical}},
		{ID: "response-time-warning", Rule: Rule{Metric: "average_response_time", Operator: OpGreater, Value: 1000, Severity: SeverityMedium}},
		{ID: "error-rate-critical", Rule: Rule{Metric: "error_rate", Operator: OpGreater, Value: 5, Severity: SeverityCritical}},
	}
}
