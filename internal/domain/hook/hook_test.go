package hook

import (
	"encoding/json"
	"testing"
)

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		typ  Type
		want Priority
	}{
		{TypeErrorRecovery, PriorityHigh},
		{TypeResourceThreshold, PriorityHigh},
		{TypePerformanceMetric, PriorityMedium},
		{TypeAgentStateChange, PriorityMedium},
		{TypeCollaboration, PriorityLow},
		{TypeDecisionPoint, PriorityLow},
		{TypeKnowledgeUpdate, PriorityLow},
	}
	for _, tt := range tests {
		if got := PriorityFor(tt.typ); got != tt.want {
			t.Errorf("PriorityFor(%s) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestSelectorMatches(t *testing.T) {
	if !TypeAny.Matches(TypeCollaboration) {
		t.Error("wildcard should match every type")
	}
	if !TypeCollaboration.Matches(TypeCollaboration) {
		t.Error("type should match itself")
	}
	if TypeCollaboration.Matches(TypeDecisionPoint) {
		t.Error("different types should not match")
	}
}

func TestValidSelector(t *testing.T) {
	if !ValidSelector("*") || !ValidSelector("knowledge-update") {
		t.Error("expected wildcard and concrete type to be valid selectors")
	}
	if ValidType("*") {
		t.Error("wildcard is not a concrete hook type")
	}
	if ValidSelector("bogus") {
		t.Error("unknown type accepted")
	}
}

func TestNewTakesTypeFromPayload(t *testing.T) {
	h := New(TriggerCommunication, "a1", Collaboration{SourceAgent: "a1", TargetAgent: "a2"})
	if h.Type != TypeCollaboration {
		t.Fatalf("expected collaboration, got %s", h.Type)
	}
	if h.Fields()["target_agent"] != "a2" {
		t.Fatalf("unexpected fields: %v", h.Fields())
	}
}

func TestToolExecutionFieldsOmitMissingResources(t *testing.T) {
	p := ToolExecution{CommandID: "c1", AgentID: "a1", ExecutionTime: 12}
	if _, ok := p.Fields()["cpu_usage"]; ok {
		t.Fatal("cpu_usage should be absent without a sample")
	}
	p.Resources = &ResourceUsage{CPUUsage: 40}
	if p.Fields()["cpu_usage"] != 40.0 {
		t.Fatalf("expected sampled cpu_usage, got %v", p.Fields()["cpu_usage"])
	}
}

func TestThresholdAlertFieldsOverrideSource(t *testing.T) {
	p := ThresholdAlert{
		ThresholdID:  "cpu",
		Metric:       "cpu_usage",
		CurrentValue: 81,
		Severity:     "medium",
		Source:       map[string]any{"cpu_usage": 81.0, "severity": "stale"},
	}
	f := p.Fields()
	if f["severity"] != "medium" {
		t.Errorf("alert severity should win over source, got %v", f["severity"])
	}
	if f["cpu_usage"] != 81.0 {
		t.Errorf("expected source field to be carried, got %v", f["cpu_usage"])
	}
	if p.Source["severity"] != "stale" {
		t.Error("Fields must not mutate the source map")
	}
}

func TestHookMarshalUsesDataKey(t *testing.T) {
	h := New(TriggerCriticalDecision, "a1", DecisionPoint{DecisionType: "route", Selected: "b"})
	raw, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	data, ok := out["data"].(map[string]any)
	if !ok || data["selected_option"] != "b" {
		t.Fatalf("unexpected encoding: %s", raw)
	}
}

func TestFilterMatches(t *testing.T) {
	fields := map[string]any{"severity": "critical", "cpu_usage": 81.0, "retry_count": 2}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", nil, true},
		{"equal string", Filter{"severity": "critical"}, true},
		{"different string", Filter{"severity": "medium"}, false},
		{"missing key", Filter{"owner": "x"}, false},
		{"int vs float", Filter{"cpu_usage": 81}, true},
		{"float vs int", Filter{"retry_count": 2.0}, true},
		{"number vs string", Filter{"retry_count": "2"}, false},
		{"all keys", Filter{"severity": "critical", "retry_count": 2}, true},
		{"one key off", Filter{"severity": "critical", "retry_count": 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(fields); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

type status string

func TestFilterMatchesNamedStrings(t *testing.T) {
	if !(Filter{"state": "active"}).Matches(map[string]any{"state": status("active")}) {
		t.Fatal("named string types should compare by value")
	}
}

func TestNumber(t *testing.T) {
	for _, v := range []any{int64(3), uint8(3), float32(3), json.Number("3")} {
		if n, ok := Number(v); !ok || n != 3 {
			t.Errorf("Number(%T) = %v, %v", v, n, ok)
		}
	}
	if _, ok := Number("3"); ok {
		t.Error("strings are not numbers")
	}
}

func TestCloneDetachesPayload(t *testing.T) {
	alert := New(TriggerResourceExceeded, "a1", ThresholdAlert{Source: map[string]any{"cpu_usage": 99.0}})
	c := alert.Clone()
	c.Payload.(ThresholdAlert).Source["cpu_usage"] = 1.0
	if alert.Payload.(ThresholdAlert).Source["cpu_usage"] != 99.0 {
		t.Error("alert source shared with clone")
	}

	tool := New(TriggerToolExecutionComplete, "a1", ToolExecution{Resources: &ResourceUsage{CPUUsage: 5}})
	tc := tool.Clone()
	tc.Payload.(ToolExecution).Resources.CPUUsage = 50
	if tool.Payload.(ToolExecution).Resources.CPUUsage != 5 {
		t.Error("tool execution resources shared with clone")
	}

	dp := New(TriggerCriticalDecision, "a1", DecisionPoint{Options: []string{"a", "b"}})
	dc := dp.Clone()
	dc.Payload.(DecisionPoint).Options[0] = "z"
	if dp.Payload.(DecisionPoint).Options[0] != "a" {
		t.Error("decision options shared with clone")
	}
}
