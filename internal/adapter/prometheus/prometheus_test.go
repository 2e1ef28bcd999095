package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/fleetwatch/internal/config"
	"github.com/Strob0t/fleetwatch/internal/domain/agent"
	"github.com/Strob0t/fleetwatch/internal/service"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestExporter(t *testing.T) {
	cfg := config.Defaults()
	orch := service.NewOrchestrator(&cfg)
	t.Cleanup(orch.Close)

	e := New(orch)
	e.Start()
	defer e.Stop()
	e.RegisterGauge("ws_connections", "Connected dashboard clients.", func() float64 { return 3 })

	status := agent.StatusActive
	if _, err := orch.UpsertAgent(context.Background(), agent.Patch{
		ID:      "a1",
		Status:  &status,
		Metrics: &agent.Metrics{CPUUsage: 99},
	}); err != nil {
		t.Fatal(err)
	}

	out := scrape(t, e.Handler())
	want := []string{
		"fleetwatch_agents 1",
		"fleetwatch_agents_active 1",
		"fleetwatch_ws_connections 3",
		`fleetwatch_hooks_total{type="performance-metric"} 1`,
		`fleetwatch_hooks_total{type="resource-threshold"} 2`,
		`fleetwatch_threshold_alerts_total{severity="critical",threshold_id="cpu-usage-critical"} 1`,
		"fleetwatch_subscriptions 2",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("scrape missing %q", w)
		}
	}
}

func TestExporterStop(t *testing.T) {
	cfg := config.Defaults()
	orch := service.NewOrchestrator(&cfg)
	t.Cleanup(orch.Close)

	before := orch.SubscriptionCount()
	e := New(orch)
	e.Start()
	e.Start()
	if orch.SubscriptionCount() != before+1 {
		t.Fatalf("subscriptions = %d, want %d", orch.SubscriptionCount(), before+1)
	}
	e.Stop()
	if orch.SubscriptionCount() != before {
		t.Errorf("subscriptions after Stop = %d", orch.SubscriptionCount())
	}
}
