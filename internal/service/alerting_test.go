package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain/agent"
	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
	"github.com/Strob0t/fleetwatch/internal/port/notifier"
)

type mockNotifier struct {
	name    string
	mu      sync.Mutex
	sent    []notifier.Notification
	sendErr error
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Send(_ context.Context, n notifier.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) notifications() []notifier.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifier.Notification(nil), m.sent...)
}

func TestAlertService_NotifiesAtMinSeverity(t *testing.T) {
	o := newTestOrchestrator(t)
	m := &mockNotifier{name: "mock"}
	svc := NewAlertService(o, []notifier.Notifier{m}, threshold.SeverityHigh, false, time.Minute)
	svc.Start()
	defer svc.Stop()

	// cpu 99 trips both the medium and the critical seed rule.
	if _, err := o.UpsertAgent(context.Background(), agent.Patch{
		ID:      "a1",
		Status:  ptr(agent.StatusActive),
		Metrics: &agent.Metrics{CPUUsage: 99},
	}); err != nil {
		t.Fatal(err)
	}
	o.bus.Wait()

	got := m.notifications()
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	n := got[0]
	if n.Title != "Threshold cpu-usage-critical breached" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Level != notifier.LevelError || n.AgentID != "a1" {
		t.Errorf("notification = %+v", n)
	}
	if n.Message != "cpu_usage is 99 (> 95)" {
		t.Errorf("message = %q", n.Message)
	}
}

func TestAlertService_Cooldown(t *testing.T) {
	o := newTestOrchestrator(t)
	m := &mockNotifier{name: "mock"}
	svc := NewAlertService(o, []notifier.Notifier{m}, threshold.SeverityLow, false, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	svc.Start()
	defer svc.Stop()

	sample := func() {
		t.Helper()
		if _, err := o.UpsertAgent(context.Background(), agent.Patch{ID: "a1", Metrics: &agent.Metrics{MemoryUsage: 90}}); err != nil {
			t.Fatal(err)
		}
		o.bus.Wait()
	}

	sample()
	sample()
	if n := len(m.notifications()); n != 1 {
		t.Fatalf("notifications within cooldown = %d, want 1", n)
	}
	clock = clock.Add(2 * time.Minute)
	sample()
	if n := len(m.notifications()); n != 2 {
		t.Errorf("notifications after cooldown = %d, want 2", n)
	}
}

func TestAlertService_CooldownEntriesExpire(t *testing.T) {
	svc := NewAlertService(newTestOrchestrator(t), nil, threshold.SeverityLow, false, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	for _, key := range []string{"cpu/a1", "cpu/a2", "cpu/a3"} {
		if !svc.allow(key) {
			t.Fatalf("first alert for %s suppressed", key)
		}
	}
	if svc.allow("cpu/a1") {
		t.Error("repeat inside cooldown allowed")
	}
	if n := trackedAlerts(svc); n != 3 {
		t.Fatalf("tracked = %d, want 3", n)
	}

	clock = clock.Add(time.Minute)
	if !svc.allow("cpu/a4") {
		t.Fatal("new key suppressed")
	}
	if n := trackedAlerts(svc); n != 1 {
		t.Errorf("tracked after cooldown = %d, want 1 (expired keys evicted)", n)
	}
}

func TestAlertService_AgentErrors(t *testing.T) {
	o := newTestOrchestrator(t)
	m := &mockNotifier{name: "mock"}
	svc := NewAlertService(o, []notifier.Notifier{m}, threshold.SeverityCritical, true, 0)
	svc.Start()
	defer svc.Stop()
	ctx := context.Background()

	for _, p := range []agent.Patch{
		{ID: "a1", Status: ptr(agent.StatusActive)},
		{ID: "a1", Status: ptr(agent.StatusIdle)},
		{ID: "a1", Status: ptr(agent.StatusError), Reason: "oom killed"},
	} {
		if _, err := o.UpsertAgent(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	o.bus.Wait()

	got := m.notifications()
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	if got[0].Message != "Agent entered the error state: oom killed" {
		t.Errorf("message = %q", got[0].Message)
	}
	if got[0].Fields[0].Value != "idle" {
		t.Errorf("previous state = %q", got[0].Fields[0].Value)
	}
}

func TestAlertService_SendFailureDoesNotStopOthers(t *testing.T) {
	failing := &mockNotifier{name: "failing", sendErr: errors.New("webhook down")}
	ok := &mockNotifier{name: "ok"}
	svc := NewAlertService(newTestOrchestrator(t), []notifier.Notifier{failing, ok}, threshold.SeverityLow, false, 0)

	svc.Notify(context.Background(), notifier.Notification{Title: "t"})
	if len(ok.notifications()) != 1 {
		t.Error("second notifier should still receive the notification")
	}
}

func TestAlertService_StartWithoutNotifiers(t *testing.T) {
	o := newTestOrchestrator(t)
	before := o.SubscriptionCount()
	svc := NewAlertService(o, nil, threshold.SeverityHigh, true, 0)
	svc.Start()
	if o.SubscriptionCount() != before {
		t.Errorf("subscriptions = %d, want %d", o.SubscriptionCount(), before)
	}

	svc = NewAlertService(o, []notifier.Notifier{&mockNotifier{name: "m"}}, threshold.SeverityHigh, true, 0)
	svc.Start()
	if o.SubscriptionCount() != before+2 {
		t.Errorf("subscriptions = %d, want %d", o.SubscriptionCount(), before+2)
	}
	svc.Stop()
	if o.SubscriptionCount() != before {
		t.Errorf("subscriptions after Stop = %d, want %d", o.SubscriptionCount(), before)
	}
}

func trackedAlerts(s *AlertService) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastSent)
}
