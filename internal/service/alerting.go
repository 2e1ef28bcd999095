package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/Strob0t/fleetwatch/internal/domain/agent"
	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/domain/threshold"
	"github.com/Strob0t/fleetwatch/internal/port/notifier"
)

// AlertService turns threshold alerts and agent failures into outbound
// notifications. Repeats of the same alert for the same agent are dropped
// until the cooldown has passed.
type AlertService struct {
	orch        *Orchestrator
	notifiers   []notifier.Notifier
	minSeverity threshold.Severity
	agentErrors bool
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
	subIDs   []string
}

// NewAlertService creates an AlertService. Alerts below minSeverity are ignored.
func NewAlertService(orch *Orchestrator, notifiers []notifier.Notifier, minSeverity threshold.Severity, agentErrors bool, cooldown time.Duration) *AlertService {
	return &AlertService{
		orch:        orch,
		notifiers:   notifiers,
		minSeverity: minSeverity,
		agentErrors: agentErrors,
		cooldown:    cooldown,
		now:         time.Now,
		lastSent:    make(map[string]time.Time),
	}
}

// Start subscribes to alert-bearing hooks. It is a no-op without notifiers.
func (s *AlertService) Start() {
	if len(s.notifiers) == 0 || len(s.subIDs) > 0 {
		return
	}
	s.subIDs = append(s.subIDs, s.orch.Subscribe(hook.TypeResourceThreshold, s.handleThreshold, Async()))
	if s.agentErrors {
		s.subIDs = append(s.subIDs, s.orch.Subscribe(hook.TypeAgentStateChange, s.handleStateChange,
			Async(), WithFilter(hook.Filter{"new_state": string(agent.StatusError)})))
	}

	names := make([]string, 0, len(s.notifiers))
	for _, n := range s.notifiers {
		names = append(names, n.Name())
	}
	slog.Info("alert notifications enabled", "providers", names, "min_severity", s.minSeverity)
}

// Stop removes all subscriptions.
func (s *AlertService) Stop() {
	for _, id := range s.subIDs {
		s.orch.Unsubscribe(id)
	}
	s.subIDs = nil
}

func (s *AlertService) handleThreshold(ctx context.Context, h hook.Hook) error {
	a, ok := h.Payload.(hook.ThresholdAlert)
	if !ok {
		return nil
	}
	if threshold.Severity(a.Severity).Rank() < s.minSeverity.Rank() {
		return nil
	}
	if !s.allow(a.ThresholdID + "/" + h.AgentID) {
		return nil
	}

	level := notifier.LevelWarning
	if threshold.Severity(a.Severity).Rank() >= threshold.SeverityHigh.Rank() {
		level = notifier.LevelError
	}
	s.Notify(ctx, notifier.Notification{
		Title:   fmt.Sprintf("Threshold %s breached", a.ThresholdID),
		Message: fmt.Sprintf("%s is %s (%s %s)", a.Metric, formatValue(a.CurrentValue), a.Operator, formatValue(a.ThresholdValue)),
		Level:   level,
		Source:  string(h.Type),
		AgentID: h.AgentID,
		HookID:  h.ID,
		Fields: []notifier.Field{
			{Name: "Severity", Value: a.Severity},
			{Name: "Triggered by", Value: string(a.SourceHookType)},
		},
	})
	return nil
}

func (s *AlertService) handleStateChange(ctx context.Context, h hook.Hook) error {
	sc, ok := h.Payload.(hook.StateChange)
	if !ok {
		return nil
	}
	if !s.allow("state-error/" + h.AgentID) {
		return nil
	}

	msg := "Agent entered the error state"
	if sc.Reason != "" {
		msg += ": " + sc.Reason
	}
	s.Notify(ctx, notifier.Notification{
		Title:   fmt.Sprintf("Agent %s failed", h.AgentID),
		Message: msg,
		Level:   notifier.LevelError,
		Source:  string(h.Type),
		AgentID: h.AgentID,
		HookID:  h.ID,
		Fields:  []notifier.Field{{Name: "Previous state", Value: sc.PreviousState}},
	})
	return nil
}

// Notify sends n to every notifier. Failures are logged and do not stop
// delivery to the remaining providers.
func (s *AlertService) Notify(ctx context.Context, n notifier.Notification) {
	for _, provider := range s.notifiers {
		if err := provider.Send(ctx, n); err != nil {
			slog.Warn("notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			continue
		}
		slog.Debug("notification sent", "provider", provider.Name(), "title", n.Title)
	}
}

// allow records a send for key and reports whether the cooldown permits it.
// Entries whose cooldown has passed are evicted on the way.
func (s *AlertService) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	maps.DeleteFunc(s.lastSent, func(_ string, last time.Time) bool {
		return now.Sub(last) >= s.cooldown
	})
	if _, ok := s.lastSent[key]; ok {
		return false
	}
	s.lastSent[key] = now
	return true
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
