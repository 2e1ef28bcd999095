package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/fleetwatch/internal/adapter/otel"
	"github.com/Strob0t/fleetwatch/internal/domain/hook"
	"github.com/Strob0t/fleetwatch/internal/port/broadcast"
	"github.com/Strob0t/fleetwatch/internal/port/messagequeue"
	"github.com/Strob0t/fleetwatch/internal/resilience"
)

// EventHook is the broadcast event type carrying a published hook.
const EventHook = "hook"

// RelayService forwards every published hook to dashboard clients and, when
// a queue is configured, to the hooks.<type> subject. Queue publishes go
// through a circuit breaker so a broker outage does not stall dispatch.
type RelayService struct {
	orch    *Orchestrator
	hub     broadcast.Broadcaster
	queue   messagequeue.Queue
	breaker *resilience.Breaker
	metrics *cfotel.Metrics
	subID   string
}

// NewRelayService creates a relay. hub and queue may each be nil.
func NewRelayService(orch *Orchestrator, hub broadcast.Broadcaster, queue messagequeue.Queue, breaker *resilience.Breaker) *RelayService {
	return &RelayService{orch: orch, hub: hub, queue: queue, breaker: breaker}
}

// SetMetrics attaches OpenTelemetry instruments.
func (s *RelayService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// Start subscribes to every hook type asynchronously.
func (s *RelayService) Start() {
	if s.subID != "" {
		return
	}
	s.subID = s.orch.Subscribe(hook.TypeAny, s.Relay, Async())
	slog.Info("hook relay started", "websocket", s.hub != nil, "queue", s.queue != nil)
}

// Stop removes the subscription.
func (s *RelayService) Stop() {
	if s.subID == "" {
		return
	}
	s.orch.Unsubscribe(s.subID)
	s.subID = ""
}

// Relay forwards one hook.
func (s *RelayService) Relay(ctx context.Context, h hook.Hook) error {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, EventHook, h)
	}
	if s.queue == nil {
		return nil
	}

	subject := messagequeue.HookSubject(string(h.Type))
	ctx, span := cfotel.StartRelaySpan(ctx, h.ID, subject)
	defer span.End()

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal hook %s: %w", h.ID, err)
	}

	publish := func() error { return s.queue.Publish(ctx, subject, data) }
	if s.breaker != nil {
		err = s.breaker.Execute(publish)
	} else {
		err = publish()
	}
	if err == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.RelayFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("hook.type", string(h.Type))))
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		slog.Debug("hook relay skipped, circuit open", "hook_id", h.ID, "subject", subject)
		return nil
	}
	return fmt.Errorf("relay hook %s: %w", h.ID, err)
}
