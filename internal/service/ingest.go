package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	cfotel "github.com/Strob0t/fleetwatch/internal/adapter/otel"
	"github.com/Strob0t/fleetwatch/internal/domain"
	"github.com/Strob0t/fleetwatch/internal/port/messagequeue"
)

// IngestService applies fleet state published on the message queue to the
// orchestrator. All fleet subjects share one consumer so cross-entity
// ordering (agent before its connections) is preserved.
type IngestService struct {
	queue  messagequeue.Queue
	orch   *Orchestrator
	cancel func()
}

// NewIngestService creates an ingest service.
func NewIngestService(queue messagequeue.Queue, orch *Orchestrator) *IngestService {
	return &IngestService{queue: queue, orch: orch}
}

// Start subscribes to every fleet subject.
func (s *IngestService) Start(ctx context.Context) error {
	cancel, err := s.queue.Subscribe(ctx, messagequeue.SubjectFleetAll, s.Handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messagequeue.SubjectFleetAll, err)
	}
	s.cancel = cancel
	slog.Info("fleet ingest started", "subject", messagequeue.SubjectFleetAll)
	return nil
}

// Stop cancels the subscription.
func (s *IngestService) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Handle applies one message. Malformed or invalid messages are logged and
// acknowledged; redelivering them would fail the same way.
func (s *IngestService) Handle(ctx context.Context, subject string, data []byte) error {
	ctx, span := cfotel.StartIngestSpan(ctx, subject)
	defer span.End()

	err := s.apply(ctx, subject, data)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) {
		slog.Warn("ingest message rejected", "subject", subject, "error", err)
		return nil
	}
	return err
}

func (s *IngestService) apply(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case messagequeue.SubjectAgentUpsert:
		var p messagequeue.AgentUpsertPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		_, err := s.orch.UpsertAgent(ctx, p)
		return err

	case messagequeue.SubjectAgentRemove:
		var p messagequeue.IDPayload
		if err := decodeID(data, &p); err != nil {
			return err
		}
		s.orch.RemoveAgent(ctx, p.ID)

	case messagequeue.SubjectCommandUpsert:
		var p messagequeue.CommandUpsertPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		_, err := s.orch.UpsertCommand(ctx, p)
		return err

	case messagequeue.SubjectCommandRetry:
		var p messagequeue.IDPayload
		if err := decodeID(data, &p); err != nil {
			return err
		}
		if !s.orch.RetryCommand(ctx, p.ID) {
			slog.Debug("command retry ignored", "command_id", p.ID)
		}

	case messagequeue.SubjectCommandCancel:
		var p messagequeue.IDPayload
		if err := decodeID(data, &p); err != nil {
			return err
		}
		if !s.orch.CancelCommand(ctx, p.ID) {
			slog.Debug("command cancel ignored", "command_id", p.ID)
		}

	case messagequeue.SubjectConnectionUpsert:
		var p messagequeue.ConnectionUpsertPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		_, err := s.orch.UpsertConnection(ctx, p)
		return err

	case messagequeue.SubjectLog:
		var p messagequeue.LogPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		s.orch.AppendLog(ctx, p)

	case messagequeue.SubjectAudit:
		var p messagequeue.AuditPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		s.orch.AppendAudit(ctx, p)

	case messagequeue.SubjectMetric:
		var p messagequeue.MetricPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		s.orch.AppendMetric(ctx, p)

	default:
		return fmt.Errorf("%w: unknown subject %s", domain.ErrValidation, subject)
	}
	return nil
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func decodeID(data []byte, p *messagequeue.IDPayload) error {
	if err := decode(data, p); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	return nil
}
