// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Ingest subjects. Agents and their supervisors publish fleet state here.
const (
	SubjectAgentUpsert      = "fleet.agents.upsert"
	SubjectAgentRemove      = "fleet.agents.remove"
	SubjectCommandUpsert    = "fleet.commands.upsert"
	SubjectCommandRetry     = "fleet.commands.retry"
	SubjectCommandCancel    = "fleet.commands.cancel"
	SubjectConnectionUpsert = "fleet.connections.upsert"
	SubjectLog              = "fleet.logs"
	SubjectAudit            = "fleet.audit"
	SubjectMetric           = "fleet.metrics"

	// SubjectFleetAll matches every ingest subject.
	SubjectFleetAll = "fleet.>"
)

// SubjectHookPrefix prefixes relayed hooks: hooks.{hook-type}.
const SubjectHookPrefix = "hooks"

// HookSubject returns the relay subject for a hook type.
func HookSubject(hookType string) string {
	return SubjectHookPrefix + "." + hookType
}
