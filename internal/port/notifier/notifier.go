// Package notifier defines the outbound alert notification port.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier has no destination.
var ErrNotConfigured = errors.New("notifier: not configured")

// Level is the urgency of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Field is one labelled value rendered under the message body.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Level   Level   `json:"level"`
	Source  string  `json:"source"` // hook type that raised it
	AgentID string  `json:"agent_id,omitempty"`
	HookID  string  `json:"hook_id,omitempty"`
	Fields  []Field `json:"fields,omitempty"`
}

// Notifier delivers notifications to one external channel.
type Notifier interface {
	// Name returns the provider identifier (e.g. "slack").
	Name() string

	Send(ctx context.Context, n Notification) error
}
