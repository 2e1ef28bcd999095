// Package sampler defines the port for collecting agent resource samples.
package sampler

import (
	"context"

	"github.com/Strob0t/fleetwatch/internal/domain/agent"
)

// Sampler collects the current resource figures of one agent. Implementations
// may block on I/O; callers never hold store locks while sampling.
type Sampler interface {
	Sample(ctx context.Context, agentID string) (agent.Metrics, error)
}

// Func adapts a plain function to the Sampler interface.
type Func func(ctx context.Context, agentID string) (agent.Metrics, error)

// Sample calls f.
func (f Func) Sample(ctx context.Context, agentID string) (agent.Metrics, error) {
	return f(ctx, agentID)
}
