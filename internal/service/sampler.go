package service

import (
	"context"

	"github.com/Strob0t/fleetwatch/internal/domain/agent"
)

// StoreSampler answers resource samples from the metrics each agent last
// reported to the store.
type StoreSampler struct {
	store *EntityStore
}

// NewStoreSampler creates a sampler reading from store.
func NewStoreSampler(store *EntityStore) *StoreSampler {
	return &StoreSampler{store: store}
}

// Sample returns the agent's last reported metrics, or domain.ErrNotFound.
func (s *StoreSampler) Sample(ctx context.Context, agentID string) (agent.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return agent.Metrics{}, err
	}
	a, err := s.store.Agent(agentID)
	if err != nil {
		return agent.Metrics{}, err
	}
	return a.Metrics, nil
}
