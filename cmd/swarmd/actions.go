package main

import (
	"context"
	"log/slog"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// newDispatcher registers an executor for every proposal type. The daemon
// records the decision; acting on it is left to stream consumers.
func newDispatcher(logger *slog.Logger) *swarm.Dispatcher {
	d := swarm.NewDispatcher()
	for _, typ := range swarm.ProposalTypes() {
		d.Register(typ, logAction(logger))
	}
	return d
}

func logAction(logger *slog.Logger) swarm.ExecutorFunc {
	return func(ctx context.Context, p *swarm.Proposal) error {
		logger.Info("proposal action",
			"id", p.ID,
			"type", p.Type,
			"proposer", p.Proposer,
			"data_bytes", len(p.Data),
			"votes_for", p.VotesFor,
			"votes_against", p.VotesAgainst,
		)
		return nil
	}
}
