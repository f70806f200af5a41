package swarm

func validateMetrics(metrics []byte) error {
	if len(metrics) > MaxMetricsLength {
		return ErrMetricsTooLong
	}
	return nil
}

// newOutcome records the result of executed proposal p.
func newOutcome(p *Proposal, executor Identity, success bool, metrics []byte, now int64) (*Outcome, error) {
	if !p.Executed {
		return nil, ErrProposalNotExecuted
	}
	return &Outcome{
		ProposalID: p.ID,
		ExecutedBy: executor,
		Success:    success,
		Metrics:    append([]byte(nil), metrics...),
		ExecutedAt: now,
	}, nil
}
