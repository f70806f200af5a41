package swarm

import "math"

func validateProposal(typ ProposalType, data []byte, description string) error {
	if len(data) > MaxDataLength {
		return ErrDataTooLong
	}
	if len(description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if !typ.Valid() {
		return ErrInvalidProposalType
	}
	return nil
}

// newProposal builds proposal number cfg.TotalProposals and advances the
// swarm and proposer counters.
func newProposal(cfg *Config, proposer *Agent, typ ProposalType, data []byte, description string, now int64) (*Proposal, error) {
	if cfg.ProposalTimeout > 0 && now > math.MaxInt64-cfg.ProposalTimeout {
		return nil, overflowf("expires_at")
	}
	p := &Proposal{
		ID:          cfg.TotalProposals,
		Proposer:    proposer.Owner,
		Type:        typ,
		Data:        append([]byte(nil), data...),
		Description: description,
		CreatedAt:   now,
		ExpiresAt:   now + cfg.ProposalTimeout,
	}
	if err := incU64(&cfg.TotalProposals, "total_proposals"); err != nil {
		return nil, err
	}
	if err := incU32(&proposer.ProposalsCreated, "proposals_created"); err != nil {
		return nil, err
	}
	touch(proposer, now)
	return p, nil
}

// markExecuted records the execution of p at now.
func markExecuted(p *Proposal, cfg *Config, executor *Agent, now int64) error {
	if err := canExecute(p, cfg, now); err != nil {
		return err
	}
	if err := incU64(&cfg.ExecutedProposals, "executed_proposals"); err != nil {
		return err
	}
	p.Executed = true
	p.ExecutedAt = now
	touch(executor, now)
	return nil
}
