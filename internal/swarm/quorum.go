package swarm

// Status is the derived lifecycle state of a proposal.
type Status string

const (
	StatusOpen     Status = "open"
	StatusExecuted Status = "executed"
	StatusExpired  Status = "expired"
)

// HasQuorum reports whether p has enough participants: at least minVotes
// voters and at least 51% of the active agent count, rounded up.
func HasQuorum(p *Proposal, minVotes uint8, activeAgents uint8) bool {
	voters := int(p.TotalVoters)
	return voters >= int(minVotes) && voters >= quorumThreshold(int(activeAgents))
}

// IsApproved reports whether both the weighted and the raw tallies favour p.
// Abstentions count toward neither side.
func IsApproved(p *Proposal) bool {
	return p.WeightedVotesFor > p.WeightedVotesAgainst && p.VotesFor > p.VotesAgainst
}

// IsExpired reports whether p's voting window has closed at now.
func IsExpired(p *Proposal, now int64) bool {
	return now > p.ExpiresAt
}

// ProposalStatus derives p's status at now.
func ProposalStatus(p *Proposal, now int64) Status {
	switch {
	case p.Executed:
		return StatusExecuted
	case IsExpired(p, now):
		return StatusExpired
	default:
		return StatusOpen
	}
}

// canExecute returns the error that blocks executing p at now, or nil.
func canExecute(p *Proposal, cfg *Config, now int64) error {
	if p.Executed {
		return ErrProposalAlreadyExecuted
	}
	if IsExpired(p, now) {
		return ErrProposalExpired
	}
	if !HasQuorum(p, cfg.MinVotesRequired, cfg.ActiveAgents) || !IsApproved(p) {
		return ErrInsufficientVotes
	}
	return nil
}
