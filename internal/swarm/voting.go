package swarm

// VoteWeight returns the voting power of a, 1000 + 10 x reputation. It is
// strictly increasing in reputation and never zero.
func VoteWeight(a *Agent) uint64 {
	return baseVoteWeight + reputationFactor*uint64(a.Reputation)
}

// castVote applies one ballot to p and a. capacity bounds the voter set.
// Both p and a are modified in place; callers work on copies staged inside
// a transaction, so a failed call leaves committed state untouched.
func castVote(p *Proposal, a *Agent, choice VoteChoice, reasoning string, now int64, capacity int) (*Ballot, error) {
	if len(reasoning) > MaxReasoningLength {
		return nil, ErrReasoningTooLong
	}
	if !choice.Valid() {
		return nil, ErrInvalidChoice
	}
	if !a.IsActive {
		return nil, ErrUnauthorized
	}
	if p.Executed {
		return nil, ErrProposalAlreadyExecuted
	}
	if IsExpired(p, now) {
		return nil, ErrProposalExpired
	}
	if err := p.Voters.Add(a.Owner, capacity); err != nil {
		return nil, err
	}

	weight := VoteWeight(a)
	switch choice {
	case VoteApprove:
		if err := incU32(&p.VotesFor, "votes_for"); err != nil {
			return nil, err
		}
		if err := addU64(&p.WeightedVotesFor, weight, "weighted_votes_for"); err != nil {
			return nil, err
		}
	case VoteReject:
		if err := incU32(&p.VotesAgainst, "votes_against"); err != nil {
			return nil, err
		}
		if err := addU64(&p.WeightedVotesAgainst, weight, "weighted_votes_against"); err != nil {
			return nil, err
		}
	case VoteAbstain:
		if err := incU32(&p.VotesAbstain, "votes_abstain"); err != nil {
			return nil, err
		}
		weight = 0
	}
	if err := incU8(&p.TotalVoters, "total_voters"); err != nil {
		return nil, err
	}
	if err := incU32(&a.VotesCast, "votes_cast"); err != nil {
		return nil, err
	}
	touch(a, now)

	return &Ballot{
		ProposalID: p.ID,
		Voter:      a.Owner,
		Choice:     choice,
		Weight:     weight,
		Reasoning:  reasoning,
		CastAt:     now,
	}, nil
}

// voterCapacity is the voter-set bound for a swarm sized by cfg.
func voterCapacity(cfg *Config) int {
	if n := int(cfg.MaxAgents); n > 0 && n < MaxVoters {
		return n
	}
	return MaxVoters
}
