package swarm

import "math"

// ValidateParams checks swarm bootstrap parameters against the configured
// bounds, in the order initialize applies them.
func ValidateParams(maxAgents, minVotes int, timeout int64) error {
	if maxAgents < MinAgents || maxAgents > MaxAgents {
		return ErrInvalidAgentCount
	}
	if minVotes < MinVotesFor(maxAgents) {
		return ErrMinVotesTooLow
	}
	if minVotes > maxAgents {
		return ErrInvalidVoteCount
	}
	if timeout < MinProposalTimeout || timeout > MaxProposalTimeout {
		return ErrInvalidProposalTimeout
	}
	return nil
}

// MinVotesFor returns the smallest admissible min_votes_required for a swarm
// of maxAgents, ceil(51% of maxAgents).
func MinVotesFor(maxAgents int) int {
	return quorumThreshold(maxAgents)
}

// quorumThreshold is ceil(quorumPercent * n / 100) in integer arithmetic.
func quorumThreshold(n int) int {
	if n <= 0 {
		return 0
	}
	return (quorumPercent*n + 99) / 100
}

func validateIdentity(id Identity) error {
	if id == "" {
		return ErrInvalidIdentity
	}
	return nil
}

func validateName(name string) error {
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// newAgent returns a freshly registered, active agent.
func newAgent(owner Identity, typ AgentType, name string, now int64) *Agent {
	return &Agent{
		Owner:        owner,
		Type:         typ,
		Name:         name,
		Reputation:   InitialReputation,
		RegisteredAt: now,
		LastActive:   now,
		IsActive:     true,
	}
}

// admit reserves one agent slot in cfg.
func admit(cfg *Config) error {
	if cfg.ActiveAgents >= cfg.MaxAgents {
		return ErrCapacityExceeded
	}
	cfg.ActiveAgents++
	return nil
}

// touch marks agent activity at now.
func touch(a *Agent, now int64) {
	a.LastActive = now
}

func incU32(v *uint32, field string) error {
	if *v == math.MaxUint32 {
		return overflowf(field)
	}
	*v++
	return nil
}

func incU64(v *uint64, field string) error {
	if *v == math.MaxUint64 {
		return overflowf(field)
	}
	*v++
	return nil
}

func incU8(v *uint8, field string) error {
	if *v == math.MaxUint8 {
		return overflowf(field)
	}
	*v++
	return nil
}

func addU64(v *uint64, delta uint64, field string) error {
	if *v > math.MaxUint64-delta {
		return overflowf(field)
	}
	*v += delta
	return nil
}
