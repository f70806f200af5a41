package swarm

import "context"

// Tx is a transactional view of swarm state. Records returned by a Tx are
// copies; changes become visible only through the matching Put, Insert or
// Update call and are committed when the enclosing Store.Update returns nil.
type Tx interface {
	// Config returns ErrNotInitialized when the swarm has no config yet.
	Config() (*Config, error)
	PutConfig(cfg *Config) error

	// Agent returns ErrAgentNotFound for an unknown owner.
	Agent(owner Identity) (*Agent, error)
	// Agents returns all agents in registration order.
	Agents() ([]*Agent, error)
	// InsertAgent returns ErrAlreadyRegistered if owner already has an agent.
	InsertAgent(a *Agent) error
	UpdateAgent(a *Agent) error

	// Proposal returns ErrProposalNotFound for an unknown id.
	Proposal(id uint64) (*Proposal, error)
	// Proposals returns all proposals ordered by id.
	Proposals() ([]*Proposal, error)
	InsertProposal(p *Proposal) error
	UpdateProposal(p *Proposal) error

	// InsertBallot returns ErrDuplicateVote if the voter already has a ballot
	// on the proposal.
	InsertBallot(b *Ballot) error
	// Ballots returns the ballots of a proposal in cast order.
	Ballots(proposalID uint64) ([]*Ballot, error)

	// Outcome returns ErrOutcomeNotFound if none is recorded.
	Outcome(proposalID uint64) (*Outcome, error)
	// InsertOutcome returns ErrOutcomeAlreadyRecorded if the proposal already
	// has an outcome.
	InsertOutcome(o *Outcome) error
}

// Store runs transactions over swarm state.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged.
	Update(ctx context.Context, fn func(Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error
}
