package swarm

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options configures a Swarm.
type Options struct {
	// Store holds all swarm state. Defaults to a fresh MemoryStore.
	Store Store
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Logger defaults to slog.Default with a component attribute.
	Logger *slog.Logger
	// Publisher receives events after each committed mutation.
	Publisher Publisher
	// Dispatcher runs the action of executed proposals.
	Dispatcher *Dispatcher
}

// Swarm is the governance engine. Mutations are serialized and each runs in
// a single Store transaction. Events and action dispatch happen only after
// the transaction commits.
type Swarm struct {
	mu         sync.Mutex
	store      Store
	clock      func() time.Time
	logger     *slog.Logger
	publisher  Publisher
	dispatcher *Dispatcher
}

// New returns a Swarm configured by opts.
func New(opts Options) *Swarm {
	s := &Swarm{
		store:      opts.Store,
		clock:      opts.Clock,
		logger:     opts.Logger,
		publisher:  opts.Publisher,
		dispatcher: opts.Dispatcher,
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "swarm")
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDispatcher()
	}
	return s
}

// Execution is the result of executing a proposal. DispatchErr is set when
// the proposal committed as executed but its action executor failed.
type Execution struct {
	Proposal    *Proposal `json:"proposal"`
	DispatchErr error     `json:"-"`
}

func (s *Swarm) now() int64 {
	return s.clock().Unix()
}

func (s *Swarm) update(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Update(ctx, fn)
}

func (s *Swarm) publish(ctx context.Context, typ EventType, subject string, data any) {
	ev := Event{ID: uuid.NewString(), Type: typ, At: s.clock().UTC(), Subject: subject, Data: data}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event", "type", typ, "subject", subject, "error", err)
	}
}

// Initialize creates the swarm config. It succeeds at most once.
func (s *Swarm) Initialize(ctx context.Context, authority Identity, maxAgents, minVotes int, timeout int64) (*Config, error) {
	if err := validateIdentity(authority); err != nil {
		return nil, err
	}
	if err := ValidateParams(maxAgents, minVotes, timeout); err != nil {
		return nil, err
	}

	var cfg *Config
	err := s.update(ctx, func(tx Tx) error {
		_, err := tx.Config()
		if err == nil {
			return ErrAlreadyInitialized
		}
		if !errors.Is(err, ErrNotInitialized) {
			return err
		}
		cfg = &Config{
			Authority:        authority,
			MaxAgents:        uint8(maxAgents),
			MinVotesRequired: uint8(minVotes),
			ProposalTimeout:  timeout,
			CreatedAt:        s.now(),
		}
		return tx.PutConfig(cfg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("swarm initialized", "authority", authority, "max_agents", maxAgents, "min_votes", minVotes, "timeout", timeout)
	s.publish(ctx, EventSwarmInitialized, string(authority), cfg.clone())
	return cfg, nil
}

// RegisterAgent admits owner as a new active agent.
func (s *Swarm) RegisterAgent(ctx context.Context, owner Identity, typ AgentType, name string) (*Agent, error) {
	if err := validateIdentity(owner); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if !typ.Valid() {
		return nil, ErrInvalidAgentType
	}

	var agent *Agent
	err := s.update(ctx, func(tx Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		if err := admit(cfg); err != nil {
			return err
		}
		agent = newAgent(owner, typ, name, s.now())
		if err := tx.InsertAgent(agent); err != nil {
			return err
		}
		return tx.PutConfig(cfg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("agent registered", "owner", owner, "type", typ, "name", name)
	s.publish(ctx, EventAgentRegistered, string(owner), agent.clone())
	return agent, nil
}

// SetAgentActive lets the authority suspend or reinstate an agent. It does
// not change the swarm's agent count.
func (s *Swarm) SetAgentActive(ctx context.Context, caller, owner Identity, active bool) (*Agent, error) {
	var agent *Agent
	err := s.update(ctx, func(tx Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		if caller != cfg.Authority {
			return ErrNotAuthority
		}
		agent, err = tx.Agent(owner)
		if err != nil {
			return err
		}
		agent.IsActive = active
		return tx.UpdateAgent(agent)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("agent activity changed", "owner", owner, "active", active)
	s.publish(ctx, EventAgentActivity, string(owner), agent.clone())
	return agent, nil
}

// CreateProposal opens a new proposal authored by proposer.
func (s *Swarm) CreateProposal(ctx context.Context, proposer Identity, typ ProposalType, data []byte, description string) (*Proposal, error) {
	if err := validateProposal(typ, data, description); err != nil {
		return nil, err
	}

	var p *Proposal
	err := s.update(ctx, func(tx Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		agent, err := tx.Agent(proposer)
		if err != nil {
			return err
		}
		if !agent.IsActive {
			return ErrUnauthorized
		}
		p, err = newProposal(cfg, agent, typ, data, description, s.now())
		if err != nil {
			return err
		}
		if err := tx.InsertProposal(p); err != nil {
			return err
		}
		if err := tx.UpdateAgent(agent); err != nil {
			return err
		}
		return tx.PutConfig(cfg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("proposal created", "id", p.ID, "proposer", proposer, "type", typ, "expires_at", p.ExpiresAt)
	s.publish(ctx, EventProposalCreated, strconv.FormatUint(p.ID, 10), p.clone())
	return p, nil
}

// Vote records voter's ballot on proposal id.
func (s *Swarm) Vote(ctx context.Context, voter Identity, id uint64, choice VoteChoice, reasoning string) (*Ballot, error) {
	if len(reasoning) > MaxReasoningLength {
		return nil, ErrReasoningTooLong
	}
	if !choice.Valid() {
		return nil, ErrInvalidChoice
	}

	var ballot *Ballot
	err := s.update(ctx, func(tx Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		agent, err := tx.Agent(voter)
		if err != nil {
			return err
		}
		p, err := tx.Proposal(id)
		if err != nil {
			return err
		}
		ballot, err = castVote(p, agent, choice, reasoning, s.now(), voterCapacity(cfg))
		if err != nil {
			return err
		}
		if err := tx.InsertBallot(ballot); err != nil {
			return err
		}
		if err := tx.UpdateProposal(p); err != nil {
			return err
		}
		return tx.UpdateAgent(agent)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("vote cast", "proposal", id, "voter", voter, "choice", choice, "weight", ballot.Weight)
	s.publish(ctx, EventVoteCast, strconv.FormatUint(id, 10), ballot.clone())
	return ballot, nil
}

// ExecuteProposal marks proposal id executed on behalf of executor and then
// dispatches its action. A dispatch failure does not undo the execution; it
// is returned in Execution.DispatchErr.
func (s *Swarm) ExecuteProposal(ctx context.Context, executor Identity, id uint64) (*Execution, error) {
	var p *Proposal
	err := s.update(ctx, func(tx Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		agent, err := tx.Agent(executor)
		if err != nil {
			return err
		}
		if !agent.IsActive {
			return ErrUnauthorized
		}
		p, err = tx.Proposal(id)
		if err != nil {
			return err
		}
		if err := markExecuted(p, cfg, agent, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateProposal(p); err != nil {
			return err
		}
		if err := tx.UpdateAgent(agent); err != nil {
			return err
		}
		return tx.PutConfig(cfg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("proposal executed", "id", id, "executor", executor, "type", p.Type)
	s.publish(ctx, EventProposalExecuted, strconv.FormatUint(id, 10), p.clone())

	res := &Execution{Proposal: p}
	if err := s.dispatcher.Dispatch(ctx, p.clone()); err != nil {
		s.logger.Error("proposal action failed", "id", id, "error", err)
		res.DispatchErr = err
	}
	return res, nil
}

// UpdateReputation applies a performance score to owner's reputation. Only
// the swarm authority may call it.
func (s *Swarm) UpdateReputation(ctx context.Context, caller, owner Identity, score int) (*Agent, error) {
	var agent *Agent
	err := s.update(ctx, func(tx Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		if caller != cfg.Authority {
			return ErrNotAuthority
		}
		if err := validateScore(score); err != nil {
			return err
		}
		agent, err = tx.Agent(owner)
		if err != nil {
			return err
		}
		agent.Reputation = AdjustReputation(agent.Reputation, score)
		touch(agent, s.now())
		return tx.UpdateAgent(agent)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reputation updated", "owner", owner, "score", score, "reputation", agent.Reputation)
	s.publish(ctx, EventReputationUpdated, string(owner), agent.clone())
	return agent, nil
}

// RecordOutcome stores the real-world result of executed proposal id. A
// successful outcome is credited to the proposer.
func (s *Swarm) RecordOutcome(ctx context.Context, executor Identity, id uint64, success bool, metrics []byte) (*Outcome, error) {
	if err := validateMetrics(metrics); err != nil {
		return nil, err
	}

	var out *Outcome
	err := s.update(ctx, func(tx Tx) error {
		if _, err := tx.Config(); err != nil {
			return err
		}
		if _, err := tx.Agent(executor); err != nil {
			return err
		}
		p, err := tx.Proposal(id)
		if err != nil {
			return err
		}
		out, err = newOutcome(p, executor, success, metrics, s.now())
		if err != nil {
			return err
		}
		if err := tx.InsertOutcome(out); err != nil {
			return err
		}
		if !success {
			return nil
		}
		proposer, err := tx.Agent(p.Proposer)
		if err != nil {
			return err
		}
		if err := incU32(&proposer.SuccessfulProposals, "successful_proposals"); err != nil {
			return err
		}
		return tx.UpdateAgent(proposer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("outcome recorded", "proposal", id, "executor", executor, "success", success)
	s.publish(ctx, EventOutcomeRecorded, strconv.FormatUint(id, 10), out.clone())
	return out, nil
}

// Config returns the swarm config.
func (s *Swarm) Config(ctx context.Context) (*Config, error) {
	var cfg *Config
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		cfg, err = tx.Config()
		return err
	})
	return cfg, err
}

// Agent returns the agent owned by owner.
func (s *Swarm) Agent(ctx context.Context, owner Identity) (*Agent, error) {
	var a *Agent
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := tx.Config(); err != nil {
			return err
		}
		var err error
		a, err = tx.Agent(owner)
		return err
	})
	return a, err
}

// Agents returns all registered agents.
func (s *Swarm) Agents(ctx context.Context) ([]*Agent, error) {
	var list []*Agent
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := tx.Config(); err != nil {
			return err
		}
		var err error
		list, err = tx.Agents()
		return err
	})
	return list, err
}

// Proposal returns proposal id.
func (s *Swarm) Proposal(ctx context.Context, id uint64) (*Proposal, error) {
	var p *Proposal
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := tx.Config(); err != nil {
			return err
		}
		var err error
		p, err = tx.Proposal(id)
		return err
	})
	return p, err
}

// Proposals returns all proposals ordered by id.
func (s *Swarm) Proposals(ctx context.Context) ([]*Proposal, error) {
	var list []*Proposal
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := tx.Config(); err != nil {
			return err
		}
		var err error
		list, err = tx.Proposals()
		return err
	})
	return list, err
}

// Ballots returns the ballots cast on proposal id.
func (s *Swarm) Ballots(ctx context.Context, id uint64) ([]*Ballot, error) {
	var list []*Ballot
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := tx.Config(); err != nil {
			return err
		}
		if _, err := tx.Proposal(id); err != nil {
			return err
		}
		var err error
		list, err = tx.Ballots(id)
		return err
	})
	return list, err
}

// Outcome returns the outcome recorded for proposal id.
func (s *Swarm) Outcome(ctx context.Context, id uint64) (*Outcome, error) {
	var o *Outcome
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := tx.Config(); err != nil {
			return err
		}
		if _, err := tx.Proposal(id); err != nil {
			return err
		}
		var err error
		o, err = tx.Outcome(id)
		return err
	})
	return o, err
}

// ProposalStatus returns the derived status of proposal id at the engine's
// current time.
func (s *Swarm) ProposalStatus(ctx context.Context, id uint64) (Status, error) {
	p, err := s.Proposal(ctx, id)
	if err != nil {
		return "", err
	}
	return ProposalStatus(p, s.now()), nil
}

// Now returns the engine clock in unix seconds.
func (s *Swarm) Now() int64 {
	return s.now()
}
