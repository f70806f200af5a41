package swarm

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. Update stages changes on a copy of the
// state and swaps it in only when the transaction function succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	config     *Config
	agents     map[Identity]*Agent
	agentOrder []Identity
	proposals  map[uint64]*Proposal
	ballots    map[uint64][]*Ballot
	outcomes   map[uint64]*Outcome
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		agents:    make(map[Identity]*Agent),
		proposals: make(map[uint64]*Proposal),
		ballots:   make(map[uint64][]*Ballot),
		outcomes:  make(map[uint64]*Outcome),
	}}
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.copy()
	if err := fn(&memTx{state: staged, writable: true}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// View implements Store.
func (m *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{state: m.state})
}

// copy duplicates the indexes. Records are immutable once stored because
// memTx only ever stores and hands out clones.
func (s *memState) copy() *memState {
	ballots := make(map[uint64][]*Ballot, len(s.ballots))
	for id, list := range s.ballots {
		ballots[id] = append([]*Ballot(nil), list...)
	}
	return &memState{
		config:     s.config,
		agents:     maps.Clone(s.agents),
		agentOrder: append([]Identity(nil), s.agentOrder...),
		proposals:  maps.Clone(s.proposals),
		ballots:    ballots,
		outcomes:   maps.Clone(s.outcomes),
	}
}

var errReadOnly = errors.New("swarm: write in read-only transaction")

type memTx struct {
	state    *memState
	writable bool
}

func (tx *memTx) checkWritable() error {
	if !tx.writable {
		return errReadOnly
	}
	return nil
}

func (tx *memTx) Config() (*Config, error) {
	if tx.state.config == nil {
		return nil, ErrNotInitialized
	}
	return tx.state.config.clone(), nil
}

func (tx *memTx) PutConfig(cfg *Config) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.state.config = cfg.clone()
	return nil
}

func (tx *memTx) Agent(owner Identity) (*Agent, error) {
	a, ok := tx.state.agents[owner]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a.clone(), nil
}

func (tx *memTx) Agents() ([]*Agent, error) {
	out := make([]*Agent, 0, len(tx.state.agentOrder))
	for _, owner := range tx.state.agentOrder {
		out = append(out, tx.state.agents[owner].clone())
	}
	return out, nil
}

func (tx *memTx) InsertAgent(a *Agent) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := tx.state.agents[a.Owner]; ok {
		return ErrAlreadyRegistered
	}
	tx.state.agents[a.Owner] = a.clone()
	tx.state.agentOrder = append(tx.state.agentOrder, a.Owner)
	return nil
}

func (tx *memTx) UpdateAgent(a *Agent) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := tx.state.agents[a.Owner]; !ok {
		return ErrAgentNotFound
	}
	tx.state.agents[a.Owner] = a.clone()
	return nil
}

func (tx *memTx) Proposal(id uint64) (*Proposal, error) {
	p, ok := tx.state.proposals[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	return p.clone(), nil
}

func (tx *memTx) Proposals() ([]*Proposal, error) {
	out := make([]*Proposal, 0, len(tx.state.proposals))
	for _, p := range tx.state.proposals {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) InsertProposal(p *Proposal) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := tx.state.proposals[p.ID]; ok {
		return newError(KindInternal, "proposal_exists", "proposal id already in use")
	}
	tx.state.proposals[p.ID] = p.clone()
	return nil
}

func (tx *memTx) UpdateProposal(p *Proposal) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := tx.state.proposals[p.ID]; !ok {
		return ErrProposalNotFound
	}
	tx.state.proposals[p.ID] = p.clone()
	return nil
}

func (tx *memTx) InsertBallot(b *Ballot) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := tx.state.proposals[b.ProposalID]; !ok {
		return ErrProposalNotFound
	}
	for _, existing := range tx.state.ballots[b.ProposalID] {
		if existing.Voter == b.Voter {
			return ErrDuplicateVote
		}
	}
	tx.state.ballots[b.ProposalID] = append(tx.state.ballots[b.ProposalID], b.clone())
	return nil
}

func (tx *memTx) Ballots(proposalID uint64) ([]*Ballot, error) {
	list := tx.state.ballots[proposalID]
	out := make([]*Ballot, 0, len(list))
	for _, b := range list {
		out = append(out, b.clone())
	}
	return out, nil
}

func (tx *memTx) Outcome(proposalID uint64) (*Outcome, error) {
	o, ok := tx.state.outcomes[proposalID]
	if !ok {
		return nil, ErrOutcomeNotFound
	}
	return o.clone(), nil
}

func (tx *memTx) InsertOutcome(o *Outcome) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := tx.state.outcomes[o.ProposalID]; ok {
		return ErrOutcomeAlreadyRecorded
	}
	tx.state.outcomes[o.ProposalID] = o.clone()
	return nil
}
