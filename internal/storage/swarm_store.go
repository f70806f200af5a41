package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// sqlTx implements swarm.Tx on a database transaction. Unsigned counters are
// stored bit-for-bit in SQLite's signed INTEGER columns.
type sqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	writable bool
}

func (t *sqlTx) checkWritable() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

// --- Swarm config ---

func (t *sqlTx) Config() (*swarm.Config, error) {
	cfg := &swarm.Config{}
	var authority string
	var total, executed int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT authority, max_agents, active_agents, min_votes_required, proposal_timeout,
		        total_proposals, executed_proposals, created_at
		 FROM swarm WHERE key = ?`, swarm.SwarmKey().String(),
	).Scan(&authority, &cfg.MaxAgents, &cfg.ActiveAgents, &cfg.MinVotesRequired, &cfg.ProposalTimeout,
		&total, &executed, &cfg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, swarm.ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get swarm config: %w", err)
	}
	cfg.Authority = swarm.Identity(authority)
	cfg.TotalProposals = uint64(total)
	cfg.ExecutedProposals = uint64(executed)
	return cfg, nil
}

func (t *sqlTx) PutConfig(cfg *swarm.Config) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO swarm (key, authority, max_agents, active_agents, min_votes_required, proposal_timeout,
		                    total_proposals, executed_proposals, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		    active_agents = excluded.active_agents,
		    total_proposals = excluded.total_proposals,
		    executed_proposals = excluded.executed_proposals`,
		swarm.SwarmKey().String(), string(cfg.Authority), cfg.MaxAgents, cfg.ActiveAgents, cfg.MinVotesRequired,
		cfg.ProposalTimeout, int64(cfg.TotalProposals), int64(cfg.ExecutedProposals), cfg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put swarm config: %w", err)
	}
	return nil
}

// --- Agents ---

const agentColumns = `owner, agent_type, name, reputation, proposals_created, votes_cast,
	successful_proposals, registered_at, last_active, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*swarm.Agent, error) {
	a := &swarm.Agent{}
	var owner, typ string
	var active int
	err := row.Scan(&owner, &typ, &a.Name, &a.Reputation, &a.ProposalsCreated, &a.VotesCast,
		&a.SuccessfulProposals, &a.RegisteredAt, &a.LastActive, &active)
	if err != nil {
		return nil, err
	}
	a.Owner = swarm.Identity(owner)
	if a.Type, err = swarm.ParseAgentType(typ); err != nil {
		return nil, fmt.Errorf("agent %s: %w", owner, err)
	}
	a.IsActive = active == 1
	return a, nil
}

func (t *sqlTx) Agent(owner swarm.Identity) (*swarm.Agent, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+agentColumns+` FROM agents WHERE key = ?`, swarm.AgentKey(owner).String())
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, swarm.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (t *sqlTx) Agents() ([]*swarm.Agent, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY registered_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*swarm.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (t *sqlTx) InsertAgent(a *swarm.Agent) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO agents (key, `+agentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		swarm.AgentKey(a.Owner).String(), string(a.Owner), a.Type.String(), a.Name, a.Reputation,
		a.ProposalsCreated, a.VotesCast, a.SuccessfulProposals, a.RegisteredAt, a.LastActive,
		boolToInt(a.IsActive),
	)
	if isUniqueViolation(err) {
		return swarm.ErrAlreadyRegistered
	}
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateAgent(a *swarm.Agent) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE agents SET reputation = ?, proposals_created = ?, votes_cast = ?,
		        successful_proposals = ?, last_active = ?, is_active = ?
		 WHERE key = ?`,
		a.Reputation, a.ProposalsCreated, a.VotesCast, a.SuccessfulProposals, a.LastActive,
		boolToInt(a.IsActive), swarm.AgentKey(a.Owner).String(),
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return expectOne(res, swarm.ErrAgentNotFound)
}

// --- Proposals ---

const proposalColumns = `id, proposer, proposal_type, data, description, created_at, expires_at,
	executed, executed_at, votes_for, votes_against, votes_abstain,
	weighted_votes_for, weighted_votes_against, total_voters`

func scanProposal(row rowScanner) (*swarm.Proposal, error) {
	p := &swarm.Proposal{}
	var id, wFor, wAgainst int64
	var proposer, typ string
	var executed int
	err := row.Scan(&id, &proposer, &typ, &p.Data, &p.Description, &p.CreatedAt, &p.ExpiresAt,
		&executed, &p.ExecutedAt, &p.VotesFor, &p.VotesAgainst, &p.VotesAbstain,
		&wFor, &wAgainst, &p.TotalVoters)
	if err != nil {
		return nil, err
	}
	p.ID = uint64(id)
	p.Proposer = swarm.Identity(proposer)
	if p.Type, err = swarm.ParseProposalType(typ); err != nil {
		return nil, fmt.Errorf("proposal %d: %w", p.ID, err)
	}
	p.Executed = executed == 1
	p.WeightedVotesFor = uint64(wFor)
	p.WeightedVotesAgainst = uint64(wAgainst)
	return p, nil
}

func (t *sqlTx) voters(key swarm.Key) (swarm.VoterSet, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT voter FROM ballots WHERE proposal_key = ? ORDER BY rowid`, key.String())
	if err != nil {
		return swarm.VoterSet{}, fmt.Errorf("list voters: %w", err)
	}
	defer rows.Close()

	var ids []swarm.Identity
	for rows.Next() {
		var voter string
		if err := rows.Scan(&voter); err != nil {
			return swarm.VoterSet{}, fmt.Errorf("scan voter: %w", err)
		}
		ids = append(ids, swarm.Identity(voter))
	}
	if err := rows.Err(); err != nil {
		return swarm.VoterSet{}, err
	}
	return swarm.NewVoterSet(ids...), nil
}

func (t *sqlTx) Proposal(id uint64) (*swarm.Proposal, error) {
	key := swarm.ProposalKey(id)
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE key = ?`, key.String())
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, swarm.ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	if p.Voters, err = t.voters(key); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *sqlTx) Proposals() ([]*swarm.Proposal, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+proposalColumns+` FROM proposals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	var proposals []*swarm.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, p := range proposals {
		if p.Voters, err = t.voters(swarm.ProposalKey(p.ID)); err != nil {
			return nil, err
		}
	}
	return proposals, nil
}

func (t *sqlTx) InsertProposal(p *swarm.Proposal) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO proposals (key, `+proposalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		swarm.ProposalKey(p.ID).String(), int64(p.ID), string(p.Proposer), p.Type.String(), p.Data,
		p.Description, p.CreatedAt, p.ExpiresAt, boolToInt(p.Executed), p.ExecutedAt,
		p.VotesFor, p.VotesAgainst, p.VotesAbstain,
		int64(p.WeightedVotesFor), int64(p.WeightedVotesAgainst), p.TotalVoters,
	)
	if err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateProposal(p *swarm.Proposal) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE proposals SET executed = ?, executed_at = ?, votes_for = ?, votes_against = ?,
		        votes_abstain = ?, weighted_votes_for = ?, weighted_votes_against = ?, total_voters = ?
		 WHERE key = ?`,
		boolToInt(p.Executed), p.ExecutedAt, p.VotesFor, p.VotesAgainst, p.VotesAbstain,
		int64(p.WeightedVotesFor), int64(p.WeightedVotesAgainst), p.TotalVoters,
		swarm.ProposalKey(p.ID).String(),
	)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	return expectOne(res, swarm.ErrProposalNotFound)
}

// --- Ballots ---

func (t *sqlTx) InsertBallot(b *swarm.Ballot) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO ballots (proposal_key, proposal_id, voter, choice, weight, reasoning, cast_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		swarm.ProposalKey(b.ProposalID).String(), int64(b.ProposalID), string(b.Voter),
		b.Choice.String(), int64(b.Weight), b.Reasoning, b.CastAt,
	)
	if isUniqueViolation(err) {
		return swarm.ErrDuplicateVote
	}
	if err != nil {
		return fmt.Errorf("create ballot: %w", err)
	}
	return nil
}

func (t *sqlTx) Ballots(proposalID uint64) ([]*swarm.Ballot, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT voter, choice, weight, reasoning, cast_at
		 FROM ballots WHERE proposal_key = ? ORDER BY rowid`,
		swarm.ProposalKey(proposalID).String())
	if err != nil {
		return nil, fmt.Errorf("list ballots: %w", err)
	}
	defer rows.Close()

	var ballots []*swarm.Ballot
	for rows.Next() {
		b := &swarm.Ballot{ProposalID: proposalID}
		var voter, choice string
		var weight int64
		if err := rows.Scan(&voter, &choice, &weight, &b.Reasoning, &b.CastAt); err != nil {
			return nil, fmt.Errorf("scan ballot: %w", err)
		}
		b.Voter = swarm.Identity(voter)
		b.Weight = uint64(weight)
		if b.Choice, err = swarm.ParseVoteChoice(choice); err != nil {
			return nil, fmt.Errorf("ballot of %s: %w", voter, err)
		}
		ballots = append(ballots, b)
	}
	return ballots, rows.Err()
}

// --- Outcomes ---

func (t *sqlTx) Outcome(proposalID uint64) (*swarm.Outcome, error) {
	o := &swarm.Outcome{ProposalID: proposalID}
	var executedBy string
	var success int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT executed_by, success, metrics, executed_at FROM outcomes WHERE key = ?`,
		swarm.OutcomeKey(swarm.ProposalKey(proposalID)).String(),
	).Scan(&executedBy, &success, &o.Metrics, &o.ExecutedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, swarm.ErrOutcomeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	o.ExecutedBy = swarm.Identity(executedBy)
	o.Success = success == 1
	return o, nil
}

func (t *sqlTx) InsertOutcome(o *swarm.Outcome) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	proposalKey := swarm.ProposalKey(o.ProposalID)
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO outcomes (key, proposal_key, proposal_id, executed_by, success, metrics, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		swarm.OutcomeKey(proposalKey).String(), proposalKey.String(), int64(o.ProposalID),
		string(o.ExecutedBy), boolToInt(o.Success), o.Metrics, o.ExecutedAt,
	)
	if isUniqueViolation(err) {
		return swarm.ErrOutcomeAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("create outcome: %w", err)
	}
	return nil
}

// expectOne maps an update that touched no rows to notFound.
func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
