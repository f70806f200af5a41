// Package swarm implements the governance core of an agent swarm: agent
// registration, proposal lifecycle, reputation-weighted voting, quorum and
// approval checks, outcome recording and reputation feedback.
//
// All state lives behind a Store. Every mutating operation runs as a single
// Store transaction and the Swarm serializes mutations, so no caller ever
// observes a partially applied vote or execution.
package swarm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Identity is the opaque identity of a caller, as established by the
// identity gateway. In this module it is the hex-encoded Ed25519 public key
// of the signer.
type Identity string

// AgentKind enumerates the built-in agent roles.
type AgentKind uint8

const (
	AgentConsensus AgentKind = iota
	AgentAnalytics
	AgentExecution
	AgentRiskManagement
	AgentLearning
	AgentGovernance
	AgentSecurity
	AgentLiquidity
	AgentArbitrage
	AgentCustom
)

var agentKindNames = map[AgentKind]string{
	AgentConsensus:      "consensus",
	AgentAnalytics:      "analytics",
	AgentExecution:      "execution",
	AgentRiskManagement: "risk_management",
	AgentLearning:       "learning",
	AgentGovernance:     "governance",
	AgentSecurity:       "security",
	AgentLiquidity:      "liquidity",
	AgentArbitrage:      "arbitrage",
}

// AgentType is an agent role. Custom roles carry a community-defined number.
type AgentType struct {
	Kind   AgentKind
	Custom uint8
}

// CustomAgentType returns the custom agent type numbered n.
func CustomAgentType(n uint8) AgentType {
	return AgentType{Kind: AgentCustom, Custom: n}
}

func (t AgentType) String() string {
	if t.Kind == AgentCustom {
		return "custom:" + strconv.Itoa(int(t.Custom))
	}
	if name, ok := agentKindNames[t.Kind]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t names a known role.
func (t AgentType) Valid() bool {
	if t.Kind == AgentCustom {
		return true
	}
	_, ok := agentKindNames[t.Kind]
	return ok && t.Custom == 0
}

// ParseAgentType parses the textual form produced by AgentType.String.
func ParseAgentType(s string) (AgentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if rest, ok := strings.CutPrefix(s, "custom:"); ok {
		n, err := strconv.ParseUint(rest, 10, 8)
		if err != nil {
			return AgentType{}, fmt.Errorf("%w: %q", ErrInvalidAgentType, s)
		}
		return CustomAgentType(uint8(n)), nil
	}
	for kind, name := range agentKindNames {
		if name == s {
			return AgentType{Kind: kind}, nil
		}
	}
	return AgentType{}, fmt.Errorf("%w: %q", ErrInvalidAgentType, s)
}

func (t AgentType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidAgentType
	}
	return []byte(t.String()), nil
}

func (t *AgentType) UnmarshalText(b []byte) error {
	parsed, err := ParseAgentType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ProposalType is the kind of action a proposal asks the swarm to take.
type ProposalType uint8

const (
	ProposalRebalance ProposalType = iota
	ProposalTrade
	ProposalRiskLimit
	ProposalStrategy
	ProposalEmergency
)

var proposalTypeNames = [...]string{
	ProposalRebalance: "rebalance",
	ProposalTrade:     "trade",
	ProposalRiskLimit: "risk_limit",
	ProposalStrategy:  "strategy",
	ProposalEmergency: "emergency",
}

// ProposalTypes lists every proposal type in declaration order.
func ProposalTypes() []ProposalType {
	return []ProposalType{ProposalRebalance, ProposalTrade, ProposalRiskLimit, ProposalStrategy, ProposalEmergency}
}

func (t ProposalType) String() string {
	if t.Valid() {
		return proposalTypeNames[t]
	}
	return "unknown"
}

// Valid reports whether t is a known proposal type.
func (t ProposalType) Valid() bool {
	return int(t) < len(proposalTypeNames)
}

// ParseProposalType parses the textual form produced by ProposalType.String.
func ParseProposalType(s string) (ProposalType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range proposalTypeNames {
		if name == s {
			return ProposalType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidProposalType, s)
}

func (t ProposalType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidProposalType
	}
	return []byte(t.String()), nil
}

func (t *ProposalType) UnmarshalText(b []byte) error {
	parsed, err := ParseProposalType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// VoteChoice is a ballot choice.
type VoteChoice uint8

const (
	VoteApprove VoteChoice = iota
	VoteReject
	VoteAbstain
)

func (c VoteChoice) String() string {
	switch c {
	case VoteApprove:
		return "approve"
	case VoteReject:
		return "reject"
	case VoteAbstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a known choice.
func (c VoteChoice) Valid() bool {
	return c <= VoteAbstain
}

// ParseVoteChoice parses "approve", "reject" or "abstain".
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve":
		return VoteApprove, nil
	case "reject":
		return VoteReject, nil
	case "abstain":
		return VoteAbstain, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

func (c VoteChoice) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrInvalidChoice
	}
	return []byte(c.String()), nil
}

func (c *VoteChoice) UnmarshalText(b []byte) error {
	parsed, err := ParseVoteChoice(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Config is the swarm-wide configuration and counters.
type Config struct {
	Authority         Identity `json:"authority"`
	MaxAgents         uint8    `json:"max_agents"`
	ActiveAgents      uint8    `json:"active_agents"`
	MinVotesRequired  uint8    `json:"min_votes_required"`
	ProposalTimeout   int64    `json:"proposal_timeout"`
	TotalProposals    uint64   `json:"total_proposals"`
	ExecutedProposals uint64   `json:"executed_proposals"`
	CreatedAt         int64    `json:"created_at"`
}

// Agent is a registered swarm participant.
type Agent struct {
	Owner               Identity  `json:"owner"`
	Type                AgentType `json:"agent_type"`
	Name                string    `json:"name"`
	Reputation          uint16    `json:"reputation"`
	ProposalsCreated    uint32    `json:"proposals_created"`
	VotesCast           uint32    `json:"votes_cast"`
	SuccessfulProposals uint32    `json:"successful_proposals"`
	RegisteredAt        int64     `json:"registered_at"`
	LastActive          int64     `json:"last_active"`
	IsActive            bool      `json:"is_active"`
}

// Proposal is a timed, votable unit of proposed action.
type Proposal struct {
	ID                   uint64       `json:"id"`
	Proposer             Identity     `json:"proposer"`
	Type                 ProposalType `json:"proposal_type"`
	Data                 []byte       `json:"data"`
	Description          string       `json:"description"`
	CreatedAt            int64        `json:"created_at"`
	ExpiresAt            int64        `json:"expires_at"`
	Executed             bool         `json:"executed"`
	ExecutedAt           int64        `json:"executed_at"`
	VotesFor             uint32       `json:"votes_for"`
	VotesAgainst         uint32       `json:"votes_against"`
	VotesAbstain         uint32       `json:"votes_abstain"`
	WeightedVotesFor     uint64       `json:"weighted_votes_for"`
	WeightedVotesAgainst uint64       `json:"weighted_votes_against"`
	TotalVoters          uint8        `json:"total_voters"`
	Voters               VoterSet     `json:"voters"`
}

// Ballot is one recorded vote.
type Ballot struct {
	ProposalID uint64     `json:"proposal_id"`
	Voter      Identity   `json:"voter"`
	Choice     VoteChoice `json:"choice"`
	Weight     uint64     `json:"weight"`
	Reasoning  string     `json:"reasoning,omitempty"`
	CastAt     int64      `json:"cast_at"`
}

// Outcome is the immutable record of an executed proposal's real-world
// result.
type Outcome struct {
	ProposalID uint64   `json:"proposal_id"`
	ExecutedBy Identity `json:"executed_by"`
	Success    bool     `json:"success"`
	Metrics    []byte   `json:"metrics"`
	ExecutedAt int64    `json:"executed_at"`
}

// VoterSet is an insertion-ordered set of voter identities.
type VoterSet struct {
	order []Identity
	index map[Identity]struct{}
}

// NewVoterSet returns a set holding ids. Duplicates are collapsed.
func NewVoterSet(ids ...Identity) VoterSet {
	var s VoterSet
	for _, id := range ids {
		if !s.Contains(id) {
			s.insert(id)
		}
	}
	return s
}

// Contains reports whether id is in the set.
func (s *VoterSet) Contains(id Identity) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of members.
func (s *VoterSet) Len() int {
	return len(s.order)
}

// Members returns the members in insertion order.
func (s *VoterSet) Members() []Identity {
	out := make([]Identity, len(s.order))
	copy(out, s.order)
	return out
}

// Add inserts id, refusing duplicates and insertion beyond capacity.
func (s *VoterSet) Add(id Identity, capacity int) error {
	if s.Contains(id) {
		return ErrDuplicateVote
	}
	if len(s.order) >= capacity {
		return ErrVoterCapacity
	}
	s.insert(id)
	return nil
}

func (s *VoterSet) insert(id Identity) {
	if s.index == nil {
		s.index = make(map[Identity]struct{})
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s VoterSet) clone() VoterSet {
	return NewVoterSet(s.order...)
}

func (s VoterSet) MarshalJSON() ([]byte, error) {
	if s.order == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.order)
}

func (s *VoterSet) UnmarshalJSON(b []byte) error {
	var ids []Identity
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewVoterSet(ids...)
	return nil
}

func (c *Config) clone() *Config {
	cpy := *c
	return &cpy
}

func (a *Agent) clone() *Agent {
	cpy := *a
	return &cpy
}

func (p *Proposal) clone() *Proposal {
	cpy := *p
	cpy.Data = append([]byte(nil), p.Data...)
	cpy.Voters = p.Voters.clone()
	return &cpy
}

func (b *Ballot) clone() *Ballot {
	cpy := *b
	return &cpy
}

func (o *Outcome) clone() *Outcome {
	cpy := *o
	cpy.Metrics = append([]byte(nil), o.Metrics...)
	return &cpy
}
