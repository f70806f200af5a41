package server

import (
	"net/http"
	"strconv"

	"github.com/ssd-technologies/swarmgov/internal/agent"
	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// ---------------------------------------------------------------------------
// Swarm
// ---------------------------------------------------------------------------

// handleInitialize creates the swarm with the signer as its authority.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		MaxAgents        int    `json:"max_agents"`
		MinVotesRequired int    `json:"min_votes_required"`
		ProposalTimeout  *int64 `json:"proposal_timeout"`
	}
	if !decodeBody(w, body, &req) {
		return
	}
	timeout := swarm.DefaultProposalTimeout
	if req.ProposalTimeout != nil {
		timeout = *req.ProposalTimeout
	}

	cfg, err := s.swarm.Initialize(r.Context(), caller, req.MaxAgents, req.MinVotesRequired, timeout)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleGetSwarm(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.swarm.Config(r.Context())
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

// handleRegisterAgent registers the signer as an agent.
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		AgentType *swarm.AgentType `json:"agent_type"`
		Name      string           `json:"name"`
	}
	if !decodeBody(w, body, &req) {
		return
	}
	if req.AgentType == nil {
		writeError(w, http.StatusBadRequest, "agent_type required")
		return
	}

	a, err := s.swarm.RegisterAgent(r.Context(), caller, *req.AgentType, req.Name)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.swarm.Agents(r.Context())
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	if list == nil {
		list = []*swarm.Agent{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.swarm.Agent(r.Context(), ownerParam(r))
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ownerParam returns the {owner} path value. A well-formed identity is
// canonicalized so any hex case names the same agent.
func ownerParam(r *http.Request) swarm.Identity {
	owner := r.PathValue("owner")
	if pub, err := agent.ParseIdentity(owner); err == nil {
		owner = agent.IdentityFromPublicKey(pub)
	}
	return swarm.Identity(owner)
}

// handleUpdateReputation applies a performance score. Authority only.
func (s *Server) handleUpdateReputation(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		PerformanceScore *int `json:"performance_score"`
	}
	if !decodeBody(w, body, &req) {
		return
	}
	if req.PerformanceScore == nil {
		writeError(w, http.StatusBadRequest, "performance_score required")
		return
	}

	a, err := s.swarm.UpdateReputation(r.Context(), caller, ownerParam(r), *req.PerformanceScore)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleSetActive suspends or reinstates an agent. Authority only.
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if !decodeBody(w, body, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active required")
		return
	}

	a, err := s.swarm.SetAgentActive(r.Context(), caller, ownerParam(r), *req.Active)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ---------------------------------------------------------------------------
// Proposals
// ---------------------------------------------------------------------------

// proposalView is a proposal plus its derived state.
type proposalView struct {
	*swarm.Proposal
	Status    swarm.Status `json:"status"`
	HasQuorum bool         `json:"has_quorum"`
	Approved  bool         `json:"approved"`
}

func (s *Server) viewProposal(cfg *swarm.Config, p *swarm.Proposal) proposalView {
	return proposalView{
		Proposal:  p,
		Status:    swarm.ProposalStatus(p, s.swarm.Now()),
		HasQuorum: swarm.HasQuorum(p, cfg.MinVotesRequired, cfg.ActiveAgents),
		Approved:  swarm.IsApproved(p),
	}
}

// proposalID parses the {id} path value, writing a 400 on failure.
func proposalID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		ProposalType *swarm.ProposalType `json:"proposal_type"`
		Data         []byte              `json:"data"`
		Description  string              `json:"description"`
	}
	if !decodeBody(w, body, &req) {
		return
	}
	if req.ProposalType == nil {
		writeError(w, http.StatusBadRequest, "proposal_type required")
		return
	}

	p, err := s.swarm.CreateProposal(r.Context(), caller, *req.ProposalType, req.Data, req.Description)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.swarm.Config(r.Context())
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	list, err := s.swarm.Proposals(r.Context())
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}

	status := swarm.Status(r.URL.Query().Get("status"))
	views := make([]proposalView, 0, len(list))
	for _, p := range list {
		v := s.viewProposal(cfg, p)
		if status != "" && v.Status != status {
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	cfg, err := s.swarm.Config(r.Context())
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	p, err := s.swarm.Proposal(r.Context(), id)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewProposal(cfg, p))
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		Choice    *swarm.VoteChoice `json:"choice"`
		Reasoning string            `json:"reasoning"`
	}
	if !decodeBody(w, body, &req) {
		return
	}
	if req.Choice == nil {
		writeError(w, http.StatusBadRequest, "choice required")
		return
	}

	b, err := s.swarm.Vote(r.Context(), caller, id, *req.Choice, req.Reasoning)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	list, err := s.swarm.Ballots(r.Context(), id)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	if list == nil {
		list = []*swarm.Ballot{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleExecute executes an approved proposal. A failed action dispatch is
// reported alongside the executed proposal rather than as an error status.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	_, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	res, err := s.swarm.ExecuteProposal(r.Context(), caller, id)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}

	resp := map[string]any{"proposal": res.Proposal}
	if res.DispatchErr != nil {
		resp["dispatch_error"] = res.DispatchErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		Success *bool  `json:"success"`
		Metrics []byte `json:"metrics"`
	}
	if !decodeBody(w, body, &req) {
		return
	}
	if req.Success == nil {
		writeError(w, http.StatusBadRequest, "success required")
		return
	}

	o, err := s.swarm.RecordOutcome(r.Context(), caller, id, *req.Success, req.Metrics)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	o, err := s.swarm.Outcome(r.Context(), id)
	if err != nil {
		s.writeSwarmError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
