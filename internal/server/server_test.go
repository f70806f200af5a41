package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ssd-technologies/swarmgov/internal/agent"
	"github.com/ssd-technologies/swarmgov/internal/events"
	"github.com/ssd-technologies/swarmgov/internal/ratelimit"
	"github.com/ssd-technologies/swarmgov/internal/storage"
	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv   *Server
	clock *testClock
	hub   *events.Hub
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer creates a server over a fresh SQLite database.
func setupTestServer(t *testing.T, limiter *ratelimit.Keyed, dispatcher *swarm.Dispatcher) *testEnv {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	hub := events.NewHub(discardLogger())
	sw := swarm.New(swarm.Options{
		Store:      db,
		Clock:      clock.Now,
		Logger:     discardLogger(),
		Publisher:  hub,
		Dispatcher: dispatcher,
	})
	gw, err := agent.NewGateway(0, discardLogger())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return &testEnv{
		srv:   New(sw, gw, hub, limiter, discardLogger()),
		clock: clock,
		hub:   hub,
	}
}

type testKey struct {
	id   string
	priv ed25519.PrivateKey
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testKey{id: agent.IdentityFromPublicKey(pub), priv: priv}
}

// do sends a request signed by key (unsigned when key is nil) and returns
// the recorder.
func (e *testEnv) do(t *testing.T, key *testKey, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWith(t, key, method, path, body, nil)
}

// doWith is do with edit applied to the request after signing.
func (e *testEnv) doWith(t *testing.T, key *testKey, method, path string, body any, edit func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		agent.SignRequest(req, key.priv, raw)
	}
	if edit != nil {
		edit(req)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v; body = %s", err, rec.Body.String())
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["code"]
}

// initSwarm initializes a swarm of at most 5 agents needing 3 votes and
// registers one agent per key.
func (e *testEnv) initSwarm(t *testing.T, authority testKey, agents ...testKey) {
	t.Helper()
	rec := e.do(t, &authority, http.MethodPost, "/api/swarm/initialize", map[string]any{
		"max_agents":         5,
		"min_votes_required": 3,
		"proposal_timeout":   3600,
	})
	expectStatus(t, rec, http.StatusCreated)

	for i, k := range agents {
		rec := e.do(t, &k, http.MethodPost, "/api/agents", map[string]any{
			"agent_type": []string{"execution", "risk_management", "custom:7"}[i%3],
			"name":       "agent-" + k.id[:8],
		})
		expectStatus(t, rec, http.StatusCreated)
	}
}

func TestHealth(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	rec := e.do(t, nil, http.MethodGet, "/api/health", nil)
	expectStatus(t, rec, http.StatusOK)

	got := decode[map[string]string](t, rec)
	want := map[string]string{"status": "ok", "service": "swarmgov"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("missing request id header")
	}
}

func TestFullGovernanceFlow(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	authority, b, c, d := newTestKey(t), newTestKey(t), newTestKey(t), newTestKey(t)
	e.initSwarm(t, authority, b, c, d)

	// Swarm state.
	rec := e.do(t, nil, http.MethodGet, "/api/swarm", nil)
	expectStatus(t, rec, http.StatusOK)
	cfg := decode[swarm.Config](t, rec)
	if cfg.Authority != swarm.Identity(authority.id) || cfg.ActiveAgents != 3 || cfg.MaxAgents != 5 {
		t.Fatalf("config = %+v", cfg)
	}

	// Proposal by b.
	rec = e.do(t, &b, http.MethodPost, "/api/proposals", map[string]any{
		"proposal_type": "trade",
		"data":          []byte("buy 10"),
		"description":   "rotate into stables",
	})
	expectStatus(t, rec, http.StatusCreated)
	p := decode[swarm.Proposal](t, rec)
	if p.ID != 0 || p.Type != swarm.ProposalTrade || string(p.Data) != "buy 10" {
		t.Fatalf("proposal = %+v", p)
	}

	// Votes: two approve, one reject.
	for _, v := range []struct {
		key    testKey
		choice string
	}{{b, "approve"}, {c, "approve"}, {d, "reject"}} {
		rec := e.do(t, &v.key, http.MethodPost, "/api/proposals/0/votes", map[string]any{
			"choice":    v.choice,
			"reasoning": "because " + v.choice,
		})
		expectStatus(t, rec, http.StatusCreated)
		ballot := decode[swarm.Ballot](t, rec)
		if ballot.Weight != 11000 {
			t.Errorf("ballot weight = %d, want 11000", ballot.Weight)
		}
	}

	rec = e.do(t, nil, http.MethodGet, "/api/proposals/0", nil)
	expectStatus(t, rec, http.StatusOK)
	view := decode[map[string]any](t, rec)
	if view["status"] != "open" || view["has_quorum"] != true || view["approved"] != true {
		t.Fatalf("proposal view = %v", view)
	}
	if view["weighted_votes_for"] != float64(22000) || view["total_voters"] != float64(3) {
		t.Errorf("tallies = %v", view)
	}

	rec = e.do(t, nil, http.MethodGet, "/api/proposals/0/votes", nil)
	expectStatus(t, rec, http.StatusOK)
	if ballots := decode[[]swarm.Ballot](t, rec); len(ballots) != 3 {
		t.Fatalf("got %d ballots, want 3", len(ballots))
	}

	// Execute by c.
	rec = e.do(t, &c, http.MethodPost, "/api/proposals/0/execute", nil)
	expectStatus(t, rec, http.StatusOK)
	exec := decode[struct {
		Proposal      swarm.Proposal `json:"proposal"`
		DispatchError string         `json:"dispatch_error"`
	}](t, rec)
	if !exec.Proposal.Executed || exec.DispatchError != "" {
		t.Fatalf("execution = %+v", exec)
	}

	// Outcome by c, credited to b.
	rec = e.do(t, &c, http.MethodPost, "/api/proposals/0/outcome", map[string]any{
		"success": true,
		"metrics": []byte(`{"pnl":12}`),
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = e.do(t, nil, http.MethodGet, "/api/proposals/0/outcome", nil)
	expectStatus(t, rec, http.StatusOK)
	out := decode[swarm.Outcome](t, rec)
	if !out.Success || out.ExecutedBy != swarm.Identity(c.id) || string(out.Metrics) != `{"pnl":12}` {
		t.Errorf("outcome = %+v", out)
	}

	rec = e.do(t, nil, http.MethodGet, "/api/agents/"+b.id, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[swarm.Agent](t, rec); got.SuccessfulProposals != 1 || got.ProposalsCreated != 1 {
		t.Errorf("proposer stats = %+v", got)
	}

	// Reputation, authority only.
	rec = e.do(t, &authority, http.MethodPost, "/api/agents/"+c.id+"/reputation", map[string]any{"performance_score": 900})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[swarm.Agent](t, rec); got.Reputation != 1040 {
		t.Errorf("reputation = %d, want 1040", got.Reputation)
	}
	rec = e.do(t, &b, http.MethodPost, "/api/agents/"+c.id+"/reputation", map[string]any{"performance_score": 0})
	expectStatus(t, rec, http.StatusForbidden)
	if code := errorCode(t, rec); code != "not_authority" {
		t.Errorf("code = %q, want not_authority", code)
	}

	// Deactivated agents cannot propose.
	rec = e.do(t, &authority, http.MethodPost, "/api/agents/"+d.id+"/active", map[string]any{"active": false})
	expectStatus(t, rec, http.StatusOK)
	rec = e.do(t, &d, http.MethodPost, "/api/proposals", map[string]any{
		"proposal_type": "strategy",
		"description":   "should fail",
	})
	expectStatus(t, rec, http.StatusForbidden)

	rec = e.do(t, nil, http.MethodGet, "/api/agents", nil)
	expectStatus(t, rec, http.StatusOK)
	if agents := decode[[]swarm.Agent](t, rec); len(agents) != 3 {
		t.Errorf("got %d agents, want 3", len(agents))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	authority, b, c, d := newTestKey(t), newTestKey(t), newTestKey(t), newTestKey(t)

	// Before initialization.
	rec := e.do(t, nil, http.MethodGet, "/api/swarm", nil)
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "not_initialized" {
		t.Errorf("code = %q, want not_initialized", code)
	}

	e.initSwarm(t, authority, b, c, d)

	tests := []struct {
		name   string
		key    *testKey
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"reinitialize", &authority, http.MethodPost, "/api/swarm/initialize", map[string]any{"max_agents": 5, "min_votes_required": 3}, http.StatusConflict, "already_initialized"},
		{"register twice", &b, http.MethodPost, "/api/agents", map[string]any{"agent_type": "execution", "name": "again"}, http.StatusConflict, "already_registered"},
		{"name too long", &authority, http.MethodPost, "/api/agents", map[string]any{"agent_type": "execution", "name": string(make([]byte, 33))}, http.StatusBadRequest, "name_too_long"},
		{"unknown agent type", &authority, http.MethodPost, "/api/agents", map[string]any{"agent_type": "wizard", "name": "x"}, http.StatusBadRequest, "invalid_agent_type"},
		{"unknown proposal type", &b, http.MethodPost, "/api/proposals", map[string]any{"proposal_type": "yolo"}, http.StatusBadRequest, "invalid_proposal_type"},
		{"unregistered proposer", &authority, http.MethodPost, "/api/proposals", map[string]any{"proposal_type": "trade"}, http.StatusNotFound, "agent_not_found"},
		{"missing proposal", &b, http.MethodPost, "/api/proposals/42/votes", map[string]any{"choice": "approve"}, http.StatusNotFound, "proposal_not_found"},
		{"missing agent", nil, http.MethodGet, "/api/agents/nobody", nil, http.StatusNotFound, "agent_not_found"},
		{"score out of range", &authority, http.MethodPost, "/api/agents/" + b.id + "/reputation", map[string]any{"performance_score": 1001}, http.StatusBadRequest, "invalid_score"},
		{"bad initialize params", &b, http.MethodPost, "/api/swarm/initialize", map[string]any{"max_agents": 2, "min_votes_required": 2}, http.StatusBadRequest, "invalid_agent_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.key, tt.method, tt.path, tt.body)
			expectStatus(t, rec, tt.status)
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestExecuteRules(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	authority, b, c, d := newTestKey(t), newTestKey(t), newTestKey(t), newTestKey(t)
	e.initSwarm(t, authority, b, c, d)

	rec := e.do(t, &b, http.MethodPost, "/api/proposals", map[string]any{"proposal_type": "rebalance"})
	expectStatus(t, rec, http.StatusCreated)

	// Not enough votes.
	rec = e.do(t, &b, http.MethodPost, "/api/proposals/0/votes", map[string]any{"choice": "approve"})
	expectStatus(t, rec, http.StatusCreated)
	rec = e.do(t, &b, http.MethodPost, "/api/proposals/0/execute", nil)
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "insufficient_votes" {
		t.Errorf("code = %q, want insufficient_votes", code)
	}

	// Duplicate vote.
	rec = e.do(t, &b, http.MethodPost, "/api/proposals/0/votes", map[string]any{"choice": "reject", "reasoning": "changed my mind"})
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "duplicate_vote" {
		t.Errorf("code = %q, want duplicate_vote", code)
	}

	// Outcome before execution.
	rec = e.do(t, &c, http.MethodPost, "/api/proposals/0/outcome", map[string]any{"success": true})
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "proposal_not_executed" {
		t.Errorf("code = %q, want proposal_not_executed", code)
	}

	// Expiry.
	e.clock.Advance(3601 * time.Second)
	rec = e.do(t, &c, http.MethodPost, "/api/proposals/0/votes", map[string]any{"choice": "approve"})
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "proposal_expired" {
		t.Errorf("code = %q, want proposal_expired", code)
	}

	rec = e.do(t, nil, http.MethodGet, "/api/proposals?status=expired", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]map[string]any](t, rec); len(list) != 1 {
		t.Errorf("got %d expired proposals, want 1", len(list))
	}
	rec = e.do(t, nil, http.MethodGet, "/api/proposals?status=open", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]map[string]any](t, rec); len(list) != 0 {
		t.Errorf("got %d open proposals, want 0", len(list))
	}
}

func TestExecuteReportsDispatchFailure(t *testing.T) {
	dispatcher := swarm.NewDispatcher()
	dispatcher.Register(swarm.ProposalEmergency, swarm.ExecutorFunc(func(context.Context, *swarm.Proposal) error {
		return errors.New("exchange unreachable")
	}))
	e := setupTestServer(t, nil, dispatcher)
	authority, b, c, d := newTestKey(t), newTestKey(t), newTestKey(t), newTestKey(t)
	e.initSwarm(t, authority, b, c, d)

	rec := e.do(t, &b, http.MethodPost, "/api/proposals", map[string]any{"proposal_type": "emergency", "description": "halt"})
	expectStatus(t, rec, http.StatusCreated)
	for _, k := range []testKey{b, c, d} {
		rec := e.do(t, &k, http.MethodPost, "/api/proposals/0/votes", map[string]any{"choice": "approve"})
		expectStatus(t, rec, http.StatusCreated)
	}

	rec = e.do(t, &d, http.MethodPost, "/api/proposals/0/execute", nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[map[string]any](t, rec)
	if got["dispatch_error"] == nil {
		t.Fatalf("expected dispatch_error in %v", got)
	}
}

func TestAuthentication(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	authority := newTestKey(t)

	t.Run("unsigned", func(t *testing.T) {
		rec := e.do(t, nil, http.MethodPost, "/api/swarm/initialize", map[string]any{"max_agents": 5, "min_votes_required": 3})
		expectStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/swarm/initialize", bytes.NewReader([]byte(`{"max_agents":20,"min_votes_required":11}`)))
		agent.SignRequest(req, authority.priv, []byte(`{"max_agents":5,"min_votes_required":3}`))
		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		expectStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("replay", func(t *testing.T) {
		body := []byte(`{"max_agents":5,"min_votes_required":3}`)
		req := httptest.NewRequest(http.MethodPost, "/api/swarm/initialize", bytes.NewReader(body))
		agent.SignRequest(req, authority.priv, body)
		headers := req.Header.Clone()

		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		expectStatus(t, rec, http.StatusCreated)

		again := httptest.NewRequest(http.MethodPost, "/api/swarm/initialize", bytes.NewReader(body))
		again.Header = headers
		rec = httptest.NewRecorder()
		e.srv.ServeHTTP(rec, again)
		expectStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("malformed json", func(t *testing.T) {
		body := []byte(`{"agent_type":`)
		req := httptest.NewRequest(http.MethodPost, "/api/agents", bytes.NewReader(body))
		agent.SignRequest(req, authority.priv, body)
		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		expectStatus(t, rec, http.StatusBadRequest)
	})
}

func TestInvalidProposalID(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	rec := e.do(t, nil, http.MethodGet, "/api/proposals/abc", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestRateLimit(t *testing.T) {
	e := setupTestServer(t, ratelimit.NewKeyed(2, time.Minute), nil)
	for i := 0; i < 2; i++ {
		expectStatus(t, e.do(t, nil, http.MethodGet, "/api/health", nil), http.StatusOK)
	}
	expectStatus(t, e.do(t, nil, http.MethodGet, "/api/health", nil), http.StatusTooManyRequests)
}

func TestMutationsPublishEvents(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	sub := e.hub.Subscribe(16)
	authority, b, c, d := newTestKey(t), newTestKey(t), newTestKey(t), newTestKey(t)
	e.initSwarm(t, authority, b, c, d)

	var got []swarm.EventType
	for len(sub.C) > 0 {
		got = append(got, (<-sub.C).Type)
	}
	want := []swarm.EventType{
		swarm.EventSwarmInitialized,
		swarm.EventAgentRegistered,
		swarm.EventAgentRegistered,
		swarm.EventAgentRegistered,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func upperAgentID(r *http.Request) {
	r.Header.Set(agent.HeaderAgentID, strings.ToUpper(r.Header.Get(agent.HeaderAgentID)))
}

func TestIdentityCaseNamesOneOwner(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	authority, b, c, d := newTestKey(t), newTestKey(t), newTestKey(t), newTestKey(t)
	e.initSwarm(t, authority, b, c, d)

	rec := e.doWith(t, &b, http.MethodPost, "/api/agents", map[string]any{
		"agent_type": "security",
		"name":       "second",
	}, upperAgentID)
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "already_registered" {
		t.Errorf("code = %q, want already_registered", code)
	}

	rec = e.do(t, &b, http.MethodPost, "/api/proposals", map[string]any{"proposal_type": "trade"})
	expectStatus(t, rec, http.StatusCreated)
	rec = e.do(t, &b, http.MethodPost, "/api/proposals/0/votes", map[string]any{"choice": "reject"})
	expectStatus(t, rec, http.StatusCreated)
	rec = e.doWith(t, &b, http.MethodPost, "/api/proposals/0/votes", map[string]any{
		"choice":    "reject",
		"reasoning": "again",
	}, upperAgentID)
	expectStatus(t, rec, http.StatusConflict)
	if code := errorCode(t, rec); code != "duplicate_vote" {
		t.Errorf("code = %q, want duplicate_vote", code)
	}

	rec = e.do(t, nil, http.MethodGet, "/api/proposals/0", nil)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[swarm.Proposal](t, rec); p.TotalVoters != 1 {
		t.Errorf("total voters = %d, want 1", p.TotalVoters)
	}

	rec = e.do(t, nil, http.MethodGet, "/api/agents/"+strings.ToUpper(b.id), nil)
	expectStatus(t, rec, http.StatusOK)
	if a := decode[swarm.Agent](t, rec); a.Owner != swarm.Identity(b.id) {
		t.Errorf("owner = %q, want %q", a.Owner, b.id)
	}

	rec = e.do(t, nil, http.MethodGet, "/api/swarm", nil)
	expectStatus(t, rec, http.StatusOK)
	if cfg := decode[swarm.Config](t, rec); cfg.ActiveAgents != 3 {
		t.Errorf("active agents = %d, want 3", cfg.ActiveAgents)
	}
}

func TestInitializeTimeout(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	authority := newTestKey(t)

	rec := e.do(t, &authority, http.MethodPost, "/api/swarm/initialize", map[string]any{
		"max_agents":         5,
		"min_votes_required": 3,
		"proposal_timeout":   0,
	})
	expectStatus(t, rec, http.StatusBadRequest)
	if code := errorCode(t, rec); code != "invalid_proposal_timeout" {
		t.Errorf("code = %q, want invalid_proposal_timeout", code)
	}

	rec = e.do(t, &authority, http.MethodPost, "/api/swarm/initialize", map[string]any{
		"max_agents":         5,
		"min_votes_required": 3,
	})
	expectStatus(t, rec, http.StatusCreated)
	if cfg := decode[swarm.Config](t, rec); cfg.ProposalTimeout != swarm.DefaultProposalTimeout {
		t.Errorf("proposal timeout = %d, want %d", cfg.ProposalTimeout, swarm.DefaultProposalTimeout)
	}
}

func TestRecordOutcomeRequiresSuccess(t *testing.T) {
	e := setupTestServer(t, nil, nil)
	authority, b, c, d := newTestKey(t), newTestKey(t), newTestKey(t), newTestKey(t)
	e.initSwarm(t, authority, b, c, d)

	rec := e.do(t, &c, http.MethodPost, "/api/proposals/0/outcome", map[string]any{"metrics": []byte("pnl=1")})
	expectStatus(t, rec, http.StatusBadRequest)
	if msg := decode[map[string]string](t, rec)["error"]; msg != "success required" {
		t.Errorf("error = %q, want success required", msg)
	}
}

func TestGetIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		trustProxy bool
		want       string
	}{
		{"remote addr", "", "10.0.0.1:1234", true, "10.0.0.1"},
		{"forwarded", "203.0.113.5", "10.0.0.1:1234", true, "203.0.113.5"},
		{"forwarded chain", "203.0.113.5, 10.0.0.2", "10.0.0.1:1234", true, "203.0.113.5"},
		{"forwarded untrusted", "203.0.113.5", "10.0.0.1:1234", false, "10.0.0.1"},
		{"no port", "", "10.0.0.1", false, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := getIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("getIP = %q, want %q", got, tt.want)
			}
		})
	}
}
