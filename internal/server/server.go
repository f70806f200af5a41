package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ssd-technologies/swarmgov/internal/agent"
	"github.com/ssd-technologies/swarmgov/internal/events"
	"github.com/ssd-technologies/swarmgov/internal/ratelimit"
	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// maxBodySize caps request bodies. The largest valid body is a proposal
// carrying MaxDataLength bytes of base64 data plus its description.
const maxBodySize = 64 << 10

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// Server is the HTTP API for a swarm.
type Server struct {
	swarm   *swarm.Swarm
	gateway *agent.Gateway
	hub     *events.Hub
	limiter *ratelimit.Keyed
	logger  *slog.Logger
	mux     *http.ServeMux

	trustProxy bool
}

// New creates a new Server with all routes registered. hub and limiter may
// be nil to disable the event feed and per-IP rate limiting.
func New(sw *swarm.Swarm, gw *agent.Gateway, hub *events.Hub, limiter *ratelimit.Keyed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	s := &Server{
		swarm:   sw,
		gateway: gw,
		hub:     hub,
		limiter: limiter,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// TrustProxy makes the per-IP limiter key requests on the first
// X-Forwarded-For address. Enable it only behind a proxy that overwrites
// the header; otherwise clients choose their own key.
func (s *Server) TrustProxy(trust bool) {
	s.trustProxy = trust
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(HeaderRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, reqID)

	ip := getIP(r, s.trustProxy)
	if s.limiter != nil && !s.limiter.Allow(ip) {
		s.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "request_id", reqID)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "ip", ip, "request_id", reqID)
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Swarm
	s.mux.HandleFunc("POST /api/swarm/initialize", s.handleInitialize)
	s.mux.HandleFunc("GET /api/swarm", s.handleGetSwarm)

	// Agents
	s.mux.HandleFunc("POST /api/agents", s.handleRegisterAgent)
	s.mux.HandleFunc("GET /api/agents", s.handleListAgents)
	s.mux.HandleFunc("GET /api/agents/{owner}", s.handleGetAgent)
	s.mux.HandleFunc("POST /api/agents/{owner}/reputation", s.handleUpdateReputation)
	s.mux.HandleFunc("POST /api/agents/{owner}/active", s.handleSetActive)

	// Proposals
	s.mux.HandleFunc("POST /api/proposals", s.handleCreateProposal)
	s.mux.HandleFunc("GET /api/proposals", s.handleListProposals)
	s.mux.HandleFunc("GET /api/proposals/{id}", s.handleGetProposal)
	s.mux.HandleFunc("POST /api/proposals/{id}/votes", s.handleVote)
	s.mux.HandleFunc("GET /api/proposals/{id}/votes", s.handleListVotes)
	s.mux.HandleFunc("POST /api/proposals/{id}/execute", s.handleExecute)
	s.mux.HandleFunc("POST /api/proposals/{id}/outcome", s.handleRecordOutcome)
	s.mux.HandleFunc("GET /api/proposals/{id}/outcome", s.handleGetOutcome)

	// Live events
	if s.hub != nil {
		s.mux.Handle("GET /api/events", events.HandleWebSocket(s.hub, s.logger.With("component", "events")))
	}
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "swarmgov",
	})
}

// ---------------------------------------------------------------------------
// Auth and request helpers
// ---------------------------------------------------------------------------

// authenticate reads the body and verifies the request signature. On failure
// it writes the error response and returns false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) ([]byte, swarm.Identity, bool) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, "", false
	}
	id, err := s.gateway.Authenticate(r, body)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "signature verification failed: "+err.Error())
		return nil, "", false
	}
	return body, swarm.Identity(id), true
}

// readBody reads the full request body. The body bytes are needed for
// signature verification before JSON decoding.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
}

// decodeBody unmarshals body into v. An empty body leaves v untouched.
// Unknown enum names surface with their swarm error code.
func decodeBody(w http.ResponseWriter, body []byte, v any) bool {
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		var se *swarm.Error
		if errors.As(err, &se) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": se.Message, "code": se.Code})
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// statusFor maps a swarm error kind to an HTTP status code.
func statusFor(err error) int {
	switch swarm.KindOf(err) {
	case swarm.KindValidation:
		return http.StatusBadRequest
	case swarm.KindStateConflict:
		return http.StatusConflict
	case swarm.KindAuthorization:
		return http.StatusForbidden
	case swarm.KindArithmetic:
		return http.StatusUnprocessableEntity
	case swarm.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeSwarmError writes err with the status of its kind and its stable code.
// Internal errors are logged and hidden from the client.
func (s *Server) writeSwarmError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		var se *swarm.Error
		if !errors.As(err, &se) {
			s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			writeJSON(w, status, map[string]string{"error": "internal error", "code": "internal"})
			return
		}
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  swarm.CodeOf(err),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// getIP extracts the client IP from a request. X-Forwarded-For is honored
// only when trustProxy is set.
func getIP(r *http.Request, trustProxy bool) string {
	if xff := r.Header.Get("X-Forwarded-For"); trustProxy && xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
