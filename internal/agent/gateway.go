package agent

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultReplayCacheSize bounds the number of remembered signatures. It
// should exceed the number of signed requests expected within one
// TimestampWindow.
const DefaultReplayCacheSize = 8192

var (
	// ErrMissingIdentity is returned when a request carries no X-Agent-ID.
	ErrMissingIdentity = errors.New("missing " + HeaderAgentID + " header")
	// ErrReplayed is returned for a signature that was already accepted.
	ErrReplayed = errors.New("request signature already used")
)

// Gateway authenticates signed requests. Every accepted signature is
// remembered so a captured request cannot be submitted twice inside the
// timestamp window.
type Gateway struct {
	seen   *lru.Cache
	logger *slog.Logger
}

// NewGateway returns a Gateway remembering up to cacheSize signatures. A
// non-positive size selects DefaultReplayCacheSize.
func NewGateway(cacheSize int, logger *slog.Logger) (*Gateway, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultReplayCacheSize
	}
	seen, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create replay cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}
	return &Gateway{seen: seen, logger: logger}, nil
}

// Authenticate verifies the signature headers of r against body and returns
// the caller's identity in canonical lowercase form. Hex headers are accepted
// in any case, so both the identity and the replay key are derived from the
// decoded bytes.
func (g *Gateway) Authenticate(r *http.Request, body []byte) (string, error) {
	id := r.Header.Get(HeaderAgentID)
	if id == "" {
		return "", ErrMissingIdentity
	}
	pub, err := ParseIdentity(id)
	if err != nil {
		return "", err
	}
	if err := VerifyRequest(r, pub, body); err != nil {
		return "", err
	}

	sig, err := hex.DecodeString(r.Header.Get(HeaderSignature))
	if err != nil {
		return "", fmt.Errorf("invalid signature hex: %w", err)
	}
	owner := IdentityFromPublicKey(pub)
	if seen, _ := g.seen.ContainsOrAdd(string(sig), struct{}{}); seen {
		g.logger.Warn("replayed request rejected", "agent", owner, "path", r.URL.Path)
		return "", ErrReplayed
	}
	return owner, nil
}
