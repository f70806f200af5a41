// Package agent provides Ed25519 request signing and verification for swarm
// participants. An agent's identity is the hex encoding of its public key.
package agent

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// TimestampWindow is the maximum age of a signed request before it is rejected.
const TimestampWindow = 5 * time.Minute

// Request headers carrying the signature.
const (
	HeaderAgentID   = "X-Agent-ID"
	HeaderTimestamp = "X-Agent-Timestamp"
	HeaderSignature = "X-Agent-Signature"
)

// ErrInvalidIdentity is returned for an identity that is not a hex-encoded
// Ed25519 public key.
var ErrInvalidIdentity = errors.New("invalid agent identity")

// IdentityFromPublicKey returns the identity of pub: its full key as
// 64-character lowercase hexadecimal.
func IdentityFromPublicKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// ParseIdentity decodes an identity back into the public key it names.
func ParseIdentity(id string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, id)
	}
	return ed25519.PublicKey(raw), nil
}

// SignRequest adds X-Agent-ID, X-Agent-Timestamp, and X-Agent-Signature headers
// to an outgoing HTTP request. The signature covers:
//
//	method + path + timestamp + body
func SignRequest(req *http.Request, privKey ed25519.PrivateKey, body []byte) {
	signRequestAt(req, privKey, body, time.Now())
}

func signRequestAt(req *http.Request, privKey ed25519.PrivateKey, body []byte, now time.Time) {
	ts := strconv.FormatInt(now.Unix(), 10)
	pub := privKey.Public().(ed25519.PublicKey)

	req.Header.Set(HeaderAgentID, IdentityFromPublicKey(pub))
	req.Header.Set(HeaderTimestamp, ts)

	msg := req.Method + req.URL.Path + ts + string(body)
	sig := ed25519.Sign(privKey, []byte(msg))
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
}

// VerifyRequest checks that:
//  1. The timestamp is within TimestampWindow of the current time.
//  2. The Ed25519 signature is valid for the reconstructed message.
//
// Returns a descriptive error on failure.
func VerifyRequest(req *http.Request, pubKey ed25519.PublicKey, body []byte) error {
	tsStr := req.Header.Get(HeaderTimestamp)
	sigHex := req.Header.Get(HeaderSignature)

	if tsStr == "" {
		return fmt.Errorf("missing %s header", HeaderTimestamp)
	}
	if sigHex == "" {
		return fmt.Errorf("missing %s header", HeaderSignature)
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	diff := math.Abs(float64(time.Now().Unix() - ts))
	if diff > TimestampWindow.Seconds() {
		return fmt.Errorf("timestamp expired: %.0fs drift exceeds %v window", diff, TimestampWindow)
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}

	msg := req.Method + req.URL.Path + tsStr + string(body)
	if !ed25519.Verify(pubKey, []byte(msg), sig) {
		return fmt.Errorf("ed25519 signature verification failed")
	}

	return nil
}
