package swarm

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Key is the deterministic storage key of a swarm entity.
type Key [32]byte

// String returns the lowercase hex encoding of k.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Key tags. Each entity kind hashes under its own tag, so keys of different
// kinds never collide.
const (
	tagSwarm    = "swarm"
	tagAgent    = "agent"
	tagProposal = "proposal"
	tagOutcome  = "outcome"
)

func deriveKey(tag string, parts ...[]byte) Key {
	h := sha3.New256()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	for _, p := range parts {
		h.Write(p)
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// SwarmKey is the key of the singleton swarm config.
func SwarmKey() Key {
	return deriveKey(tagSwarm)
}

// AgentKey is the key of the agent owned by owner.
func AgentKey(owner Identity) Key {
	return deriveKey(tagAgent, []byte(owner))
}

// ProposalKey is the key of the proposal with sequence number id.
func ProposalKey(id uint64) Key {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], id)
	return deriveKey(tagProposal, seq[:])
}

// OutcomeKey is the key of the outcome recorded for the proposal stored
// under proposal.
func OutcomeKey(proposal Key) Key {
	return deriveKey(tagOutcome, proposal[:])
}
