package swarm

// Field bounds, in bytes.
const (
	MaxNameLength        = 32
	MaxDescriptionLength = 256
	MaxReasoningLength   = 512
	MaxDataLength        = 1024
	MaxMetricsLength     = 512
)

// Swarm sizing.
const (
	MinAgents = 3
	MaxAgents = 20

	// MaxVoters is the hard capacity of a proposal's voter set. A swarm can
	// never hold more agents than this, so the set never needs to grow past it.
	MaxVoters = MaxAgents
)

// Proposal timeouts, in seconds.
const (
	DefaultProposalTimeout int64 = 3600
	MinProposalTimeout     int64 = 300
	MaxProposalTimeout     int64 = 86400
)

// Reputation and scoring.
const (
	InitialReputation uint16 = 1000
	MinReputation     uint16 = 0
	MaxReputation     uint16 = 10000

	MaxPerformanceScore     = 1000
	neutralPerformanceScore = 500
	performanceDivisor      = 10

	baseVoteWeight   uint64 = 1000
	reputationFactor uint64 = 10
)

// quorumPercent is the share of registered agents that must take part in a
// vote, in whole percent.
const quorumPercent = 51
