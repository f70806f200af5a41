package swarm

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how a caller should react to it.
type Kind uint8

const (
	// KindInternal covers storage failures and broken invariants.
	KindInternal Kind = iota
	// KindValidation rejects bad input before any state is touched. The
	// caller may retry with corrected input.
	KindValidation
	// KindStateConflict means the operation does not apply to the current
	// state. Retrying the same call will not help.
	KindStateConflict
	// KindAuthorization means the caller may not perform the operation.
	KindAuthorization
	// KindArithmetic signals a counter or timestamp overflow.
	KindArithmetic
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindAuthorization:
		return "authorization"
	case KindArithmetic:
		return "arithmetic"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified swarm error. The package exposes each failure as a
// sentinel value so callers can match with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation errors.
var (
	ErrNameTooLong            = newError(KindValidation, "name_too_long", "agent name exceeds maximum length")
	ErrDescriptionTooLong     = newError(KindValidation, "description_too_long", "description exceeds maximum length")
	ErrReasoningTooLong       = newError(KindValidation, "reasoning_too_long", "reasoning exceeds maximum length")
	ErrDataTooLong            = newError(KindValidation, "data_too_long", "proposal data exceeds maximum length")
	ErrMetricsTooLong         = newError(KindValidation, "metrics_too_long", "outcome metrics exceed maximum length")
	ErrInvalidScore           = newError(KindValidation, "invalid_score", "performance score must be between 0 and 1000")
	ErrInvalidProposalTimeout = newError(KindValidation, "invalid_proposal_timeout", "proposal timeout must be between 300 and 86400 seconds")
	ErrInvalidAgentCount      = newError(KindValidation, "invalid_agent_count", "max agents must be between 3 and 20")
	ErrMinVotesTooLow         = newError(KindValidation, "min_votes_too_low", "minimum votes must be at least 51% of max agents")
	ErrInvalidVoteCount       = newError(KindValidation, "invalid_vote_count", "minimum votes cannot exceed max agents")
	ErrInvalidAgentType       = newError(KindValidation, "invalid_agent_type", "unknown agent type")
	ErrInvalidProposalType    = newError(KindValidation, "invalid_proposal_type", "unknown proposal type")
	ErrInvalidChoice          = newError(KindValidation, "invalid_choice", "vote must be approve, reject or abstain")
	ErrInvalidIdentity        = newError(KindValidation, "invalid_identity", "identity is empty")
)

// State conflicts.
var (
	ErrNotInitialized          = newError(KindStateConflict, "not_initialized", "swarm not initialized")
	ErrAlreadyInitialized      = newError(KindStateConflict, "already_initialized", "swarm already initialized")
	ErrAlreadyRegistered       = newError(KindStateConflict, "already_registered", "agent already registered")
	ErrCapacityExceeded        = newError(KindStateConflict, "capacity_exceeded", "maximum number of agents reached")
	ErrDuplicateVote           = newError(KindStateConflict, "duplicate_vote", "agent already voted on this proposal")
	ErrProposalAlreadyExecuted = newError(KindStateConflict, "proposal_already_executed", "proposal already executed")
	ErrProposalExpired         = newError(KindStateConflict, "proposal_expired", "proposal already expired")
	ErrInsufficientVotes       = newError(KindStateConflict, "insufficient_votes", "insufficient votes to execute proposal")
	ErrProposalNotExecuted     = newError(KindStateConflict, "proposal_not_executed", "proposal has not been executed")
	ErrOutcomeAlreadyRecorded  = newError(KindStateConflict, "outcome_already_recorded", "outcome already recorded for proposal")
)

// Authorization errors.
var (
	ErrUnauthorized = newError(KindAuthorization, "unauthorized", "unauthorized agent action")
	ErrNotAuthority = newError(KindAuthorization, "not_authority", "caller is not the swarm authority")
)

// Lookup failures.
var (
	ErrAgentNotFound    = newError(KindNotFound, "agent_not_found", "agent not found")
	ErrProposalNotFound = newError(KindNotFound, "proposal_not_found", "proposal not found")
	ErrOutcomeNotFound  = newError(KindNotFound, "outcome_not_found", "outcome not found")
)

// Arithmetic and internal errors.
var (
	ErrArithmeticOverflow = newError(KindArithmetic, "arithmetic_overflow", "arithmetic overflow")
	ErrVoterCapacity      = newError(KindInternal, "voter_capacity", "voter set is full")
)

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// overflowf wraps ErrArithmeticOverflow with the name of the field that
// overflowed.
func overflowf(field string) error {
	return fmt.Errorf("%w: %s", ErrArithmeticOverflow, field)
}
