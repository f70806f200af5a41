package swarm

import (
	"context"
	"time"
)

// EventType names a committed state change.
type EventType string

const (
	EventSwarmInitialized  EventType = "swarm.initialized"
	EventAgentRegistered   EventType = "agent.registered"
	EventAgentActivity     EventType = "agent.activity"
	EventReputationUpdated EventType = "agent.reputation"
	EventProposalCreated   EventType = "proposal.created"
	EventVoteCast          EventType = "proposal.vote"
	EventProposalExecuted  EventType = "proposal.executed"
	EventOutcomeRecorded   EventType = "proposal.outcome"
)

// Event describes a committed state change. Data holds a copy of the
// affected record.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Subject string    `json:"subject"`
	Data    any       `json:"data"`
}

// Publisher receives events after the transaction that produced them has
// committed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
