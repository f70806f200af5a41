package swarm

import (
	"context"
	"fmt"
	"sync"
)

// ActionExecutor carries out the action of an executed proposal.
type ActionExecutor interface {
	Execute(ctx context.Context, p *Proposal) error
}

// ExecutorFunc adapts a function to ActionExecutor.
type ExecutorFunc func(ctx context.Context, p *Proposal) error

// Execute calls f(ctx, p).
func (f ExecutorFunc) Execute(ctx context.Context, p *Proposal) error {
	return f(ctx, p)
}

// Dispatcher routes executed proposals to the executor registered for their
// type. Proposals of a type with no executor are accepted and ignored.
type Dispatcher struct {
	mu        sync.RWMutex
	executors map[ProposalType]ActionExecutor
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{executors: make(map[ProposalType]ActionExecutor)}
}

// Register sets the executor for typ, replacing any previous one.
func (d *Dispatcher) Register(typ ProposalType, ex ActionExecutor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executors[typ] = ex
}

// Dispatch runs the executor registered for p's type.
func (d *Dispatcher) Dispatch(ctx context.Context, p *Proposal) error {
	d.mu.RLock()
	ex, ok := d.executors[p.Type]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := ex.Execute(ctx, p); err != nil {
		return fmt.Errorf("dispatch %s proposal %d: %w", p.Type, p.ID, err)
	}
	return nil
}
