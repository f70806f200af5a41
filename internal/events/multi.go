package events

import (
	"context"
	"errors"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// Multi publishes every event to each of its publishers in order. A failing
// publisher does not stop delivery to the rest.
type Multi []swarm.Publisher

// Publish implements swarm.Publisher.
func (m Multi) Publish(ctx context.Context, ev swarm.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
