package broadcast

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Publisher delivers a single event to the fan-out transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Dispatcher serializes event publication. The coordinator enqueues events
// in the order its in-memory transitions commit; a single drain goroutine
// publishes them in that same order, so the transport can fan out
// arbitrarily while per-competition order is preserved at the source.
type Dispatcher struct {
	publisher Publisher
	ch        chan Event
}

// NewDispatcher creates a dispatcher over the given publisher.
func NewDispatcher(publisher Publisher, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		publisher: publisher,
		ch:        make(chan Event, buffer),
	}
}

// Enqueue appends an event to the publish queue. It blocks if the queue is
// full rather than dropping: a missed transition is worse for displays
// than brief backpressure on the caller.
func (d *Dispatcher) Enqueue(event Event) {
	d.ch <- event
}

// Run drains the queue until the context is cancelled. A publish failure
// is logged and the event dropped; the transport (JetStream) is durable
// once a publish succeeds, and subscribers reconcile via the state
// endpoints.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Msg("broadcast dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pending", len(d.ch)).Msg("broadcast dispatcher shutting down")
			return
		case event := <-d.ch:
			if err := d.publisher.Publish(ctx, event); err != nil {
				log.Error().
					Err(err).
					Str("event_id", event.ID.String()).
					Str("event_type", string(event.Type)).
					Str("competition_id", event.CompetitionID.String()).
					Msg("failed to publish event")
			}
		}
	}
}
