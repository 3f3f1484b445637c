package timers

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Fanout decouples countdown notification delivery from downstream work.
// Clock notifications must return quickly and must never call back into
// the delivering clock, so the registry's notify hand-off is a
// non-blocking channel send; a drain goroutine passes each snapshot to
// the sink, where publishing, registry reads and disk writes are safe.
type Fanout struct {
	sink NotifyFunc
	ch   chan fanoutItem
}

type fanoutItem struct {
	competitionID uuid.UUID
	snap          Snapshot
}

// NewFanout creates a fanout that forwards snapshots to sink.
func NewFanout(sink NotifyFunc, buffer int) *Fanout {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Fanout{sink: sink, ch: make(chan fanoutItem, buffer)}
}

// Notify queues one snapshot for the sink. It never blocks: with the
// buffer full the snapshot is dropped, the next tick supersedes it.
func (f *Fanout) Notify(competitionID uuid.UUID, snap Snapshot) {
	select {
	case f.ch <- fanoutItem{competitionID: competitionID, snap: snap}:
	default:
		log.Warn().
			Str("competition_id", competitionID.String()).
			Str("timer_id", snap.TimerID).
			Msg("timer fanout buffer full, dropping snapshot")
	}
}

// Run drains queued snapshots until the context is cancelled.
func (f *Fanout) Run(ctx context.Context) {
	log.Info().Msg("timer fanout started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pending", len(f.ch)).Msg("timer fanout shutting down")
			return
		case it := <-f.ch:
			f.sink(it.competitionID, it.snap)
		}
	}
}
