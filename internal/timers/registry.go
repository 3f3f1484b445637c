package timers

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/liftline/liftline/internal/clock"
)

// Kind classifies what a registry countdown is timing.
type Kind string

const (
	KindAttempt     Kind = "ATTEMPT"
	KindFlightBreak Kind = "FLIGHT_BREAK"
	KindEventBreak  Kind = "EVENT_BREAK"
)

// Key identifies a countdown within the registry.
type Key struct {
	CompetitionID uuid.UUID
	TimerID       string
}

// AttemptTimerID is the conventional timer id for an attempt countdown.
func AttemptTimerID(attemptID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s", attemptID)
}

// FlightBreakTimerID is the conventional timer id for a flight break.
func FlightBreakTimerID(flightID uuid.UUID) string {
	return fmt.Sprintf("flight-break:%s", flightID)
}

// EventBreakTimerID is the conventional timer id for an event break.
func EventBreakTimerID(movementID uuid.UUID) string {
	return fmt.Sprintf("event-break:%s", movementID)
}

// Snapshot is a registry view of one countdown plus its kind.
type Snapshot struct {
	TimerID   string        `json:"timer_id"`
	Kind      Kind          `json:"kind"`
	Duration  time.Duration `json:"duration"`
	Remaining time.Duration `json:"remaining"`
	State     clock.State   `json:"state"`
}

// NotifyFunc receives progress and expiry snapshots for registry countdowns.
type NotifyFunc func(competitionID uuid.UUID, snap Snapshot)

type entry struct {
	countdown *clock.Countdown
	kind      Kind
}

// Registry owns one countdown per concurrently-active timer key. All map
// mutation is serialized through a single mutex scoped to lookup and
// install only; each countdown protects its own state, so a slow read of
// one clock never blocks unrelated timers.
type Registry struct {
	mu     sync.Mutex
	timers map[Key]*entry

	clk    clockwork.Clock
	tick   time.Duration
	notify NotifyFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock substitutes the time source for all created countdowns.
func WithClock(clk clockwork.Clock) Option {
	return func(r *Registry) { r.clk = clk }
}

// WithTickInterval overrides the notification interval for created countdowns.
func WithTickInterval(d time.Duration) Option {
	return func(r *Registry) { r.tick = d }
}

// WithNotify registers the progress/expiry fan-out callback.
func WithNotify(fn NotifyFunc) Option {
	return func(r *Registry) { r.notify = fn }
}

// NewRegistry creates an empty timer registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		timers: make(map[Key]*entry),
		clk:    clockwork.NewRealClock(),
		tick:   clock.DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create installs a new countdown under the key, replacing and fully
// cancelling any existing one so no orphaned tick driver lingers. The new
// countdown is created stopped; callers start it explicitly.
func (r *Registry) Create(competitionID uuid.UUID, timerID string, duration time.Duration, kind Kind) (Key, error) {
	key := Key{CompetitionID: competitionID, TimerID: timerID}

	var notify clock.NotifyFunc
	if r.notify != nil {
		fn := r.notify
		notify = func(s clock.Snapshot) {
			fn(competitionID, Snapshot{
				TimerID:   timerID,
				Kind:      kind,
				Duration:  s.Duration,
				Remaining: s.Remaining,
				State:     s.State,
			})
		}
	}

	cd, err := clock.New(duration, clock.WithClock(r.clk), clock.WithTickInterval(r.tick), clock.WithNotify(notify))
	if err != nil {
		return Key{}, err
	}

	r.mu.Lock()
	old := r.timers[key]
	r.timers[key] = &entry{countdown: cd, kind: kind}
	r.mu.Unlock()

	if old != nil {
		old.countdown.Stop()
		log.Debug().
			Str("competition_id", competitionID.String()).
			Str("timer_id", timerID).
			Msg("replaced existing timer")
	}
	return key, nil
}

// Start begins or resumes the countdown. Returns false when the key does
// not exist or the countdown cannot start from its current state; callers
// treat a missing timer as benign.
func (r *Registry) Start(competitionID uuid.UUID, timerID string) bool {
	e := r.lookup(competitionID, timerID)
	if e == nil {
		return false
	}
	return e.countdown.Start()
}

// Pause freezes the countdown. Returns false for a missing key or a
// countdown that is not running.
func (r *Registry) Pause(competitionID uuid.UUID, timerID string) bool {
	e := r.lookup(competitionID, timerID)
	if e == nil {
		return false
	}
	return e.countdown.Pause()
}

// Stop resets the countdown to its full duration. Returns false for a
// missing key or an already-stopped countdown.
func (r *Registry) Stop(competitionID uuid.UUID, timerID string) bool {
	e := r.lookup(competitionID, timerID)
	if e == nil {
		return false
	}
	return e.countdown.Stop()
}

// Reset stops the countdown and optionally overwrites its duration
// (0 keeps the current one). Returns false for a missing key.
func (r *Registry) Reset(competitionID uuid.UUID, timerID string, newDuration time.Duration) bool {
	e := r.lookup(competitionID, timerID)
	if e == nil {
		return false
	}
	if err := e.countdown.Reset(newDuration); err != nil {
		log.Warn().
			Err(err).
			Str("competition_id", competitionID.String()).
			Str("timer_id", timerID).
			Msg("timer reset rejected")
		return false
	}
	return true
}

// Remove stops and discards the countdown under the key. Returns false
// when the key does not exist.
func (r *Registry) Remove(competitionID uuid.UUID, timerID string) bool {
	key := Key{CompetitionID: competitionID, TimerID: timerID}
	r.mu.Lock()
	e := r.timers[key]
	delete(r.timers, key)
	r.mu.Unlock()

	if e == nil {
		return false
	}
	e.countdown.Stop()
	return true
}

// Snapshot returns the current view of one countdown, or ok=false when the
// key does not exist.
func (r *Registry) Snapshot(competitionID uuid.UUID, timerID string) (Snapshot, bool) {
	e := r.lookup(competitionID, timerID)
	if e == nil {
		return Snapshot{}, false
	}
	s := e.countdown.Snapshot()
	return Snapshot{
		TimerID:   timerID,
		Kind:      e.kind,
		Duration:  s.Duration,
		Remaining: s.Remaining,
		State:     s.State,
	}, true
}

// ListForCompetition returns snapshots of every countdown registered for
// the competition, keyed by timer id.
func (r *Registry) ListForCompetition(competitionID uuid.UUID) map[string]Snapshot {
	r.mu.Lock()
	matched := make(map[string]*entry)
	for key, e := range r.timers {
		if key.CompetitionID == competitionID {
			matched[key.TimerID] = e
		}
	}
	r.mu.Unlock()

	// Clock reads happen outside the registry lock.
	out := make(map[string]Snapshot, len(matched))
	for timerID, e := range matched {
		s := e.countdown.Snapshot()
		out[timerID] = Snapshot{
			TimerID:   timerID,
			Kind:      e.kind,
			Duration:  s.Duration,
			Remaining: s.Remaining,
			State:     s.State,
		}
	}
	return out
}

// Cleanup stops and removes every countdown for the competition. Called
// when a competition ends or is reset.
func (r *Registry) Cleanup(competitionID uuid.UUID) int {
	r.mu.Lock()
	var removed []*entry
	for key, e := range r.timers {
		if key.CompetitionID == competitionID {
			removed = append(removed, e)
			delete(r.timers, key)
		}
	}
	r.mu.Unlock()

	for _, e := range removed {
		e.countdown.Stop()
	}
	if len(removed) > 0 {
		log.Info().
			Str("competition_id", competitionID.String()).
			Int("timers", len(removed)).
			Msg("swept competition timers")
	}
	return len(removed)
}

func (r *Registry) lookup(competitionID uuid.UUID, timerID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers[Key{CompetitionID: competitionID, TimerID: timerID}]
}
