package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/liftline/liftline/internal/models"
	"github.com/liftline/liftline/internal/timers"
)

// DefaultChangeoverBuffer is the fixed per-attempt buffer added to each
// queued attempt's time limit when estimating waits: loading plates,
// announcing the athlete, walking to the bar.
const DefaultChangeoverBuffer = 15 * time.Second

// DefaultCacheTTL bounds how long a memoized estimate may serve repeated
// polling before being recomputed.
const DefaultCacheTTL = 3 * time.Second

// Filters narrows queue queries to one movement.
type Filters struct {
	MovementID *uuid.UUID
}

// Repository is the slice of the data store the engine reads. Waiting
// attempts may come back in any order; the engine owns the canonical sort.
type Repository interface {
	ListWaitingAttempts(ctx context.Context, competitionID uuid.UUID, f Filters) ([]models.Attempt, error)
	GetInProgressAttempt(ctx context.Context, competitionID uuid.UUID, f Filters) (*models.Attempt, error)
	CountFinishedInFlight(ctx context.Context, flightID uuid.UUID) (int, error)
}

// TimeLimits resolves an attempt's configured time limit. Implemented by
// the scoring collaborator, which owns per-movement rules.
type TimeLimits interface {
	AttemptTimeLimit(ctx context.Context, attempt models.Attempt) (time.Duration, error)
}

// TimerReader is the slice of the timer registry the engine consults for
// the live remaining time of the in-progress attempt.
type TimerReader interface {
	Snapshot(competitionID uuid.UUID, timerID string) (timers.Snapshot, bool)
}

// Less reports whether attempt a sorts strictly before b in the canonical
// lifting order: flight order ascending, lifting-order ascending with nulls
// last, requested weight ascending, attempt number ascending. Ties beyond
// that break on attempt id so the order is total and never arbitrary.
func Less(a, b models.Attempt) bool {
	if a.FlightOrder != b.FlightOrder {
		return a.FlightOrder < b.FlightOrder
	}
	switch {
	case a.LiftingOrder != nil && b.LiftingOrder == nil:
		return true
	case a.LiftingOrder == nil && b.LiftingOrder != nil:
		return false
	case a.LiftingOrder != nil && b.LiftingOrder != nil && *a.LiftingOrder != *b.LiftingOrder:
		return *a.LiftingOrder < *b.LiftingOrder
	}
	if a.RequestedWeight != b.RequestedWeight {
		return a.RequestedWeight < b.RequestedWeight
	}
	if a.Number != b.Number {
		return a.Number < b.Number
	}
	return a.ID.String() < b.ID.String()
}

// SortCanonical sorts attempts in place into the canonical lifting order.
func SortCanonical(attempts []models.Attempt) {
	sort.Slice(attempts, func(i, j int) bool { return Less(attempts[i], attempts[j]) })
}

type cacheKey struct {
	competitionID uuid.UUID
	attemptID     uuid.UUID
}

type cacheEntry struct {
	estimate  time.Duration
	expiresAt time.Time
}

// Engine computes who lifts now, who lifts next, and how long any given
// attempt has to wait. It holds no authoritative state of its own; the
// estimate cache is a read optimization only and is never consulted for
// the single-active-attempt invariant.
type Engine struct {
	repo   Repository
	limits TimeLimits
	timers TimerReader
	clk    clockwork.Clock

	buffer   time.Duration
	cacheTTL time.Duration

	cacheMu sync.Mutex
	cache   map[cacheKey]cacheEntry
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source used for cache expiry.
func WithClock(clk clockwork.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// WithChangeoverBuffer overrides the per-attempt wait buffer.
func WithChangeoverBuffer(d time.Duration) Option {
	return func(e *Engine) { e.buffer = d }
}

// WithCacheTTL overrides the estimate cache TTL. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = d }
}

// NewEngine creates a queue engine over the given collaborators.
func NewEngine(repo Repository, limits TimeLimits, timerReader TimerReader, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		limits:   limits,
		timers:   timerReader,
		clk:      clockwork.NewRealClock(),
		buffer:   DefaultChangeoverBuffer,
		cacheTTL: DefaultCacheTTL,
		cache:    make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InProgress returns the single in-progress attempt, if any.
func (e *Engine) InProgress(ctx context.Context, competitionID uuid.UUID, f Filters) (*models.Attempt, error) {
	return e.repo.GetInProgressAttempt(ctx, competitionID, f)
}

// WaitingInOrder returns the waiting attempts in canonical lifting order.
func (e *Engine) WaitingInOrder(ctx context.Context, competitionID uuid.UUID, f Filters) ([]models.Attempt, error) {
	waiting, err := e.repo.ListWaitingAttempts(ctx, competitionID, f)
	if err != nil {
		return nil, fmt.Errorf("list waiting attempts: %w", err)
	}
	SortCanonical(waiting)
	return waiting, nil
}

// EstimatedWait reports the expected seconds until the attempt becomes
// active: the live remaining time on the in-progress attempt (falling back
// to its time limit when no timer runs) plus time limit + buffer for every
// waiting attempt strictly ahead in canonical order.
//
// An attempt that is in progress, finished, or simply not found in the
// current view estimates to zero: polling clients treat absence as
// resolved, not as a fault. Break time is reported separately by the
// break-timer subsystem and is never folded in here.
func (e *Engine) EstimatedWait(ctx context.Context, competitionID, attemptID uuid.UUID, f Filters) (time.Duration, error) {
	if est, ok := e.cached(competitionID, attemptID); ok {
		return est, nil
	}

	inProgress, err := e.repo.GetInProgressAttempt(ctx, competitionID, f)
	if err != nil {
		return 0, fmt.Errorf("get in-progress attempt: %w", err)
	}
	if inProgress != nil && inProgress.ID == attemptID {
		return 0, nil
	}

	waiting, err := e.WaitingInOrder(ctx, competitionID, f)
	if err != nil {
		return 0, err
	}

	idx := -1
	for i := range waiting {
		if waiting[i].ID == attemptID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Already finished or filtered out: nothing left to wait for.
		return 0, nil
	}

	var total time.Duration
	if inProgress != nil {
		if snap, ok := e.timers.Snapshot(competitionID, timers.AttemptTimerID(inProgress.ID)); ok {
			total += snap.Remaining
		} else {
			limit, err := e.limits.AttemptTimeLimit(ctx, *inProgress)
			if err != nil {
				return 0, fmt.Errorf("time limit for in-progress attempt: %w", err)
			}
			total += limit
		}
	}
	for _, ahead := range waiting[:idx] {
		limit, err := e.limits.AttemptTimeLimit(ctx, ahead)
		if err != nil {
			return 0, fmt.Errorf("time limit for queued attempt %s: %w", ahead.ID, err)
		}
		total += limit + e.buffer
	}

	e.store(competitionID, attemptID, total)
	return total, nil
}

// FirstInFlightQueue reports whether the attempt is the head of its
// flight's remaining queue (waiting plus in-progress, canonically sorted).
// Displays use it to choose between a countdown and an immediate call-up.
func (e *Engine) FirstInFlightQueue(ctx context.Context, competitionID, flightID, attemptID uuid.UUID) (bool, error) {
	inProgress, err := e.repo.GetInProgressAttempt(ctx, competitionID, Filters{})
	if err != nil {
		return false, fmt.Errorf("get in-progress attempt: %w", err)
	}
	waiting, err := e.repo.ListWaitingAttempts(ctx, competitionID, Filters{})
	if err != nil {
		return false, fmt.Errorf("list waiting attempts: %w", err)
	}

	var remaining []models.Attempt
	if inProgress != nil && inProgress.FlightID == flightID {
		remaining = append(remaining, *inProgress)
	}
	for _, a := range waiting {
		if a.FlightID == flightID {
			remaining = append(remaining, a)
		}
	}
	if len(remaining) == 0 {
		return false, nil
	}
	SortCanonical(remaining)
	return remaining[0].ID == attemptID, nil
}

// FirstAttemptOfFlight reports whether no attempt in the flight has
// finished yet: the very first lifter of a flight gets a pre-roll
// countdown rather than an instant call.
func (e *Engine) FirstAttemptOfFlight(ctx context.Context, flightID uuid.UUID) (bool, error) {
	finished, err := e.repo.CountFinishedInFlight(ctx, flightID)
	if err != nil {
		return false, fmt.Errorf("count finished in flight: %w", err)
	}
	return finished == 0, nil
}

// RemainingWaitingInFlight counts waiting attempts left in the flight.
// The coordinator watches for zero to arm the flight break.
func (e *Engine) RemainingWaitingInFlight(ctx context.Context, competitionID, flightID uuid.UUID) (int, error) {
	waiting, err := e.repo.ListWaitingAttempts(ctx, competitionID, Filters{})
	if err != nil {
		return 0, fmt.Errorf("list waiting attempts: %w", err)
	}
	n := 0
	for _, a := range waiting {
		if a.FlightID == flightID {
			n++
		}
	}
	return n, nil
}

// Invalidate drops every cached estimate for the competition. Called on
// any status-changing write so the cache can never mask a transition to
// "you're up".
func (e *Engine) Invalidate(competitionID uuid.UUID) {
	e.cacheMu.Lock()
	for key := range e.cache {
		if key.competitionID == competitionID {
			delete(e.cache, key)
		}
	}
	e.cacheMu.Unlock()
}

func (e *Engine) cached(competitionID, attemptID uuid.UUID) (time.Duration, bool) {
	if e.cacheTTL <= 0 {
		return 0, false
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	entry, ok := e.cache[cacheKey{competitionID: competitionID, attemptID: attemptID}]
	if !ok || e.clk.Now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.estimate, true
}

func (e *Engine) store(competitionID, attemptID uuid.UUID, estimate time.Duration) {
	if e.cacheTTL <= 0 {
		return
	}
	e.cacheMu.Lock()
	e.cache[cacheKey{competitionID: competitionID, attemptID: attemptID}] = cacheEntry{
		estimate:  estimate,
		expiresAt: e.clk.Now().Add(e.cacheTTL),
	}
	e.cacheMu.Unlock()
}
