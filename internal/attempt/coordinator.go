package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/liftline/liftline/internal/broadcast"
	"github.com/liftline/liftline/internal/events"
	"github.com/liftline/liftline/internal/models"
	"github.com/liftline/liftline/internal/timers"
)

// Policy holds the competition rules the coordinator enforces.
type Policy struct {
	// WeightChangeLockWindow is the minimum estimated time before an
	// attempt goes live during which its weight may still change.
	WeightChangeLockWindow time.Duration
	// RefereePanelSize is how many referees vote on each attempt.
	RefereePanelSize int
	// FlightBreak is the countdown between flights.
	FlightBreak time.Duration
	// EventBreak is the countdown after the last flight of a movement.
	EventBreak time.Duration
}

// DefaultPolicy returns the standard meet rules.
func DefaultPolicy() Policy {
	return Policy{
		WeightChangeLockWindow: 180 * time.Second,
		RefereePanelSize:       3,
		FlightBreak:            10 * time.Minute,
		EventBreak:             15 * time.Minute,
	}
}

// StatusChange carries the persisted side of a lifecycle transition.
type StatusChange struct {
	Status      models.AttemptStatus
	Result      models.AttemptResult
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Store is the slice of the data store the coordinator mutates. Every
// call may fail; failures are surfaced, never retried here.
type Store interface {
	GetAttempt(ctx context.Context, id uuid.UUID) (*models.Attempt, error)
	GetInProgressAttempt(ctx context.Context, competitionID uuid.UUID) (*models.Attempt, error)
	UpdateAttemptStatus(ctx context.Context, id uuid.UUID, change StatusChange) error
	UpdateRequestedWeight(ctx context.Context, id uuid.UUID, weight float64) error
	RecordRefereeDecision(ctx context.Context, decision models.RefereeDecision) error
	GetFlight(ctx context.Context, id uuid.UUID) (*models.Flight, error)
	NextFlight(ctx context.Context, flightID uuid.UUID) (*models.Flight, error)
}

// Scoring is the external scoring collaborator: time-limit lookup before a
// lift, recompute-and-rank push after a decision.
type Scoring interface {
	AttemptTimeLimit(ctx context.Context, attempt models.Attempt) (time.Duration, error)
	Recompute(ctx context.Context, entryID uuid.UUID) (*models.Score, error)
	Rankings(ctx context.Context, movementID uuid.UUID) ([]models.Score, error)
}

// QueueEngine is the slice of the queue engine the coordinator consults.
type QueueEngine interface {
	EstimatedWait(ctx context.Context, competitionID, attemptID uuid.UUID) (time.Duration, error)
	RemainingWaitingInFlight(ctx context.Context, competitionID, flightID uuid.UUID) (int, error)
	Invalidate(competitionID uuid.UUID)
}

// Dispatcher enqueues broadcast events in commit order.
type Dispatcher interface {
	Enqueue(event broadcast.Event)
}

// session is the per-competition live state. There is deliberately no
// process-wide "current attempt" pointer: every competition carries its
// own session, so concurrent meets in one process cannot cross-talk.
type session struct {
	mu              sync.Mutex
	activeAttemptID uuid.UUID // uuid.Nil when nothing is on the platform
	activeFlightID  uuid.UUID
	breakTimerID    string
	breakKind       timers.Kind
	votes           map[uuid.UUID]map[uuid.UUID]models.RefereeDecision
}

// Coordinator drives each attempt through waiting -> in_progress ->
// finished, owning timer creation/teardown, referee vote tallying, score
// recomputation triggers and broadcast emission.
//
// Lock discipline: the per-competition session lock guards only the
// in-memory check-and-set; persistence happens after the transition
// committed and the lock released, so a slow store write never stalls
// timer reads. A store failure after commit is surfaced to the caller
// while the in-memory transition stands (see DESIGN.md).
type Coordinator struct {
	store      Store
	scoring    Scoring
	queue      QueueEngine
	timers     *timers.Registry
	dispatcher Dispatcher
	clk        clockwork.Clock
	policy     Policy

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock substitutes the time source.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Coordinator) { c.clk = clk }
}

// WithPolicy overrides the default competition rules.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// NewCoordinator wires the coordinator over its collaborators.
func NewCoordinator(store Store, scoring Scoring, queueEngine QueueEngine, registry *timers.Registry, dispatcher Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		scoring:    scoring,
		queue:      queueEngine,
		timers:     registry,
		dispatcher: dispatcher,
		clk:        clockwork.NewRealClock(),
		policy:     DefaultPolicy(),
		sessions:   make(map[uuid.UUID]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) session(competitionID uuid.UUID) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[competitionID]
	if !ok {
		s = &session{votes: make(map[uuid.UUID]map[uuid.UUID]models.RefereeDecision)}
		c.sessions[competitionID] = s
	}
	return s
}

// StartAttempt puts the attempt on the platform: transitions it to
// in_progress, creates and starts its countdown, and announces it.
// Exactly one concurrent caller per competition succeeds; the rest get
// ErrAlreadyActive.
func (c *Coordinator) StartAttempt(ctx context.Context, competitionID, attemptID uuid.UUID) error {
	att, err := c.loadAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if att.CompetitionID != competitionID {
		return ErrNotFound
	}
	if att.Status != models.AttemptStatusWaiting {
		return fmt.Errorf("%w: attempt is %s", ErrInconsistentState, att.Status)
	}

	// Authoritative store check catches an in-progress attempt surviving
	// a restart; the session check-and-set below settles live races.
	if active, err := c.store.GetInProgressAttempt(ctx, competitionID); err != nil {
		return fmt.Errorf("check in-progress attempt: %w", err)
	} else if active != nil && active.ID != attemptID {
		return ErrAlreadyActive
	}

	limit, err := c.scoring.AttemptTimeLimit(ctx, *att)
	if err != nil {
		return fmt.Errorf("resolve time limit: %w", err)
	}

	sess := c.session(competitionID)
	sess.mu.Lock()
	if sess.activeAttemptID != uuid.Nil {
		sess.mu.Unlock()
		return ErrAlreadyActive
	}
	startedAt := c.clk.Now().UTC()
	sess.activeAttemptID = attemptID
	sess.activeFlightID = att.FlightID
	endedBreak := sess.breakTimerID
	endedBreakKind := sess.breakKind
	sess.breakTimerID = ""
	sess.mu.Unlock()

	// In-memory transition committed; everything past this point must not
	// undo it.
	if endedBreak != "" {
		c.timers.Remove(competitionID, endedBreak)
		c.emit(competitionID, broadcast.TypeBreakEnded, events.BreakEndedPayload{
			TimerID: endedBreak,
			Kind:    string(endedBreakKind),
			EndedAt: startedAt,
		})
	}

	timerID := timers.AttemptTimerID(attemptID)
	if _, err := c.timers.Create(competitionID, timerID, limit, timers.KindAttempt); err != nil {
		// Undo the reservation: the countdown could not be installed and
		// nothing was persisted yet.
		sess.mu.Lock()
		sess.activeAttemptID = uuid.Nil
		sess.mu.Unlock()
		return fmt.Errorf("create attempt timer: %w", err)
	}
	c.timers.Start(competitionID, timerID)
	c.queue.Invalidate(competitionID)

	storeErr := c.store.UpdateAttemptStatus(ctx, attemptID, StatusChange{
		Status:    models.AttemptStatusInProgress,
		StartedAt: &startedAt,
	})
	if storeErr != nil {
		log.Error().
			Err(storeErr).
			Str("attempt_id", attemptID.String()).
			Msg("attempt started in memory but store write failed")
	}

	c.emit(competitionID, broadcast.TypeAttemptStarted, events.AttemptStartedPayload{
		AttemptID:    attemptID.String(),
		AthleteID:    att.AthleteID.String(),
		FlightID:     att.FlightID.String(),
		Number:       att.Number,
		TimeLimitSec: int(limit.Seconds()),
		StartedAt:    startedAt,
	})
	c.emit(competitionID, broadcast.TypeAttemptUpdate, events.AttemptUpdatePayload{
		AttemptID:       attemptID.String(),
		AthleteID:       att.AthleteID.String(),
		FlightID:        att.FlightID.String(),
		Number:          att.Number,
		RequestedWeight: att.RequestedWeight,
		Status:          string(models.AttemptStatusInProgress),
		StartedAt:       &startedAt,
	})

	log.Info().
		Str("competition_id", competitionID.String()).
		Str("attempt_id", attemptID.String()).
		Str("athlete_id", att.AthleteID.String()).
		Dur("time_limit", limit).
		Msg("attempt started")

	if storeErr != nil {
		return fmt.Errorf("persist attempt start: %w", storeErr)
	}
	return nil
}

// RecordResult finishes the attempt with a determinate result, stops its
// countdown, pushes score recomputation and emits the attempt and
// rankings updates in commit order. Valid from in_progress, or from
// waiting as an administrative correction.
func (c *Coordinator) RecordResult(ctx context.Context, competitionID, attemptID uuid.UUID, result models.AttemptResult) error {
	if result != models.AttemptResultGoodLift && result != models.AttemptResultNoLift {
		return fmt.Errorf("%w: result %q is not determinate", ErrInconsistentState, result)
	}
	att, err := c.loadAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if att.CompetitionID != competitionID {
		return ErrNotFound
	}
	if att.Status == models.AttemptStatusFinished {
		return fmt.Errorf("%w: attempt already finished", ErrInconsistentState)
	}

	completedAt := c.clk.Now().UTC()
	sess := c.session(competitionID)
	sess.mu.Lock()
	if sess.activeAttemptID == attemptID {
		sess.activeAttemptID = uuid.Nil
	}
	delete(sess.votes, attemptID)
	sess.mu.Unlock()

	c.timers.Remove(competitionID, timers.AttemptTimerID(attemptID))
	c.queue.Invalidate(competitionID)

	storeErr := c.store.UpdateAttemptStatus(ctx, attemptID, StatusChange{
		Status:      models.AttemptStatusFinished,
		Result:      result,
		CompletedAt: &completedAt,
	})
	if storeErr != nil {
		log.Error().
			Err(storeErr).
			Str("attempt_id", attemptID.String()).
			Msg("attempt finished in memory but store write failed")
	}

	c.emit(competitionID, broadcast.TypeAttemptUpdate, events.AttemptUpdatePayload{
		AttemptID:       attemptID.String(),
		AthleteID:       att.AthleteID.String(),
		FlightID:        att.FlightID.String(),
		Number:          att.Number,
		RequestedWeight: att.RequestedWeight,
		Status:          string(models.AttemptStatusFinished),
		Result:          string(result),
		CompletedAt:     &completedAt,
	})

	if _, err := c.scoring.Recompute(ctx, att.EntryID); err != nil {
		log.Error().
			Err(err).
			Str("entry_id", att.EntryID.String()).
			Msg("score recomputation failed")
	} else if ranked, err := c.scoring.Rankings(ctx, att.MovementID); err != nil {
		log.Error().
			Err(err).
			Str("movement_id", att.MovementID.String()).
			Msg("ranking fetch failed")
	} else {
		payload := events.RankingsUpdatePayload{
			MovementID: att.MovementID.String(),
			ComputedAt: completedAt,
		}
		for _, s := range ranked {
			payload.Rankings = append(payload.Rankings, events.RankedEntry{
				EntryID:   s.EntryID.String(),
				AthleteID: s.AthleteID.String(),
				Best:      s.Best,
				Total:     s.Total,
				Rank:      s.Rank,
			})
		}
		c.emit(competitionID, broadcast.TypeRankingsUpdate, payload)
	}

	c.maybeStartBreak(ctx, competitionID, att.FlightID)

	log.Info().
		Str("competition_id", competitionID.String()).
		Str("attempt_id", attemptID.String()).
		Str("result", string(result)).
		Msg("attempt result recorded")

	if storeErr != nil {
		return fmt.Errorf("persist attempt result: %w", storeErr)
	}
	return nil
}

// AbortAttempt is the administrative correction path: it returns an
// in-progress attempt to waiting, e.g. after a timekeeper error.
func (c *Coordinator) AbortAttempt(ctx context.Context, competitionID, attemptID uuid.UUID) error {
	att, err := c.loadAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if att.CompetitionID != competitionID {
		return ErrNotFound
	}
	if att.Status != models.AttemptStatusInProgress {
		return fmt.Errorf("%w: only an in-progress attempt can be aborted", ErrInconsistentState)
	}

	sess := c.session(competitionID)
	sess.mu.Lock()
	if sess.activeAttemptID == attemptID {
		sess.activeAttemptID = uuid.Nil
	}
	delete(sess.votes, attemptID)
	sess.mu.Unlock()

	c.timers.Remove(competitionID, timers.AttemptTimerID(attemptID))
	c.queue.Invalidate(competitionID)

	storeErr := c.store.UpdateAttemptStatus(ctx, attemptID, StatusChange{
		Status: models.AttemptStatusWaiting,
	})

	c.emit(competitionID, broadcast.TypeAttemptUpdate, events.AttemptUpdatePayload{
		AttemptID:       attemptID.String(),
		AthleteID:       att.AthleteID.String(),
		FlightID:        att.FlightID.String(),
		Number:          att.Number,
		RequestedWeight: att.RequestedWeight,
		Status:          string(models.AttemptStatusWaiting),
	})

	log.Warn().
		Str("competition_id", competitionID.String()).
		Str("attempt_id", attemptID.String()).
		Msg("attempt aborted back to waiting")

	if storeErr != nil {
		return fmt.Errorf("persist attempt abort: %w", storeErr)
	}
	return nil
}

// UpdateRequestedWeight changes a waiting attempt's requested weight,
// refused inside the safety window before the attempt is expected to go
// live. An estimate of exactly the window is still allowed.
func (c *Coordinator) UpdateRequestedWeight(ctx context.Context, competitionID, attemptID uuid.UUID, newWeight float64) error {
	if newWeight <= 0 {
		return fmt.Errorf("%w: weight must be positive", ErrInconsistentState)
	}
	att, err := c.loadAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if att.CompetitionID != competitionID {
		return ErrNotFound
	}
	if att.Status != models.AttemptStatusWaiting {
		return fmt.Errorf("%w: weight can only change while waiting", ErrInconsistentState)
	}

	wait, err := c.queue.EstimatedWait(ctx, competitionID, attemptID)
	if err != nil {
		return fmt.Errorf("estimate wait: %w", err)
	}
	if wait < c.policy.WeightChangeLockWindow {
		return fmt.Errorf("%w: %s until the attempt, window is %s",
			ErrTooLateToChange, wait.Round(time.Second), c.policy.WeightChangeLockWindow)
	}

	if err := c.store.UpdateRequestedWeight(ctx, attemptID, newWeight); err != nil {
		return fmt.Errorf("persist weight change: %w", err)
	}
	// A weight change reorders the queue.
	c.queue.Invalidate(competitionID)

	c.emit(competitionID, broadcast.TypeAttemptUpdate, events.AttemptUpdatePayload{
		AttemptID:       attemptID.String(),
		AthleteID:       att.AthleteID.String(),
		FlightID:        att.FlightID.String(),
		Number:          att.Number,
		RequestedWeight: newWeight,
		Status:          string(att.Status),
	})

	log.Info().
		Str("attempt_id", attemptID.String()).
		Float64("weight", newWeight).
		Msg("requested weight updated")
	return nil
}

// SubmitRefereeDecision records one referee's vote. Partial decisions are
// persisted but trigger no transition; once a majority of the configured
// panel agrees, the final result is recorded. A full panel with no
// majority defaults to no_lift.
//
// The returned result is nil while the outcome is still open.
func (c *Coordinator) SubmitRefereeDecision(ctx context.Context, competitionID, attemptID, refereeID uuid.UUID, seat string, decision models.AttemptResult) (*models.AttemptResult, error) {
	if decision != models.AttemptResultGoodLift && decision != models.AttemptResultNoLift {
		return nil, fmt.Errorf("%w: decision %q is not a valid vote", ErrInconsistentState, decision)
	}
	att, err := c.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if att.CompetitionID != competitionID {
		return nil, ErrNotFound
	}
	if att.Status != models.AttemptStatusInProgress {
		return nil, fmt.Errorf("%w: votes only apply to the attempt on the platform", ErrInconsistentState)
	}

	vote := models.RefereeDecision{
		AttemptID: attemptID,
		RefereeID: refereeID,
		Seat:      seat,
		Decision:  decision,
		DecidedAt: c.clk.Now().UTC(),
	}

	sess := c.session(competitionID)
	sess.mu.Lock()
	if sess.votes[attemptID] == nil {
		sess.votes[attemptID] = make(map[uuid.UUID]models.RefereeDecision)
	}
	sess.votes[attemptID][refereeID] = vote // re-vote replaces
	final := tally(sess.votes[attemptID], c.policy.RefereePanelSize)
	sess.mu.Unlock()

	if err := c.store.RecordRefereeDecision(ctx, vote); err != nil {
		return nil, fmt.Errorf("persist referee decision: %w", err)
	}

	log.Info().
		Str("attempt_id", attemptID.String()).
		Str("referee_id", refereeID.String()).
		Str("decision", string(decision)).
		Bool("determinate", final != nil).
		Msg("referee decision recorded")

	if final == nil {
		return nil, nil
	}
	if err := c.RecordResult(ctx, competitionID, attemptID, *final); err != nil {
		return final, err
	}
	return final, nil
}

// tally resolves the panel votes into a determinate result, or nil while
// the outcome is still open. With a full panel and no majority the
// unfavorable outcome wins; this mirrors the competition rule that a
// split bench never awards the lift.
func tally(votes map[uuid.UUID]models.RefereeDecision, panelSize int) *models.AttemptResult {
	good, no := 0, 0
	for _, v := range votes {
		switch v.Decision {
		case models.AttemptResultGoodLift:
			good++
		case models.AttemptResultNoLift:
			no++
		}
	}
	majority := panelSize/2 + 1
	switch {
	case good >= majority:
		r := models.AttemptResultGoodLift
		return &r
	case no >= majority:
		r := models.AttemptResultNoLift
		return &r
	case good+no >= panelSize:
		r := models.AttemptResultNoLift
		return &r
	}
	return nil
}

// ActiveAttemptID reports the attempt currently on the platform for the
// competition, or uuid.Nil.
func (c *Coordinator) ActiveAttemptID(competitionID uuid.UUID) uuid.UUID {
	sess := c.session(competitionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.activeAttemptID
}

// ActiveBreak reports the running break timer id and kind, if any.
func (c *Coordinator) ActiveBreak(competitionID uuid.UUID) (string, timers.Kind, bool) {
	sess := c.session(competitionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.breakTimerID == "" {
		return "", "", false
	}
	return sess.breakTimerID, sess.breakKind, true
}

// EndCompetition sweeps all live state for the competition: timers,
// session, cached estimates.
func (c *Coordinator) EndCompetition(competitionID uuid.UUID) {
	c.timers.Cleanup(competitionID)
	c.queue.Invalidate(competitionID)
	c.mu.Lock()
	delete(c.sessions, competitionID)
	c.mu.Unlock()
	log.Info().Str("competition_id", competitionID.String()).Msg("competition session ended")
}

// maybeStartBreak arms the flight (or event) break once the just-finished
// attempt left no waiting attempts in its flight. The next flight's first
// StartAttempt stops it.
func (c *Coordinator) maybeStartBreak(ctx context.Context, competitionID, flightID uuid.UUID) {
	remaining, err := c.queue.RemainingWaitingInFlight(ctx, competitionID, flightID)
	if err != nil {
		log.Error().Err(err).Str("flight_id", flightID.String()).Msg("break detection failed")
		return
	}
	if remaining > 0 {
		return
	}

	kind := timers.KindFlightBreak
	duration := c.policy.FlightBreak
	timerID := timers.FlightBreakTimerID(flightID)
	next, err := c.store.NextFlight(ctx, flightID)
	if err != nil {
		log.Error().Err(err).Str("flight_id", flightID.String()).Msg("next flight lookup failed")
	} else if next == nil {
		// Last flight of the movement: the longer event break runs.
		kind = timers.KindEventBreak
		duration = c.policy.EventBreak
		if flight, err := c.store.GetFlight(ctx, flightID); err == nil && flight != nil {
			timerID = timers.EventBreakTimerID(flight.MovementID)
		} else {
			timerID = timers.EventBreakTimerID(flightID)
		}
	}

	if _, err := c.timers.Create(competitionID, timerID, duration, kind); err != nil {
		log.Error().Err(err).Str("timer_id", timerID).Msg("break timer creation failed")
		return
	}
	c.timers.Start(competitionID, timerID)

	sess := c.session(competitionID)
	sess.mu.Lock()
	sess.breakTimerID = timerID
	sess.breakKind = kind
	sess.mu.Unlock()

	startedAt := c.clk.Now().UTC()
	c.emit(competitionID, broadcast.TypeBreakStarted, events.BreakStartedPayload{
		TimerID:     timerID,
		Kind:        string(kind),
		DurationSec: int(duration.Seconds()),
		StartedAt:   startedAt,
	})

	log.Info().
		Str("competition_id", competitionID.String()).
		Str("timer_id", timerID).
		Str("kind", string(kind)).
		Msg("break timer started")
}

func (c *Coordinator) loadAttempt(ctx context.Context, attemptID uuid.UUID) (*models.Attempt, error) {
	att, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if att == nil {
		return nil, ErrNotFound
	}
	return att, nil
}

func (c *Coordinator) emit(competitionID uuid.UUID, typ broadcast.Type, payload any) {
	ev, err := broadcast.New(competitionID, typ, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to build event")
		return
	}
	c.dispatcher.Enqueue(ev)
}
