package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/liftline/liftline/internal/clock"
	"github.com/liftline/liftline/internal/models"
	"github.com/liftline/liftline/internal/timers"
)

type memRepo struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*models.Attempt
}

func newMemRepo() *memRepo {
	return &memRepo{attempts: make(map[uuid.UUID]*models.Attempt)}
}

func (m *memRepo) add(a models.Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := a
	m.attempts[a.ID] = &cp
}

func (m *memRepo) setStatus(id uuid.UUID, status models.AttemptStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id].Status = status
}

func (m *memRepo) ListWaitingAttempts(_ context.Context, competitionID uuid.UUID, f Filters) ([]models.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Attempt
	for _, a := range m.attempts {
		if a.CompetitionID != competitionID || a.Status != models.AttemptStatusWaiting {
			continue
		}
		if f.MovementID != nil && a.MovementID != *f.MovementID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memRepo) GetInProgressAttempt(_ context.Context, competitionID uuid.UUID, f Filters) (*models.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.CompetitionID != competitionID || a.Status != models.AttemptStatusInProgress {
			continue
		}
		if f.MovementID != nil && a.MovementID != *f.MovementID {
			continue
		}
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *memRepo) CountFinishedInFlight(_ context.Context, flightID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.FlightID == flightID && a.Status == models.AttemptStatusFinished {
			n++
		}
	}
	return n, nil
}

type fixedLimits struct{ limit time.Duration }

func (f fixedLimits) AttemptTimeLimit(context.Context, models.Attempt) (time.Duration, error) {
	return f.limit, nil
}

type fakeTimers struct {
	mu    sync.Mutex
	snaps map[string]timers.Snapshot
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{snaps: make(map[string]timers.Snapshot)}
}

func (f *fakeTimers) set(timerID string, remaining time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[timerID] = timers.Snapshot{
		TimerID:   timerID,
		Kind:      timers.KindAttempt,
		Remaining: remaining,
		State:     clock.StateRunning,
	}
}

func (f *fakeTimers) Snapshot(_ uuid.UUID, timerID string) (timers.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snaps[timerID]
	return s, ok
}

func waitingAttempt(comp uuid.UUID, flightID uuid.UUID, flightOrder int, weight float64, number int) models.Attempt {
	return models.Attempt{
		ID:              uuid.New(),
		CompetitionID:   comp,
		MovementID:      uuid.New(),
		FlightID:        flightID,
		AthleteID:       uuid.New(),
		EntryID:         uuid.New(),
		Number:          number,
		RequestedWeight: weight,
		Status:          models.AttemptStatusWaiting,
		FlightOrder:     flightOrder,
	}
}

func TestWaitingInOrder_CanonicalOrdering(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	flight1 := uuid.New()
	flight2 := uuid.New()
	repo := newMemRepo()

	a := waitingAttempt(comp, flight1, 1, 100, 1)
	b := waitingAttempt(comp, flight1, 1, 90, 1)
	c := waitingAttempt(comp, flight2, 2, 50, 1)
	repo.add(a)
	repo.add(b)
	repo.add(c)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, newFakeTimers())
	got, err := e.WaitingInOrder(context.Background(), comp, Filters{})
	if err != nil {
		t.Fatalf("WaitingInOrder: %v", err)
	}

	// Flight ascending first, weight second: B (90@1), A (100@1), C (50@2).
	want := []uuid.UUID{b.ID, a.ID, c.ID}
	if len(got) != len(want) {
		t.Fatalf("got %d attempts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestLess_LiftingOrderBeforeWeightNullsLast(t *testing.T) {
	t.Parallel()

	flight := uuid.New()
	comp := uuid.New()
	ranked := waitingAttempt(comp, flight, 1, 120, 1)
	two := 2
	ranked.LiftingOrder = &two
	unranked := waitingAttempt(comp, flight, 1, 80, 1)

	if !Less(ranked, unranked) {
		t.Error("attempt with a lifting order must sort before one without")
	}
	one := 1
	heavier := waitingAttempt(comp, flight, 1, 200, 1)
	heavier.LiftingOrder = &one
	if !Less(heavier, ranked) {
		t.Error("lower lifting order must win regardless of weight")
	}
}

func TestEstimatedWait_UsesLiveTimerAndBuffer(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	flight := uuid.New()
	repo := newMemRepo()
	reader := newFakeTimers()

	active := waitingAttempt(comp, flight, 1, 80, 1)
	active.Status = models.AttemptStatusInProgress
	first := waitingAttempt(comp, flight, 1, 90, 1)
	second := waitingAttempt(comp, flight, 1, 100, 1)
	repo.add(active)
	repo.add(first)
	repo.add(second)

	reader.set(timers.AttemptTimerID(active.ID), 40*time.Second)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, reader, WithCacheTTL(0))
	ctx := context.Background()

	// second waits for: live 40s + (60s + 15s) for first.
	got, err := e.EstimatedWait(ctx, comp, second.ID, Filters{})
	if err != nil {
		t.Fatalf("EstimatedWait: %v", err)
	}
	if want := 40*time.Second + 75*time.Second; got != want {
		t.Errorf("estimate = %v, want %v", got, want)
	}

	// first waits only for the live remaining time.
	got, err = e.EstimatedWait(ctx, comp, first.ID, Filters{})
	if err != nil {
		t.Fatalf("EstimatedWait: %v", err)
	}
	if got != 40*time.Second {
		t.Errorf("head estimate = %v, want 40s", got)
	}
}

func TestEstimatedWait_FallsBackToTimeLimitWithoutLiveTimer(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	flight := uuid.New()
	repo := newMemRepo()

	active := waitingAttempt(comp, flight, 1, 80, 1)
	active.Status = models.AttemptStatusInProgress
	target := waitingAttempt(comp, flight, 1, 90, 1)
	repo.add(active)
	repo.add(target)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, newFakeTimers(), WithCacheTTL(0))
	got, err := e.EstimatedWait(context.Background(), comp, target.ID, Filters{})
	if err != nil {
		t.Fatalf("EstimatedWait: %v", err)
	}
	if got != 60*time.Second {
		t.Errorf("estimate = %v, want configured 60s limit", got)
	}
}

func TestEstimatedWait_UntrackedAttemptIsZero(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	repo := newMemRepo()
	done := waitingAttempt(comp, uuid.New(), 1, 90, 1)
	done.Status = models.AttemptStatusFinished
	repo.add(done)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, newFakeTimers(), WithCacheTTL(0))

	for _, id := range []uuid.UUID{done.ID, uuid.New()} {
		got, err := e.EstimatedWait(context.Background(), comp, id, Filters{})
		if err != nil {
			t.Fatalf("EstimatedWait(%s): %v", id, err)
		}
		if got != 0 {
			t.Errorf("untracked attempt estimate = %v, want 0", got)
		}
	}
}

func TestEstimatedWait_StrictlyDecreasesWhenHeadFinishes(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	flight := uuid.New()
	repo := newMemRepo()

	head := waitingAttempt(comp, flight, 1, 80, 1)
	mid := waitingAttempt(comp, flight, 1, 90, 1)
	target := waitingAttempt(comp, flight, 1, 100, 1)
	repo.add(head)
	repo.add(mid)
	repo.add(target)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, newFakeTimers(), WithCacheTTL(0))
	ctx := context.Background()

	before, err := e.EstimatedWait(ctx, comp, target.ID, Filters{})
	if err != nil {
		t.Fatalf("EstimatedWait before: %v", err)
	}

	repo.setStatus(head.ID, models.AttemptStatusFinished)
	e.Invalidate(comp)

	after, err := e.EstimatedWait(ctx, comp, target.ID, Filters{})
	if err != nil {
		t.Fatalf("EstimatedWait after: %v", err)
	}
	if dec := before - after; dec < 75*time.Second {
		t.Errorf("estimate decreased by %v, want at least limit+buffer (75s)", dec)
	}
}

func TestEstimateCache_InvalidationNeverMasksYouAreUp(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	flight := uuid.New()
	repo := newMemRepo()
	fakeClk := clockwork.NewFakeClock()

	head := waitingAttempt(comp, flight, 1, 80, 1)
	target := waitingAttempt(comp, flight, 1, 90, 1)
	repo.add(head)
	repo.add(target)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, newFakeTimers(), WithClock(fakeClk))
	ctx := context.Background()

	first, err := e.EstimatedWait(ctx, comp, target.ID, Filters{})
	if err != nil {
		t.Fatalf("EstimatedWait: %v", err)
	}
	if first == 0 {
		t.Fatal("expected non-zero estimate behind the head attempt")
	}

	// Within the TTL the memoized value serves.
	cached, _ := e.EstimatedWait(ctx, comp, target.ID, Filters{})
	if cached != first {
		t.Errorf("cached estimate = %v, want %v", cached, first)
	}

	// The head resolves; eager invalidation must expose the transition
	// immediately, TTL notwithstanding.
	repo.setStatus(head.ID, models.AttemptStatusFinished)
	e.Invalidate(comp)

	got, err := e.EstimatedWait(ctx, comp, target.ID, Filters{})
	if err != nil {
		t.Fatalf("EstimatedWait after invalidation: %v", err)
	}
	if got != 0 {
		t.Errorf("estimate after head resolved = %v, want 0 (you're up)", got)
	}
}

func TestFirstInFlightQueue(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	flight := uuid.New()
	repo := newMemRepo()

	active := waitingAttempt(comp, flight, 1, 80, 1)
	active.Status = models.AttemptStatusInProgress
	next := waitingAttempt(comp, flight, 1, 90, 1)
	repo.add(active)
	repo.add(next)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, newFakeTimers())
	ctx := context.Background()

	// The in-progress attempt is still the head of the remaining queue.
	if ok, _ := e.FirstInFlightQueue(ctx, comp, flight, active.ID); !ok {
		t.Error("in-progress attempt should head the remaining queue")
	}
	if ok, _ := e.FirstInFlightQueue(ctx, comp, flight, next.ID); ok {
		t.Error("waiting attempt behind an active one reported as head")
	}

	repo.setStatus(active.ID, models.AttemptStatusFinished)
	if ok, _ := e.FirstInFlightQueue(ctx, comp, flight, next.ID); !ok {
		t.Error("next attempt should head the queue after the active one finishes")
	}
}

func TestFirstAttemptOfFlight(t *testing.T) {
	t.Parallel()

	comp := uuid.New()
	flight := uuid.New()
	repo := newMemRepo()
	a := waitingAttempt(comp, flight, 1, 80, 1)
	repo.add(a)

	e := NewEngine(repo, fixedLimits{limit: 60 * time.Second}, newFakeTimers())
	ctx := context.Background()

	if ok, _ := e.FirstAttemptOfFlight(ctx, flight); !ok {
		t.Error("flight with no finished attempts should report first-attempt")
	}
	repo.setStatus(a.ID, models.AttemptStatusFinished)
	if ok, _ := e.FirstAttemptOfFlight(ctx, flight); ok {
		t.Error("flight with a finished attempt still reported first-attempt")
	}
}
