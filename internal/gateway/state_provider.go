package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liftline/liftline/internal/models"
	"github.com/liftline/liftline/internal/queue"
	"github.com/liftline/liftline/internal/snapshot"
	"github.com/liftline/liftline/internal/timers"
)

// QueueReader is the slice of the queue engine the provider consults.
type QueueReader interface {
	InProgress(ctx context.Context, competitionID uuid.UUID, f queue.Filters) (*models.Attempt, error)
	WaitingInOrder(ctx context.Context, competitionID uuid.UUID, f queue.Filters) ([]models.Attempt, error)
	EstimatedWait(ctx context.Context, competitionID, attemptID uuid.UUID, f queue.Filters) (time.Duration, error)
	FirstInFlightQueue(ctx context.Context, competitionID, flightID, attemptID uuid.UUID) (bool, error)
}

// BreakReader reports the competition's running break timer, if any.
type BreakReader interface {
	ActiveBreak(competitionID uuid.UUID) (string, timers.Kind, bool)
}

// TimerReader is the slice of the timer registry the provider reads.
type TimerReader interface {
	Snapshot(competitionID uuid.UUID, timerID string) (timers.Snapshot, bool)
	ListForCompetition(competitionID uuid.UUID) map[string]timers.Snapshot
}

// SnapshotLoader reads the last persisted timer snapshot for a
// competition. Used only as a display fallback right after a restart,
// before any live timer exists again.
type SnapshotLoader interface {
	Load(competitionID uuid.UUID) (*snapshot.Document, bool)
}

// Provider assembles the athlete-facing next-attempt view and the timer
// listings from the live subsystems. It holds no state of its own.
type Provider struct {
	queue    QueueReader
	breaks   BreakReader
	timers   TimerReader
	fallback SnapshotLoader
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithSnapshotFallback serves the last persisted timer snapshot when no
// live timer exists for the competition.
func WithSnapshotFallback(loader SnapshotLoader) ProviderOption {
	return func(p *Provider) { p.fallback = loader }
}

// NewProvider creates a state provider over the live subsystems.
func NewProvider(queueReader QueueReader, breaks BreakReader, timerReader TimerReader, opts ...ProviderOption) *Provider {
	p := &Provider{queue: queueReader, breaks: breaks, timers: timerReader}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NextAttempt resolves the athlete's next-attempt view: exactly one of
// no_attempts, you_are_up, estimate or break_timer.
func (p *Provider) NextAttempt(ctx context.Context, competitionID, athleteID uuid.UUID) (*NextAttemptView, error) {
	inProgress, err := p.queue.InProgress(ctx, competitionID, queue.Filters{})
	if err != nil {
		return nil, fmt.Errorf("get in-progress attempt: %w", err)
	}
	if inProgress != nil && inProgress.AthleteID == athleteID {
		view := &NextAttemptView{
			Status:          StatusYouAreUp,
			AttemptID:       inProgress.ID.String(),
			AttemptNumber:   inProgress.Number,
			RequestedWeight: inProgress.RequestedWeight,
		}
		if snap, ok := p.timers.Snapshot(competitionID, timers.AttemptTimerID(inProgress.ID)); ok {
			view.AttemptTimer = timerView(snap)
		}
		return view, nil
	}

	waiting, err := p.queue.WaitingInOrder(ctx, competitionID, queue.Filters{})
	if err != nil {
		return nil, fmt.Errorf("list waiting attempts: %w", err)
	}
	var mine *models.Attempt
	for i := range waiting {
		if waiting[i].AthleteID == athleteID {
			mine = &waiting[i]
			break
		}
	}
	if mine == nil {
		return &NextAttemptView{Status: StatusNoAttempts}, nil
	}

	view := &NextAttemptView{
		AttemptID:       mine.ID.String(),
		AttemptNumber:   mine.Number,
		RequestedWeight: mine.RequestedWeight,
	}

	first, err := p.queue.FirstInFlightQueue(ctx, competitionID, mine.FlightID, mine.ID)
	if err != nil {
		return nil, fmt.Errorf("check flight queue head: %w", err)
	}
	if first && inProgress == nil {
		// Head of the queue with an empty platform: either the break is
		// still running, or the athlete is being called up right now.
		if breakID, _, ok := p.breaks.ActiveBreak(competitionID); ok {
			if snap, ok := p.timers.Snapshot(competitionID, breakID); ok {
				view.Status = StatusBreakTimer
				view.BreakTimer = timerView(snap)
				return view, nil
			}
		}
		view.Status = StatusYouAreUp
		return view, nil
	}

	wait, err := p.queue.EstimatedWait(ctx, competitionID, mine.ID, queue.Filters{})
	if err != nil {
		return nil, fmt.Errorf("estimate wait: %w", err)
	}
	sec := int(wait.Seconds())
	view.Status = StatusEstimate
	view.EstimatedWaitSec = &sec
	return view, nil
}

// Timers returns the live countdown views for the competition. With no
// live timers and a snapshot fallback configured, the last persisted view
// is served instead so displays survive a restart.
func (p *Provider) Timers(competitionID uuid.UUID) map[string]TimerView {
	snaps := p.timers.ListForCompetition(competitionID)
	if len(snaps) == 0 && p.fallback != nil {
		if doc, ok := p.fallback.Load(competitionID); ok {
			snaps = doc.Timers
		}
	}
	out := make(map[string]TimerView, len(snaps))
	for id, snap := range snaps {
		out[id] = *timerView(snap)
	}
	return out
}

func timerView(snap timers.Snapshot) *TimerView {
	return &TimerView{
		TimerID:      snap.TimerID,
		Kind:         string(snap.Kind),
		DurationSec:  int(snap.Duration.Seconds()),
		RemainingSec: int(snap.Remaining.Seconds()),
		State:        string(snap.State),
	}
}
