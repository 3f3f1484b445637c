package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liftline/liftline/internal/attempt"
	"github.com/liftline/liftline/internal/broadcast"
	"github.com/liftline/liftline/internal/events"
	"github.com/liftline/liftline/internal/gateway"
	"github.com/liftline/liftline/internal/models"
	"github.com/liftline/liftline/internal/queue"
	"github.com/liftline/liftline/internal/scoring"
	"github.com/liftline/liftline/internal/snapshot"
	"github.com/liftline/liftline/internal/store"
	"github.com/liftline/liftline/internal/timers"
)

type Services struct {
	Store       *store.Store
	Scoring     *scoring.Service
	Queue       *queue.Engine
	Timers      *timers.Registry
	TimerFanout *timers.Fanout
	Dispatcher  *broadcast.Dispatcher
	Coordinator *attempt.Coordinator
	Provider    *gateway.Provider
	Connections *gateway.ConnectionManager
	Snapshots   *snapshot.File
}

func setupServices(pool *pgxpool.Pool, config *Config, publisher broadcast.Publisher) (*Services, error) {
	// Wire up dependency injection chain
	// Store → scoring → queue engine → coordinator → gateway

	dataStore := store.NewStore(pool)
	scoringService := scoring.NewService(dataStore)

	snapshots, err := snapshot.NewFile(getEnv("SNAPSHOT_DIR", defaultString(config.Snapshot.Dir, "./snapshots")))
	if err != nil {
		return nil, fmt.Errorf("failed to set up snapshot dir: %w", err)
	}

	dispatcher := broadcast.NewDispatcher(publisher, 1024)

	// Timer progress fans out as timer_update events and refreshes the
	// display snapshot file. Clock notification delivery must stay cheap
	// and must never read back into the delivering clock, so the
	// registry's notify is a non-blocking hand-off; the fanout's drain
	// goroutine does the publish, the registry read and the disk write.
	// The registry variable is assigned before any timer can tick, so the
	// sink never sees it nil.
	var registry *timers.Registry
	fanout := timers.NewFanout(func(competitionID uuid.UUID, snap timers.Snapshot) {
		ev, err := broadcast.New(competitionID, broadcast.TypeTimerUpdate, events.TimerUpdatePayload{
			TimerID:      snap.TimerID,
			Kind:         string(snap.Kind),
			RemainingSec: int(snap.Remaining.Seconds()),
			DurationSec:  int(snap.Duration.Seconds()),
			State:        string(snap.State),
			TickedAt:     time.Now().UTC(),
		})
		if err == nil {
			dispatcher.Enqueue(ev)
		}
		snapshots.Write(competitionID, registry.ListForCompetition(competitionID))
	}, 1024)
	registry = timers.NewRegistry(timers.WithNotify(fanout.Notify))

	var bufferOpts []queue.Option
	if config.Policy.ChangeoverBufferSec > 0 {
		bufferOpts = append(bufferOpts,
			queue.WithChangeoverBuffer(time.Duration(config.Policy.ChangeoverBufferSec)*time.Second))
	}
	queueEngine := queue.NewEngine(queueRepo{dataStore}, scoringService, registry, bufferOpts...)

	coordinator := attempt.NewCoordinator(
		coordinatorStore{dataStore},
		scoringService,
		queueFacade{queueEngine},
		registry,
		dispatcher,
		attempt.WithPolicy(policyFromConfig(config)),
	)

	provider := gateway.NewProvider(queueEngine, coordinator, registry,
		gateway.WithSnapshotFallback(snapshots))
	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	return &Services{
		Store:       dataStore,
		Scoring:     scoringService,
		Queue:       queueEngine,
		Timers:      registry,
		TimerFanout: fanout,
		Dispatcher:  dispatcher,
		Coordinator: coordinator,
		Provider:    provider,
		Connections: connections,
		Snapshots:   snapshots,
	}, nil
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// queueRepo adapts the store to the queue engine's repository interface.
type queueRepo struct {
	*store.Store
}

func (r queueRepo) ListWaitingAttempts(ctx context.Context, competitionID uuid.UUID, f queue.Filters) ([]models.Attempt, error) {
	return r.Store.ListWaitingAttempts(ctx, competitionID, f.MovementID)
}

func (r queueRepo) GetInProgressAttempt(ctx context.Context, competitionID uuid.UUID, f queue.Filters) (*models.Attempt, error) {
	return r.Store.GetInProgressAttempt(ctx, competitionID, f.MovementID)
}

// coordinatorStore adapts the store to the coordinator's interface.
type coordinatorStore struct {
	*store.Store
}

func (s coordinatorStore) GetInProgressAttempt(ctx context.Context, competitionID uuid.UUID) (*models.Attempt, error) {
	return s.Store.GetInProgressAttempt(ctx, competitionID, nil)
}

func (s coordinatorStore) UpdateAttemptStatus(ctx context.Context, id uuid.UUID, change attempt.StatusChange) error {
	return s.Store.UpdateAttemptStatus(ctx, id, store.AttemptStatusUpdate{
		Status:      change.Status,
		Result:      change.Result,
		StartedAt:   change.StartedAt,
		CompletedAt: change.CompletedAt,
	})
}

// queueFacade narrows the queue engine to the coordinator's view: the
// coordinator never filters by movement.
type queueFacade struct {
	*queue.Engine
}

func (q queueFacade) EstimatedWait(ctx context.Context, competitionID, attemptID uuid.UUID) (time.Duration, error) {
	return q.Engine.EstimatedWait(ctx, competitionID, attemptID, queue.Filters{})
}
