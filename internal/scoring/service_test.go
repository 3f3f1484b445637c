package scoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/liftline/liftline/internal/models"
)

type memRepo struct {
	mu        sync.Mutex
	movements map[uuid.UUID]*models.Movement
	attempts  map[uuid.UUID][]models.Attempt // by entry id
	scores    map[uuid.UUID]models.Score     // by entry id
}

func newMemRepo() *memRepo {
	return &memRepo{
		movements: make(map[uuid.UUID]*models.Movement),
		attempts:  make(map[uuid.UUID][]models.Attempt),
		scores:    make(map[uuid.UUID]models.Score),
	}
}

func (r *memRepo) GetMovement(_ context.Context, id uuid.UUID) (*models.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.movements[id], nil
}

func (r *memRepo) ListFinishedAttemptsForEntry(_ context.Context, entryID uuid.UUID) ([]models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[entryID], nil
}

func (r *memRepo) SaveScore(_ context.Context, score models.Score) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[score.EntryID] = score
	return nil
}

func (r *memRepo) ListScoresForMovement(_ context.Context, movementID uuid.UUID) ([]models.Score, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Score
	for _, s := range r.scores {
		if s.MovementID == movementID {
			out = append(out, s)
		}
	}
	return out, nil
}

func finished(entry, movement uuid.UUID, weight float64, result models.AttemptResult) models.Attempt {
	return models.Attempt{
		ID:              uuid.New(),
		MovementID:      movement,
		EntryID:         entry,
		AthleteID:       uuid.New(),
		RequestedWeight: weight,
		Result:          result,
		Status:          models.AttemptStatusFinished,
	}
}

func TestAttemptTimeLimit(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	movement := uuid.New()
	repo.movements[movement] = &models.Movement{ID: movement, TimeLimit: 90 * time.Second}
	svc := NewService(repo)
	ctx := context.Background()

	limit, err := svc.AttemptTimeLimit(ctx, models.Attempt{MovementID: movement})
	if err != nil || limit != 90*time.Second {
		t.Errorf("configured movement: limit=%v err=%v, want 90s", limit, err)
	}

	// Unknown movement falls back to the default.
	limit, err = svc.AttemptTimeLimit(ctx, models.Attempt{MovementID: uuid.New()})
	if err != nil || limit != DefaultTimeLimit {
		t.Errorf("unknown movement: limit=%v err=%v, want default", limit, err)
	}
}

func TestRecompute_MaxAggregation(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	movement := uuid.New()
	entry := uuid.New()
	repo.movements[movement] = &models.Movement{ID: movement, Aggregation: models.AggregationMax}
	repo.attempts[entry] = []models.Attempt{
		finished(entry, movement, 100, models.AttemptResultGoodLift),
		finished(entry, movement, 110, models.AttemptResultNoLift),
		finished(entry, movement, 105, models.AttemptResultGoodLift),
	}

	svc := NewService(repo)
	score, err := svc.Recompute(context.Background(), entry)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if score.Best != 105 || score.Total != 105 {
		t.Errorf("best=%v total=%v, want 105/105 (failed 110 must not count)", score.Best, score.Total)
	}
	if _, ok := repo.scores[entry]; !ok {
		t.Error("score was not persisted")
	}
}

func TestRecompute_SumAggregation(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	movement := uuid.New()
	entry := uuid.New()
	repo.movements[movement] = &models.Movement{ID: movement, Aggregation: models.AggregationSum}
	repo.attempts[entry] = []models.Attempt{
		finished(entry, movement, 100, models.AttemptResultGoodLift),
		finished(entry, movement, 105, models.AttemptResultGoodLift),
	}

	svc := NewService(repo)
	score, err := svc.Recompute(context.Background(), entry)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if score.Best != 105 || score.Total != 205 {
		t.Errorf("best=%v total=%v, want 105/205", score.Best, score.Total)
	}
}

func TestRecompute_TimeAggregationTakesLowest(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	movement := uuid.New()
	entry := uuid.New()
	repo.movements[movement] = &models.Movement{ID: movement, Aggregation: models.AggregationTime}
	repo.attempts[entry] = []models.Attempt{
		finished(entry, movement, 14.2, models.AttemptResultGoodLift),
		finished(entry, movement, 12.8, models.AttemptResultGoodLift),
		finished(entry, movement, 13.1, models.AttemptResultGoodLift),
	}

	svc := NewService(repo)
	score, err := svc.Recompute(context.Background(), entry)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if score.Best != 12.8 || score.Total != 12.8 {
		t.Errorf("best=%v total=%v, want 12.8 (lowest elapsed)", score.Best, score.Total)
	}
}

func TestRecompute_AllMissesScoresZero(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	movement := uuid.New()
	entry := uuid.New()
	repo.movements[movement] = &models.Movement{ID: movement, Aggregation: models.AggregationMax}
	repo.attempts[entry] = []models.Attempt{
		finished(entry, movement, 100, models.AttemptResultNoLift),
	}

	svc := NewService(repo)
	score, err := svc.Recompute(context.Background(), entry)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if score.Best != 0 || score.Total != 0 {
		t.Errorf("best=%v total=%v, want zero score", score.Best, score.Total)
	}
	// Zero scores still rank.
	if _, ok := repo.scores[entry]; !ok {
		t.Error("zero score was not persisted")
	}
}

func TestRankings_OrderAndTies(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	movement := uuid.New()
	repo.movements[movement] = &models.Movement{ID: movement, Aggregation: models.AggregationMax}

	put := func(total, best float64) uuid.UUID {
		entry := uuid.New()
		repo.scores[entry] = models.Score{EntryID: entry, MovementID: movement, Total: total, Best: best}
		return entry
	}
	first := put(110, 110)
	tiedA := put(105, 105)
	tiedB := put(105, 105)
	last := put(100, 100)

	svc := NewService(repo)
	ranked, err := svc.Rankings(context.Background(), movement)
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if len(ranked) != 4 {
		t.Fatalf("got %d scores, want 4", len(ranked))
	}

	rankOf := make(map[uuid.UUID]int)
	for _, s := range ranked {
		rankOf[s.EntryID] = s.Rank
	}
	if rankOf[first] != 1 {
		t.Errorf("leader rank = %d, want 1", rankOf[first])
	}
	if rankOf[tiedA] != 2 || rankOf[tiedB] != 2 {
		t.Errorf("tied ranks = %d/%d, want 2/2", rankOf[tiedA], rankOf[tiedB])
	}
	// Shared positions are skipped: 1, 2, 2, 4.
	if rankOf[last] != 4 {
		t.Errorf("last rank = %d, want 4", rankOf[last])
	}
}

func TestRankings_TimeAggregationRanksAscending(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	movement := uuid.New()
	repo.movements[movement] = &models.Movement{ID: movement, Aggregation: models.AggregationTime}

	slow := uuid.New()
	fast := uuid.New()
	repo.scores[slow] = models.Score{EntryID: slow, MovementID: movement, Total: 14.5, Best: 14.5}
	repo.scores[fast] = models.Score{EntryID: fast, MovementID: movement, Total: 12.1, Best: 12.1}

	svc := NewService(repo)
	ranked, err := svc.Rankings(context.Background(), movement)
	if err != nil {
		t.Fatalf("Rankings: %v", err)
	}
	if ranked[0].EntryID != fast || ranked[0].Rank != 1 {
		t.Errorf("fastest entry must rank first, got %v rank %d", ranked[0].EntryID, ranked[0].Rank)
	}
}
