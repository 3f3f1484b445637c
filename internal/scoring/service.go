package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/liftline/liftline/internal/models"
)

// DefaultTimeLimit applies when a movement does not configure its own
// per-attempt countdown.
const DefaultTimeLimit = 60 * time.Second

// Repository defines what the scoring service needs from the data store.
type Repository interface {
	GetMovement(ctx context.Context, id uuid.UUID) (*models.Movement, error)
	ListFinishedAttemptsForEntry(ctx context.Context, entryID uuid.UUID) ([]models.Attempt, error)
	SaveScore(ctx context.Context, score models.Score) error
	ListScoresForMovement(ctx context.Context, movementID uuid.UUID) ([]models.Score, error)
}

// Service derives scores from finished attempts. Scores are never authored
// directly: every decision triggers a recompute for the affected entry and
// a re-rank of its movement.
type Service struct {
	repo Repository
	clk  clockwork.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithClock substitutes the time source.
func WithClock(clk clockwork.Clock) Option {
	return func(s *Service) { s.clk = clk }
}

// NewService creates a scoring service over the repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, clk: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttemptTimeLimit resolves the countdown duration for one attempt from its
// movement's configuration, falling back to DefaultTimeLimit.
func (s *Service) AttemptTimeLimit(ctx context.Context, attempt models.Attempt) (time.Duration, error) {
	movement, err := s.repo.GetMovement(ctx, attempt.MovementID)
	if err != nil {
		return 0, fmt.Errorf("failed to get movement: %w", err)
	}
	if movement == nil || movement.TimeLimit <= 0 {
		return DefaultTimeLimit, nil
	}
	return movement.TimeLimit, nil
}

// Recompute folds the entry's finished attempts into its score per the
// movement's aggregation mode and persists it. An entry with no successful
// attempts scores zero, which still persists so rankings include it.
func (s *Service) Recompute(ctx context.Context, entryID uuid.UUID) (*models.Score, error) {
	attempts, err := s.repo.ListFinishedAttemptsForEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list finished attempts: %w", err)
	}
	if len(attempts) == 0 {
		return nil, nil
	}

	movement, err := s.repo.GetMovement(ctx, attempts[0].MovementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get movement: %w", err)
	}
	aggregation := models.AggregationMax
	if movement != nil {
		aggregation = movement.Aggregation
	}

	score := models.Score{
		EntryID:    entryID,
		AthleteID:  attempts[0].AthleteID,
		MovementID: attempts[0].MovementID,
		ComputedAt: s.clk.Now().UTC(),
	}
	fold(&score, attempts, aggregation)

	if err := s.repo.SaveScore(ctx, score); err != nil {
		return nil, fmt.Errorf("failed to save score: %w", err)
	}

	log.Debug().
		Str("entry_id", entryID.String()).
		Float64("best", score.Best).
		Float64("total", score.Total).
		Msg("score recomputed")
	return &score, nil
}

// Rankings returns the movement's scores in rank order with ranks assigned.
// Ties share a rank; the next distinct value skips the shared positions
// (1, 2, 2, 4). Persisted ranks are refreshed as a side effect.
func (s *Service) Rankings(ctx context.Context, movementID uuid.UUID) ([]models.Score, error) {
	scores, err := s.repo.ListScoresForMovement(ctx, movementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	if len(scores) == 0 {
		return nil, nil
	}

	movement, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get movement: %w", err)
	}
	ascending := movement != nil && movement.Aggregation == models.AggregationTime

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			if ascending {
				return scores[i].Total < scores[j].Total
			}
			return scores[i].Total > scores[j].Total
		}
		// Equal totals: higher single best wins (lower for timed events).
		if ascending {
			return scores[i].Best < scores[j].Best
		}
		return scores[i].Best > scores[j].Best
	})

	for i := range scores {
		if i > 0 && scores[i].Total == scores[i-1].Total && scores[i].Best == scores[i-1].Best {
			scores[i].Rank = scores[i-1].Rank
		} else {
			scores[i].Rank = i + 1
		}
		if err := s.repo.SaveScore(ctx, scores[i]); err != nil {
			log.Error().
				Err(err).
				Str("entry_id", scores[i].EntryID.String()).
				Msg("failed to persist rank")
		}
	}
	return scores, nil
}

// fold aggregates finished attempts into best/total per mode. The measured
// value of a successful attempt is its actual weight when recorded, else
// the requested weight.
func fold(score *models.Score, attempts []models.Attempt, aggregation models.Aggregation) {
	first := true
	for _, a := range attempts {
		if a.Result != models.AttemptResultGoodLift {
			continue
		}
		value := a.RequestedWeight
		if a.ActualWeight != nil {
			value = *a.ActualWeight
		}
		switch aggregation {
		case models.AggregationSum:
			score.Total += value
			if value > score.Best {
				score.Best = value
			}
		case models.AggregationTime:
			if first || value < score.Best {
				score.Best = value
			}
			score.Total = score.Best
		default: // MAX
			if value > score.Best {
				score.Best = value
			}
			score.Total = score.Best
		}
		first = false
	}
}
