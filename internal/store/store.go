package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/liftline/liftline/internal/models"
)

// DB defines what the store needs from the database layer. *pgxpool.Pool
// satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements competition data access over Postgres. Lookups that
// find nothing return (nil, nil); callers own the not-found semantics.
type Store struct {
	db DB
}

// NewStore creates a new store over the database handle.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// AttemptStatusUpdate carries the persisted side of a lifecycle transition.
type AttemptStatusUpdate struct {
	Status      models.AttemptStatus
	Result      models.AttemptResult
	StartedAt   *time.Time
	CompletedAt *time.Time
}

const attemptColumns = `a.id, a.competition_id, a.movement_id, a.flight_id, a.athlete_id, a.entry_id,
	a.attempt_number, a.requested_weight, a.actual_weight, a.result, a.status,
	f.flight_order, a.lifting_order, a.started_at, a.completed_at, a.created_at, a.updated_at`

const attemptFrom = ` FROM attempts a JOIN flights f ON f.id = a.flight_id `

// GetAttempt retrieves one attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	row := s.db.QueryRow(ctx, `SELECT `+attemptColumns+attemptFrom+`WHERE a.id = $1`, id)
	att, err := scanAttempt(row)
	if err != nil {
		return nil, wrap("get attempt", err)
	}
	return att, nil
}

// GetInProgressAttempt retrieves the single in-progress attempt for the
// competition, optionally narrowed to one movement.
func (s *Store) GetInProgressAttempt(ctx context.Context, competitionID uuid.UUID, movementID *uuid.UUID) (*models.Attempt, error) {
	row := s.db.QueryRow(ctx, `SELECT `+attemptColumns+attemptFrom+`
		WHERE a.competition_id = $1
		  AND a.status = $2
		  AND ($3::uuid IS NULL OR a.movement_id = $3)
		LIMIT 1`,
		competitionID, models.AttemptStatusInProgress, movementID)
	att, err := scanAttempt(row)
	if err != nil {
		return nil, wrap("get in-progress attempt", err)
	}
	return att, nil
}

// ListWaitingAttempts retrieves all waiting attempts for the competition,
// optionally narrowed to one movement. Order is unspecified; the queue
// engine owns the canonical sort.
func (s *Store) ListWaitingAttempts(ctx context.Context, competitionID uuid.UUID, movementID *uuid.UUID) ([]models.Attempt, error) {
	rows, err := s.db.Query(ctx, `SELECT `+attemptColumns+attemptFrom+`
		WHERE a.competition_id = $1
		  AND a.status = $2
		  AND ($3::uuid IS NULL OR a.movement_id = $3)`,
		competitionID, models.AttemptStatusWaiting, movementID)
	if err != nil {
		return nil, wrap("list waiting attempts", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, wrap("scan waiting attempt", err)
		}
		attempts = append(attempts, *att)
	}
	return attempts, wrap("list waiting attempts", rows.Err())
}

// ListFinishedAttemptsForEntry retrieves the entry's finished attempts for
// score recomputation.
func (s *Store) ListFinishedAttemptsForEntry(ctx context.Context, entryID uuid.UUID) ([]models.Attempt, error) {
	rows, err := s.db.Query(ctx, `SELECT `+attemptColumns+attemptFrom+`
		WHERE a.entry_id = $1 AND a.status = $2
		ORDER BY a.attempt_number`,
		entryID, models.AttemptStatusFinished)
	if err != nil {
		return nil, wrap("list finished attempts", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, wrap("scan finished attempt", err)
		}
		attempts = append(attempts, *att)
	}
	return attempts, wrap("list finished attempts", rows.Err())
}

// CountFinishedInFlight counts the flight's finished attempts.
func (s *Store) CountFinishedInFlight(ctx context.Context, flightID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE flight_id = $1 AND status = $2`,
		flightID, models.AttemptStatusFinished).Scan(&n)
	if err != nil {
		return 0, wrap("count finished in flight", err)
	}
	return n, nil
}

// UpdateAttemptStatus applies a lifecycle transition. Returning an attempt
// to waiting clears its timestamps and result; finishing stamps the
// completion time.
func (s *Store) UpdateAttemptStatus(ctx context.Context, id uuid.UUID, update AttemptStatusUpdate) error {
	tag, err := s.db.Exec(ctx, `UPDATE attempts
		SET status = $2,
		    result = NULLIF($3, ''),
		    started_at = CASE WHEN $2 = 'WAITING' THEN NULL ELSE COALESCE($4, started_at) END,
		    completed_at = CASE WHEN $2 = 'FINISHED' THEN COALESCE($5, completed_at) ELSE NULL END,
		    updated_at = now()
		WHERE id = $1`,
		id, update.Status, string(update.Result), update.StartedAt, update.CompletedAt)
	if err != nil {
		return wrap("update attempt status", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update attempt status", pgx.ErrNoRows)
	}
	return nil
}

// UpdateRequestedWeight changes the attempt's requested weight.
func (s *Store) UpdateRequestedWeight(ctx context.Context, id uuid.UUID, weight float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE attempts SET requested_weight = $2, updated_at = now() WHERE id = $1`,
		id, weight)
	if err != nil {
		return wrap("update requested weight", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update requested weight", pgx.ErrNoRows)
	}
	return nil
}

// RecordRefereeDecision upserts one referee's vote; a re-vote by the same
// referee replaces the earlier row.
func (s *Store) RecordRefereeDecision(ctx context.Context, decision models.RefereeDecision) error {
	_, err := s.db.Exec(ctx, `INSERT INTO referee_decisions
		(attempt_id, referee_id, seat, decision, card, decided_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (attempt_id, referee_id)
		DO UPDATE SET seat = EXCLUDED.seat,
		              decision = EXCLUDED.decision,
		              card = EXCLUDED.card,
		              decided_at = EXCLUDED.decided_at`,
		decision.AttemptID, decision.RefereeID, decision.Seat,
		string(decision.Decision), decision.Card, decision.DecidedAt)
	return wrap("record referee decision", err)
}

// ListRefereeDecisions retrieves the recorded votes for one attempt.
func (s *Store) ListRefereeDecisions(ctx context.Context, attemptID uuid.UUID) ([]models.RefereeDecision, error) {
	rows, err := s.db.Query(ctx, `SELECT attempt_id, referee_id, seat, decision, card, decided_at
		FROM referee_decisions WHERE attempt_id = $1 ORDER BY decided_at`, attemptID)
	if err != nil {
		return nil, wrap("list referee decisions", err)
	}
	defer rows.Close()

	var decisions []models.RefereeDecision
	for rows.Next() {
		var d models.RefereeDecision
		var seat, card *string
		if err := rows.Scan(&d.AttemptID, &d.RefereeID, &seat, &d.Decision, &card, &d.DecidedAt); err != nil {
			return nil, wrap("scan referee decision", err)
		}
		if seat != nil {
			d.Seat = *seat
		}
		if card != nil {
			d.Card = *card
		}
		decisions = append(decisions, d)
	}
	return decisions, wrap("list referee decisions", rows.Err())
}

// GetFlight retrieves one flight by ID.
func (s *Store) GetFlight(ctx context.Context, id uuid.UUID) (*models.Flight, error) {
	row := s.db.QueryRow(ctx, `SELECT id, competition_id, movement_id, name, flight_order, is_active, created_at
		FROM flights WHERE id = $1`, id)
	flight, err := scanFlight(row)
	if err != nil {
		return nil, wrap("get flight", err)
	}
	return flight, nil
}

// NextFlight retrieves the flight that follows the given one within the
// same movement, or nil for the movement's last flight.
func (s *Store) NextFlight(ctx context.Context, flightID uuid.UUID) (*models.Flight, error) {
	row := s.db.QueryRow(ctx, `SELECT n.id, n.competition_id, n.movement_id, n.name, n.flight_order, n.is_active, n.created_at
		FROM flights cur
		JOIN flights n ON n.movement_id = cur.movement_id AND n.flight_order > cur.flight_order
		WHERE cur.id = $1
		ORDER BY n.flight_order
		LIMIT 1`, flightID)
	flight, err := scanFlight(row)
	if err != nil {
		return nil, wrap("next flight", err)
	}
	return flight, nil
}

// GetMovement retrieves one movement by ID.
func (s *Store) GetMovement(ctx context.Context, id uuid.UUID) (*models.Movement, error) {
	row := s.db.QueryRow(ctx, `SELECT id, competition_id, name, movement_order, aggregation, time_limit_seconds, created_at
		FROM movements WHERE id = $1`, id)

	var m models.Movement
	var limitSeconds int64
	err := row.Scan(&m.ID, &m.CompetitionID, &m.Name, &m.Order, &m.Aggregation, &limitSeconds, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get movement", err)
	}
	m.TimeLimit = time.Duration(limitSeconds) * time.Second
	return &m, nil
}

// SaveScore upserts the derived score for an entry.
func (s *Store) SaveScore(ctx context.Context, score models.Score) error {
	_, err := s.db.Exec(ctx, `INSERT INTO scores
		(entry_id, athlete_id, movement_id, best, total, rank, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entry_id)
		DO UPDATE SET best = EXCLUDED.best,
		              total = EXCLUDED.total,
		              rank = EXCLUDED.rank,
		              computed_at = EXCLUDED.computed_at`,
		score.EntryID, score.AthleteID, score.MovementID,
		score.Best, score.Total, score.Rank, score.ComputedAt)
	return wrap("save score", err)
}

// ListScoresForMovement retrieves every entry's score for the movement.
func (s *Store) ListScoresForMovement(ctx context.Context, movementID uuid.UUID) ([]models.Score, error) {
	rows, err := s.db.Query(ctx, `SELECT entry_id, athlete_id, movement_id, best, total, rank, computed_at
		FROM scores WHERE movement_id = $1`, movementID)
	if err != nil {
		return nil, wrap("list scores", err)
	}
	defer rows.Close()

	var scores []models.Score
	for rows.Next() {
		var sc models.Score
		if err := rows.Scan(&sc.EntryID, &sc.AthleteID, &sc.MovementID, &sc.Best, &sc.Total, &sc.Rank, &sc.ComputedAt); err != nil {
			return nil, wrap("scan score", err)
		}
		scores = append(scores, sc)
	}
	return scores, wrap("list scores", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*models.Attempt, error) {
	var a models.Attempt
	var result *string
	err := row.Scan(
		&a.ID, &a.CompetitionID, &a.MovementID, &a.FlightID, &a.AthleteID, &a.EntryID,
		&a.Number, &a.RequestedWeight, &a.ActualWeight, &result, &a.Status,
		&a.FlightOrder, &a.LiftingOrder, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		a.Result = models.AttemptResult(*result)
	}
	return &a, nil
}

func scanFlight(row rowScanner) (*models.Flight, error) {
	var f models.Flight
	err := row.Scan(&f.ID, &f.CompetitionID, &f.MovementID, &f.Name, &f.Order, &f.IsActive, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
