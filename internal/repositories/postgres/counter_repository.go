package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
	"github.com/hanko-field/commerce/internal/repositories"
)

// CounterRepository implements repositories.CounterRepository with single-statement upserts.
// Counters always run on the pool, outside any caller transaction, so they behave like
// sequences: a rolled back caller leaves a gap instead of holding the counter row locked.
type CounterRepository struct {
	db *ppostgres.Provider
}

// NewCounterRepository constructs a Postgres-backed counter repository.
func NewCounterRepository(db *ppostgres.Provider) *CounterRepository {
	return &CounterRepository{db: db}
}

// Next atomically increments the counter identified by counterID and returns the new value.
// A step <= 0 reuses the stored step.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	pool := r.db.Pool()
	var value int64
	err := pool.QueryRow(ctx,
		`INSERT INTO counters AS c (id, current_value, step, updated_at)
		 VALUES ($1, GREATEST($2::bigint, 1), GREATEST($2::bigint, 1), now())
		 ON CONFLICT (id) DO UPDATE
		 SET current_value = c.current_value + CASE WHEN $2::bigint > 0 THEN $2::bigint ELSE GREATEST(c.step, 1) END,
		     step = CASE WHEN $2::bigint > 0 THEN $2::bigint ELSE c.step END,
		     updated_at = now()
		 WHERE c.max_value IS NULL
		    OR c.current_value + CASE WHEN $2::bigint > 0 THEN $2::bigint ELSE GREATEST(c.step, 1) END <= c.max_value
		 RETURNING current_value`,
		id, step).Scan(&value)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, ppostgres.WrapError("counters.next", err)
	}

	var maxValue int64
	if err := pool.QueryRow(ctx, `SELECT COALESCE(max_value, 0) FROM counters WHERE id = $1`, id).Scan(&maxValue); err != nil {
		return 0, ppostgres.WrapError("counters.next", err)
	}
	return 0, repositories.NewCounterExhaustedError(id, maxValue)
}

// Configure updates optional settings for the counter such as step size, max value, or initial value.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO counters AS c (id, current_value, step, max_value, updated_at)
		 VALUES ($1, COALESCE($2::bigint, 0), GREATEST($3::bigint, 1), $4::bigint, now())
		 ON CONFLICT (id) DO UPDATE
		 SET current_value = COALESCE($2::bigint, c.current_value),
		     step = CASE WHEN $3::bigint > 0 THEN $3::bigint ELSE c.step END,
		     max_value = COALESCE($4::bigint, c.max_value),
		     updated_at = now()`,
		id, cfg.InitialValue, cfg.Step, cfg.MaxValue)
	return ppostgres.WrapError("counters.configure", err)
}
