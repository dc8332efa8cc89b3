package reindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
)

type Repository interface {
	Save(ctx context.Context, run *Run) error
	List(ctx context.Context, limit int) ([]Run, error)
	Latest(ctx context.Context) (*Run, error)
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, run *Run) error {
	query := `INSERT INTO index_runs (id, trigger, success, total_indexed, total_skipped, total_errors, execution_time_ms, started_at, finished_at, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Trigger, run.Success, run.TotalIndexed, run.TotalSkipped, run.TotalErrors,
		run.ExecutionTimeMs, run.StartedAt, run.FinishedAt, string(run.Report))
	return err
}

// List returns run summaries, newest first. The report body is omitted.
func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, trigger, success, total_indexed, total_skipped, total_errors, execution_time_ms, started_at, finished_at
		FROM index_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Trigger, &run.Success, &run.TotalIndexed, &run.TotalSkipped,
			&run.TotalErrors, &run.ExecutionTimeMs, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Latest returns the most recent run with its full report, or sql.ErrNoRows.
func (r *PostgresRepo) Latest(ctx context.Context) (*Run, error) {
	query := `SELECT id, trigger, success, total_indexed, total_skipped, total_errors, execution_time_ms, started_at, finished_at, report
		FROM index_runs ORDER BY started_at DESC LIMIT 1`
	run := &Run{}
	var report []byte
	err := r.db.QueryRowContext(ctx, query).Scan(&run.ID, &run.Trigger, &run.Success, &run.TotalIndexed,
		&run.TotalSkipped, &run.TotalErrors, &run.ExecutionTimeMs, &run.StartedAt, &run.FinishedAt, &report)
	if err != nil {
		return nil, err
	}
	run.Report = json.RawMessage(report)
	return run, nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_runs`).Scan(&count)
	return count, err
}

// MemoryRepo keeps the most recent runs in process. Used when no database is configured.
type MemoryRepo struct {
	mu   sync.RWMutex
	runs []Run
	max  int
}

func NewMemoryRepo(max int) *MemoryRepo {
	if max <= 0 {
		max = maxRunLimit
	}
	return &MemoryRepo{max: max}
}

func (r *MemoryRepo) Save(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append([]Run{*run}, r.runs...)
	if len(r.runs) > r.max {
		r.runs = r.runs[:r.max]
	}
	return nil
}

func (r *MemoryRepo) List(_ context.Context, limit int) ([]Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit > len(r.runs) {
		limit = len(r.runs)
	}
	out := make([]Run, limit)
	for i := range out {
		out[i] = r.runs[i]
		out[i].Report = nil
	}
	return out, nil
}

func (r *MemoryRepo) Latest(_ context.Context) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.runs) == 0 {
		return nil, sql.ErrNoRows
	}
	run := r.runs[0]
	return &run, nil
}

func (r *MemoryRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs), nil
}
