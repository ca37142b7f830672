package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// DBTX покрывает часть pgxpool.Pool, нужную адаптеру.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres хранит журнал плановых запусков и статусы пачек.
type Postgres struct {
	db      DBTX
	timeout time.Duration
}

var (
	_ domain.RunLedger          = (*Postgres)(nil)
	_ domain.BatchJobStatusRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db, timeout: 5 * time.Second}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Acquire регистрирует запуск окна режима. Если окно уже взято, возвращает
// имя узла-владельца.
func (p *Postgres) Acquire(ctx context.Context, window domain.TimeWindow, mode domain.Mode, node string) (bool, string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var owner string
	start := time.Now()
	err := p.db.QueryRow(ctx, `
INSERT INTO digest_runs (window_from, window_to, mode, node, created_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (window_from, window_to, mode) DO NOTHING
RETURNING node
`, window.From.UTC(), window.To.UTC(), string(mode), node).Scan(&owner)
	metrics.ObserveNetworkRequest("postgres", "digest_runs_insert", "digest_runs", start, ignoreNoRows(err))
	if err == nil {
		return true, owner, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, "", fmt.Errorf("insert digest run: %w", err)
	}

	start = time.Now()
	err = p.db.QueryRow(ctx, `
SELECT node FROM digest_runs
WHERE window_from = $1 AND window_to = $2 AND mode = $3
`, window.From.UTC(), window.To.UTC(), string(mode)).Scan(&owner)
	metrics.ObserveNetworkRequest("postgres", "digest_runs_owner", "digest_runs", start, err)
	if err != nil {
		return false, "", fmt.Errorf("select digest run owner: %w", err)
	}
	return false, owner, nil
}

// Prune удаляет записи журнала, созданные раньше before.
func (p *Postgres) Prune(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.db.Exec(ctx, `DELETE FROM digest_runs WHERE created_at < $1`, before.UTC())
	metrics.ObserveNetworkRequest("postgres", "digest_runs_prune", "digest_runs", start, err)
	if err != nil {
		return 0, fmt.Errorf("prune digest runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EnsureBatchJob регистрирует попытку обработки пачки.
func (p *Postgres) EnsureBatchJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		done     sql.NullTime
		attempts int
	)
	start := time.Now()
	err := p.db.QueryRow(ctx, `
INSERT INTO digest_batch_jobs (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = digest_batch_jobs.attempts + 1,
        updated_at = now()
RETURNING done_at, attempts
`, jobID).Scan(&done, &attempts)
	metrics.ObserveNetworkRequest("postgres", "digest_batch_jobs_upsert", "digest_batch_jobs", start, err)
	if err != nil {
		return false, 0, err
	}
	return done.Valid, attempts, nil
}

// MarkBatchJobDone помечает пачку обработанной.
func (p *Postgres) MarkBatchJobDone(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.db.Exec(ctx, `
UPDATE digest_batch_jobs
SET done_at = COALESCE(done_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "digest_batch_jobs_mark_done", "digest_batch_jobs", start, err)
	return err
}

// PruneBatchJobs удаляет статусы пачек, не обновлявшиеся с before.
func (p *Postgres) PruneBatchJobs(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.db.Exec(ctx, `DELETE FROM digest_batch_jobs WHERE updated_at < $1`, before.UTC())
	metrics.ObserveNetworkRequest("postgres", "digest_batch_jobs_prune", "digest_batch_jobs", start, err)
	if err != nil {
		return 0, fmt.Errorf("prune digest batch jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
