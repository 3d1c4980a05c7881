package repository

import (
	"context"
	"fmt"

	"github.com/ahmedmhosni/roastify/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type mirrorRunRepository struct {
	pool *pgxpool.Pool
}

// NewMirrorRunRepository wires a repository backed by pgxpool.
func NewMirrorRunRepository(pool *pgxpool.Pool) MirrorRunRepository {
	return &mirrorRunRepository{pool: pool}
}

func (r *mirrorRunRepository) Record(ctx context.Context, run domain.MirrorRun) error {
	if r.pool == nil {
		return fmt.Errorf("mirror run repository not initialized")
	}

	var report any
	if len(run.Report) > 0 {
		report = []byte(run.Report)
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO mirror_runs (id, started_at, finished_at, strategy, dry_run, tables_checked,
		                          tables_synced, rows_written, row_failures, match_percentage, report)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Strategy,
		run.DryRun,
		run.TablesChecked,
		run.TablesSynced,
		run.RowsWritten,
		run.RowFailures,
		run.MatchPercentage,
		report,
	)
	if err != nil {
		return fmt.Errorf("failed to record mirror run: %w", err)
	}
	return nil
}

func (r *mirrorRunRepository) List(ctx context.Context, limit int) ([]domain.MirrorRun, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("mirror run repository not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, started_at, finished_at, strategy, dry_run, tables_checked,
		        tables_synced, rows_written, row_failures, match_percentage::float8
		 FROM mirror_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.MirrorRun{}
	for rows.Next() {
		var run domain.MirrorRun
		if scanErr := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Strategy,
			&run.DryRun,
			&run.TablesChecked,
			&run.TablesSynced,
			&run.RowsWritten,
			&run.RowFailures,
			&run.MatchPercentage,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan mirror run: %w", scanErr)
		}
		runs = append(runs, run)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate mirror runs: %w", rowsErr)
	}
	return runs, nil
}
