package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmedmhosni/roastify/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const timeEntryColumns = `id, user_id, project_id, task_id, description, start_time, end_time,
	duration_seconds, is_running, created_at, updated_at`

type timeEntryRepository struct {
	pool *pgxpool.Pool
}

// NewTimeEntryRepository wires a repository backed by pgxpool.
func NewTimeEntryRepository(pool *pgxpool.Pool) TimeEntryRepository {
	return &timeEntryRepository{pool: pool}
}

func (r *timeEntryRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.TimeEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("time entry repository not initialized")
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+timeEntryColumns+`
		 FROM time_entries
		 WHERE user_id = $1
		 ORDER BY start_time DESC, id DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list time entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.TimeEntry{}
	for rows.Next() {
		entry, scanErr := scanTimeEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate time entries: %w", rowsErr)
	}
	return entries, nil
}

func (r *timeEntryRepository) Start(ctx context.Context, entry domain.TimeEntry) (domain.TimeEntry, error) {
	if r.pool == nil {
		return domain.TimeEntry{}, fmt.Errorf("time entry repository not initialized")
	}

	var created domain.TimeEntry
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			`UPDATE time_entries
			 SET end_time = $2::timestamptz,
			     duration_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - start_time))))::bigint,
			     is_running = false,
			     updated_at = $2
			 WHERE user_id = $1 AND is_running`,
			entry.UserID,
			entry.StartTime,
		); err != nil {
			return fmt.Errorf("failed to stop running entry: %w", err)
		}

		row := tx.QueryRow(
			ctx,
			`INSERT INTO time_entries (user_id, project_id, task_id, description, start_time, is_running, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, true, $5, $5)
			 RETURNING `+timeEntryColumns,
			entry.UserID,
			entry.ProjectID,
			entry.TaskID,
			entry.Description,
			entry.StartTime,
		)
		var err error
		created, err = scanTimeEntry(row)
		if err != nil {
			return fmt.Errorf("failed to insert time entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return created, nil
}

func (r *timeEntryRepository) Stop(ctx context.Context, userID, entryID int64, now time.Time) (domain.TimeEntry, error) {
	if r.pool == nil {
		return domain.TimeEntry{}, fmt.Errorf("time entry repository not initialized")
	}

	var stopped domain.TimeEntry
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var running bool
		err := tx.QueryRow(
			ctx,
			`SELECT is_running FROM time_entries WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			entryID,
			userID,
		).Scan(&running)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load time entry: %w", err)
		}
		if !running {
			return domain.ErrEntryNotRunning
		}

		row := tx.QueryRow(
			ctx,
			`UPDATE time_entries
			 SET end_time = $3::timestamptz,
			     duration_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($3::timestamptz - start_time))))::bigint,
			     is_running = false,
			     updated_at = $3
			 WHERE id = $1 AND user_id = $2
			 RETURNING `+timeEntryColumns,
			entryID,
			userID,
			now,
		)
		stopped, err = scanTimeEntry(row)
		if err != nil {
			return fmt.Errorf("failed to stop time entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return stopped, nil
}

func scanTimeEntry(row pgx.Row) (domain.TimeEntry, error) {
	var (
		entry     domain.TimeEntry
		projectID pgtype.Int8
		taskID    pgtype.Int8
		endTime   pgtype.Timestamptz
		duration  pgtype.Int8
	)
	if err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&projectID,
		&taskID,
		&entry.Description,
		&entry.StartTime,
		&endTime,
		&duration,
		&entry.IsRunning,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return domain.TimeEntry{}, err
	}

	entry.ProjectID = int8Ptr(projectID)
	entry.TaskID = int8Ptr(taskID)
	entry.DurationSeconds = int8Ptr(duration)
	if endTime.Valid {
		value := endTime.Time
		entry.EndTime = &value
	}
	return entry, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}
