package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmedmhosni/roastify/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PostgresStore implements Store against a pgx connection pool.
type PostgresStore struct {
	name string
	conn *db.Connection
}

// NewPostgresStore wraps an open connection under the given label.
func NewPostgresStore(name string, conn *db.Connection) *PostgresStore {
	return &PostgresStore{name: name, conn: conn}
}

func (s *PostgresStore) Name() string {
	return s.name
}

func (s *PostgresStore) Count(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := s.conn.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s.%s: %w", s.name, table, err)
	}
	return count, nil
}

func (s *PostgresStore) Columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.conn.Pool.Query(
		ctx,
		`SELECT column_name, data_type, character_maximum_length, numeric_precision,
		        numeric_scale, is_nullable, column_default
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s.%s: %w", s.name, table, err)
	}
	defer rows.Close()

	columns := []Column{}
	for rows.Next() {
		var (
			col       Column
			charLen   pgtype.Int4
			precision pgtype.Int4
			scale     pgtype.Int4
			nullable  string
			def       pgtype.Text
		)
		if scanErr := rows.Scan(&col.Name, &col.DataType, &charLen, &precision, &scale, &nullable, &def); scanErr != nil {
			return nil, fmt.Errorf("failed to scan column of %s.%s: %w", s.name, table, scanErr)
		}
		col.Nullable = nullable == "YES"
		col.CharMaxLength = int4Ptr(charLen)
		col.NumericPrecision = int4Ptr(precision)
		col.NumericScale = int4Ptr(scale)
		if def.Valid {
			value := def.String
			col.Default = &value
		}
		columns = append(columns, col)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate columns of %s.%s: %w", s.name, table, rowsErr)
	}
	return columns, nil
}

func int4Ptr(v pgtype.Int4) *int32 {
	if !v.Valid {
		return nil
	}
	value := v.Int32
	return &value
}

func (s *PostgresStore) Rows(ctx context.Context, table string, after any, limit int) ([]Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY id LIMIT $1", quoteIdent(table))
	args := []any{limit}
	if after != nil {
		query = fmt.Sprintf("SELECT * FROM %s WHERE id > $1 ORDER BY id LIMIT $2", quoteIdent(table))
		args = []any{after, limit}
	}

	rows, err := s.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows of %s.%s: %w", s.name, table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows of %s.%s: %w", s.name, table, err)
	}

	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

func (s *PostgresStore) MaxTimestamp(ctx context.Context, table, column string) (*time.Time, error) {
	columns, err := s.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	found := false
	for _, c := range columns {
		if c.Name == column {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%s.%s.%s: %w", s.name, table, column, ErrColumnMissing)
	}

	var ts *time.Time
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", quoteIdent(column), quoteIdent(table))
	if err := s.conn.Pool.QueryRow(ctx, query).Scan(&ts); err != nil {
		return nil, fmt.Errorf("failed to read max(%s) of %s.%s: %w", column, s.name, table, err)
	}
	return ts, nil
}

func (s *PostgresStore) Checksum(ctx context.Context, table string) (string, error) {
	query := fmt.Sprintf(
		"SELECT md5(COALESCE(string_agg(t::text, ',' ORDER BY t.id), '')) FROM %s AS t",
		quoteIdent(table),
	)
	var sum string
	if err := s.conn.Pool.QueryRow(ctx, query).Scan(&sum); err != nil {
		return "", fmt.Errorf("failed to checksum %s.%s: %w", s.name, table, err)
	}
	return sum, nil
}

func (s *PostgresStore) ExecDDL(ctx context.Context, stmt string) error {
	if _, err := s.conn.Pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute ddl on %s: %w", s.name, err)
	}
	return nil
}

func (s *PostgresStore) Write(ctx context.Context, table string, fn func(Writer) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgWriter{tx: tx, table: table})
	})
}

// TryLock takes a session-level advisory lock on a dedicated connection.
func (s *PostgresStore) TryLock(ctx context.Context, key int64) (func(), error) {
	conn, err := s.conn.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection on %s: %w", s.name, err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take advisory lock on %s: %w", s.name, err)
	}
	if !locked {
		conn.Release()
		return nil, ErrRunInProgress
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", key)
		conn.Release()
	}, nil
}

type pgWriter struct {
	tx    pgx.Tx
	table string
}

func (w *pgWriter) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := w.tx.Exec(ctx, "DELETE FROM "+quoteIdent(w.table))
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", w.table, err)
	}
	return tag.RowsAffected(), nil
}

// Upsert runs inside a savepoint so a rejected row does not abort the transaction.
func (w *pgWriter) Upsert(ctx context.Context, columns []string, row Row, mode ConflictMode) (int64, error) {
	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = row[c]
	}

	sp, err := w.tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to open savepoint: %w", err)
	}
	tag, err := sp.Exec(ctx, UpsertSQL(w.table, columns, mode), args...)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return 0, fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		return 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetSequence runs in a savepoint; a failure leaves the copied rows in place.
func (w *pgWriter) ResetSequence(ctx context.Context) error {
	sp, err := w.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}
	query := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence($1, 'id'), COALESCE(MAX(id), 1), MAX(id) IS NOT NULL) FROM %s",
		quoteIdent(w.table),
	)
	if _, err := sp.Exec(ctx, query, quoteIdent(w.table)); err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("failed to reset id sequence of %s: %w", w.table, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
