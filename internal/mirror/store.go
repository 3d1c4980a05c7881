package mirror

import (
	"context"
	"errors"
	"time"
)

// ErrColumnMissing is returned by Store.MaxTimestamp when the table lacks the column.
var ErrColumnMissing = errors.New("column does not exist")

// ErrRunInProgress is returned when another mirror run holds the run lock.
var ErrRunInProgress = errors.New("another mirror run is in progress")

// Row is one table row keyed by column name.
type Row map[string]any

// ID returns the row's primary key value.
func (r Row) ID() any {
	return r["id"]
}

// Column describes one column as reported by information_schema.columns.
type Column struct {
	Name             string
	DataType         string
	CharMaxLength    *int32
	NumericPrecision *int32
	NumericScale     *int32
	Nullable         bool
	Default          *string
}

// ConflictMode selects the ON CONFLICT (id) behaviour of an upsert.
type ConflictMode int

const (
	// ConflictUpdate overwrites every column of an existing row.
	ConflictUpdate ConflictMode = iota
	// ConflictNothing leaves an existing row untouched.
	ConflictNothing
)

func (m ConflictMode) String() string {
	if m == ConflictNothing {
		return "DO NOTHING"
	}
	return "DO UPDATE"
}

// Store is one side of a mirror run.
type Store interface {
	// Name labels the store in logs and reports ("local", "remote").
	Name() string
	Count(ctx context.Context, table string) (int64, error)
	// Columns returns the table's columns in ordinal order; empty when the table is missing.
	Columns(ctx context.Context, table string) ([]Column, error)
	// Rows returns up to limit rows ordered by id, starting after the given id (nil for the first page).
	Rows(ctx context.Context, table string, after any, limit int) ([]Row, error)
	// MaxTimestamp returns max(column), nil for an empty table, or ErrColumnMissing.
	MaxTimestamp(ctx context.Context, table, column string) (*time.Time, error)
	// Checksum digests the full id-ordered content of the table.
	Checksum(ctx context.Context, table string) (string, error)
	ExecDDL(ctx context.Context, stmt string) error
	// Write runs fn inside one transaction; any error from fn rolls everything back.
	Write(ctx context.Context, table string, fn func(Writer) error) error
}

// Writer mutates a single table inside a Store.Write transaction.
type Writer interface {
	DeleteAll(ctx context.Context) (int64, error)
	// Upsert writes one row. A failure affects only that row; the transaction stays usable.
	Upsert(ctx context.Context, columns []string, row Row, mode ConflictMode) (int64, error)
	// ResetSequence moves the id sequence past the highest id so later
	// inserts that rely on the column default do not collide with copied rows.
	ResetSequence(ctx context.Context) error
}

// Locker guards a mirror run against concurrent runs.
type Locker interface {
	TryLock(ctx context.Context, key int64) (release func(), err error)
}
