package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ahmedmhosni/roastify/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UserRepository defines the interface for user account operations
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	// Upsert inserts the user or, when the email exists, replaces its name, password hash and role.
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
}

// TimeEntryRepository defines the interface for time entry operations
type TimeEntryRepository interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.TimeEntry, error)
	// Start stops any running entry of entry.UserID at entry.StartTime and inserts entry, atomically.
	Start(ctx context.Context, entry domain.TimeEntry) (domain.TimeEntry, error)
	// Stop stops a running entry owned by userID.
	Stop(ctx context.Context, userID, entryID int64, now time.Time) (domain.TimeEntry, error)
}

// MirrorRunRepository stores mirror run summaries.
type MirrorRunRepository interface {
	Record(ctx context.Context, run domain.MirrorRun) error
	List(ctx context.Context, limit int) ([]domain.MirrorRun, error)
}
