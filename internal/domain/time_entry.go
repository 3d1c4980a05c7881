package domain

import (
	"errors"
	"time"
)

var (
	// ErrEntryNotFound is returned when a time entry does not exist or belongs to another user.
	ErrEntryNotFound = errors.New("time entry not found")
	// ErrEntryNotRunning is returned when stopping an entry that is already stopped.
	ErrEntryNotRunning = errors.New("time entry is not running")
)

// TimeEntry is one tracked span of work. At most one entry per user is running.
type TimeEntry struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	ProjectID       *int64     `json:"project_id"`
	TaskID          *int64     `json:"task_id"`
	Description     string     `json:"description"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationSeconds *int64     `json:"duration_seconds"`
	IsRunning       bool       `json:"is_running"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewTimeEntry creates a running entry started at now.
func NewTimeEntry(userID int64, description string, projectID, taskID *int64, now time.Time) TimeEntry {
	return TimeEntry{
		UserID:      userID,
		ProjectID:   projectID,
		TaskID:      taskID,
		Description: description,
		StartTime:   now,
		IsRunning:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Elapsed returns the whole seconds between start and now, or between start
// and end for a stopped entry. It is never negative.
func (e TimeEntry) Elapsed(now time.Time) time.Duration {
	end := now
	if !e.IsRunning && e.EndTime != nil {
		end = *e.EndTime
	}
	d := end.Sub(e.StartTime).Truncate(time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// Stopped returns a copy of the entry stopped at now.
func (e TimeEntry) Stopped(now time.Time) TimeEntry {
	duration := int64(e.Elapsed(now) / time.Second)
	stopped := e
	stopped.EndTime = &now
	stopped.DurationSeconds = &duration
	stopped.IsRunning = false
	stopped.UpdatedAt = now
	return stopped
}

// FindRunning returns the running entry in entries, if any.
func FindRunning(entries []TimeEntry) (TimeEntry, bool) {
	for _, e := range entries {
		if e.IsRunning {
			return e, true
		}
	}
	return TimeEntry{}, false
}
