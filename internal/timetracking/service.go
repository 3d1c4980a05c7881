package timetracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ahmedmhosni/roastify/internal/domain"
	"github.com/ahmedmhosni/roastify/internal/logger"
	"github.com/ahmedmhosni/roastify/internal/repository"
)

const maxDescriptionLength = 500

// StartRequest is the body of POST /time-tracking/start.
type StartRequest struct {
	Description string `json:"description"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	TaskID      *int64 `json:"task_id,omitempty"`
}

// Service implements the time-tracking operations on top of a repository.
type Service struct {
	repo      repository.TimeEntryRepository
	now       func() time.Time
	listLimit int
	log       logger.Logger
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithListLimit caps how many entries List returns.
func WithListLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs a time-tracking service.
func NewService(repo repository.TimeEntryRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		now:       time.Now,
		listLimit: 200,
		log:       logger.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the user's entries, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]domain.TimeEntry, error) {
	entries, err := s.repo.ListByUser(ctx, userID, s.listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list time entries: %w", err)
	}
	return entries, nil
}

// Start starts a new running entry, stopping the user's current one first.
func (s *Service) Start(ctx context.Context, userID int64, req StartRequest) (domain.TimeEntry, error) {
	description := strings.TrimSpace(req.Description)
	if len(description) > maxDescriptionLength {
		return domain.TimeEntry{}, fmt.Errorf("%w: description longer than %d characters", ErrInvalidRequest, maxDescriptionLength)
	}
	if req.ProjectID != nil && *req.ProjectID <= 0 {
		return domain.TimeEntry{}, fmt.Errorf("%w: project_id must be positive", ErrInvalidRequest)
	}
	if req.TaskID != nil && *req.TaskID <= 0 {
		return domain.TimeEntry{}, fmt.Errorf("%w: task_id must be positive", ErrInvalidRequest)
	}

	entry := domain.NewTimeEntry(userID, description, req.ProjectID, req.TaskID, s.now().UTC())
	created, err := s.repo.Start(ctx, entry)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("failed to start time entry: %w", err)
	}
	s.log.Info("user %d started time entry %d", userID, created.ID)
	return created, nil
}

// Stop stops a running entry owned by the user.
func (s *Service) Stop(ctx context.Context, userID, entryID int64) (domain.TimeEntry, error) {
	stopped, err := s.repo.Stop(ctx, userID, entryID, s.now().UTC())
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("failed to stop time entry %d: %w", entryID, err)
	}
	s.log.Info("user %d stopped time entry %d", userID, entryID)
	return stopped, nil
}
