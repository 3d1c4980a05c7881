package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahmedmhosni/roastify/internal/domain"
	"github.com/ahmedmhosni/roastify/internal/logger"
)

const (
	DefaultTickInterval = time.Second
	DefaultPollInterval = 5 * time.Second
)

// ErrNoRunningEntry is returned by Stop when no entry is running.
var ErrNoRunningEntry = errors.New("no running time entry")

// State is what the widget displays.
type State struct {
	Running bool
	Entry   domain.TimeEntry
	Elapsed time.Duration
}

// Widget tracks the running time entry. Elapsed time advances on a local
// tick; the entry itself is refreshed from the server on every poll.
type Widget struct {
	api          API
	now          func() time.Time
	tickInterval time.Duration
	pollInterval time.Duration
	onChange     func(State)
	log          logger.Logger

	mu      sync.Mutex
	entry   *domain.TimeEntry
	elapsed time.Duration
}

// Option configures a Widget.
type Option func(*Widget)

func WithClock(now func() time.Time) Option {
	return func(w *Widget) {
		if now != nil {
			w.now = now
		}
	}
}

func WithIntervals(tick, poll time.Duration) Option {
	return func(w *Widget) {
		if tick > 0 {
			w.tickInterval = tick
		}
		if poll > 0 {
			w.pollInterval = poll
		}
	}
}

// WithOnChange registers a callback invoked after every tick and poll.
func WithOnChange(fn func(State)) Option {
	return func(w *Widget) {
		w.onChange = fn
	}
}

func WithLogger(l logger.Logger) Option {
	return func(w *Widget) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWidget creates a widget backed by api.
func NewWidget(api API, opts ...Option) *Widget {
	w := &Widget{
		api:          api,
		now:          time.Now,
		tickInterval: DefaultTickInterval,
		pollInterval: DefaultPollInterval,
		log:          logger.Default,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Poll fetches the entry list and adopts its running entry, or clears the
// timer when none is running.
func (w *Widget) Poll(ctx context.Context) error {
	entries, err := w.api.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll time entries: %w", err)
	}

	w.mu.Lock()
	if running, ok := domain.FindRunning(entries); ok {
		w.entry = &running
	} else {
		w.entry = nil
	}
	w.recompute()
	state := w.stateLocked()
	w.mu.Unlock()

	w.notify(state)
	return nil
}

// Tick recomputes elapsed time against the clock.
func (w *Widget) Tick() {
	w.mu.Lock()
	w.recompute()
	state := w.stateLocked()
	w.mu.Unlock()

	w.notify(state)
}

// Elapsed returns the elapsed time computed at the last tick or poll.
func (w *Widget) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

// Running returns the running entry, if any.
func (w *Widget) Running() (domain.TimeEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entry == nil {
		return domain.TimeEntry{}, false
	}
	return *w.entry, true
}

// State returns a snapshot of what the widget displays.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// Start starts a new entry on the server and refreshes.
func (w *Widget) Start(ctx context.Context, req StartRequest) (domain.TimeEntry, error) {
	entry, err := w.api.Start(ctx, req)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("failed to start timer: %w", err)
	}
	if err := w.Poll(ctx); err != nil {
		w.log.Warn("timer started but refresh failed: %v", err)
	}
	return entry, nil
}

// Stop stops the running entry on the server and refreshes.
func (w *Widget) Stop(ctx context.Context) (domain.TimeEntry, error) {
	running, ok := w.Running()
	if !ok {
		return domain.TimeEntry{}, ErrNoRunningEntry
	}
	entry, err := w.api.Stop(ctx, running.ID)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("failed to stop timer: %w", err)
	}
	if err := w.Poll(ctx); err != nil {
		w.log.Warn("timer stopped but refresh failed: %v", err)
	}
	return entry, nil
}

// Run polls immediately, then ticks and polls on their intervals until ctx is done.
// Poll failures are logged and the last known state is kept.
func (w *Widget) Run(ctx context.Context) error {
	if err := w.Poll(ctx); err != nil {
		w.log.Warn("%v", err)
	}

	tick := time.NewTicker(w.tickInterval)
	defer tick.Stop()
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			w.Tick()
		case <-poll.C:
			if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("%v", err)
			}
		}
	}
}

func (w *Widget) recompute() {
	if w.entry == nil {
		w.elapsed = 0
		return
	}
	w.elapsed = w.entry.Elapsed(w.now())
}

func (w *Widget) stateLocked() State {
	s := State{Elapsed: w.elapsed}
	if w.entry != nil {
		s.Running = true
		s.Entry = *w.entry
	}
	return s
}

func (w *Widget) notify(s State) {
	if w.onChange != nil {
		w.onChange(s)
	}
}

// Format renders a duration as HH:MM:SS. Hours are not capped at 24.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
