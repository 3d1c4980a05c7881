package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ahmedmhosni/roastify/internal/logger"

	"github.com/google/uuid"
)

// Phase names the step of a run a table result belongs to.
type Phase string

const (
	PhaseSchema    Phase = "schema"
	PhaseCritical  Phase = "critical"
	PhaseRemaining Phase = "remaining"
)

// Action is what a run did to one table.
type Action string

const (
	ActionCreated   Action = "created"
	ActionSkipped   Action = "skipped"
	ActionSynced    Action = "synced"
	ActionUnchanged Action = "unchanged"
	ActionPlanned   Action = "planned"
	ActionFailed    Action = "failed"
)

// TableResult records the outcome for one table in one phase.
type TableResult struct {
	Table       string   `json:"table"`
	Phase       Phase    `json:"phase"`
	Source      string   `json:"source,omitempty"`
	Dest        string   `json:"dest,omitempty"`
	Action      Action   `json:"action"`
	Decision    Decision `json:"decision"`
	Deleted     int64    `json:"deleted"`
	RowsWritten int64    `json:"rows_written"`
	RowFailures int64    `json:"row_failures"`
	Skipped     []string `json:"skipped_columns,omitempty"`
	DDL         string   `json:"ddl,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Mirror reconciles row sets between a local and a remote store.
type Mirror struct {
	local     Store
	remote    Store
	strategy  Strategy
	batchSize int
	dryRun    bool
	log       logger.Logger
	now       func() time.Time
	locker    Locker
	lockKey   int64
}

type Option func(*Mirror)

func WithStrategy(strategy Strategy) Option {
	return func(m *Mirror) {
		if strategy != nil {
			m.strategy = strategy
		}
	}
}

func WithBatchSize(size int) Option {
	return func(m *Mirror) {
		if size > 0 {
			m.batchSize = size
		}
	}
}

// WithDryRun makes the run decide and report without writing.
func WithDryRun(dryRun bool) Option {
	return func(m *Mirror) {
		m.dryRun = dryRun
	}
}

func WithLogger(l logger.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Mirror) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLock makes Run hold an exclusive lock for its duration.
func WithLock(locker Locker, key int64) Option {
	return func(m *Mirror) {
		m.locker = locker
		m.lockKey = key
	}
}

// New creates a mirror between local and remote.
func New(local, remote Store, opts ...Option) *Mirror {
	m := &Mirror{
		local:     local,
		remote:    remote,
		strategy:  RowCountStrategy{},
		batchSize: 100,
		log:       logger.Default,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes a full mirror run: schema reconciliation, critical tier,
// remaining tier, then verification. Table and row failures are recorded in
// the report; the returned error is reserved for failures that stop the run.
func (m *Mirror) Run(ctx context.Context, manifest Manifest) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		Strategy:  m.strategy.Name(),
		DryRun:    m.dryRun,
		StartedAt: m.now(),
	}

	if m.locker != nil && !m.dryRun {
		release, err := m.locker.TryLock(ctx, m.lockKey)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	m.log.Info("mirror run %s started (strategy=%s, batch=%d, dry-run=%t)", report.RunID, report.Strategy, m.batchSize, m.dryRun)

	report.Schema = m.EnsureTables(ctx, manifest.CreateMissing)

	for _, table := range manifest.Critical {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = m.now()
			return report, err
		}
		report.Critical = append(report.Critical, m.SyncCritical(ctx, table))
	}

	for _, entry := range manifest.Remaining {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = m.now()
			return report, err
		}
		report.Remaining = append(report.Remaining, m.SyncDirectional(ctx, entry.Table, entry.Direction))
	}

	report.Verification = Verify(ctx, m.local, m.remote, manifest.Tables())
	report.FinishedAt = m.now()

	m.log.Info("mirror run %s finished in %s: %d tables synced, %d rows written, %d row failures, %.1f%% tables match",
		report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.TablesSynced(), report.RowsWritten(), report.RowFailures(), report.Verification.MatchPercentage)
	return report, ctx.Err()
}

// EnsureTables creates tables that exist on the remote but not locally.
// Each table is handled independently; a failure does not stop the others.
func (m *Mirror) EnsureTables(ctx context.Context, tables []string) []TableResult {
	results := make([]TableResult, 0, len(tables))
	for _, table := range tables {
		if ctx.Err() != nil {
			break
		}
		res := TableResult{Table: table, Phase: PhaseSchema, Source: m.remote.Name(), Dest: m.local.Name()}

		columns, err := m.remote.Columns(ctx, table)
		if err != nil {
			res.Action = ActionFailed
			res.Error = err.Error()
			m.log.Error("schema %s: %v", table, err)
			results = append(results, res)
			continue
		}
		if len(columns) == 0 {
			res.Action = ActionSkipped
			res.Error = fmt.Sprintf("table %s not found on %s", table, m.remote.Name())
			m.log.Warn("schema %s: not found on %s, skipping", table, m.remote.Name())
			results = append(results, res)
			continue
		}

		stmt, err := CreateTableSQL(table, columns)
		if err != nil {
			res.Action = ActionFailed
			res.Error = err.Error()
			m.log.Error("schema %s: %v", table, err)
			results = append(results, res)
			continue
		}
		res.DDL = stmt

		if m.dryRun {
			res.Action = ActionPlanned
			m.log.Info("schema %s: would run\n%s", table, stmt)
			results = append(results, res)
			continue
		}

		if err := m.local.ExecDDL(ctx, stmt); err != nil {
			res.Action = ActionFailed
			res.Error = err.Error()
			m.log.Error("schema %s: %v", table, err)
			results = append(results, res)
			continue
		}
		res.Action = ActionCreated
		m.log.Info("schema %s: ensured on %s (%d columns)", table, m.local.Name(), len(columns))
		results = append(results, res)
	}
	return results
}

// SyncCritical overwrites the remote table with local rows when local is ahead.
func (m *Mirror) SyncCritical(ctx context.Context, table string) TableResult {
	return m.syncTable(ctx, PhaseCritical, table, m.local, m.remote, ConflictUpdate, true)
}

// SyncDirectional fills rows missing at the destination without touching existing ones.
func (m *Mirror) SyncDirectional(ctx context.Context, table string, direction Direction) TableResult {
	source, dest := m.local, m.remote
	if direction == RemoteToLocal {
		source, dest = m.remote, m.local
	}
	return m.syncTable(ctx, PhaseRemaining, table, source, dest, ConflictNothing, false)
}

func (m *Mirror) syncTable(ctx context.Context, phase Phase, table string, source, dest Store, mode ConflictMode, replace bool) TableResult {
	res := TableResult{Table: table, Phase: phase, Source: source.Name(), Dest: dest.Name()}
	label := fmt.Sprintf("%s %s (%s -> %s)", phase, table, source.Name(), dest.Name())

	decision, err := m.strategy.Ahead(ctx, source, dest, table)
	res.Decision = decision
	if err != nil {
		res.Action = ActionFailed
		res.Error = err.Error()
		m.log.Error("%s: %v", label, err)
		return res
	}
	if !decision.Ahead {
		res.Action = ActionUnchanged
		m.log.Info("%s: unchanged, %s", label, decision.Reason)
		return res
	}
	if m.dryRun {
		res.Action = ActionPlanned
		m.log.Info("%s: would sync, %s", label, decision.Reason)
		return res
	}

	srcColumns, err := source.Columns(ctx, table)
	if err != nil {
		return m.fail(res, label, err)
	}
	dstColumns, err := dest.Columns(ctx, table)
	if err != nil {
		return m.fail(res, label, err)
	}
	columns, dropped, err := sharedColumns(srcColumns, dstColumns)
	if err != nil {
		return m.fail(res, label, err)
	}
	if len(dropped) > 0 {
		res.Skipped = dropped
		m.log.Warn("%s: columns missing on %s, not copied: %s", label, dest.Name(), strings.Join(dropped, ", "))
	}

	m.log.Info("%s: syncing, %s", label, decision.Reason)

	var deleted, written, failures int64
	err = dest.Write(ctx, table, func(w Writer) error {
		if replace {
			n, err := w.DeleteAll(ctx)
			if err != nil {
				return err
			}
			deleted = n
		}

		copyRows := func() error {
			var after any
			for batch := 1; ; batch++ {
				rows, err := source.Rows(ctx, table, after, m.batchSize)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					return nil
				}
				for _, row := range rows {
					n, err := w.Upsert(ctx, columns, row, mode)
					if err != nil {
						failures++
						m.log.Warn("%s: row id=%v skipped: %v", label, row.ID(), err)
						continue
					}
					written += n
				}
				m.log.Debug("%s: batch %d done (%d rows)", label, batch, len(rows))
				if len(rows) < m.batchSize {
					return nil
				}
				after = rows[len(rows)-1].ID()
			}
		}
		if err := copyRows(); err != nil {
			return err
		}

		// Copied rows carry explicit ids, which never advance the sequence.
		if written > 0 && hasSequenceID(dstColumns) {
			if err := w.ResetSequence(ctx); err != nil {
				m.log.Warn("%s: %v", label, err)
			}
		}
		return nil
	})
	if err != nil {
		return m.fail(res, label, fmt.Errorf("rolled back: %w", err))
	}

	res.Action = ActionSynced
	res.Deleted = deleted
	res.RowsWritten = written
	res.RowFailures = failures
	m.log.Info("%s: %d rows written, %d failed", label, written, failures)
	return res
}

func (m *Mirror) fail(res TableResult, label string, err error) TableResult {
	res.Action = ActionFailed
	res.Error = err.Error()
	m.log.Error("%s: %v", label, err)
	return res
}
