package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ahmedmhosni/roastify/internal/domain"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// MatchStatus classifies a verification row.
type MatchStatus string

const (
	StatusMatch       MatchStatus = "PERFECT MATCH"
	StatusLocalAhead  MatchStatus = "LOCAL AHEAD"
	StatusRemoteAhead MatchStatus = "REMOTE AHEAD"
	StatusError       MatchStatus = "ERROR"
)

// TableComparison is one line of the verification report.
type TableComparison struct {
	Table       string      `json:"table"`
	LocalCount  int64       `json:"local_count"`
	RemoteCount int64       `json:"remote_count"`
	Status      MatchStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
}

// Verification compares row counts only; equal counts do not prove equal content.
type Verification struct {
	Tables          []TableComparison `json:"tables"`
	Matched         int               `json:"matched"`
	Total           int               `json:"total"`
	MatchPercentage float64           `json:"match_percentage"`
}

// Verify re-counts every table in both stores.
func Verify(ctx context.Context, local, remote Store, tables []string) Verification {
	v := Verification{Tables: make([]TableComparison, 0, len(tables)), Total: len(tables)}
	for _, table := range tables {
		cmp := TableComparison{Table: table}
		localCount, localErr := local.Count(ctx, table)
		remoteCount, remoteErr := remote.Count(ctx, table)
		cmp.LocalCount = localCount
		cmp.RemoteCount = remoteCount

		switch {
		case localErr != nil:
			cmp.Status = StatusError
			cmp.Error = localErr.Error()
		case remoteErr != nil:
			cmp.Status = StatusError
			cmp.Error = remoteErr.Error()
		case localCount == remoteCount:
			cmp.Status = StatusMatch
			v.Matched++
		case localCount > remoteCount:
			cmp.Status = StatusLocalAhead
		default:
			cmp.Status = StatusRemoteAhead
		}
		v.Tables = append(v.Tables, cmp)
	}
	if v.Total > 0 {
		v.MatchPercentage = float64(v.Matched) / float64(v.Total) * 100
	}
	return v
}

// Status returns the comparison for a table, if present.
func (v Verification) Status(table string) (TableComparison, bool) {
	for _, t := range v.Tables {
		if t.Table == table {
			return t, true
		}
	}
	return TableComparison{}, false
}

// Report summarizes one mirror run.
type Report struct {
	RunID        uuid.UUID     `json:"run_id"`
	Strategy     string        `json:"strategy"`
	DryRun       bool          `json:"dry_run"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Schema       []TableResult `json:"schema"`
	Critical     []TableResult `json:"critical"`
	Remaining    []TableResult `json:"remaining"`
	Verification Verification  `json:"verification"`
}

func (r *Report) syncResults() []TableResult {
	out := make([]TableResult, 0, len(r.Critical)+len(r.Remaining))
	out = append(out, r.Critical...)
	return append(out, r.Remaining...)
}

func (r *Report) allResults() []TableResult {
	out := make([]TableResult, 0, len(r.Schema)+len(r.Critical)+len(r.Remaining))
	out = append(out, r.Schema...)
	return append(out, r.syncResults()...)
}

// TablesSynced counts tables that had rows copied.
func (r *Report) TablesSynced() int {
	n := 0
	for _, res := range r.syncResults() {
		if res.Action == ActionSynced {
			n++
		}
	}
	return n
}

func (r *Report) RowsWritten() int64 {
	var n int64
	for _, res := range r.syncResults() {
		n += res.RowsWritten
	}
	return n
}

func (r *Report) RowFailures() int64 {
	var n int64
	for _, res := range r.syncResults() {
		n += res.RowFailures
	}
	return n
}

// Partial reports whether any table or row failed during the run.
func (r *Report) Partial() bool {
	for _, res := range r.allResults() {
		if res.Action == ActionFailed || res.RowFailures > 0 {
			return true
		}
	}
	for _, t := range r.Verification.Tables {
		if t.Status == StatusError {
			return true
		}
	}
	return false
}

// Run converts the report into the summary row stored in mirror_runs.
func (r *Report) Run() (domain.MirrorRun, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return domain.MirrorRun{}, fmt.Errorf("failed to encode report: %w", err)
	}
	return domain.MirrorRun{
		ID:              r.RunID,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Strategy:        r.Strategy,
		DryRun:          r.DryRun,
		TablesChecked:   r.Verification.Total,
		TablesSynced:    r.TablesSynced(),
		RowsWritten:     r.RowsWritten(),
		RowFailures:     r.RowFailures(),
		MatchPercentage: r.Verification.MatchPercentage,
		Report:          body,
	}, nil
}

// Print writes the run summary as aligned text.
func (r *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	mode := ""
	if r.DryRun {
		mode = " [dry run]"
	}
	fmt.Fprintf(tw, "Mirror run %s%s, strategy %s, %s\n\n", r.RunID, mode, r.Strategy, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	if len(r.Schema) > 0 {
		fmt.Fprintln(tw, "SCHEMA\tACTION\tDETAIL")
		for _, res := range r.Schema {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Table, res.Action, res.Error)
		}
		fmt.Fprintln(tw)
	}

	if results := r.syncResults(); len(results) > 0 {
		fmt.Fprintln(tw, "TABLE\tTIER\tDIRECTION\tACTION\tWRITTEN\tFAILED\tREASON")
		for _, res := range results {
			detail := res.Decision.Reason
			if res.Error != "" {
				detail = res.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s -> %s\t%s\t%d\t%d\t%s\n",
				res.Table, res.Phase, res.Source, res.Dest, res.Action, res.RowsWritten, res.RowFailures, detail)
		}
		fmt.Fprintln(tw)
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	return r.Verification.Print(w)
}

// Print writes the verification table and the aggregate match percentage.
func (v Verification) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tLOCAL\tREMOTE\tSTATUS")
	for _, t := range v.Tables {
		status := string(t.Status)
		if t.Error != "" {
			status += ": " + t.Error
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", t.Table, t.LocalCount, t.RemoteCount, status)
	}
	fmt.Fprintf(tw, "\n%d/%d tables match (%.1f%%)\n", v.Matched, v.Total, v.MatchPercentage)
	return tw.Flush()
}

const (
	verificationSheet = "Verification"
	syncSheet         = "Sync"
)

// WriteXLSX exports the verification table and the per-table sync results as a workbook.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", verificationSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(verificationSheet, "A1", &[]any{"Table", "Local rows", "Remote rows", "Status", "Error"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, t := range r.Verification.Tables {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(verificationSheet, cell, &[]any{t.Table, t.LocalCount, t.RemoteCount, string(t.Status), t.Error}); err != nil {
			return fmt.Errorf("failed to write verification row: %w", err)
		}
	}
	summaryCell, err := excelize.CoordinatesToCellName(1, len(r.Verification.Tables)+3)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(verificationSheet, summaryCell, &[]any{"Match %", r.Verification.MatchPercentage}); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if _, err := f.NewSheet(syncSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	if err := f.SetSheetRow(syncSheet, "A1", &[]any{"Table", "Tier", "Source", "Destination", "Action", "Deleted", "Written", "Failed", "Reason", "Error"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, res := range r.allResults() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{res.Table, string(res.Phase), res.Source, res.Dest, string(res.Action), res.Deleted, res.RowsWritten, res.RowFailures, res.Decision.Reason, res.Error}
		if err := f.SetSheetRow(syncSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write sync row: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
