package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ahmedmhosni/roastify/internal/logger"
)

func clientRows(from, to int, prefix string) []Row {
	var rows []Row
	for i := from; i <= to; i++ {
		rows = append(rows, Row{"id": int64(i), "name": fmt.Sprintf("%s-%d", prefix, i)})
	}
	return rows
}

func newTestMirror(local, remote *memStore, opts ...Option) *Mirror {
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return New(local, remote, opts...)
}

func TestSyncCriticalOverwritesRemoteWhenLocalHasMoreRows(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", cols("id", "name")).put(clientRows(1, 10, "local")...)
	remote.addTable("clients", cols("id", "name")).put(clientRows(1, 7, "stale")...)

	m := newTestMirror(local, remote, WithBatchSize(3))
	res := m.SyncCritical(context.Background(), "clients")

	if res.Action != ActionSynced {
		t.Fatalf("expected synced, got %s (%s)", res.Action, res.Error)
	}
	if res.Deleted != 7 || res.RowsWritten != 10 || res.RowFailures != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if !reflect.DeepEqual(remote.tables["clients"].rows, local.tables["clients"].rows) {
		t.Fatalf("remote rows differ from local after sync")
	}
}

func TestSyncAdvancesDestinationSequence(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", serialCols("clients", "id", "name")).put(clientRows(1, 10, "local")...)
	remote.addTable("clients", serialCols("clients", "id", "name")).put(clientRows(1, 7, "stale")...)
	remote.tables["clients"].sequence = 7
	local.addTable("quotes", serialCols("quotes", "id", "name")).put(clientRows(1, 6, "q")...)
	remote.addTable("quotes", serialCols("quotes", "id", "name")).put(clientRows(1, 5, "q")...)
	local.addTable("tags", cols("id", "name")).put(clientRows(1, 3, "t")...)
	remote.addTable("tags", cols("id", "name"))

	m := newTestMirror(local, remote)
	m.SyncCritical(context.Background(), "clients")
	if got := remote.tables["clients"].sequence; got != 10 {
		t.Fatalf("expected clients sequence at 10, got %d", got)
	}

	res := m.SyncDirectional(context.Background(), "quotes", LocalToRemote)
	if res.RowsWritten != 1 || remote.tables["quotes"].sequence != 6 {
		t.Fatalf("expected quotes sequence at 6 after 1 insert, got %d (%+v)", remote.tables["quotes"].sequence, res)
	}

	m.SyncDirectional(context.Background(), "tags", LocalToRemote)
	if remote.tables["tags"].resets != 0 {
		t.Fatalf("tables without an id sequence must not be reset")
	}
}

func TestSequenceResetFailureKeepsCopiedRows(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", serialCols("clients", "id", "name")).put(clientRows(1, 3, "local")...)
	remote.addTable("clients", serialCols("clients", "id", "name")).failSequence = errors.New("permission denied for sequence")

	var buf bytes.Buffer
	res := New(local, remote, WithLogger(logger.New(&buf, false))).SyncCritical(context.Background(), "clients")

	if res.Action != ActionSynced || res.RowsWritten != 3 {
		t.Fatalf("expected rows to stay synced, got %+v", res)
	}
	if len(remote.tables["clients"].rows) != 3 {
		t.Fatalf("expected 3 remote rows, got %d", len(remote.tables["clients"].rows))
	}
	if !strings.Contains(buf.String(), "permission denied for sequence") {
		t.Fatalf("expected a warning about the sequence, got %q", buf.String())
	}
}

func TestSyncCriticalLeavesRemoteAloneWhenNotBehind(t *testing.T) {
	tests := []struct {
		name        string
		localCount  int
		remoteCount int
	}{
		{name: "equal counts", localCount: 5, remoteCount: 5},
		{name: "remote larger", localCount: 3, remoteCount: 5},
		{name: "both empty", localCount: 0, remoteCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := newMemStore("local")
			remote := newMemStore("remote")
			local.addTable("projects", cols("id", "name")).put(clientRows(1, tt.localCount, "local")...)
			remote.addTable("projects", cols("id", "name")).put(clientRows(1, tt.remoteCount, "remote")...)
			before := remote.tables["projects"].clone().rows

			res := newTestMirror(local, remote).SyncCritical(context.Background(), "projects")

			if res.Action != ActionUnchanged {
				t.Fatalf("expected unchanged, got %s", res.Action)
			}
			if !reflect.DeepEqual(remote.tables["projects"].rows, before) {
				t.Fatalf("remote rows changed on a no-op sync")
			}
		})
	}
}

func TestSyncDirectionalNeverOverwritesExistingRows(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("quotes", cols("id", "name")).put(clientRows(1, 5, "fresh")...)
	remote.addTable("quotes", cols("id", "name")).put(clientRows(1, 2, "old")...)

	res := newTestMirror(local, remote).SyncDirectional(context.Background(), "quotes", LocalToRemote)

	if res.Action != ActionSynced {
		t.Fatalf("expected synced, got %s (%s)", res.Action, res.Error)
	}
	if res.RowsWritten != 3 {
		t.Fatalf("expected 3 inserted rows, got %d", res.RowsWritten)
	}
	rows := remote.tables["quotes"].rows
	if len(rows) != 5 {
		t.Fatalf("expected 5 remote rows, got %d", len(rows))
	}
	for id := int64(1); id <= 2; id++ {
		if rows[id]["name"] != fmt.Sprintf("old-%d", id) {
			t.Fatalf("existing row %d was modified: %v", id, rows[id])
		}
	}
	for id := int64(3); id <= 5; id++ {
		if rows[id]["name"] != fmt.Sprintf("fresh-%d", id) {
			t.Fatalf("missing row %d not inserted: %v", id, rows[id])
		}
	}
}

func TestSyncDirectionalRemoteToLocal(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("gdpr_requests", cols("id", "name")).put(clientRows(1, 1, "local")...)
	remote.addTable("gdpr_requests", cols("id", "name")).put(clientRows(1, 4, "remote")...)

	res := newTestMirror(local, remote).SyncDirectional(context.Background(), "gdpr_requests", RemoteToLocal)

	if res.Source != "remote" || res.Dest != "local" {
		t.Fatalf("unexpected direction %s -> %s", res.Source, res.Dest)
	}
	if got := len(local.tables["gdpr_requests"].rows); got != 4 {
		t.Fatalf("expected 4 local rows, got %d", got)
	}
	if local.tables["gdpr_requests"].rows[1]["name"] != "local-1" {
		t.Fatalf("existing local row was overwritten")
	}
	if len(remote.tables["gdpr_requests"].rows) != 4 {
		t.Fatalf("remote should be untouched")
	}
}

func TestRowFailureDoesNotAbortSiblingsOrLaterTables(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("invoices", cols("id", "name")).put(clientRows(1, 6, "inv")...)
	remoteInvoices := remote.addTable("invoices", cols("id", "name"))
	remoteInvoices.reject = func(r Row) error {
		if r["id"] == int64(3) {
			return errors.New(`invalid input syntax for type numeric: "abc"`)
		}
		return nil
	}
	local.addTable("tasks", cols("id", "name")).put(clientRows(1, 2, "task")...)
	remote.addTable("tasks", cols("id", "name"))

	manifest := Manifest{Critical: []string{"invoices", "tasks"}}
	report, err := newTestMirror(local, remote, WithBatchSize(2)).Run(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	inv := report.Critical[0]
	if inv.RowsWritten != 5 || inv.RowFailures != 1 {
		t.Fatalf("expected 5 written and 1 failed, got %+v", inv)
	}
	if _, ok := remote.tables["invoices"].rows[4]; !ok {
		t.Fatalf("row after the failed row in the same batch was not written")
	}
	if report.Critical[1].Action != ActionSynced || len(remote.tables["tasks"].rows) != 2 {
		t.Fatalf("later table not synced: %+v", report.Critical[1])
	}
	if !report.Partial() {
		t.Fatalf("expected report to be marked partial")
	}
}

func TestSyncCriticalRollsBackWhenDeleteFails(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", cols("id", "name")).put(clientRows(1, 4, "local")...)
	remoteClients := remote.addTable("clients", cols("id", "name"))
	remoteClients.put(clientRows(1, 2, "remote")...)
	remoteClients.failDelete = errors.New("permission denied")

	res := newTestMirror(local, remote).SyncCritical(context.Background(), "clients")

	if res.Action != ActionFailed {
		t.Fatalf("expected failure, got %s", res.Action)
	}
	if got := len(remote.tables["clients"].rows); got != 2 {
		t.Fatalf("expected remote rows to survive rollback, got %d", got)
	}
}

func TestSyncCriticalRollsBackWhenFetchFails(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	localClients := local.addTable("clients", cols("id", "name"))
	localClients.put(clientRows(1, 4, "local")...)
	localClients.failRows = errors.New("connection reset")
	remote.addTable("clients", cols("id", "name")).put(clientRows(1, 2, "remote")...)

	res := newTestMirror(local, remote).SyncCritical(context.Background(), "clients")

	if res.Action != ActionFailed {
		t.Fatalf("expected failure, got %s", res.Action)
	}
	if got := len(remote.tables["clients"].rows); got != 2 {
		t.Fatalf("remote must not be left empty after a failed fetch, got %d rows", got)
	}
}

func TestSyncSkipsColumnsMissingOnDestination(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("tasks", cols("id", "name", "notes")).put(Row{"id": int64(1), "name": "a", "notes": "n"})
	remote.addTable("tasks", cols("id", "name"))

	res := newTestMirror(local, remote).SyncCritical(context.Background(), "tasks")

	if res.Action != ActionSynced || res.RowsWritten != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !reflect.DeepEqual(res.Skipped, []string{"notes"}) {
		t.Fatalf("expected notes to be reported as skipped, got %v", res.Skipped)
	}
	if _, ok := remote.tables["tasks"].rows[1]["notes"]; ok {
		t.Fatalf("source-only column should not be written")
	}
}

func TestEnsureTablesIsIdempotent(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	def := "nextval('changelog_versions_id_seq'::regclass)"
	remote.addTable("changelog_versions", []Column{
		{Name: "id", DataType: "integer", Default: &def},
		{Name: "version", DataType: "character varying", CharMaxLength: int32Ptr(20)},
	})
	existing := local.addTable("announcements", cols("id", "title", "body"))
	remote.addTable("announcements", cols("id", "title"))

	m := newTestMirror(local, remote)
	tables := []string{"changelog_versions", "announcements", "missing_everywhere"}

	first := m.EnsureTables(context.Background(), tables)
	second := m.EnsureTables(context.Background(), tables)

	for _, results := range [][]TableResult{first, second} {
		if results[0].Action != ActionCreated || results[1].Action != ActionCreated {
			t.Fatalf("unexpected actions: %+v", results)
		}
		if results[2].Action != ActionSkipped {
			t.Fatalf("expected missing remote table to be skipped, got %s", results[2].Action)
		}
	}
	if _, ok := local.tables["changelog_versions"]; !ok {
		t.Fatalf("changelog_versions was not created locally")
	}
	if len(local.tables["announcements"].columns) != 3 || local.tables["announcements"] != existing {
		t.Fatalf("existing local table structure was altered")
	}
	if len(local.ddl) != 4 {
		t.Fatalf("expected 4 ddl statements, got %d", len(local.ddl))
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", cols("id", "name")).put(clientRows(1, 3, "local")...)
	remote.addTable("clients", cols("id", "name"))
	remote.addTable("changelog_versions", cols("id", "version"))

	manifest := Manifest{CreateMissing: []string{"changelog_versions"}, Critical: []string{"clients"}}
	report, err := newTestMirror(local, remote, WithDryRun(true)).Run(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if report.Schema[0].Action != ActionPlanned || report.Critical[0].Action != ActionPlanned {
		t.Fatalf("expected planned actions, got %+v %+v", report.Schema[0], report.Critical[0])
	}
	if len(local.ddl) != 0 || len(remote.tables["clients"].rows) != 0 {
		t.Fatalf("dry run must not write")
	}
}

func TestRunEndToEndReportsPerfectMatch(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", cols("id", "name")).put(clientRows(1, 10, "client")...)
	remote.addTable("clients", cols("id", "name")).put(clientRows(1, 7, "client")...)
	local.addTable("quotes", cols("id", "name")).put(clientRows(1, 2, "q")...)
	remote.addTable("quotes", cols("id", "name")).put(clientRows(1, 3, "q")...)

	manifest := Manifest{
		Critical:  []string{"clients"},
		Remaining: []DirectionalTable{{Table: "quotes", Direction: LocalToRemote}},
	}
	report, err := newTestMirror(local, remote).Run(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := len(remote.tables["clients"].rows); got != 10 {
		t.Fatalf("expected 10 remote clients, got %d", got)
	}
	if !reflect.DeepEqual(remote.tables["clients"].rows, local.tables["clients"].rows) {
		t.Fatalf("remote clients differ from local")
	}

	clients, ok := report.Verification.Status("clients")
	if !ok || clients.Status != StatusMatch {
		t.Fatalf("expected clients PERFECT MATCH, got %+v", clients)
	}
	quotes, _ := report.Verification.Status("quotes")
	if quotes.Status != StatusRemoteAhead {
		t.Fatalf("expected quotes REMOTE AHEAD, got %s", quotes.Status)
	}
	if report.Verification.MatchPercentage != 50 {
		t.Fatalf("expected 50%% match, got %.1f", report.Verification.MatchPercentage)
	}
	if report.TablesSynced() != 1 || report.RowsWritten() != 10 {
		t.Fatalf("unexpected totals: synced=%d written=%d", report.TablesSynced(), report.RowsWritten())
	}
}

func TestRunFailsFastWhenLocked(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", cols("id", "name"))
	remote.addTable("clients", cols("id", "name"))

	locker := &stubLocker{err: ErrRunInProgress}
	_, err := newTestMirror(local, remote, WithLock(locker, 1)).Run(context.Background(), Manifest{Critical: []string{"clients"}})
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	free := &stubLocker{}
	if _, err := newTestMirror(local, remote, WithLock(free, 1)).Run(context.Background(), Manifest{Critical: []string{"clients"}}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if free.locked != 1 || free.released != 1 {
		t.Fatalf("expected lock to be taken and released once, got %d/%d", free.locked, free.released)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	local := newMemStore("local")
	remote := newMemStore("remote")
	local.addTable("clients", cols("id", "name")).put(clientRows(1, 2, "c")...)
	remote.addTable("clients", cols("id", "name"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestMirror(local, remote).Run(ctx, Manifest{Critical: []string{"clients"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Critical) != 0 || len(remote.tables["clients"].rows) != 0 {
		t.Fatalf("cancelled run must not sync")
	}
}

func int32Ptr(v int32) *int32 { return &v }
