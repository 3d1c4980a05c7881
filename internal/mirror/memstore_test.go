package mirror

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// memStore is an in-memory Store with copy-on-write transactions.
type memStore struct {
	name   string
	tables map[string]*memTable
	ddl    []string
}

type memTable struct {
	columns    []Column
	rows       map[int64]Row
	reject     func(Row) error
	failDelete error
	failRows   error
	// sequence is the last value handed out by the id sequence.
	sequence     int64
	resets       int
	failSequence error
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, tables: map[string]*memTable{}}
}

func cols(names ...string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column{Name: n, DataType: "text", Nullable: true}
		if n == "id" {
			out[i].DataType = "integer"
			out[i].Nullable = false
		}
	}
	return out
}

// serialCols is cols with the id column backed by a sequence.
func serialCols(table string, names ...string) []Column {
	out := cols(names...)
	def := "nextval('" + table + "_id_seq'::regclass)"
	for i := range out {
		if out[i].Name == "id" {
			out[i].Default = &def
		}
	}
	return out
}

func (s *memStore) addTable(name string, columns []Column) *memTable {
	t := &memTable{columns: columns, rows: map[int64]Row{}}
	s.tables[name] = t
	return t
}

func (t *memTable) put(rows ...Row) {
	for _, r := range rows {
		t.rows[r["id"].(int64)] = cloneRow(r)
	}
}

func (t *memTable) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *memTable) clone() *memTable {
	c := *t
	c.rows = make(map[int64]Row, len(t.rows))
	for id, r := range t.rows {
		c.rows[id] = cloneRow(r)
	}
	return &c
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (s *memStore) table(name string) (*memTable, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist on %s", name, s.name)
	}
	return t, nil
}

func (s *memStore) Name() string { return s.name }

func (s *memStore) Count(_ context.Context, table string) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (s *memStore) Columns(_ context.Context, table string) ([]Column, error) {
	t, ok := s.tables[table]
	if !ok {
		return []Column{}, nil
	}
	return append([]Column(nil), t.columns...), nil
}

func (s *memStore) Rows(_ context.Context, table string, after any, limit int) ([]Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if t.failRows != nil {
		return nil, t.failRows
	}
	var out []Row
	for _, id := range t.sortedIDs() {
		if after != nil && id <= after.(int64) {
			continue
		}
		out = append(out, cloneRow(t.rows[id]))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) MaxTimestamp(_ context.Context, table, column string) (*time.Time, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	found := false
	for _, c := range t.columns {
		if c.Name == column {
			found = true
		}
	}
	if !found {
		return nil, ErrColumnMissing
	}
	var max *time.Time
	for _, r := range t.rows {
		ts, ok := r[column].(time.Time)
		if !ok {
			continue
		}
		if max == nil || ts.After(*max) {
			v := ts
			max = &v
		}
	}
	return max, nil
}

func (s *memStore) Checksum(_ context.Context, table string) (string, error) {
	t, err := s.table(table)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, id := range t.sortedIDs() {
		r := t.rows[id]
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%v;", k, r[k])
		}
		b.WriteByte('\n')
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

func (s *memStore) ExecDDL(_ context.Context, stmt string) error {
	s.ddl = append(s.ddl, stmt)
	if !strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS ") {
		return fmt.Errorf("unsupported ddl: %s", stmt)
	}
	rest := strings.TrimPrefix(stmt, "CREATE TABLE IF NOT EXISTS ")
	name := strings.Trim(rest[:strings.Index(rest, " ")], `"`)
	if _, ok := s.tables[name]; !ok {
		s.addTable(name, []Column{{Name: "id", DataType: "integer"}})
	}
	return nil
}

func (s *memStore) Write(_ context.Context, table string, fn func(Writer) error) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	working := t.clone()
	if err := fn(&memWriter{table: working}); err != nil {
		return err
	}
	s.tables[table] = working
	return nil
}

type memWriter struct {
	table *memTable
}

func (w *memWriter) DeleteAll(context.Context) (int64, error) {
	if w.table.failDelete != nil {
		return 0, w.table.failDelete
	}
	n := int64(len(w.table.rows))
	w.table.rows = map[int64]Row{}
	return n, nil
}

func (w *memWriter) Upsert(_ context.Context, columns []string, row Row, mode ConflictMode) (int64, error) {
	if w.table.reject != nil {
		if err := w.table.reject(row); err != nil {
			return 0, err
		}
	}
	known := map[string]bool{}
	for _, c := range w.table.columns {
		known[c.Name] = true
	}
	written := Row{}
	for _, c := range columns {
		if !known[c] {
			return 0, fmt.Errorf("column %q does not exist", c)
		}
		written[c] = row[c]
	}
	id := row["id"].(int64)
	if _, exists := w.table.rows[id]; exists && mode == ConflictNothing {
		return 0, nil
	}
	w.table.rows[id] = written
	return 1, nil
}

func (w *memWriter) ResetSequence(context.Context) error {
	if w.table.failSequence != nil {
		return w.table.failSequence
	}
	w.table.resets++
	w.table.sequence = 0
	for id := range w.table.rows {
		if id > w.table.sequence {
			w.table.sequence = id
		}
	}
	return nil
}

type stubLocker struct {
	err      error
	locked   int
	released int
}

func (l *stubLocker) TryLock(context.Context, int64) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locked++
	return func() { l.released++ }, nil
}
