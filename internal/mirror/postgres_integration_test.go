package mirror

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ahmedmhosni/roastify/internal/db"
	"github.com/ahmedmhosni/roastify/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// openTestStore connects to the database named by env, skipping when unset.
func openTestStore(t *testing.T, name, env string) (*PostgresStore, *db.Connection) {
	t.Helper()
	dsn := os.Getenv(env)
	if dsn == "" {
		t.Skipf("%s not set, skipping Postgres integration test", env)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to ping %s: %v", name, err)
	}
	conn := &db.Connection{Pool: pool}
	t.Cleanup(conn.Close)
	return NewPostgresStore(name, conn), conn
}

func execAll(t *testing.T, conn *db.Connection, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := conn.Pool.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}

func TestPostgresMirrorRun(t *testing.T) {
	local, localConn := openTestStore(t, "local", "ROASTIFY_TEST_LOCAL_DSN")
	remote, remoteConn := openTestStore(t, "remote", "ROASTIFY_TEST_REMOTE_DSN")

	cleanup := []string{
		"DROP TABLE IF EXISTS mirror_it_clients",
		"DROP TABLE IF EXISTS mirror_it_quotes",
		"DROP TABLE IF EXISTS mirror_it_versions",
	}
	execAll(t, localConn, cleanup...)
	execAll(t, remoteConn, cleanup...)
	t.Cleanup(func() {
		execAll(t, localConn, cleanup...)
		execAll(t, remoteConn, cleanup...)
	})

	execAll(t, localConn,
		"CREATE TABLE mirror_it_clients (id SERIAL PRIMARY KEY, name TEXT NOT NULL, rate NUMERIC(10,2))",
		"INSERT INTO mirror_it_clients (name, rate) SELECT 'client-' || g, g * 1.5 FROM generate_series(1, 10) g",
		"CREATE TABLE mirror_it_quotes (id SERIAL PRIMARY KEY, amount TEXT)",
		"INSERT INTO mirror_it_quotes (amount) VALUES ('10'), ('20'), ('abc')",
	)
	execAll(t, remoteConn,
		"CREATE TABLE mirror_it_clients (id SERIAL PRIMARY KEY, name TEXT NOT NULL, rate NUMERIC(10,2))",
		"INSERT INTO mirror_it_clients (name, rate) SELECT 'stale-' || g, 0 FROM generate_series(1, 7) g",
		"CREATE TABLE mirror_it_quotes (id SERIAL PRIMARY KEY, amount NUMERIC(10,2))",
		"CREATE TABLE mirror_it_versions (id SERIAL PRIMARY KEY, version VARCHAR(20) NOT NULL, created_at TIMESTAMP DEFAULT now())",
		"INSERT INTO mirror_it_versions (version) VALUES ('1.0.0')",
	)

	manifest := Manifest{
		CreateMissing: []string{"mirror_it_versions"},
		Critical:      []string{"mirror_it_clients"},
		Remaining:     []DirectionalTable{{Table: "mirror_it_quotes", Direction: LocalToRemote}},
	}

	m := New(local, remote, WithLogger(logger.Discard()), WithBatchSize(4), WithLock(remote, 424242))
	report, err := m.Run(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if report.Schema[0].Action != ActionCreated {
		t.Fatalf("expected versions table to be created, got %+v", report.Schema[0])
	}
	if n, err := local.Count(context.Background(), "mirror_it_versions"); err != nil || n != 0 {
		t.Fatalf("expected empty local versions table, got %d (%v)", n, err)
	}

	clients, _ := report.Verification.Status("mirror_it_clients")
	if clients.Status != StatusMatch || clients.RemoteCount != 10 {
		t.Fatalf("expected clients to match at 10 rows, got %+v", clients)
	}
	var name string
	if err := remoteConn.Pool.QueryRow(context.Background(), "SELECT name FROM mirror_it_clients WHERE id = 1").Scan(&name); err != nil {
		t.Fatalf("failed to read remote client: %v", err)
	}
	if name != "client-1" {
		t.Fatalf("expected remote row to be overwritten, got %q", name)
	}

	quotes := report.Remaining[0]
	if quotes.RowsWritten != 2 || quotes.RowFailures != 1 {
		t.Fatalf("expected 2 written and 1 rejected quote, got %+v", quotes)
	}

	var nextID int64
	if err := remoteConn.Pool.QueryRow(context.Background(), "INSERT INTO mirror_it_clients (name) VALUES ('app-insert') RETURNING id").Scan(&nextID); err != nil {
		t.Fatalf("insert relying on the id default failed after sync: %v", err)
	}
	if nextID != 11 {
		t.Fatalf("expected the remote sequence to continue at 11, got %d", nextID)
	}
	execAll(t, remoteConn, "DELETE FROM mirror_it_clients WHERE name = 'app-insert'")

	again, err := m.Run(context.Background(), manifest)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if again.Critical[0].Action != ActionUnchanged {
		t.Fatalf("expected clients to be unchanged on rerun, got %s", again.Critical[0].Action)
	}
}

func TestPostgresTryLock(t *testing.T) {
	remote, _ := openTestStore(t, "remote", "ROASTIFY_TEST_REMOTE_DSN")
	ctx := context.Background()

	release, err := remote.TryLock(ctx, 424243)
	if err != nil {
		t.Fatalf("TryLock returned error: %v", err)
	}
	if _, err := remote.TryLock(ctx, 424243); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	release()

	again, err := remote.TryLock(ctx, 424243)
	if err != nil {
		t.Fatalf("TryLock after release returned error: %v", err)
	}
	again()
}
