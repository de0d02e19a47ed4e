// Package diagnostics is a Postgres-backed audit sink implementing the
// Metrics collaborator (spec §6: "Metrics.incrementCounter(...) —
// best-effort; failures ignored"). It is deliberately dumb: one row per
// increment, for later aggregation by whatever dashboard reads the table.
package diagnostics

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/mezonai/dagnode/internal/clog"
	"github.com/mezonai/dagnode/internal/corestore"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS dagnode_counters (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresSink records counter increments as rows in a Postgres table.
type PostgresSink struct {
	db *sql.DB
}

// Open connects to a Postgres database using a lib/pq DSN and ensures the
// counters table exists.
func Open(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "open postgres connection", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, corestore.Wrap(corestore.KindIOError, "ping postgres", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, corestore.Wrap(corestore.KindIOError, "create counters table", err)
	}
	return &PostgresSink{db: db}, nil
}

// IncrementCounter records one occurrence of name. Per the Metrics
// collaborator contract, failures are logged and swallowed rather than
// propagated — a diagnostics outage must never affect consensus.
func (s *PostgresSink) IncrementCounter(name string) {
	if _, err := s.db.Exec(`INSERT INTO dagnode_counters (name) VALUES ($1)`, name); err != nil {
		clog.Warn("DIAGNOSTICS", "failed to record counter", name, ":", err)
	}
}

// Close releases the database connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// InMemorySink is a counter map used in place of PostgresSink when no
// Postgres DSN is configured (cmd/dagnode's default).
type InMemorySink struct {
	Counts map[string]int
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{Counts: map[string]int{}}
}

func (s *InMemorySink) IncrementCounter(name string) {
	s.Counts[name]++
}
