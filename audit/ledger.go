// Package audit writes a best-effort, write-only record of terminal job
// outcomes to Postgres via pgx/pgxpool. It is not job persistence: nothing
// in the running process ever reads this table back to reconstruct
// in-flight state. A write failure (or the ledger being disabled entirely)
// never affects the pipeline's own success/failure determination for a job.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/alephprint/gsprintd/events"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS job_events (
	id          BIGSERIAL PRIMARY KEY,
	job_id      TEXT NOT NULL,
	status      TEXT NOT NULL,
	format      TEXT NOT NULL,
	printers    INTEGER NOT NULL,
	message     TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
)`

const insertEventSQL = `
INSERT INTO job_events (job_id, status, format, printers, message, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Ledger is the Postgres-backed audit sink.
type Ledger struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects to dsn and ensures the job_events table exists. Callers
// should only call Open when the audit ledger is enabled in configuration.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	createCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := pool.Exec(createCtx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &Ledger{pool: pool, log: log.With().Str("component", "audit").Logger()}, nil
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() {
	l.pool.Close()
}

// Record appends one terminal job event to the ledger. It never blocks the
// caller for long: the write is bounded by a short timeout, and any error
// is logged and discarded rather than returned, matching the "ambient-stack
// failures ... never propagate into the pipeline" error policy.
func (l *Ledger) Record(ev events.JobEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := l.pool.Exec(ctx, insertEventSQL,
		ev.JobID, ev.Status, ev.Format, ev.Printers, ev.Message, ev.OccurredAt)
	if err != nil {
		l.log.Error().Err(err).Str("job_id", ev.JobID).Msg("failed to write audit event")
	}
}
