// Package history records every build attempt in PostgreSQL.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_builds (
	id            BIGSERIAL PRIMARY KEY,
	generation_id TEXT,
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT,
	documents     INTEGER NOT NULL,
	tokens        INTEGER NOT NULL,
	postings      INTEGER NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS index_builds_started_at_idx ON index_builds (started_at DESC);
`

// Build is one row of build history.
type Build struct {
	ID           int64     `json:"id"`
	GenerationID string    `json:"generation_id,omitempty"`
	Mode         string    `json:"mode"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Documents    int       `json:"documents"`
	Tokens       int       `json:"tokens"`
	Postings     int       `json:"postings"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// FromReport converts a build report into a history row.
func FromReport(report indexer.BuildReport) Build {
	b := Build{
		GenerationID: report.GenerationID,
		Mode:         string(report.Mode),
		Status:       "ok",
		Documents:    report.Stats.Documents,
		Tokens:       report.Stats.Tokens,
		Postings:     report.Stats.Postings,
		StartedAt:    report.StartedAt,
		DurationMs:   report.Duration.Milliseconds(),
	}
	if report.Err != nil {
		b.Status = "failed"
		b.Error = report.Err.Error()
	}
	return b
}

// Recorder writes build reports to the index_builds table. It implements
// indexer.Observer.
type Recorder struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewRecorder(client *postgres.Client) *Recorder {
	return &Recorder{
		client: client,
		logger: slog.Default().With("component", "build-history"),
	}
}

// EnsureSchema creates the history table if it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	return r.client.Migrate(ctx, "index_builds", schema)
}

// Record inserts b and returns its row id.
func (r *Recorder) Record(ctx context.Context, b Build) (int64, error) {
	var id int64
	err := r.client.DB.QueryRowContext(ctx,
		`INSERT INTO index_builds
			(generation_id, mode, status, error, documents, tokens, postings, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		nullable(b.GenerationID), b.Mode, b.Status, nullable(b.Error),
		b.Documents, b.Tokens, b.Postings, b.StartedAt, b.DurationMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting build record: %w", err)
	}
	return id, nil
}

// BuildFinished records report, logging rather than failing on error.
func (r *Recorder) BuildFinished(ctx context.Context, report indexer.BuildReport) {
	id, err := r.Record(ctx, FromReport(report))
	if err != nil {
		r.logger.Error("failed to record build", "generation", report.GenerationID, "error", err)
		return
	}
	r.logger.Debug("build recorded", "id", id, "generation", report.GenerationID)
}

// Recent returns up to limit builds, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Build, error) {
	rows, err := r.client.DB.QueryContext(ctx,
		`SELECT id, COALESCE(generation_id, ''), mode, status, COALESCE(error, ''),
			documents, tokens, postings, started_at, duration_ms
		FROM index_builds
		ORDER BY started_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying build history: %w", err)
	}
	defer rows.Close()

	builds := make([]Build, 0, limit)
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.GenerationID, &b.Mode, &b.Status, &b.Error,
			&b.Documents, &b.Tokens, &b.Postings, &b.StartedAt, &b.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning build record: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
