// Package audit persists safety decision records. Records carry decision
// metadata only; message content never reaches the store.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/tracer"
)

// SQLiteRecorder implements domain.AuditRecorder using SQLite.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS safety_events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type      TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			layer           TEXT NOT NULL DEFAULT '',
			topics          TEXT NOT NULL DEFAULT '',
			reason          TEXT NOT NULL DEFAULT '',
			provider        TEXT NOT NULL DEFAULT '',
			model           TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_safety_events_conversation
			ON safety_events (conversation_id);
		CREATE INDEX IF NOT EXISTS idx_safety_events_type
			ON safety_events (event_type, created_at);
	`)
	return err
}

// Record implements domain.AuditRecorder. The event is also attached to the
// active trace span so safety decisions show up in traces.
func (s *SQLiteRecorder) Record(ctx context.Context, event domain.AuditEvent) error {
	_, span := tracer.StartSpan(ctx, "audit.record")
	defer span.End()

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	span.SetAttributes(
		tracer.StringAttr("audit.type", string(event.Type)),
		tracer.StringAttr("audit.layer", string(event.Layer)),
	)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO safety_events
			(event_type, conversation_id, layer, topics, reason, provider, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(event.Type), event.ConversationID, string(event.Layer),
		joinTopics(event.Topics), event.Reason, event.Provider, event.Model,
		ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("%w: %v", domain.ErrAuditWrite, err)
	}
	tracer.SetOK(span)
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}

// CountByType returns event counts per type since the given time.
// Useful for operational review of safety activity.
func (s *SQLiteRecorder) CountByType(ctx context.Context, since time.Time) (map[domain.AuditEventType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, COUNT(*) FROM safety_events WHERE created_at >= ? GROUP BY event_type",
		since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query audit counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AuditEventType]int)
	for rows.Next() {
		var et string
		var n int
		if err := rows.Scan(&et, &n); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		counts[domain.AuditEventType(et)] = n
	}
	return counts, rows.Err()
}

func joinTopics(topics []domain.Topic) string {
	if len(topics) == 0 {
		return ""
	}
	parts := make([]string, len(topics))
	for i, t := range topics {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

var _ domain.AuditRecorder = (*SQLiteRecorder)(nil)
