package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/sentinel/pkg/retry"
)

// SQLiteJournal persists audit events to a local SQLite database so the
// escalation history survives daemon restarts. It implements Sink; in the
// daemon it sits behind an AsyncSink, so the retrying insert never runs on
// the supervisor's path.
type SQLiteJournal struct {
	db    *sql.DB
	retry retry.Config
}

// NewSQLiteJournal opens (or creates) the journal database.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	// WAL for concurrent readers, a generous busy timeout, and a single
	// writer connection to avoid SQLITE_BUSY storms.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	j := &SQLiteJournal{db: db, retry: retry.DefaultConfig()}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		severity TEXT NOT NULL,
		details TEXT,
		emitted_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_emitted_at
		ON audit_events(emitted_at_ms);

	CREATE INDEX IF NOT EXISTS idx_audit_events_event
		ON audit_events(event);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Emit writes the event to the journal. Write failures are retried with
// backoff; a persistent failure is swallowed, since audit delivery must
// never propagate errors back into the supervisor.
func (j *SQLiteJournal) Emit(ev Event) {
	stamp(&ev)

	var details []byte
	if len(ev.Details) > 0 {
		var err error
		details, err = json.Marshal(ev.Details)
		if err != nil {
			details = nil
		}
	}

	_ = retry.Do(context.Background(), j.retry, func() error {
		_, err := j.db.Exec(
			`INSERT OR IGNORE INTO audit_events (id, event, severity, details, emitted_at_ms)
			 VALUES (?, ?, ?, ?, ?)`,
			ev.ID, ev.Event, string(ev.Severity), nullableString(details), ev.EmittedAtMs,
		)
		return err
	})
}

// RecentEvents returns up to limit events, newest first.
func (j *SQLiteJournal) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.Query(
		`SELECT id, event, severity, details, emitted_at_ms
		 FROM audit_events
		 ORDER BY emitted_at_ms DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var severity string
		var details sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Event, &severity, &details, &ev.EmittedAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Severity = Severity(severity)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &ev.Details); err != nil {
				ev.Details = map[string]interface{}{"raw": details.String}
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
