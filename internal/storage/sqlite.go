package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/telemetry"
)

const createSchemaSQL = `
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pid TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_samples_pid_time
		ON samples(pid, recorded_at DESC);

	CREATE TABLE IF NOT EXISTS dtc_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		description TEXT,
		detected_at TEXT NOT NULL,
		cleared INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_dtc_events_detected_at
		ON dtc_events(detected_at DESC);
`

// Ties on recorded_at go to the later insertion (higher id).
const latestSamplesSQL = `
	SELECT pid, recorded_at, payload FROM (
		SELECT pid, recorded_at, payload,
			ROW_NUMBER() OVER (PARTITION BY pid ORDER BY recorded_at DESC, id DESC) AS rn
		FROM samples
	)
	WHERE rn = 1
	ORDER BY pid ASC
`

const dtcHistorySQL = `
	SELECT code, description, detected_at, cleared
	FROM dtc_events
	ORDER BY detected_at DESC, id DESC
	LIMIT ?
`

type sqliteStore struct {
	path string

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLiteStore creates a SQLite-backed store. The database is opened
// lazily by Init or the first operation.
func NewSQLiteStore(path string) Store {
	return &sqliteStore{path: path}
}

func (s *sqliteStore) Init() error {
	_, err := s.conn()
	return err
}

// conn returns the open database handle, opening it and ensuring the schema
// on first use
func (s *sqliteStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(createSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s.db = db
	return db, nil
}

func (s *sqliteStore) InsertSamples(samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (pid, recorded_at, payload) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		payload, err := json.Marshal(sample)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal sample: %w", err)
		}
		if _, err := stmt.Exec(sample.PID, formatTime(sample.RecordedAt), string(payload)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqliteStore) LatestSamples() ([]telemetry.Sample, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(latestSamplesSQL)
	if err != nil {
		return nil, fmt.Errorf("query latest samples: %w", err)
	}
	defer rows.Close()

	var samples []telemetry.Sample
	for rows.Next() {
		var pid, recordedAt, payload string
		if err := rows.Scan(&pid, &recordedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}

		var sample telemetry.Sample
		if err := json.Unmarshal([]byte(payload), &sample); err != nil {
			return nil, fmt.Errorf("unmarshal sample: %w", err)
		}
		// Indexed columns are authoritative.
		sample.PID = pid
		if t, err := parseTime(recordedAt); err == nil {
			sample.RecordedAt = t
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (s *sqliteStore) AppendDTCs(codes []obd.DTC, cleared bool) error {
	if len(codes) == 0 {
		return nil
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	detectedAt := formatTime(telemetry.Timestamp(time.Now()))

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO dtc_events (code, description, detected_at, cleared) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, dtc := range codes {
		var description any
		if dtc.Description != "" {
			description = dtc.Description
		}
		if _, err := stmt.Exec(dtc.Code, description, detectedAt, boolToInt(cleared)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert dtc: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqliteStore) DTCHistory(limit int) ([]telemetry.DTCEvent, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := db.Query(dtcHistorySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query dtc history: %w", err)
	}
	defer rows.Close()

	var events []telemetry.DTCEvent
	for rows.Next() {
		var code, detectedAt string
		var description sql.NullString
		var cleared int
		if err := rows.Scan(&code, &description, &detectedAt, &cleared); err != nil {
			return nil, fmt.Errorf("scan dtc: %w", err)
		}

		event := telemetry.DTCEvent{
			Code:        code,
			Description: description.String,
			Cleared:     cleared != 0,
		}
		if t, err := parseTime(detectedAt); err == nil {
			event.DetectedAt = t
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
