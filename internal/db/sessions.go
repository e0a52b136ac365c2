package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/emgfes/internal/session"
	"github.com/banshee-data/emgfes/internal/timeutil"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionSummary describes one archived session.
type SessionSummary struct {
	ID          string         `json:"id"`
	FilePath    string         `json:"file_path"`
	Channels    int            `json:"channels"`
	Records     int            `json:"records"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	CreatedAt   time.Time      `json:"created_at"`
	LabelCounts map[string]int `json:"label_counts,omitempty"`
}

// TimelinePoint is one classified window of an archived session.
type TimelinePoint struct {
	Seq        int     `json:"seq"`
	Timestamp  float64 `json:"timestamp"`
	LabelIndex int     `json:"label_index"`
	Label      string  `json:"label"`
	Samples    string  `json:"samples"`
}

// ArchiveSession stores a saved session and returns its new ID. The
// session and all of its records are written in one transaction.
func (db *DB) ArchiveSession(filePath string, channels int, records []session.Record) (string, error) {
	if len(records) == 0 {
		return "", session.ErrEmpty
	}
	id := uuid.NewString()

	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO sessions (session_id, file_path, channels, record_count, started_unix, ended_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, filePath, channels, len(records), records[0].Timestamp, records[len(records)-1].Timestamp,
	); err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO session_records (session_id, seq, timestamp_unix, samples, label_index, label)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for i, r := range records {
		if _, err := stmt.Exec(id, i, r.Timestamp, r.Sample.String(), r.Label.Index, r.Label.Name); err != nil {
			return "", fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListSessions returns the most recently archived sessions first.
func (db *DB) ListSessions(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, file_path, channels, record_count, started_unix, ended_unix, created_at
		 FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns one session with its per-label window counts.
func (db *DB) GetSession(id string) (SessionSummary, error) {
	row := db.QueryRow(
		`SELECT session_id, file_path, channels, record_count, started_unix, ended_unix, created_at
		 FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionSummary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return SessionSummary{}, err
	}

	rows, err := db.Query(`SELECT label, windows FROM session_label_counts WHERE session_id = ?`, id)
	if err != nil {
		return SessionSummary{}, err
	}
	defer rows.Close()
	s.LabelCounts = make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return SessionSummary{}, err
		}
		s.LabelCounts[label] = n
	}
	return s, rows.Err()
}

// SessionTimeline returns the records of a session in order.
func (db *DB) SessionTimeline(id string) ([]TimelinePoint, error) {
	if _, err := db.GetSession(id); err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT seq, timestamp_unix, label_index, label, samples
		 FROM session_records WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TimelinePoint
	for rows.Next() {
		var p TimelinePoint
		if err := rows.Scan(&p.Seq, &p.Timestamp, &p.LabelIndex, &p.Label, &p.Samples); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteSession removes a session and its records.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionSummary, error) {
	var (
		s              SessionSummary
		started, ended float64
		created        time.Time
	)
	if err := row.Scan(&s.ID, &s.FilePath, &s.Channels, &s.Records, &started, &ended, &created); err != nil {
		return SessionSummary{}, err
	}
	s.StartedAt = timeutil.FromEpochSeconds(started).UTC()
	s.EndedAt = timeutil.FromEpochSeconds(ended).UTC()
	s.CreatedAt = created.UTC()
	return s, nil
}
