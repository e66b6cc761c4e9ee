// Package history keeps an audit log of booking attempts in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of one booking attempt.
type Status string

const (
	StatusWaiting   Status = "waiting"   // blocked until the window opens
	StatusRunning   Status = "running"   // executor is driving the site
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Attempt is one booking attempt record.
type Attempt struct {
	ID            string     `json:"id"`
	Identity      string     `json:"identity"`
	Channel       string     `json:"channel"`
	OriginID      uint32     `json:"origin_id"`
	DestinationID uint32     `json:"destination_id"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	TravelDate    string     `json:"travel_date"`
	Status        Status     `json:"status"`
	Detail        string     `json:"detail,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Store persists attempts. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the attempt database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id             TEXT PRIMARY KEY,
			identity       TEXT NOT NULL,
			channel        TEXT NOT NULL DEFAULT '',
			origin_id      INTEGER NOT NULL,
			destination_id INTEGER NOT NULL,
			origin         TEXT NOT NULL,
			destination    TEXT NOT NULL,
			travel_date    TEXT NOT NULL,
			status         TEXT NOT NULL,
			detail         TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			finished_at    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_attempts_identity ON attempts(identity);
		CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
	`)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or updates an attempt.
func (s *Store) Save(a Attempt) error {
	var finishedAt *string
	if a.FinishedAt != nil {
		v := a.FinishedAt.UTC().Format(time.RFC3339)
		finishedAt = &v
	}
	_, err := s.db.Exec(`
		INSERT INTO attempts (id, identity, channel, origin_id, destination_id, origin, destination, travel_date, status, detail, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, detail=excluded.detail, finished_at=excluded.finished_at
	`, a.ID, a.Identity, a.Channel, a.OriginID, a.DestinationID, a.Origin, a.Destination,
		a.TravelDate, string(a.Status), a.Detail, a.CreatedAt.UTC().Format(time.RFC3339), finishedAt)
	if err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

// SetStatus updates an attempt's status and detail. Terminal statuses stamp
// the finish time.
func (s *Store) SetStatus(id string, status Status, detail string) error {
	var finishedAt *string
	switch status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		v := time.Now().UTC().Format(time.RFC3339)
		finishedAt = &v
	}
	_, err := s.db.Exec(`UPDATE attempts SET status = ?, detail = ?, finished_at = COALESCE(?, finished_at) WHERE id = ?`,
		string(status), detail, finishedAt, id)
	if err != nil {
		return fmt.Errorf("history: set status: %w", err)
	}
	return nil
}

// ListRecent returns the newest attempts, optionally filtered by identity.
// limit <= 0 defaults to 20.
func (s *Store) ListRecent(identity string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, identity, channel, origin_id, destination_id, origin, destination, travel_date, status, detail, created_at, finished_at
		FROM attempts`
	args := []any{}
	if identity != "" {
		query += ` WHERE identity = ?`
		args = append(args, identity)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var status, createdAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.Identity, &a.Channel, &a.OriginID, &a.DestinationID,
			&a.Origin, &a.Destination, &a.TravelDate, &status, &a.Detail, &createdAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		a.Status = Status(status)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if finishedAt.Valid {
			if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
				a.FinishedAt = &t
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes attempts created before the cutoff and returns how many rows
// were removed.
func (s *Store) Prune(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM attempts WHERE created_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
