package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/san-kum/fitpipe/server/models"
)

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// Journal is the SQLite log of repetition attempts.
type Journal struct {
	db *sql.DB
}

type JournalStats struct {
	Attempts  int64 `json:"attempts"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Accepted  int64 `json:"accepted"`
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal dir for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// SQLite serialises writers, and every connection to :memory: is a
	// separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS attempts (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL,
		exercise          TEXT NOT NULL,
		outcome           TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT '',
		frame_count       INTEGER NOT NULL,
		scored            INTEGER NOT NULL DEFAULT 0,
		accepted          INTEGER NOT NULL DEFAULT 0,
		landmark_feedback TEXT NOT NULL DEFAULT '',
		angle_feedback    TEXT NOT NULL DEFAULT '',
		error             TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating attempts table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS attempts_session ON attempts (session_id, created_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating attempts index: %w", err)
	}

	return &Journal{db: db}, nil
}

// RecordAttempt stores rec, filling in ID and CreatedAt when unset.
func (j *Journal) RecordAttempt(ctx context.Context, rec *models.AttemptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO attempts (id, session_id, exercise, outcome, status, frame_count,
			scored, accepted, landmark_feedback, angle_feedback, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Exercise, rec.Outcome, rec.Status, rec.FrameCount,
		rec.Scored, rec.Accepted, rec.LandmarkFeedback, rec.AngleFeedback, rec.Error,
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording attempt %s: %w", rec.ID, err)
	}
	return nil
}

// ListAttempts returns up to limit attempts of a session, newest first.
func (j *Journal) ListAttempts(ctx context.Context, sessionID string, limit int) ([]models.AttemptRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, exercise, outcome, status, frame_count, scored, accepted,
			landmark_feedback, angle_feedback, error, created_at
		FROM attempts WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer rows.Close()

	records := []models.AttemptRecord{}
	for rows.Next() {
		var rec models.AttemptRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Exercise, &rec.Outcome, &rec.Status,
			&rec.FrameCount, &rec.Scored, &rec.Accepted, &rec.LandmarkFeedback,
			&rec.AngleFeedback, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (j *Journal) Stats(ctx context.Context) (*JournalStats, error) {
	var stats JournalStats
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(outcome = ?), 0),
			COALESCE(SUM(outcome = ?), 0),
			COALESCE(SUM(accepted), 0)
		FROM attempts`,
		models.AttemptCompleted, models.AttemptFailed,
	).Scan(&stats.Attempts, &stats.Completed, &stats.Failed, &stats.Accepted)
	if err != nil {
		return nil, fmt.Errorf("reading journal stats: %w", err)
	}
	return &stats, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
