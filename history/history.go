// Package history persists completed transcriptions in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("no transcription recorded")

type Record struct {
	ID           string
	Mode         string
	Model        string
	Text         string
	Context      string // visible screen text captured in assistant mode
	AudioSeconds float64
	LoadMs       float64
	InferenceMs  float64
	Delivered    string // clipboard, paste or empty
	CreatedAt    time.Time
}

type Store struct {
	db         *sql.DB
	maxEntries int
	clock      func() time.Time
}

// Open creates or opens the history database. maxEntries <= 0 keeps
// everything.
func Open(ctx context.Context, path string, maxEntries int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, maxEntries: maxEntries, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcriptions (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    model TEXT NOT NULL,
    text TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    audio_seconds REAL NOT NULL DEFAULT 0,
    load_ms REAL NOT NULL DEFAULT 0,
    inference_ms REAL NOT NULL DEFAULT 0,
    delivered TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created ON transcriptions(created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores r, filling ID and CreatedAt when unset.
func (s *Store) Append(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcriptions(id, mode, model, text, context, audio_seconds, load_ms, inference_ms, delivered, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mode, r.Model, r.Text, r.Context, r.AudioSeconds, r.LoadMs, r.InferenceMs, r.Delivered,
		r.CreatedAt.UnixMilli())
	if err != nil {
		return r, fmt.Errorf("append transcription: %w", err)
	}
	if s.maxEntries > 0 {
		if err := s.prune(ctx); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (s *Store) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transcriptions WHERE id NOT IN (
		   SELECT id FROM transcriptions ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
		s.maxEntries)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, model, text, context, audio_seconds, load_ms, inference_ms, delivered, created_at
		 FROM transcriptions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &r.Mode, &r.Model, &r.Text, &r.Context,
			&r.AudioSeconds, &r.LoadMs, &r.InferenceMs, &r.Delivered, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Last(ctx context.Context) (Record, error) {
	recs, err := s.List(ctx, 1)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
