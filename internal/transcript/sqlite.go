package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout has fixed-width fractions so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcript store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id                  TEXT PRIMARY KEY,
			filename            TEXT NOT NULL DEFAULT '',
			raw_transcript      TEXT NOT NULL DEFAULT '',
			filtered_transcript TEXT NOT NULL DEFAULT '',
			created_at          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`)
	if err != nil {
		return fmt.Errorf("transcript store: migrate: %w", err)
	}
	return nil
}

// Save inserts or replaces t. A missing ID or CreatedAt is filled in.
func (s *SQLiteStore) Save(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, filename, raw_transcript, filtered_transcript, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename=excluded.filename, raw_transcript=excluded.raw_transcript,
			filtered_transcript=excluded.filtered_transcript
	`, t.ID, t.Filename, t.Raw, t.Content, t.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("transcript store: save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Transcript, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, filename, raw_transcript, filtered_transcript, created_at FROM transcripts WHERE id = ?`, id)
	t, err := scanSQLite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("transcript store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Transcript, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, raw_transcript, filtered_transcript, created_at
		FROM transcripts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript store: recent: %w", err)
	}
	defer rows.Close()

	var out []*Transcript
	for rows.Next() {
		t, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("transcript store: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(s scanner) (*Transcript, error) {
	var t Transcript
	var created string
	if err := s.Scan(&t.ID, &t.Filename, &t.Raw, &t.Content, &created); err != nil {
		return nil, err
	}
	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	t.CreatedAt = ts
	return &t, nil
}
