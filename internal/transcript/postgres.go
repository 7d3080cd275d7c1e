package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on the hosted Postgres database that the
// transcript pipeline writes to.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the transcripts
// table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store: parse database url: %w", err)
	}
	cfg.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transcripts (
			id                  TEXT PRIMARY KEY,
			filename            TEXT NOT NULL DEFAULT '',
			raw_transcript      TEXT NOT NULL DEFAULT '',
			filtered_transcript TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("transcript store: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (id, filename, raw_transcript, filtered_transcript, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			raw_transcript = EXCLUDED.raw_transcript,
			filtered_transcript = EXCLUDED.filtered_transcript
	`, t.ID, t.Filename, t.Raw, t.Content, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("transcript store: save: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, raw_transcript, filtered_transcript, created_at
		FROM transcripts WHERE id = $1`, id,
	).Scan(&t.ID, &t.Filename, &t.Raw, &t.Content, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("transcript store: get: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*Transcript, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, raw_transcript, filtered_transcript, created_at
		FROM transcripts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript store: recent: %w", err)
	}
	defer rows.Close()

	var out []*Transcript
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.ID, &t.Filename, &t.Raw, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("transcript store: scan: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
