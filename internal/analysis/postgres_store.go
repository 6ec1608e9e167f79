package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const createAnalysesTable = `
	CREATE TABLE IF NOT EXISTS analyses (
		id               TEXT PRIMARY KEY,
		exercise         TEXT NOT NULL,
		accuracy_score   DOUBLE PRECISION NOT NULL,
		calories_burned  DOUBLE PRECISION NOT NULL,
		duration_minutes DOUBLE PRECISION NOT NULL,
		weight_kg        DOUBLE PRECISION NOT NULL,
		reference_count  INTEGER NOT NULL,
		frame_count      INTEGER NOT NULL,
		detected_frames  INTEGER NOT NULL,
		corpus_version   TEXT NOT NULL,
		video_name       TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL
	)`

// PostgresStore keeps analysis records in the analyses table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to connStr and makes sure the analyses table exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createAnalysesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create analyses table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection; the schema is assumed.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetRecord implements Store.GetRecord.
func (s *PostgresStore) GetRecord(ctx context.Context, id AnalysisID) (Record, bool, error) {
	const query = `
		SELECT id, exercise, accuracy_score, calories_burned, duration_minutes, weight_kg,
			reference_count, frame_count, detected_frames, corpus_version, video_name, created_at
		FROM analyses
		WHERE id = $1`

	var rec Record
	err := s.db.GetContext(ctx, &rec, query, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to query analysis: %w", err)
	}
	return rec, true, nil
}

// PutRecord implements Store.PutRecord.
func (s *PostgresStore) PutRecord(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO analyses (
			id, exercise, accuracy_score, calories_burned, duration_minutes, weight_kg,
			reference_count, frame_count, detected_frames, corpus_version, video_name, created_at
		) VALUES (
			:id, :exercise, :accuracy_score, :calories_burned, :duration_minutes, :weight_kg,
			:reference_count, :frame_count, :detected_frames, :corpus_version, :video_name, :created_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// ListRecords implements Store.ListRecords.
func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	const query = `
		SELECT id, exercise, accuracy_score, calories_burned, duration_minutes, weight_kg,
			reference_count, frame_count, detected_frames, corpus_version, video_name, created_at
		FROM analyses
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	if limit <= 0 {
		limit = DefaultListLimit
	}
	var recs []Record
	if err := s.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return recs, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
