package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	_ "github.com/jackc/pgx/v4/stdlib"
	"go.uber.org/zap"

	"github.com/courtmix/courtmix/scheduler"
)

const snapshotTableDDL = `
CREATE TABLE IF NOT EXISTS session_snapshots (
	session_id UUID PRIMARY KEY,
	taken_at   TIMESTAMPTZ NOT NULL,
	snapshot   JSONB NOT NULL
)`

// PostgresSnapshotStore persists snapshots in a single Postgres table through
// the pgx stdlib driver.
type PostgresSnapshotStore struct {
	logger *zap.Logger
	db     *sql.DB
}

func NewPostgresSnapshotStore(ctx context.Context, logger *zap.Logger, dsn string) (*PostgresSnapshotStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, snapshotTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}
	logger.Info("Connected to Postgres snapshot store")
	return &PostgresSnapshotStore{logger: logger, db: db}, nil
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, snap *scheduler.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	query := `
INSERT INTO session_snapshots (session_id, taken_at, snapshot)
VALUES ($1, $2, $3)
ON CONFLICT (session_id) DO UPDATE SET taken_at = EXCLUDED.taken_at, snapshot = EXCLUDED.snapshot`
	if _, err := s.db.ExecContext(ctx, query, snap.SessionID.String(), snap.TakenAt, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Load(ctx context.Context, sessionID uuid.UUID) (*scheduler.Snapshot, error) {
	query := "SELECT snapshot FROM session_snapshots WHERE session_id = $1"
	var data []byte
	if err := s.db.QueryRowContext(ctx, query, sessionID.String()).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap := &scheduler.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot for session %s: %w", sessionID, err)
	}
	return snap, nil
}

func (s *PostgresSnapshotStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	query := "DELETE FROM session_snapshots WHERE session_id = $1"
	if _, err := s.db.ExecContext(ctx, query, sessionID.String()); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Close() error {
	return s.db.Close()
}
