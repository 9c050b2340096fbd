package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/courtmix/courtmix/scheduler"
)

var ErrSnapshotNotFound = errors.New("no snapshot stored for session")

// SnapshotStore persists session snapshots across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, snap *scheduler.Snapshot) error
	Load(ctx context.Context, sessionID uuid.UUID) (*scheduler.Snapshot, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// NewSnapshotStore selects the backend named by the configuration.
func NewSnapshotStore(ctx context.Context, logger *zap.Logger, config *Config) (SnapshotStore, error) {
	switch config.Storage.Backend {
	case "", StorageBackendMemory:
		return NewMemorySnapshotStore(), nil
	case StorageBackendFile:
		return NewFileSnapshotStore(logger, config.Storage.Dir)
	case StorageBackendPostgres:
		return NewPostgresSnapshotStore(ctx, logger, config.Storage.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}
}

// MemorySnapshotStore keeps snapshots in process memory. It is the default
// backend and the test double.
type MemorySnapshotStore struct {
	sync.RWMutex
	snapshots map[uuid.UUID][]byte
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[uuid.UUID][]byte)}
}

func (s *MemorySnapshotStore) Save(ctx context.Context, snap *scheduler.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	s.Lock()
	s.snapshots[snap.SessionID] = data
	s.Unlock()
	return nil
}

func (s *MemorySnapshotStore) Load(ctx context.Context, sessionID uuid.UUID) (*scheduler.Snapshot, error) {
	s.RLock()
	data, ok := s.snapshots[sessionID]
	s.RUnlock()
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	snap := &scheduler.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func (s *MemorySnapshotStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.Lock()
	delete(s.snapshots, sessionID)
	s.Unlock()
	return nil
}

// FileSnapshotStore writes one JSON file per session under a directory. Saves
// go through a temp file rename so a crash never leaves a half-written
// snapshot behind.
type FileSnapshotStore struct {
	logger *zap.Logger
	dir    string
}

func NewFileSnapshotStore(logger *zap.Logger, dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSnapshotStore{logger: logger, dir: dir}, nil
}

func (s *FileSnapshotStore) path(sessionID uuid.UUID) string {
	return filepath.Join(s.dir, sessionID.String()+".json")
}

func (s *FileSnapshotStore) Save(ctx context.Context, snap *scheduler.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	path := s.path(snap.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move snapshot file into place: %w", err)
	}
	s.logger.Debug("Saved session snapshot",
		zap.String("session_id", snap.SessionID.String()),
		zap.String("path", path))
	return nil
}

func (s *FileSnapshotStore) Load(ctx context.Context, sessionID uuid.UUID) (*scheduler.Snapshot, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	snap := &scheduler.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot file for session %s: %w", sessionID, err)
	}
	return snap, nil
}

func (s *FileSnapshotStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	return nil
}
