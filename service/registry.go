package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/courtmix/courtmix/scheduler"
)

var ErrSessionNotFound = errors.New("no such session")

// SessionRegistry tracks the live scheduling sessions by ID. Session methods
// are individually safe for concurrent use; the registry only guards the map.
type SessionRegistry struct {
	sync.RWMutex
	logger   *zap.Logger
	metrics  scheduler.Metrics
	config   *Config
	sessions map[uuid.UUID]*scheduler.Session
}

func NewSessionRegistry(logger *zap.Logger, metrics scheduler.Metrics, config *Config) *SessionRegistry {
	if metrics == nil {
		metrics = scheduler.NewNopMetrics()
	}
	return &SessionRegistry{
		logger:   logger,
		metrics:  metrics,
		config:   config,
		sessions: make(map[uuid.UUID]*scheduler.Session),
	}
}

// Create builds a new session from the given tuning, falling back to the
// service defaults when cfg is nil, and registers it.
func (r *SessionRegistry) Create(cfg *scheduler.Config) (*scheduler.Session, error) {
	if cfg == nil {
		cfg = r.config.Scheduler.Clone()
	}
	session, err := scheduler.NewSession(r.logger, r.metrics, cfg)
	if err != nil {
		return nil, err
	}
	r.Lock()
	r.sessions[session.ID()] = session
	count := len(r.sessions)
	r.Unlock()
	r.metrics.CustomGauge("sessions_active_gauge", nil, float64(count))
	r.logger.Info("Created session",
		zap.String("session_id", session.ID().String()),
		zap.String("strategy", string(session.Strategy())),
		zap.Int("sessions", count))
	return session, nil
}

// Get returns the session with the given id, or nil when it is not
// registered.
func (r *SessionRegistry) Get(id uuid.UUID) *scheduler.Session {
	r.RLock()
	defer r.RUnlock()
	return r.sessions[id]
}

// List returns the registered sessions ordered by creation time.
func (r *SessionRegistry) List() []*scheduler.Session {
	r.RLock()
	sessions := make([]*scheduler.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.RUnlock()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt().Before(sessions[j].CreatedAt())
	})
	return sessions
}

// Count reports how many sessions are registered.
func (r *SessionRegistry) Count() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.sessions)
}

// Remove closes a session and drops it from the registry.
func (r *SessionRegistry) Remove(id uuid.UUID) error {
	r.Lock()
	session, ok := r.sessions[id]
	if !ok {
		r.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	count := len(r.sessions)
	r.Unlock()
	session.Close()
	r.metrics.CustomGauge("sessions_active_gauge", nil, float64(count))
	r.logger.Info("Removed session", zap.String("session_id", id.String()), zap.Int("sessions", count))
	return nil
}

// SaveAll snapshots every registered session into the store. Failures are
// logged per session and do not stop the sweep.
func (r *SessionRegistry) SaveAll(ctx context.Context, store SnapshotStore) {
	for _, session := range r.List() {
		if err := store.Save(ctx, session.Snapshot()); err != nil {
			r.logger.Warn("Failed to persist session snapshot",
				zap.String("session_id", session.ID().String()),
				zap.Error(err))
		}
	}
}

// Shutdown closes every session's event stream. The registry stays usable
// for reads so in-flight requests can drain.
func (r *SessionRegistry) Shutdown() {
	for _, session := range r.List() {
		session.Close()
	}
	r.logger.Info("Session registry shut down", zap.Int("sessions", r.Count()))
}
