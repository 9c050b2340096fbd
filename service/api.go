package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/courtmix/courtmix/scheduler"
)

// ApiServer exposes the session registry over a JSON HTTP API, a WebSocket
// event feed per session, and the Prometheus scrape endpoint.
type ApiServer struct {
	logger   *zap.Logger
	config   *Config
	registry *SessionRegistry
	store    SnapshotStore
	metrics  *Metrics
	upgrader *websocket.Upgrader
	server   *http.Server
}

func NewApiServer(logger *zap.Logger, config *Config, registry *SessionRegistry, store SnapshotStore, metrics *Metrics) *ApiServer {
	s := &ApiServer{
		logger:   logger,
		config:   config,
		registry: registry,
		store:    store,
		metrics:  metrics,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  config.Socket.ReadBufferSizeBytes,
			WriteBufferSize: config.Socket.WriteBufferSizeBytes,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.Use(s.instrument)
	router.HandleFunc("/v1/healthcheck", s.healthcheck).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions", s.createSession).Methods(http.MethodPost)
	router.HandleFunc("/v1/sessions", s.listSessions).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions/{id}", s.getSession).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions/{id}", s.deleteSession).Methods(http.MethodDelete)
	router.HandleFunc("/v1/sessions/{id}/rounds", s.generateRound).Methods(http.MethodPost)
	router.HandleFunc("/v1/sessions/{id}/outcomes", s.recordOutcomes).Methods(http.MethodPost)
	router.HandleFunc("/v1/sessions/{id}/courts/{number}/winner", s.updateWinner).Methods(http.MethodPut)
	router.HandleFunc("/v1/sessions/{id}/reset", s.resetHistory).Methods(http.MethodPost)
	router.HandleFunc("/v1/sessions/{id}/history", s.getHistory).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions/{id}/balance", s.getBalance).Methods(http.MethodGet)
	router.HandleFunc("/v1/sessions/{id}/restore", s.restoreSession).Methods(http.MethodPost)
	router.HandleFunc("/v1/sessions/{id}/events", s.sessionEvents).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics.HTTPHandler()).Methods(http.MethodGet)
	}

	handler := handlers.CombinedLoggingHandler(zap.NewStdLog(logger).Writer(), router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(config.API.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(handler)

	s.server = &http.Server{
		Addr:        config.API.Address,
		Handler:     handler,
		ReadTimeout: time.Duration(config.API.ReadTimeoutMs) * time.Millisecond,
		IdleTimeout: time.Duration(config.API.IdleTimeoutMs) * time.Millisecond,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *ApiServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *ApiServer) Start() error {
	s.logger.Info("Starting API server", zap.String("address", s.config.API.Address))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *ApiServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type rosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createSessionRequest struct {
	Strategy string        `json:"strategy,omitempty"`
	Seed     int64         `json:"seed,omitempty"`
	Players  []rosterEntry `json:"players,omitempty"`
}

type generateRoundRequest struct {
	Courts  int           `json:"courts"`
	Manual  []string      `json:"manual,omitempty"`
	Players []rosterEntry `json:"players,omitempty"`
}

type recordOutcomesRequest struct {
	Winners map[int]int `json:"winners"`
}

type updateWinnerRequest struct {
	Winner int `json:"winner"`
}

type restoreSessionRequest struct {
	Snapshot *scheduler.Snapshot `json:"snapshot,omitempty"`
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	Strategy  string             `json:"strategy"`
	CreatedAt time.Time          `json:"created_at"`
	Round     int                `json:"round"`
	Players   []scheduler.Player `json:"players"`
	Courts    []scheduler.Court  `json:"courts"`
}

type roundResponse struct {
	Round   int                `json:"round"`
	Courts  []scheduler.Court  `json:"courts"`
	Benched []scheduler.Player `json:"benched"`
}

func sessionView(session *scheduler.Session) sessionResponse {
	round, courts := session.CurrentRound()
	return sessionResponse{
		SessionID: session.ID().String(),
		Strategy:  string(session.Strategy()),
		CreatedAt: session.CreatedAt(),
		Round:     round,
		Players:   session.Players(),
		Courts:    courts,
	}
}

func roundView(session *scheduler.Session) roundResponse {
	round, courts := session.CurrentRound()
	return roundResponse{
		Round:   round,
		Courts:  courts,
		Benched: scheduler.BenchedPlayers(courts, session.Players()),
	}
}

func (s *ApiServer) healthcheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "name": s.config.Name})
}

func (s *ApiServer) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg := s.config.Scheduler.Clone()
	if req.Strategy != "" {
		cfg.Strategy = req.Strategy
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	session, err := s.registry.Create(cfg)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := syncRoster(session, req.Players); err != nil {
		// A session with a rejected roster never becomes visible.
		_ = s.registry.Remove(session.ID())
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.persist(r.Context(), session)
	s.writeJSON(w, http.StatusCreated, sessionView(session))
}

func (s *ApiServer) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	views := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView(session))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *ApiServer) getSession(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, sessionView(session))
}

func (s *ApiServer) deleteSession(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	if err := s.registry.Remove(session.ID()); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	if err := s.store.Delete(r.Context(), session.ID()); err != nil {
		s.logger.Warn("Failed to delete stored snapshot",
			zap.String("session_id", session.ID().String()), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ApiServer) generateRound(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	var req generateRoundRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := syncRoster(session, req.Players); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	if _, err := session.Generate(req.Courts, req.Manual); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.persist(r.Context(), session)
	s.writeJSON(w, http.StatusOK, roundView(session))
}

func (s *ApiServer) recordOutcomes(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	var req recordOutcomesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Winners) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("no winners provided"))
		return
	}
	if err := session.RecordWins(req.Winners); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.persist(r.Context(), session)
	s.writeJSON(w, http.StatusOK, roundView(session))
}

func (s *ApiServer) updateWinner(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid court number: %w", err))
		return
	}
	// An empty body clears the recorded outcome.
	var req updateWinnerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := session.UpdateWinner(number, req.Winner); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.persist(r.Context(), session)
	s.writeJSON(w, http.StatusOK, roundView(session))
}

func (s *ApiServer) resetHistory(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	session.ResetHistory()
	s.persist(r.Context(), session)
	s.writeJSON(w, http.StatusOK, sessionView(session))
}

func (s *ApiServer) getHistory(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *ApiServer) getBalance(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, session.BalanceReport())
}

func (s *ApiServer) restoreSession(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	var req restoreSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	snap := req.Snapshot
	if snap == nil {
		loaded, err := s.store.Load(r.Context(), session.ID())
		switch {
		case err == nil:
			snap = loaded
		case errors.Is(err, ErrSnapshotNotFound):
			s.writeError(w, http.StatusNotFound, err)
			return
		default:
			// An unreadable stored snapshot falls back to a fresh history
			// rather than wedging the session.
			s.logger.Warn("Failed to load stored snapshot, starting fresh",
				zap.String("session_id", session.ID().String()), zap.Error(err))
			session.ResetHistory()
			s.writeJSON(w, http.StatusOK, sessionView(session))
			return
		}
	}
	if err := session.Restore(snap); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.persist(r.Context(), session)
	s.writeJSON(w, http.StatusOK, sessionView(session))
}

func (s *ApiServer) sessionEvents(w http.ResponseWriter, r *http.Request) {
	session := s.sessionFromRequest(w, r)
	if session == nil {
		return
	}
	// Subscribe before the handshake so events raced against it queue in the
	// subscriber channel instead of being lost.
	subscriberID, eventCh := session.Events()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// http.Error is invoked automatically from within the Upgrade function.
		session.Unsubscribe(subscriberID)
		s.logger.Debug("Could not upgrade to WebSocket", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.CountWebsocketOpened(1)
		defer s.metrics.CountWebsocketClosed(1)
	}
	socket := newEventSocket(
		s.logger.With(zap.String("session_id", session.ID().String())),
		s.config, session, conn, subscriberID, eventCh)
	socket.Run()
}

// sessionFromRequest resolves the {id} path variable to a live session,
// writing the error response itself when it cannot.
func (s *ApiServer) sessionFromRequest(w http.ResponseWriter, r *http.Request) *scheduler.Session {
	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return nil
	}
	session := s.registry.Get(id)
	if session == nil {
		s.writeError(w, http.StatusNotFound, ErrSessionNotFound)
		return nil
	}
	return session
}

// syncRoster reconciles the session roster with a posted player list: new
// entries are added, listed players are marked present, and players missing
// from the list are marked absent. An empty list leaves the roster untouched.
func syncRoster(session *scheduler.Session, entries []rosterEntry) error {
	if len(entries) == 0 {
		return nil
	}
	current := session.Players()
	byID := make(map[string]struct{}, len(current))
	for _, p := range current {
		byID[p.ID] = struct{}{}
	}
	listed := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.ID != "" {
			if _, ok := byID[entry.ID]; ok {
				listed[entry.ID] = struct{}{}
				if err := session.SetPresent(entry.ID, true); err != nil {
					return err
				}
				continue
			}
		}
		p, err := session.AddPlayer(entry.ID, entry.Name)
		if err != nil {
			return err
		}
		listed[p.ID] = struct{}{}
	}
	for _, p := range current {
		if _, ok := listed[p.ID]; !ok {
			if err := session.SetPresent(p.ID, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ApiServer) persist(ctx context.Context, session *scheduler.Session) {
	if err := s.store.Save(ctx, session.Snapshot()); err != nil {
		s.logger.Warn("Failed to persist session snapshot",
			zap.String("session_id", session.ID().String()), zap.Error(err))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *ApiServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *ApiServer) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// errorStatus maps scheduler and registry sentinels onto HTTP status codes.
// Anything unrecognized is treated as a bad request.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSnapshotNotFound),
		errors.Is(err, scheduler.ErrUnknownCourt),
		errors.Is(err, scheduler.ErrUnknownPlayer):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrDuplicatePlayer):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// instrument times each matched route and feeds the request metrics.
func (s *ApiServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if s.metrics == nil {
			return
		}
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.APIRequest(route, recorder.status, time.Since(start))
	})
}

// statusRecorder captures the response status while passing Hijack through
// for WebSocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}
