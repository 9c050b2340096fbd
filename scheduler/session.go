package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrDuplicatePlayer = errors.New("player id already in the roster")
	ErrUnknownPlayer   = errors.New("no such player in the roster")
	ErrUnknownCourt    = errors.New("no such court in the current round")
	ErrNoTeamSplit     = errors.New("court has no team split")
)

// Session is one evening of play: a roster, the accumulated fairness
// history, the current round's courts, and the engine that generates the
// next round. All methods are safe for concurrent use.
type Session struct {
	sync.RWMutex
	id      uuid.UUID
	logger  *zap.Logger
	metrics Metrics
	config  *Config

	rng    *rand.Rand
	engine Engine
	cost   *CostModel
	book   *RatingBook
	events *EventStream

	players []Player
	courts  []Court
	hist    *History

	createdAt time.Time
}

// NewSession builds a session from a validated config. A zero config seed
// draws one from the wall clock; a fixed seed replays identical rounds.
func NewSession(logger *zap.Logger, metrics Metrics, config *Config) (*Session, error) {
	if config == nil {
		config = NewConfig()
	} else {
		config = config.Clone()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	strategy, err := ParseStrategy(config.Strategy)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewNopMetrics()
	}
	hist := NewHistory()
	engine, err := NewEngine(strategy, hist, config)
	if err != nil {
		return nil, err
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	id := uuid.Must(uuid.NewV4())
	logger = logger.With(zap.String("session_id", id.String()))
	return &Session{
		id:        id,
		logger:    logger,
		metrics:   metrics,
		config:    config,
		rng:       rand.New(rand.NewSource(seed)),
		engine:    engine,
		cost:      NewCostModel(hist, SoftWeights()),
		book:      NewRatingBook(config.Rating),
		events:    NewEventStream(logger, config.EventQueueSize),
		players:   make([]Player, 0, 16),
		hist:      hist,
		createdAt: time.Now().UTC(),
	}, nil
}

func (s *Session) ID() uuid.UUID        { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Strategy reports the active generation strategy.
func (s *Session) Strategy() Strategy {
	s.RLock()
	defer s.RUnlock()
	return s.engine.Strategy()
}

// SetStrategy swaps the generation engine. History and the current round are
// untouched; the next Generate uses the new strategy.
func (s *Session) SetStrategy(name string) error {
	strategy, err := ParseStrategy(name)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	engine, err := NewEngine(strategy, s.hist, s.config)
	if err != nil {
		return err
	}
	s.engine = engine
	s.config.Strategy = string(strategy)
	s.logger.Info("Switched generation strategy", zap.String("strategy", string(strategy)))
	return nil
}

// AddPlayer appends a roster entry, present by default. An empty id gets a
// generated one. The new entry is returned.
func (s *Session) AddPlayer(id, name string) (Player, error) {
	s.Lock()
	defer s.Unlock()
	if id == "" {
		id = uuid.Must(uuid.NewV4()).String()
	}
	for _, p := range s.players {
		if p.ID == id {
			return Player{}, ErrDuplicatePlayer
		}
	}
	p := Player{ID: id, Name: name, Present: true}
	s.players = append(s.players, p)
	s.publishLocked(EventRosterChanged, map[string]string{"player_id": id, "change": "added"})
	return p, nil
}

// RemovePlayer drops a roster entry. The current round and all history keyed
// by the id are left as they are.
func (s *Session) RemovePlayer(id string) error {
	s.Lock()
	defer s.Unlock()
	for i, p := range s.players {
		if p.ID == id {
			s.players = slices.Delete(s.players, i, i+1)
			s.publishLocked(EventRosterChanged, map[string]string{"player_id": id, "change": "removed"})
			return nil
		}
	}
	return ErrUnknownPlayer
}

// SetPresent marks a player as available for the next round or not.
func (s *Session) SetPresent(id string, present bool) error {
	s.Lock()
	defer s.Unlock()
	for i, p := range s.players {
		if p.ID == id {
			if s.players[i].Present != present {
				s.players[i].Present = present
				s.publishLocked(EventRosterChanged, map[string]string{"player_id": id, "change": "presence"})
			}
			return nil
		}
	}
	return ErrUnknownPlayer
}

// Players returns a copy of the roster.
func (s *Session) Players() []Player {
	s.RLock()
	defer s.RUnlock()
	return slices.Clone(s.players)
}

// Generate builds the next round: up to maxCourts courts over the present
// players, benching by rotation when the pool overflows. An optional manual
// group of player ids is pinned to court 1 and the engine fills the rest. A
// manual group of three is completed with the pool player that prices
// cheapest beside them.
//
// Generating replaces the current round and closes the previous round's
// outcome ledger. With no present players or no courts it returns an empty
// round and changes nothing.
func (s *Session) Generate(maxCourts int, manual []string) ([]Court, error) {
	s.Lock()
	defer s.Unlock()
	start := time.Now()

	present := PresentPlayers(s.players)
	if len(present) < 2 || maxCourts <= 0 {
		return []Court{}, nil
	}

	s.cost.Reset()
	s.cost.BuildPairTable(present)

	manualCourt, pool := s.pinManualCourt(present, manual)
	engineCourts := maxCourts
	if manualCourt != nil {
		engineCourts--
	}

	spots := benchSpots(len(pool), engineCourts)
	_, playing := selectBench(pool, spots, s.hist, s.rng, s.config.NoConsecutiveBench)

	courts := s.engine.Assign(playing, engineCourts, s.rng)
	if manualCourt != nil {
		for i := range courts {
			courts[i].Number = i + 2
		}
		courts = append([]Court{*manualCourt}, courts...)
	}

	// Stranded players count as benched alongside the rotation picks.
	allBenched := BenchedPlayers(courts, s.players)
	s.hist.finalizeRound(courts, allBenched)
	s.courts = courts

	tags := map[string]string{"strategy": string(s.engine.Strategy())}
	s.metrics.CustomCounter("round_generated_count", tags, 1)
	s.metrics.CustomGauge("round_benched_gauge", tags, float64(len(allBenched)))
	s.metrics.CustomTimer("round_generation_time", tags, time.Since(start))
	s.logger.Info("Generated round",
		zap.Int("round", s.hist.Round),
		zap.String("strategy", string(s.engine.Strategy())),
		zap.Int("courts", len(courts)),
		zap.Int("playing", len(present)-len(allBenched)),
		zap.Int("benched", len(allBenched)),
		zap.Duration("elapsed", time.Since(start)))
	s.publishLocked(EventRoundGenerated, map[string]string{
		"courts":  intProp(len(courts)),
		"benched": intProp(len(allBenched)),
	})
	return CloneCourts(courts), nil
}

// pinManualCourt validates a manual group against the present pool and, when
// valid, returns it as court 1 plus the remaining pool. Invalid groups are
// logged and ignored rather than failing the round.
func (s *Session) pinManualCourt(present []Player, manual []string) (*Court, []Player) {
	if len(manual) == 0 {
		return nil, present
	}
	if len(manual) < 2 || len(manual) > 4 {
		s.logger.Warn("Ignoring manual court with unusable size", zap.Int("size", len(manual)))
		return nil, present
	}
	byID := make(map[string]Player, len(present))
	for _, p := range present {
		byID[p.ID] = p
	}
	group := make([]Player, 0, 4)
	seen := make(map[string]struct{}, len(manual))
	for _, id := range manual {
		p, ok := byID[id]
		if !ok {
			s.logger.Warn("Ignoring manual court with absent player", zap.String("player_id", id))
			return nil, present
		}
		if _, dup := seen[id]; dup {
			s.logger.Warn("Ignoring manual court with duplicate player", zap.String("player_id", id))
			return nil, present
		}
		seen[id] = struct{}{}
		group = append(group, p)
	}
	pool := lo.Filter(present, func(p Player, _ int) bool {
		_, pinned := seen[p.ID]
		return !pinned
	})
	if len(group) == 3 {
		fourth, ok := s.cheapestFourth(group, pool)
		if !ok {
			s.logger.Warn("Ignoring manual court of three with no player left to complete it")
			return nil, present
		}
		group = append(group, fourth)
		pool = lo.Filter(pool, func(p Player, _ int) bool { return p.ID != fourth.ID })
	}
	teams, _ := s.cost.BestSplit(group)
	return &Court{Number: 1, Players: group, Teams: teams, Manual: true}, pool
}

// cheapestFourth picks the pool player whose addition prices the pinned trio
// cheapest. First pool order wins ties.
func (s *Session) cheapestFourth(trio []Player, pool []Player) (Player, bool) {
	if len(pool) == 0 {
		return Player{}, false
	}
	best := pool[0]
	bestCost := -1.0
	group := make([]Player, 4)
	copy(group, trio)
	for _, candidate := range pool {
		group[3] = candidate
		if _, c := s.cost.BestSplit(group); bestCost < 0 || c < bestCost {
			best, bestCost = candidate, c
		}
	}
	return best, true
}

// CurrentRound returns the round number and a copy of the current courts.
func (s *Session) CurrentRound() (int, []Court) {
	s.RLock()
	defer s.RUnlock()
	return s.hist.Round, CloneCourts(s.courts)
}

// RecordWins records winners for several current-round courts at once, keyed
// by court number. Courts are processed in ascending order; the first error
// stops the batch.
func (s *Session) RecordWins(winners map[int]int) error {
	s.Lock()
	defer s.Unlock()
	numbers := make([]int, 0, len(winners))
	for n := range winners {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)
	for _, n := range numbers {
		if err := s.updateWinnerLocked(n, winners[n]); err != nil {
			return err
		}
	}
	s.metrics.CustomCounter("outcome_recorded_count", nil, int64(len(numbers)))
	s.publishLocked(EventOutcomesRecorded, map[string]string{"courts": intProp(len(numbers))})
	return nil
}

// UpdateWinner records or corrects one court's winner. Recording the same
// winner again is a no-op; changing it first takes back the earlier award.
// WinnerNone clears the outcome.
func (s *Session) UpdateWinner(courtNumber, winner int) error {
	s.Lock()
	defer s.Unlock()
	if err := s.updateWinnerLocked(courtNumber, winner); err != nil {
		return err
	}
	s.metrics.CustomCounter("winner_updated_count", nil, 1)
	s.publishLocked(EventWinnerUpdated, map[string]string{
		"court":  intProp(courtNumber),
		"winner": intProp(winner),
	})
	return nil
}

func (s *Session) updateWinnerLocked(courtNumber, winner int) error {
	for i := range s.courts {
		if s.courts[i].Number != courtNumber {
			continue
		}
		if s.courts[i].Teams == nil {
			return ErrNoTeamSplit
		}
		if err := s.hist.applyOutcome(courtNumber, s.courts[i].Teams, winner); err != nil {
			return err
		}
		s.courts[i].Winner = winner
		return nil
	}
	return ErrUnknownCourt
}

// History returns a detached copy of the fairness history.
func (s *Session) History() *History {
	s.RLock()
	defer s.RUnlock()
	return s.hist.Clone()
}

// BalanceReport replays the match journal into OpenSkill ratings and scores
// the current courts for evenness.
func (s *Session) BalanceReport() *BalanceReport {
	s.RLock()
	defer s.RUnlock()
	return s.book.buildBalanceReport(s.hist.Round, s.courts, s.hist.Journal)
}

// ResetHistory clears every counter, the journal, and the current round. The
// roster is kept.
func (s *Session) ResetHistory() {
	s.Lock()
	defer s.Unlock()
	s.hist.Reset()
	s.courts = nil
	s.metrics.CustomCounter("history_reset_count", nil, 1)
	s.logger.Info("Reset session history")
	s.publishLocked(EventHistoryReset, nil)
}

// Snapshot captures the full session state for persistence.
func (s *Session) Snapshot() *Snapshot {
	s.RLock()
	defer s.RUnlock()
	return &Snapshot{
		SessionID: s.id,
		TakenAt:   time.Now().UTC(),
		Strategy:  string(s.engine.Strategy()),
		Players:   slices.Clone(s.players),
		Courts:    CloneCourts(s.courts),
		History:   s.hist.Clone(),
	}
}

// Restore replaces the roster, current round, and history from a snapshot.
// The engine keeps pricing against the restored history, and the snapshot's
// strategy takes effect when set.
func (s *Session) Restore(snap *Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	if err := validateCourts(snap.Courts); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	s.Lock()
	defer s.Unlock()
	if snap.Strategy != "" && snap.Strategy != string(s.engine.Strategy()) {
		strategy, err := ParseStrategy(snap.Strategy)
		if err != nil {
			return fmt.Errorf("invalid snapshot: %w", err)
		}
		engine, err := NewEngine(strategy, s.hist, s.config)
		if err != nil {
			return err
		}
		s.engine = engine
		s.config.Strategy = string(strategy)
	}
	hist := NewHistory()
	if snap.History != nil {
		hist = snap.History.Clone()
		hist.normalize()
	}
	// Overwrite in place: the engine and cost model hold this pointer.
	*s.hist = *hist
	s.players = slices.Clone(snap.Players)
	s.courts = CloneCourts(snap.Courts)
	s.metrics.CustomCounter("session_restored_count", nil, 1)
	s.logger.Info("Restored session from snapshot",
		zap.Int("round", s.hist.Round),
		zap.Int("players", len(s.players)),
		zap.Time("taken_at", snap.TakenAt))
	s.publishLocked(EventHistoryRestored, map[string]string{"round": intProp(s.hist.Round)})
	return nil
}

// Events subscribes to the session's event feed.
func (s *Session) Events() (uuid.UUID, <-chan Event) {
	return s.events.Subscribe()
}

// Unsubscribe detaches one event subscriber.
func (s *Session) Unsubscribe(id uuid.UUID) {
	s.events.Unsubscribe(id)
}

// Close shuts the event stream down. The session data stays readable.
func (s *Session) Close() {
	s.events.Close()
}

func (s *Session) publishLocked(name string, props map[string]string) {
	s.events.Publish(newEvent(name, s.id, s.hist.Round, props))
}

// Snapshot is the serializable state of a session.
type Snapshot struct {
	SessionID uuid.UUID `json:"session_id"`
	TakenAt   time.Time `json:"taken_at"`
	Strategy  string    `json:"strategy"`
	Players   []Player  `json:"players"`
	Courts    []Court   `json:"courts"`
	History   *History  `json:"history"`
}
