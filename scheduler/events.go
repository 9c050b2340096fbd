package scheduler

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Event names published by a session.
const (
	EventRoundGenerated   = "round_generated"
	EventOutcomesRecorded = "outcomes_recorded"
	EventWinnerUpdated    = "winner_updated"
	EventHistoryReset     = "history_reset"
	EventHistoryRestored  = "history_restored"
	EventRosterChanged    = "roster_changed"
)

// Event is one session occurrence delivered to subscribers.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	SessionID  uuid.UUID         `json:"session_id"`
	Round      int               `json:"round"`
	CreatedAt  time.Time         `json:"created_at"`
	Properties map[string]string `json:"properties,omitempty"`
}

// EventStream fans session events out to subscribers over buffered channels.
// Delivery never blocks the publisher: a subscriber that cannot keep up has
// events dropped, counted, and logged, rather than stalling round
// generation.
type EventStream struct {
	sync.Mutex
	logger    *zap.Logger
	subs      map[uuid.UUID]chan Event
	queueSize int
	dropped   *atomic.Int64
	closed    bool
}

func NewEventStream(logger *zap.Logger, queueSize int) *EventStream {
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}
	return &EventStream{
		logger:    logger,
		subs:      make(map[uuid.UUID]chan Event),
		queueSize: queueSize,
		dropped:   atomic.NewInt64(0),
	}
}

// Subscribe registers a new subscriber and returns its id and channel. On a
// closed stream the returned channel is already closed.
func (s *EventStream) Subscribe() (uuid.UUID, <-chan Event) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		ch := make(chan Event)
		close(ch)
		return uuid.Nil, ch
	}
	id := uuid.Must(uuid.NewV4())
	ch := make(chan Event, s.queueSize)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *EventStream) Unsubscribe(id uuid.UUID) {
	s.Lock()
	defer s.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Publish delivers the event to every subscriber that has queue room.
func (s *EventStream) Publish(evt Event) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return
	}
	for id, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// The subscriber queue is full, likely because the consumer
			// can't keep up. Drop rather than block the session.
			s.dropped.Inc()
			s.logger.Warn("Event subscriber queue full, dropping event",
				zap.String("event", evt.Name),
				zap.String("subscriber_id", id.String()))
		}
	}
}

// Dropped reports how many events have been discarded on full queues.
func (s *EventStream) Dropped() int64 {
	return s.dropped.Load()
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (s *EventStream) Close() {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func newEvent(name string, sessionID uuid.UUID, round int, props map[string]string) Event {
	return Event{
		ID:         uuid.Must(uuid.NewV4()),
		Name:       name,
		SessionID:  sessionID,
		Round:      round,
		CreatedAt:  time.Now().UTC(),
		Properties: props,
	}
}

func intProp(v int) string {
	return strconv.Itoa(v)
}
