package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/courtmix/courtmix/scheduler"
)

// eventSocket streams one session's event feed over a WebSocket. All writes
// go through a single pump with ping keepalives and write deadlines; the read
// side only services pongs and close frames. A per-connection rate limiter
// sheds events a slow client cannot absorb.
type eventSocket struct {
	sync.Mutex
	logger  *zap.Logger
	config  *Config
	session *scheduler.Session

	ctx         context.Context
	ctxCancelFn context.CancelFunc

	pingPeriodDuration time.Duration
	pongWaitDuration   time.Duration
	writeWaitDuration  time.Duration

	stopped      *atomic.Bool
	conn         *websocket.Conn
	pingTimer    *time.Timer
	pingTimerCAS *atomic.Uint32
	limiter      *rate.Limiter
	subscriberID uuid.UUID
	eventCh      <-chan scheduler.Event
	dropped      *atomic.Int64
}

func newEventSocket(logger *zap.Logger, config *Config, session *scheduler.Session, conn *websocket.Conn, subscriberID uuid.UUID, eventCh <-chan scheduler.Event) *eventSocket {
	ctx, ctxCancelFn := context.WithCancel(context.Background())

	return &eventSocket{
		logger:  logger,
		config:  config,
		session: session,

		ctx:         ctx,
		ctxCancelFn: ctxCancelFn,

		pingPeriodDuration: time.Duration(config.Socket.PingPeriodMs) * time.Millisecond,
		pongWaitDuration:   time.Duration(config.Socket.PongWaitMs) * time.Millisecond,
		writeWaitDuration:  time.Duration(config.Socket.WriteWaitMs) * time.Millisecond,

		stopped:      atomic.NewBool(false),
		conn:         conn,
		pingTimer:    time.NewTimer(time.Duration(config.Socket.PingPeriodMs) * time.Millisecond),
		pingTimerCAS: atomic.NewUint32(1),
		limiter:      rate.NewLimiter(rate.Limit(config.Socket.EventRateLimit), config.Socket.EventRateBurst),
		subscriberID: subscriberID,
		eventCh:      eventCh,
		dropped:      atomic.NewInt64(0),
	}
}

func (s *eventSocket) IsStopped() bool {
	return s.stopped.Load()
}

// Run pumps events until the client disconnects or the session closes. It
// blocks the caller for the lifetime of the connection.
func (s *eventSocket) Run() {
	go s.consume()
	s.processOutgoing()
}

// consume services the read side: pongs reset the ping timer, anything else
// from the client is discarded.
func (s *eventSocket) consume() {
	s.conn.SetReadLimit(s.config.Socket.MaxMessageSizeBytes)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.pongWaitDuration)); err != nil {
		s.logger.Warn("Failed to set initial read deadline", zap.Error(err))
		return
	}
	s.conn.SetPongHandler(func(string) error {
		s.maybeResetPingTimer()
		return nil
	})
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				var opErr *net.OpError
				if !errors.As(err, &opErr) || opErr.Error() != net.ErrClosed.Error() {
					s.logger.Debug("Error reading message from client", zap.Error(err))
				}
			}
			break
		}
	}
	s.Close()
}

func (s *eventSocket) maybeResetPingTimer() bool {
	// If there's already a reset in progress there's no need to wait.
	if !s.pingTimerCAS.CompareAndSwap(1, 0) {
		return true
	}
	defer s.pingTimerCAS.CompareAndSwap(0, 1)

	if s.IsStopped() {
		return false
	}
	s.Lock()
	if !s.pingTimer.Stop() {
		select {
		case <-s.pingTimer.C:
		default:
		}
	}
	s.pingTimer.Reset(s.pingPeriodDuration)
	err := s.conn.SetReadDeadline(time.Now().Add(s.pongWaitDuration))
	s.Unlock()
	if err != nil {
		s.logger.Warn("Failed to set read deadline", zap.Error(err))
		s.Close()
		return false
	}
	return true
}

func (s *eventSocket) processOutgoing() {
OutgoingLoop:
	for {
		select {
		case <-s.ctx.Done():
			break OutgoingLoop
		case <-s.pingTimer.C:
			if !s.pingNow() {
				break OutgoingLoop
			}
		case evt, ok := <-s.eventCh:
			if !ok {
				// The session closed its event stream.
				break OutgoingLoop
			}
			if s.IsStopped() {
				break OutgoingLoop
			}
			if !s.limiter.Allow() {
				s.dropped.Inc()
				s.logger.Warn("Event rate limit exceeded, dropping event", zap.String("event", evt.Name))
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Warn("Failed to marshal event", zap.Error(err))
				continue
			}
			s.Lock()
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWaitDuration)); err != nil {
				s.Unlock()
				s.logger.Warn("Failed to set write deadline", zap.Error(err))
				break OutgoingLoop
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Unlock()
				s.logger.Warn("Could not write event", zap.Error(err))
				break OutgoingLoop
			}
			s.Unlock()
		}
	}
	s.Close()
}

func (s *eventSocket) pingNow() bool {
	if s.IsStopped() {
		return false
	}
	s.Lock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWaitDuration)); err != nil {
		s.Unlock()
		s.logger.Warn("Could not set write deadline to ping", zap.Error(err))
		return false
	}
	err := s.conn.WriteMessage(websocket.PingMessage, []byte{})
	s.Unlock()
	if err != nil {
		s.logger.Warn("Could not send ping", zap.Error(err))
		return false
	}
	return true
}

func (s *eventSocket) Close() {
	s.ctxCancelFn()

	if s.IsStopped() {
		return
	}
	s.stopped.Store(true)

	s.session.Unsubscribe(s.subscriberID)
	s.pingTimer.Stop()

	if err := s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(s.writeWaitDuration)); err != nil {
		// This may not be possible if the socket was already fully closed by an error.
		s.logger.Debug("Could not send close message", zap.Error(err))
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("Could not close", zap.Error(err))
	}

	s.logger.Info("Closed event feed connection", zap.Int64("dropped_events", s.dropped.Load()))
}
