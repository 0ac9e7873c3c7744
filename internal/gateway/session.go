package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"SignalGate/internal/domain/models"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"

	"github.com/gorilla/websocket"
)

// Session states. Transitions: Connecting -> Authenticating -> Active ->
// Closing -> Closed, with Authenticating -> Closed on rejection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Application close codes. 1000 and anything unknown trigger the
// standard client behavior; 4001 tells the client not to retry.
const (
	CloseAuthRejected = 4001
	CloseLimitReached = 4002
)

const (
	maxFrameSize = 64 << 10
	writeTimeout = 10 * time.Second
)

// Session is the per-connection state machine. It owns its transport
// connection, a bounded outbound queue drained by a dedicated writer
// goroutine, and the liveness deadline enforced on the read side.
type Session struct {
	conn     *websocket.Conn
	logger   *applogger.Logger
	metrics  *metrics.Recorder
	registry *Registry

	identity  models.Identity
	filters   models.FilterSpec
	heartbeat time.Duration

	out  chan models.Event
	done chan struct{}

	state      atomic.Int32
	seq        atomic.Uint64
	lastSeen   atomic.Int64
	registered atomic.Bool
	closeOnce  sync.Once
}

// NewSession wraps an upgraded connection. The session starts in
// Connecting; the handler drives it through authentication.
func NewSession(conn *websocket.Conn, lgr *applogger.Logger, rec *metrics.Recorder, reg *Registry, heartbeat time.Duration, sendBuffer int) *Session {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 100
	}
	s := &Session{
		conn:      conn,
		logger:    lgr,
		metrics:   rec,
		registry:  reg,
		heartbeat: heartbeat,
		out:       make(chan models.Event, sendBuffer),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	s.touch()
	return s
}

// SetIdentity attaches the verified identity. Must be called before Register.
func (s *Session) SetIdentity(id models.Identity) { s.identity = id }

// SetFilters attaches the per-user filter spec. Must be called before Register.
func (s *Session) SetFilters(f models.FilterSpec) { s.filters = f }

// Identity returns the verified identity.
func (s *Session) Identity() models.Identity { return s.identity }

// Filters returns the per-user filter spec.
func (s *Session) Filters() models.FilterSpec { return s.filters }

// UserID returns the authenticated user id.
func (s *Session) UserID() int64 { return s.identity.UserID() }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Seq returns the outbound sequence counter.
func (s *Session) Seq() uint64 { return s.seq.Load() }

// LastSeen returns the time of the last inbound frame.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// MarkRegistered records that the registry holds this session, so the
// eventual close decrements the connection gauge exactly once.
func (s *Session) MarkRegistered() { s.registered.Store(true) }

// Transition moves the session to a new state, logging the reason.
func (s *Session) Transition(to State, reason string) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("session state",
		applogger.Int64("user_id", s.UserID()),
		applogger.String("from", from.String()),
		applogger.String("to", to.String()),
		applogger.String("reason", reason))
}

// Enqueue places an event on the outbound queue without blocking. When
// the queue is full the oldest buffered event is dropped so one slow
// consumer cannot stall the fan-out. Returns false if the session is
// not active or the event had to be discarded outright.
func (s *Session) Enqueue(event models.Event) bool {
	if s.State() != StateActive {
		return false
	}
	select {
	case s.out <- event:
		return true
	default:
	}
	// Queue saturated: drop the oldest and retry once.
	select {
	case old := <-s.out:
		s.metrics.RecordDropped(old.Type)
		s.logger.Warn("slow consumer, dropped oldest event",
			applogger.Int64("user_id", s.UserID()),
			applogger.String("type", old.Type))
	default:
	}
	select {
	case s.out <- event:
		return true
	default:
		return false
	}
}

// Run services the connection until it closes: the writer goroutine
// drains the outbound queue while the calling goroutine processes
// inbound frames and enforces the liveness deadline.
func (s *Session) Run() {
	go s.writeLoop()
	s.readLoop()
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.out:
			data, err := event.Marshal()
			if err != nil {
				s.logger.Error("marshal event", applogger.Error(err))
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close(websocket.CloseNormalClosure, "transport_error")
				return
			}
			s.seq.Add(1)
		}
	}
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(maxFrameSize)
	idle := 2 * s.heartbeat

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(idle))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				s.Close(websocket.CloseNormalClosure, "idle_timeout")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.Close(websocket.CloseNormalClosure, "client_closed")
			default:
				// Abrupt socket failure: treated as a normal disconnect.
				s.Close(websocket.CloseNormalClosure, "transport_error")
			}
			return
		}
		s.touch()
		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	raw := strings.TrimSpace(string(data))
	if strings.EqualFold(raw, models.FramePing) {
		s.Enqueue(models.NewEvent(models.EventPong, map[string]interface{}{"user_id": s.UserID()}))
		return
	}

	var frame models.ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.Enqueue(models.NewEvent(models.EventError, map[string]interface{}{"error": "unrecognized frame"}))
		return
	}

	switch frame.Type {
	case models.FramePing:
		s.Enqueue(models.NewEvent(models.EventPong, map[string]interface{}{"user_id": s.UserID()}))
	case models.FrameSubscribe:
		if frame.Channel == "" {
			return
		}
		s.registry.Subscribe(s, frame.Channel)
		s.logger.Info("subscribed",
			applogger.Int64("user_id", s.UserID()),
			applogger.String("channel", frame.Channel))
		s.Enqueue(models.NewEvent(models.EventSubscribed, map[string]interface{}{"channel": frame.Channel}))
	case models.FrameUnsubscribe:
		if frame.Channel == "" {
			return
		}
		s.registry.Unsubscribe(s, frame.Channel)
		s.logger.Info("unsubscribed",
			applogger.Int64("user_id", s.UserID()),
			applogger.String("channel", frame.Channel))
		s.Enqueue(models.NewEvent(models.EventUnsubscribed, map[string]interface{}{"channel": frame.Channel}))
	default:
		s.logger.Debug("unknown frame type",
			applogger.Int64("user_id", s.UserID()),
			applogger.String("type", frame.Type))
	}
}

// Close terminates the session exactly once: best-effort close frame,
// transport teardown, unregister. Safe to call from any goroutine.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.Transition(StateClosing, reason)

		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
		close(s.done)

		s.Transition(StateClosed, reason)
		if s.registered.Load() {
			s.registry.Unregister(s)
			s.metrics.RecordDisconnect(reason)
		}
	})
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
