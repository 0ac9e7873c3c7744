package gateway

import (
	"errors"
	"sync"
	"time"

	"SignalGate/internal/domain/models"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
)

// ErrConnectionLimit is returned by Register when the gateway is full.
var ErrConnectionLimit = errors.New("connection limit reached")

// Registry owns the set of live sessions and the channel->sessions
// mapping used for fan-out. A single mutex guards every mutation and
// the broadcast snapshot; the actual network writes happen outside the
// critical section through each session's bounded outbound queue.
type Registry struct {
	logger   *applogger.Logger
	metrics  *metrics.Recorder
	maxConns int

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	byUser   map[int64]*Session
	channels map[string]map[*Session]struct{}
	subs     map[*Session]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(lgr *applogger.Logger, rec *metrics.Recorder, maxConns int) *Registry {
	if maxConns <= 0 {
		maxConns = 1000
	}
	return &Registry{
		logger:   lgr,
		metrics:  rec,
		maxConns: maxConns,
		sessions: make(map[*Session]struct{}),
		byUser:   make(map[int64]*Session),
		channels: make(map[string]map[*Session]struct{}),
		subs:     make(map[*Session]map[string]struct{}),
	}
}

// Register adds a session with its initial subscriptions. A second
// connection for the same user replaces the first; the replaced session
// is returned so the caller can close it outside the lock.
func (r *Registry) Register(s *Session, initial []string) (*Session, error) {
	r.mu.Lock()

	if len(r.sessions) >= r.maxConns {
		r.mu.Unlock()
		return nil, ErrConnectionLimit
	}

	var replaced *Session
	if old, ok := r.byUser[s.UserID()]; ok && old != s {
		r.removeLocked(old)
		// Leave Active immediately so a broadcast that snapshotted the
		// old session before removal can no longer enqueue to it.
		old.Transition(StateClosing, "replaced by new connection")
		replaced = old
	}

	r.sessions[s] = struct{}{}
	r.byUser[s.UserID()] = s
	set := make(map[string]struct{}, len(initial))
	for _, ch := range initial {
		set[ch] = struct{}{}
		r.addToChannelLocked(s, ch)
	}
	r.subs[s] = set
	total := len(r.sessions)
	r.mu.Unlock()

	r.metrics.RecordConnect()
	r.logger.Info("connection registered",
		applogger.Int64("user_id", s.UserID()),
		applogger.Strings("channels", initial),
		applogger.Int("total", total))
	return replaced, nil
}

// Unregister removes a session. Unregistering an absent session is a
// no-op, not an error.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	_, present := r.sessions[s]
	if present {
		r.removeLocked(s)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if present {
		r.logger.Info("connection unregistered",
			applogger.Int64("user_id", s.UserID()),
			applogger.Int("total", total))
	}
}

// Subscribe adds a channel to the session's subscription set.
func (r *Registry) Subscribe(s *Session, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[s]
	if !ok {
		return
	}
	set[channel] = struct{}{}
	r.addToChannelLocked(s, channel)
}

// Unsubscribe removes a channel from the session's subscription set.
func (r *Registry) Unsubscribe(s *Session, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[s]
	if !ok {
		return
	}
	delete(set, channel)
	r.removeFromChannelLocked(s, channel)
}

// Broadcast delivers event to every registered session subscribed to
// channel whose per-user filter allows it. Delivery is a non-blocking
// enqueue; a slow consumer loses its oldest buffered event instead of
// stalling the fan-out.
func (r *Registry) Broadcast(channel string, event models.Event) int {
	start := time.Now()

	r.mu.RLock()
	targets := make([]*Session, 0, len(r.channels[channel]))
	for s := range r.channels[channel] {
		if s.Filters().Allows(channel) {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Enqueue(event) {
			delivered++
			r.metrics.RecordDelivered(channel)
		}
	}

	r.metrics.RecordBroadcastLatency(time.Since(start).Seconds())
	return delivered
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ChannelCounts returns the subscriber count per channel.
func (r *Registry) ChannelCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.channels))
	for ch, set := range r.channels {
		out[ch] = len(set)
	}
	return out
}

// Subscriptions returns a copy of the session's subscription set.
func (r *Registry) Subscriptions(s *Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.subs[s]
	out := make([]string, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// removeLocked drops a session from every structure. Caller holds the lock.
func (r *Registry) removeLocked(s *Session) {
	delete(r.sessions, s)
	if cur, ok := r.byUser[s.UserID()]; ok && cur == s {
		delete(r.byUser, s.UserID())
	}
	for ch := range r.subs[s] {
		r.removeFromChannelLocked(s, ch)
	}
	delete(r.subs, s)
}

func (r *Registry) addToChannelLocked(s *Session, channel string) {
	set, ok := r.channels[channel]
	if !ok {
		set = make(map[*Session]struct{})
		r.channels[channel] = set
	}
	set[s] = struct{}{}
}

func (r *Registry) removeFromChannelLocked(s *Session, channel string) {
	set, ok := r.channels[channel]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.channels, channel)
	}
}
