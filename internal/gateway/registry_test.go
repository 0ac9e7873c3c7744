package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"

	"SignalGate/internal/domain/models"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func testDeps(t *testing.T) (*applogger.Logger, *metrics.Recorder) {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr, metrics.NewWith(prometheus.NewRegistry())
}

// newActiveSession builds a registered-capable session without a
// transport. Tests drain s.out directly instead of running the loops.
func newActiveSession(t *testing.T, lgr *applogger.Logger, rec *metrics.Recorder, reg *Registry, userID int64, buffer int) *Session {
	t.Helper()
	s := NewSession(nil, lgr, rec, reg, time.Second, buffer)
	s.SetIdentity(models.Identity{User: models.TelegramUser{ID: userID}})
	s.Transition(StateActive, "test")
	return s
}

func drain(s *Session) []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-s.out:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcastFanOut(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	var impulse []*Session
	for i := int64(1); i <= 3; i++ {
		s := newActiveSession(t, lgr, rec, reg, i, 8)
		if _, err := reg.Register(s, []string{"impulse"}); err != nil {
			t.Fatalf("register: %v", err)
		}
		impulse = append(impulse, s)
	}
	babloOnly := newActiveSession(t, lgr, rec, reg, 99, 8)
	if _, err := reg.Register(babloOnly, []string{"bablo"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ev := models.NewEvent("impulse:new", map[string]interface{}{"symbol": "BTCUSDT"})
	if n := reg.Broadcast("impulse", ev); n != 3 {
		t.Fatalf("expected 3 deliveries, got %d", n)
	}

	for i, s := range impulse {
		got := drain(s)
		if len(got) != 1 || got[0].Type != "impulse:new" {
			t.Fatalf("session %d: unexpected events %+v", i, got)
		}
	}
	if got := drain(babloOnly); len(got) != 0 {
		t.Fatalf("bablo subscriber must not receive impulse events, got %+v", got)
	}
}

func TestBroadcastHonorsFilters(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	s := newActiveSession(t, lgr, rec, reg, 1, 8)
	s.SetFilters(models.FilterSpec{Channels: []string{"bablo"}})
	if _, err := reg.Register(s, []string{"impulse", "bablo"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if n := reg.Broadcast("impulse", models.NewEvent("impulse:new", nil)); n != 0 {
		t.Fatalf("filtered channel must not deliver, got %d", n)
	}
	if n := reg.Broadcast("bablo", models.NewEvent("bablo:new", nil)); n != 1 {
		t.Fatalf("allowed channel must deliver, got %d", n)
	}
}

func TestRegisterReplacesDuplicateUser(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	first := newActiveSession(t, lgr, rec, reg, 7, 8)
	if _, err := reg.Register(first, []string{"impulse"}); err != nil {
		t.Fatalf("register first: %v", err)
	}

	second := newActiveSession(t, lgr, rec, reg, 7, 8)
	replaced, err := reg.Register(second, []string{"impulse"})
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if replaced != first {
		t.Fatalf("expected first session to be replaced")
	}
	if reg.Count() != 1 {
		t.Fatalf("expected 1 live session, got %d", reg.Count())
	}

	// The replaced session no longer receives broadcasts.
	if n := reg.Broadcast("impulse", models.NewEvent("impulse:new", nil)); n != 1 {
		t.Fatalf("expected single delivery, got %d", n)
	}
	if got := drain(first); len(got) != 0 {
		t.Fatalf("replaced session must not receive events, got %+v", got)
	}
}

func TestReplacedSessionStopsAcceptingEvents(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	first := newActiveSession(t, lgr, rec, reg, 7, 8)
	if _, err := reg.Register(first, []string{"impulse"}); err != nil {
		t.Fatalf("register first: %v", err)
	}

	second := newActiveSession(t, lgr, rec, reg, 7, 8)
	if _, err := reg.Register(second, []string{"impulse"}); err != nil {
		t.Fatalf("register second: %v", err)
	}

	// Register itself moves the old session out of Active, before the
	// caller gets around to closing it.
	if first.State() == StateActive {
		t.Fatalf("replaced session still active after Register")
	}
	if first.Enqueue(models.NewEvent("impulse:new", nil)) {
		t.Fatalf("replaced session must not accept new events")
	}
}

func TestUnregisterDuringBroadcast(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 500)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ev := models.NewEvent("impulse:new", nil)
		for {
			select {
			case <-stop:
				return
			default:
				reg.Broadcast("impulse", ev)
			}
		}
	}()

	// Register and remove sessions while the broadcast loop is hot. The
	// race detector covers the snapshot/removal interleavings.
	for i := int64(1); i <= 200; i++ {
		s := newActiveSession(t, lgr, rec, reg, i, 4)
		if _, err := reg.Register(s, []string{"impulse"}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		reg.Unregister(s)
	}

	close(stop)
	wg.Wait()

	if reg.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Count())
	}
	if n := reg.Broadcast("impulse", models.NewEvent("impulse:new", nil)); n != 0 {
		t.Fatalf("no session should remain subscribed, delivered %d", n)
	}
}

func TestRegisterConnectionLimit(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 2)

	for i := int64(1); i <= 2; i++ {
		s := newActiveSession(t, lgr, rec, reg, i, 8)
		if _, err := reg.Register(s, nil); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	s := newActiveSession(t, lgr, rec, reg, 3, 8)
	if _, err := reg.Register(s, nil); !errors.Is(err, ErrConnectionLimit) {
		t.Fatalf("expected ErrConnectionLimit, got %v", err)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	s := newActiveSession(t, lgr, rec, reg, 1, 8)
	if _, err := reg.Register(s, []string{"impulse"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.Unregister(s)
	reg.Unregister(s)

	if reg.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Count())
	}
	if counts := reg.ChannelCounts(); len(counts) != 0 {
		t.Fatalf("expected no channel entries, got %+v", counts)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	s := newActiveSession(t, lgr, rec, reg, 1, 8)
	if _, err := reg.Register(s, []string{"impulse"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.Subscribe(s, "bablo")
	if counts := reg.ChannelCounts(); counts["bablo"] != 1 {
		t.Fatalf("expected bablo subscription, got %+v", counts)
	}

	reg.Unsubscribe(s, "impulse")
	if n := reg.Broadcast("impulse", models.NewEvent("impulse:new", nil)); n != 0 {
		t.Fatalf("unsubscribed channel must not deliver, got %d", n)
	}
	if n := reg.Broadcast("bablo", models.NewEvent("bablo:new", nil)); n != 1 {
		t.Fatalf("expected bablo delivery, got %d", n)
	}
}

func TestEnqueueDropsOldestWhenSaturated(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	s := newActiveSession(t, lgr, rec, reg, 1, 2)

	for i := 0; i < 3; i++ {
		ev := models.NewEvent("impulse:new", map[string]interface{}{"n": i})
		if !s.Enqueue(ev) {
			t.Fatalf("enqueue %d should succeed after dropping oldest", i)
		}
	}

	got := drain(s)
	if len(got) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(got))
	}
	if got[0].Data.(map[string]interface{})["n"] != 1 {
		t.Fatalf("expected oldest event to be dropped, kept %+v", got[0].Data)
	}
}

func TestEnqueueRejectedWhenNotActive(t *testing.T) {
	lgr, rec := testDeps(t)
	reg := NewRegistry(lgr, rec, 10)

	s := NewSession(nil, lgr, rec, reg, time.Second, 8)
	if s.Enqueue(models.NewEvent("impulse:new", nil)) {
		t.Fatalf("enqueue must fail before the session is active")
	}
}
