package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SignalGate/internal/domain/models"
	applogger "SignalGate/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func TestReconnectorDeliversEventsAndStopsOnNormalClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ev := models.NewEvent("impulse:new", map[string]interface{}{"symbol": "BTCUSDT"})
		data, _ := ev.Marshal()
		_ = conn.WriteMessage(websocket.TextMessage, data)
		closeWith(conn, websocket.CloseNormalClosure, "done")
	}))
	defer srv.Close()

	got := make(chan models.Event, 1)
	r, err := NewReconnector(Config{
		URL:    wsURL(srv),
		Source: StaticCredential("creds"),
		Logger: testLogger(t),
		OnEvent: func(ev models.Event) {
			select {
			case got <- ev:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("new reconnector: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Type != "impulse:new" {
			t.Fatalf("unexpected event type %q", ev.Type)
		}
	default:
		t.Fatalf("no event delivered")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped state, got %v", r.State())
	}
}

func TestReconnectorStopsOnAuthRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeWith(conn, 4001, "signature_mismatch")
	}))
	defer srv.Close()

	r, err := NewReconnector(Config{
		URL:    wsURL(srv),
		Source: StaticCredential("bad"),
		Logger: testLogger(t),
	})
	if err != nil {
		t.Fatalf("new reconnector: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = r.Run(ctx)
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected auth rejection, got %v", err)
	}
}

func TestReconnectorRetriesAfterTransportFailure(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if dials.Add(1) == 1 {
			// Abrupt drop without a close frame.
			conn.Close()
			return
		}
		closeWith(conn, websocket.CloseNormalClosure, "done")
	}))
	defer srv.Close()

	r, err := NewReconnector(Config{
		URL:            wsURL(srv),
		Source:         StaticCredential("creds"),
		Logger:         testLogger(t),
		ReconnectDelay: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new reconnector: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := dials.Load(); n != 2 {
		t.Fatalf("expected 2 connection attempts, got %d", n)
	}
}

func TestReconnectorStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Hold the connection open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	r, err := NewReconnector(Config{
		URL:    wsURL(srv),
		Source: StaticCredential("creds"),
		Logger: testLogger(t),
	})
	if err != nil {
		t.Fatalf("new reconnector: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

type flakySource struct {
	failures int
	calls    int
}

func (f *flakySource) InitData(context.Context) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("webview not ready")
	}
	return "creds", nil
}

func TestAcquireRetries(t *testing.T) {
	src := &flakySource{failures: 2}
	initData, err := acquire(context.Background(), src, 3, time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if initData != "creds" || src.calls != 3 {
		t.Fatalf("got %q after %d calls", initData, src.calls)
	}
}

func TestAcquireExhausted(t *testing.T) {
	src := &flakySource{failures: 10}
	_, err := acquire(context.Background(), src, 3, time.Millisecond)
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
	if src.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", src.calls)
	}
}
