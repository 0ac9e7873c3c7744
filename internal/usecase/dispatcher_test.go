package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalGate/internal/activity"
	"SignalGate/internal/backbone"
	"SignalGate/internal/gateway"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeStream struct {
	ch  chan backbone.Message
	err error
}

func (f *fakeStream) Subscribe(_ context.Context, _ ...string) (<-chan backbone.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func newTestDispatcher(t *testing.T, fs *fakeStream, channels []string) (*EventDispatcher, *activity.Tracker) {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	rec := metrics.NewWith(prometheus.NewRegistry())
	reg := gateway.NewRegistry(lgr, rec, 10)
	tracker := activity.NewTracker(10, time.Minute)
	return NewEventDispatcher(fs, reg, tracker, rec, lgr, channels), tracker
}

func TestDispatcherRecordsActivity(t *testing.T) {
	fs := &fakeStream{ch: make(chan backbone.Message, 4)}
	d, tracker := newTestDispatcher(t, fs, []string{"impulse"})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	fs.ch <- backbone.Message{Channel: "impulse", Payload: []byte(`{"symbol":"BTCUSDT"}`)}
	fs.ch <- backbone.Message{Channel: "impulse", Payload: []byte(`{"symbol":"ETHUSDT"}`)}
	close(fs.ch)
	d.Shutdown()

	if got := tracker.Current("impulse").Count; got != 2 {
		t.Fatalf("expected 2 tracked events, got %d", got)
	}
}

func TestDispatcherSkipsMalformedPayload(t *testing.T) {
	fs := &fakeStream{ch: make(chan backbone.Message, 2)}
	d, tracker := newTestDispatcher(t, fs, []string{"impulse"})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	fs.ch <- backbone.Message{Channel: "impulse", Payload: []byte(`not json`)}
	close(fs.ch)
	d.Shutdown()

	if got := tracker.Current("impulse").Count; got != 0 {
		t.Fatalf("malformed payload must not count as activity, got %d", got)
	}
}

func TestDispatcherStartErrors(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeStream{ch: make(chan backbone.Message)}, nil)
	if err := d.Start(context.Background()); err == nil {
		t.Fatalf("expected error for empty channel list")
	}

	fs := &fakeStream{err: errors.New("broker unreachable")}
	d, _ = newTestDispatcher(t, fs, []string{"impulse"})
	if err := d.Start(context.Background()); err == nil {
		t.Fatalf("expected subscribe error to propagate")
	}
}
