package backbone

import (
	"context"
	"testing"
	"time"
)

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	d := time.Duration(0)
	d = nextBackoff(d)
	if d != backoffInitial {
		t.Fatalf("expected initial %v, got %v", backoffInitial, d)
	}
	for i := 0; i < 10; i++ {
		d = nextBackoff(d)
	}
	if d != backoffMax {
		t.Fatalf("expected cap %v, got %v", backoffMax, d)
	}
}

func TestSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sleep(ctx, time.Minute) {
		t.Fatalf("expected sleep to report cancellation")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not return promptly on cancel")
	}
}
