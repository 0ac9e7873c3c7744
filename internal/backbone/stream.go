package backbone

import (
	"context"
	"time"
)

// Message is one raw payload received from a backbone channel.
type Message struct {
	Channel string
	Payload []byte
}

// Stream is a lazy, infinite sequence of inbound messages from the
// pub/sub backbone. Implementations absorb transport failures by
// re-subscribing with backoff; a backbone outage degrades to "no new
// events" and is never surfaced to connected clients.
type Stream interface {
	// Subscribe starts consuming the named channels. The returned
	// channel closes only when ctx is cancelled.
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
}

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second
)

// nextBackoff doubles the delay up to the cap.
func nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return backoffInitial
	}
	d *= 2
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
