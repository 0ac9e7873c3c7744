package activity

import (
	"sync"
	"time"
)

// Status describes the current activity of one channel.
type Status struct {
	Zone  Zone    `json:"zone"`
	Ratio float64 `json:"ratio"`
	Count int     `json:"count"`
}

// Tracker counts events per channel over a sliding window and
// classifies the observed rate against a configured baseline. It is
// safe for concurrent use.
type Tracker struct {
	baseline float64
	window   time.Duration

	mu       sync.Mutex
	events   map[string][]time.Time
	lastZone map[string]Zone
}

// NewTracker creates a tracker. A non-positive window defaults to 5m.
func NewTracker(baseline float64, window time.Duration) *Tracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Tracker{
		baseline: baseline,
		window:   window,
		events:   make(map[string][]time.Time),
		lastZone: make(map[string]Zone),
	}
}

// Record registers one event on channel and returns the new status plus
// whether the zone changed since the previous observation.
func (t *Tracker) Record(channel string) (Status, bool) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	evs := t.prune(channel, now)
	evs = append(evs, now)
	t.events[channel] = evs

	zone, ratio := Classify(float64(len(evs)), t.baseline)
	changed := false
	if prev, ok := t.lastZone[channel]; !ok || prev != zone {
		t.lastZone[channel] = zone
		changed = ok // first observation is not a change
	}
	return Status{Zone: zone, Ratio: ratio, Count: len(evs)}, changed
}

// Current returns the status of channel without recording an event.
func (t *Tracker) Current(channel string) Status {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	evs := t.prune(channel, now)
	zone, ratio := Classify(float64(len(evs)), t.baseline)
	return Status{Zone: zone, Ratio: ratio, Count: len(evs)}
}

// Snapshot returns the status of every tracked channel.
func (t *Tracker) Snapshot() map[string]Status {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Status, len(t.events))
	for ch := range t.events {
		evs := t.prune(ch, now)
		zone, ratio := Classify(float64(len(evs)), t.baseline)
		out[ch] = Status{Zone: zone, Ratio: ratio, Count: len(evs)}
	}
	return out
}

// prune drops events outside the window. Caller holds the lock.
func (t *Tracker) prune(channel string, now time.Time) []time.Time {
	evs := t.events[channel]
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(evs) && evs[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		evs = evs[i:]
		t.events[channel] = evs
	}
	return evs
}
