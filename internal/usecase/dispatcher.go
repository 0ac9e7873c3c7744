package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"SignalGate/internal/activity"
	"SignalGate/internal/backbone"
	"SignalGate/internal/domain/models"
	"SignalGate/internal/gateway"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
)

// EventDispatcher consumes backbone messages and fans them out to the
// connected sessions. It also feeds the activity tracker and broadcasts
// a zone event whenever a channel crosses a zone boundary.
type EventDispatcher struct {
	stream   backbone.Stream
	registry *gateway.Registry
	tracker  *activity.Tracker
	metrics  *metrics.Recorder
	logger   *applogger.Logger
	channels []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventDispatcher(
	stream backbone.Stream,
	reg *gateway.Registry,
	tracker *activity.Tracker,
	rec *metrics.Recorder,
	lgr *applogger.Logger,
	channels []string,
) *EventDispatcher {
	return &EventDispatcher{
		stream:   stream,
		registry: reg,
		tracker:  tracker,
		metrics:  rec,
		logger:   lgr,
		channels: channels,
	}
}

// Start subscribes to the configured channels and begins dispatching.
func (d *EventDispatcher) Start(ctx context.Context) error {
	if len(d.channels) == 0 {
		return fmt.Errorf("dispatcher: no channels configured")
	}

	ctx, d.cancel = context.WithCancel(ctx)
	msgs, err := d.stream.Subscribe(ctx, d.channels...)
	if err != nil {
		d.cancel()
		return fmt.Errorf("dispatcher: subscribe: %w", err)
	}

	d.logger.Info("dispatcher started", applogger.Strings("channels", d.channels))

	d.wg.Add(1)
	go d.consume(msgs)
	return nil
}

// Shutdown stops consumption and waits for the dispatch loop to drain.
func (d *EventDispatcher) Shutdown() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *EventDispatcher) consume(msgs <-chan backbone.Message) {
	defer d.wg.Done()

	for m := range msgs {
		d.metrics.RecordBackboneEvent(m.Channel)
		d.dispatch(m)
	}
}

func (d *EventDispatcher) dispatch(m backbone.Message) {
	var payload map[string]interface{}
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		d.logger.Warn("dropping malformed backbone payload",
			applogger.String("channel", m.Channel),
			applogger.Error(err))
		return
	}

	ev := models.NewEvent(models.EventTypeForChannel(m.Channel), payload)
	delivered := d.registry.Broadcast(m.Channel, ev)

	d.logger.Debug("event dispatched",
		applogger.String("channel", m.Channel),
		applogger.Int("delivered", delivered))

	status, changed := d.tracker.Record(m.Channel)
	if changed {
		d.logger.Info("activity zone changed",
			applogger.String("channel", m.Channel),
			applogger.String("zone", string(status.Zone)))
		d.registry.Broadcast(m.Channel, models.NewEvent(models.EventActivityZone, map[string]interface{}{
			"channel": m.Channel,
			"zone":    status.Zone,
			"ratio":   status.Ratio,
		}))
	}
}
