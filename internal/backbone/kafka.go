package backbone

import (
	"context"
	"sync"

	applogger "SignalGate/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// KafkaStream consumes backbone channels as Kafka topics, one reader
// per channel so a stalled topic cannot starve the others.
type KafkaStream struct {
	brokers []string
	groupID string
	logger  *applogger.Logger
	buffer  int
}

// NewKafkaStream creates a Kafka-backed stream.
func NewKafkaStream(lgr *applogger.Logger, brokers []string, groupID string) *KafkaStream {
	if groupID == "" {
		groupID = "signalgate"
	}
	return &KafkaStream{brokers: brokers, groupID: groupID, logger: lgr, buffer: 256}
}

// Subscribe implements Stream.
func (s *KafkaStream) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	out := make(chan Message, s.buffer)

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			s.consume(ctx, channel, out)
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func (s *KafkaStream) consume(ctx context.Context, channel string, out chan<- Message) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.brokers,
		GroupID:  s.groupID,
		Topic:    channel,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() { _ = reader.Close() }()

	backoff := backoffInitial
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("backbone read failed, retrying",
				applogger.String("channel", channel),
				applogger.Duration("backoff_ms", backoff),
				applogger.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = backoffInitial

		select {
		case out <- Message{Channel: channel, Payload: m.Value}:
		case <-ctx.Done():
			return
		}
	}
}
