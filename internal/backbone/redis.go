package backbone

import (
	"context"

	applogger "SignalGate/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisStream consumes backbone channels over Redis pub/sub.
type RedisStream struct {
	client *redis.Client
	logger *applogger.Logger
	buffer int
}

// NewRedisStream creates a Redis-backed stream on an existing client.
func NewRedisStream(lgr *applogger.Logger, client *redis.Client) *RedisStream {
	return &RedisStream{client: client, logger: lgr, buffer: 256}
}

// Subscribe implements Stream.
func (s *RedisStream) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	out := make(chan Message, s.buffer)
	go s.run(ctx, channels, out)
	return out, nil
}

func (s *RedisStream) run(ctx context.Context, channels []string, out chan<- Message) {
	defer close(out)

	backoff := backoffInitial
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := s.client.Subscribe(ctx, channels...)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("backbone subscribe failed, retrying",
				applogger.Strings("channels", channels),
				applogger.Duration("backoff_ms", backoff),
				applogger.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		s.logger.Info("backbone subscribed", applogger.Strings("channels", channels))
		backoff = backoffInitial

		if !s.pump(ctx, pubsub, out) {
			return
		}

		// Receive stream ended without cancellation: transport drop.
		s.logger.Warn("backbone connection lost, resubscribing",
			applogger.Duration("backoff_ms", backoff))
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// pump forwards messages until the pubsub channel closes. Returns false
// when ctx was cancelled.
func (s *RedisStream) pump(ctx context.Context, pubsub *redis.PubSub, out chan<- Message) bool {
	defer func() { _ = pubsub.Close() }()

	msgCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return false
		case m, ok := <-msgCh:
			if !ok {
				return true
			}
			select {
			case out <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
			case <-ctx.Done():
				return false
			}
		}
	}
}
