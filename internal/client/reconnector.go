package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"SignalGate/internal/domain/models"
	applogger "SignalGate/pkg/logger"

	"github.com/gorilla/websocket"
)

// Close codes the gateway uses to signal terminal conditions.
const (
	closeAuthRejected = 4001
	closeLimitReached = 4002
)

// State of the reconnector loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAuthRejected is returned when the gateway refuses the credential.
// Reconnecting with the same credential would fail the same way, so the
// loop stops instead of retrying.
var ErrAuthRejected = fmt.Errorf("gateway rejected credential")

// Config configures a Reconnector. URL and Logger are required; Source
// may be nil for the unauthenticated dev endpoint.
type Config struct {
	URL    string
	Source CredentialSource
	Logger *applogger.Logger

	HeartbeatInterval    time.Duration // default 30s
	ReconnectDelay       time.Duration // default 3s
	CredentialAttempts   int           // default 3
	CredentialRetryDelay time.Duration // default 1s

	// OnEvent receives every decoded event. Called from the read loop,
	// so it must not block.
	OnEvent func(models.Event)
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.CredentialAttempts <= 0 {
		c.CredentialAttempts = 3
	}
	if c.CredentialRetryDelay <= 0 {
		c.CredentialRetryDelay = time.Second
	}
}

// Reconnector maintains a gateway connection, re-establishing it after
// transport failures with a fixed delay. Normal closure and credential
// rejection end the loop.
type Reconnector struct {
	cfg   Config
	state atomic.Int32
}

func NewReconnector(cfg Config) (*Reconnector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("reconnector: url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("reconnector: bad url: %w", err)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("reconnector: logger is required")
	}
	cfg.applyDefaults()
	return &Reconnector{cfg: cfg}, nil
}

// State returns the current loop state.
func (r *Reconnector) State() State {
	return State(r.state.Load())
}

func (r *Reconnector) setState(s State) {
	r.state.Store(int32(s))
}

// Run connects and keeps the connection alive until ctx is cancelled,
// the server closes normally, or the credential is rejected.
func (r *Reconnector) Run(ctx context.Context) error {
	defer r.setState(StateStopped)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.setState(StateConnecting)

		target, err := r.dialTarget(ctx)
		if err != nil {
			return err
		}

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			r.cfg.Logger.Warn("dial failed", applogger.Error(err))
			r.setState(StateDisconnected)
			if !r.pause(ctx) {
				return ctx.Err()
			}
			continue
		}

		r.setState(StateConnected)
		r.cfg.Logger.Info("connected", applogger.String("url", r.cfg.URL))

		err = r.pump(ctx, conn)
		r.setState(StateDisconnected)

		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure):
			r.cfg.Logger.Info("server closed connection")
			return nil
		case websocket.IsCloseError(err, closeAuthRejected):
			return fmt.Errorf("%w: %v", ErrAuthRejected, err)
		case ctx.Err() != nil:
			return ctx.Err()
		}

		r.cfg.Logger.Warn("connection lost, reconnecting", applogger.Error(err))
		if !r.pause(ctx) {
			return ctx.Err()
		}
	}
}

// dialTarget builds the connection URL, acquiring a credential when a
// source is configured.
func (r *Reconnector) dialTarget(ctx context.Context) (string, error) {
	if r.cfg.Source == nil {
		return r.cfg.URL, nil
	}
	initData, err := acquire(ctx, r.cfg.Source, r.cfg.CredentialAttempts, r.cfg.CredentialRetryDelay)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("initData", initData)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pump reads events and sends heartbeats until the connection fails.
func (r *Reconnector) pump(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(r.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				deadline := time.Now().Add(time.Second)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if r.cfg.OnEvent == nil {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			r.cfg.Logger.Debug("skipping undecodable frame", applogger.Error(err))
			continue
		}
		r.cfg.OnEvent(ev)
	}
}

// pause waits out the reconnect delay, returning false on cancellation.
func (r *Reconnector) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(r.cfg.ReconnectDelay):
		return true
	}
}
