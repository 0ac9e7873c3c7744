package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"SignalGate/internal/activity"
	"SignalGate/internal/auth"
	"SignalGate/internal/domain/models"
	"SignalGate/internal/service/ratelimit"
	"SignalGate/pkg/config"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// devUserID identifies sessions on the unauthenticated dev endpoint.
const devUserID = 12345

// FilterStore looks up per-user delivery filters. Lookup errors fail
// open: the session is registered with no extra filtering.
type FilterStore interface {
	UserFilters(ctx context.Context, userID int64) (models.FilterSpec, error)
}

// Handler serves the WebSocket endpoints and drives sessions through
// handshake, registration and steady state.
type Handler struct {
	cfg      *config.Config
	logger   *applogger.Logger
	metrics  *metrics.Recorder
	registry *Registry
	filters  FilterStore
	tracker  *activity.Tracker
	limiter  *ratelimit.Limiter
	upgrader websocket.Upgrader
}

// NewHandler creates the WebSocket handler. filters may be nil when the
// settings collaborator is disabled.
func NewHandler(cfg *config.Config, lgr *applogger.Logger, rec *metrics.Recorder, reg *Registry, filters FilterStore, tracker *activity.Tracker) *Handler {
	return &Handler{
		cfg:      cfg,
		logger:   lgr,
		metrics:  rec,
		registry: reg,
		filters:  filters,
		tracker:  tracker,
		limiter:  ratelimit.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Mini App webviews connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers /ws and, in dev mode only, /ws/dev.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.serveWS)
	if h.cfg.Server.DevMode {
		e.GET("/ws/dev", h.serveDevWS)
	}
}

// Registry exposes the registry for the REST surface.
func (h *Handler) Registry() *Registry { return h.registry }

// Tracker exposes the activity tracker for the REST surface.
func (h *Handler) Tracker() *activity.Tracker { return h.tracker }

func (h *Handler) serveWS(c echo.Context) error {
	if !h.allowConnect(c.RealIP()) {
		return c.NoContent(http.StatusTooManyRequests)
	}

	initData := c.QueryParam("initData")

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // upgrader has already written the error response
	}

	s := NewSession(conn, h.logger, h.metrics, h.registry, h.cfg.HeartbeatInterval(), h.cfg.SendBuffer())
	s.Transition(StateAuthenticating, "handshake")

	// Credential may arrive as a query parameter or as the first frame.
	if initData == "" {
		initData, err = awaitCredential(conn, h.cfg.HandshakeTimeout())
		if err != nil {
			h.logger.Info("handshake timed out", applogger.String("remote", c.RealIP()))
			s.Close(CloseAuthRejected, "handshake_timeout")
			return nil
		}
	}

	identity, err := auth.Verify(initData, h.cfg.Telegram.BotToken, h.cfg.MaxAuthAge())
	if err != nil {
		kind := auth.Kind(err)
		h.metrics.RecordAuthFailure(kind)
		h.logger.Warn("websocket auth failed",
			applogger.String("kind", kind),
			applogger.String("remote", c.RealIP()),
			applogger.Error(err))
		s.Close(CloseAuthRejected, kind)
		return nil
	}

	s.SetIdentity(identity)
	h.activate(c.Request().Context(), s)
	return nil
}

func (h *Handler) serveDevWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	s := NewSession(conn, h.logger, h.metrics, h.registry, h.cfg.HeartbeatInterval(), h.cfg.SendBuffer())
	s.SetIdentity(models.Identity{
		User:     models.TelegramUser{ID: devUserID, Username: "dev"},
		AuthDate: time.Now().UTC(),
	})
	h.logger.Warn("dev connection accepted without credential",
		applogger.String("remote", c.RealIP()))
	h.activate(c.Request().Context(), s)
	return nil
}

// activate registers the session and runs it until disconnect.
func (h *Handler) activate(ctx context.Context, s *Session) {
	if h.filters != nil {
		spec, err := h.filters.UserFilters(ctx, s.UserID())
		if err != nil {
			// Fail open: delivery must not block on the settings store.
			h.logger.Warn("filter lookup failed, delivering unfiltered",
				applogger.Int64("user_id", s.UserID()),
				applogger.Error(err))
		} else {
			s.SetFilters(spec)
		}
	}

	replaced, err := h.registry.Register(s, h.cfg.Backbone.Channels)
	if err != nil {
		if errors.Is(err, ErrConnectionLimit) {
			h.logger.Warn("connection limit reached, rejecting",
				applogger.Int64("user_id", s.UserID()))
			s.Close(CloseLimitReached, "connection limit reached")
			return
		}
		s.Close(websocket.CloseNormalClosure, "register_failed")
		return
	}
	s.MarkRegistered()
	if replaced != nil {
		replaced.Close(websocket.CloseNormalClosure, "replaced by new connection")
	}

	s.Transition(StateActive, "authenticated")
	s.Enqueue(models.NewEvent(models.EventConnected, map[string]interface{}{
		"user_id":  s.UserID(),
		"username": s.Identity().User.Username,
		"activity": h.tracker.Snapshot(),
	}))

	s.Run()
}

func (h *Handler) allowConnect(ip string) bool {
	rate := h.cfg.WebSocket.ConnectRate
	burst := h.cfg.WebSocket.ConnectBurst
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return h.limiter.Allow(ip, burst, rate)
}

// awaitCredential reads the first frame within the handshake window and
// extracts the credential from it: either the raw initData string or a
// JSON object with an "initData" field.
func awaitCredential(conn *websocket.Conn, window time.Duration) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(window))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}

	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, "{") {
		var frame struct {
			InitData string `json:"initData"`
		}
		if err := json.Unmarshal(data, &frame); err == nil && frame.InitData != "" {
			return frame.InitData, nil
		}
	}
	return raw, nil
}
