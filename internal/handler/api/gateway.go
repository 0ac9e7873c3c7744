package api

import (
	"time"

	"SignalGate/internal/activity"
	"SignalGate/internal/auth"
	"SignalGate/internal/domain/models"
	"SignalGate/internal/gateway"
	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	applogger "SignalGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GatewayHandler serves the REST surface next to the WebSocket
// endpoints: health, live stats and a credential verification check for
// the frontend.
type GatewayHandler struct {
	cfg      *config.Config
	logger   *applogger.Logger
	registry *gateway.Registry
	tracker  *activity.Tracker
}

func NewGatewayHandler(cfg *config.Config, lgr *applogger.Logger, reg *gateway.Registry, tracker *activity.Tracker) *GatewayHandler {
	return &GatewayHandler{
		cfg:      cfg,
		logger:   lgr,
		registry: reg,
		tracker:  tracker,
	}
}

// RegisterRoutes registers the REST routes.
func (h *GatewayHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/stats", h.Stats)
	g.POST("/auth/verify", h.VerifyCredential)
}

// Health reports process liveness.
func (h *GatewayHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":      "ok",
		"environment": h.cfg.Environment,
	})
}

type statsResponse struct {
	Connections int                        `json:"connections"`
	Channels    map[string]int             `json:"channels"`
	Activity    map[string]activity.Status `json:"activity"`
}

// Stats reports live connection and activity figures.
func (h *GatewayHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, statsResponse{
		Connections: h.registry.Count(),
		Channels:    h.registry.ChannelCounts(),
		Activity:    h.tracker.Snapshot(),
	})
}

type verifyResponse struct {
	User     models.TelegramUser `json:"user"`
	AuthDate time.Time           `json:"auth_date"`
}

// VerifyCredential checks a Mini App credential without opening a
// connection, so the frontend can surface auth problems early.
func (h *GatewayHandler) VerifyCredential(c echo.Context) error {
	req := new(models.VerifyRequest)
	if err := xhttp.ReadAndValidateRequest(c, req); err != nil {
		return xhttp.BadRequestResponse(c, err)
	}

	identity, err := auth.Verify(req.InitData, h.cfg.Telegram.BotToken, h.cfg.MaxAuthAge())
	if err != nil {
		kind := auth.Kind(err)
		h.logger.Info("credential check failed", applogger.String("kind", kind))
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("credential rejected").
			WithParam("reason", kind).
			WithError(err))
	}

	return xhttp.SuccessResponse(c, verifyResponse{
		User:     identity.User,
		AuthDate: identity.AuthDate,
	})
}
