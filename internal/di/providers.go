package di

import (
	"fmt"
	"time"

	"SignalGate/internal/activity"
	"SignalGate/internal/backbone"
	"SignalGate/internal/gateway"
	"SignalGate/internal/handler/api"
	"SignalGate/internal/service/settings"
	"SignalGate/internal/usecase"
	pkgcache "SignalGate/pkg/cache"
	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	applogger "SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
	"SignalGate/pkg/server"
)

// ProvideLogger builds the application logger from config, with
// console output in development and JSON elsewhere.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logging.Format
	if format == "" {
		if cfg.Environment == "development" {
			format = "console"
		} else {
			format = "json"
		}
	}
	output := cfg.Logging.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{
		Level:  level,
		Format: format,
		Output: output,
	})
}

// ProvideMetrics builds the Prometheus recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when some component needs it.
// Returns nil when neither the backbone nor the settings store use
// Redis, so a kafka-only deployment runs without one.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if cfg.Backbone.Type != "redis" && !cfg.Settings.Enabled {
		return nil, nil
	}

	opts := []pkgcache.RedisOption{}
	if cfg.Backbone.Redis.Addr != "" {
		opts = append(opts, pkgcache.WithAddr(cfg.Backbone.Redis.Addr))
	}
	if cfg.Backbone.Redis.Password != "" {
		opts = append(opts, pkgcache.WithPassword(cfg.Backbone.Redis.Password))
	}
	if cfg.Backbone.Redis.DB != 0 {
		opts = append(opts, pkgcache.WithDB(cfg.Backbone.Redis.DB))
	}
	return pkgcache.NewRedisCache(opts...)
}

// ProvideStream selects the backbone implementation from config.
func ProvideStream(cfg *config.Config, lgr *applogger.Logger, rc *pkgcache.RedisCache) (backbone.Stream, error) {
	switch cfg.Backbone.Type {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("redis backbone requires a redis connection")
		}
		return backbone.NewRedisStream(lgr, rc.Client()), nil
	case "kafka":
		return backbone.NewKafkaStream(lgr, cfg.Backbone.Kafka.Brokers, cfg.Backbone.Kafka.GroupID), nil
	default:
		return nil, fmt.Errorf("unknown backbone type %q", cfg.Backbone.Type)
	}
}

// ProvideTracker builds the per-channel activity tracker.
func ProvideTracker(cfg *config.Config) *activity.Tracker {
	return activity.NewTracker(cfg.Activity.Baseline, cfg.Activity.Window.Std())
}

// ProvideRegistry builds the connection registry.
func ProvideRegistry(lgr *applogger.Logger, rec *metrics.Recorder, cfg *config.Config) *gateway.Registry {
	return gateway.NewRegistry(lgr, rec, cfg.MaxConnections())
}

// ProvideFilterStore builds the per-user filter store, or nil when the
// settings collaborator is disabled.
func ProvideFilterStore(cfg *config.Config, lgr *applogger.Logger, rc *pkgcache.RedisCache) gateway.FilterStore {
	if !cfg.Settings.Enabled || rc == nil {
		return nil
	}
	return settings.NewStore(lgr, rc, cfg.Settings.KeyPrefix, cfg.Settings.CacheTTL.Std())
}

// ProvideWSHandler builds the WebSocket handler.
func ProvideWSHandler(cfg *config.Config, lgr *applogger.Logger, rec *metrics.Recorder, reg *gateway.Registry, fs gateway.FilterStore, tracker *activity.Tracker) *gateway.Handler {
	return gateway.NewHandler(cfg, lgr, rec, reg, fs, tracker)
}

// ProvideAPIHandler builds the REST handler.
func ProvideAPIHandler(cfg *config.Config, lgr *applogger.Logger, reg *gateway.Registry, tracker *activity.Tracker) *api.GatewayHandler {
	return api.NewGatewayHandler(cfg, lgr, reg, tracker)
}

// ProvideDispatcher builds the backbone-to-registry dispatcher.
func ProvideDispatcher(stream backbone.Stream, reg *gateway.Registry, tracker *activity.Tracker, rec *metrics.Recorder, lgr *applogger.Logger, cfg *config.Config) *usecase.EventDispatcher {
	return usecase.NewEventDispatcher(stream, reg, tracker, rec, lgr, cfg.Backbone.Channels)
}

// ProvideHTTPServer builds the HTTP server with both handlers mounted.
func ProvideHTTPServer(cfg *config.Config, lgr *applogger.Logger, ws *gateway.Handler, rest *api.GatewayHandler) *xhttp.Server {
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}

	opts := []xhttp.ServerOption{xhttp.WithPort(port)}
	if cfg.Server.ReadTimeout > 0 || cfg.Server.WriteTimeout > 0 || cfg.Server.ShutdownTimeout > 0 {
		opts = append(opts, xhttp.WithTimeouts(
			cfg.Server.ReadTimeout.Std(),
			cfg.Server.WriteTimeout.Std(),
			cfg.Server.ShutdownTimeout.Std(),
		))
	}
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		opts = append(opts, xhttp.WithMetrics(path, lgr, time.Second))
	}

	return xhttp.NewServer(xhttp.Handlers{ws, rest}, opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(cfg *config.Config, lgr *applogger.Logger, d *usecase.EventDispatcher, srv *xhttp.Server, rc *pkgcache.RedisCache) *server.App {
	var cache pkgcache.Service
	if rc != nil {
		cache = rc
	}
	return server.New(cfg, lgr, d, srv, cache)
}
