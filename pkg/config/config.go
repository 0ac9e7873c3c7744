package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "24h" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like '30s': %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int      `yaml:"port"`
		ReadTimeout     Duration `yaml:"read_timeout"`
		WriteTimeout    Duration `yaml:"write_timeout"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
		DevMode         bool     `yaml:"dev_mode"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Telegram struct {
		BotToken   string   `yaml:"bot_token"`
		MaxAuthAge Duration `yaml:"max_auth_age"`
	} `yaml:"telegram"`
	WebSocket struct {
		HeartbeatInterval Duration `yaml:"heartbeat_interval"`
		HandshakeTimeout  Duration `yaml:"handshake_timeout"`
		SendBuffer        int      `yaml:"send_buffer"`
		MaxConnections    int      `yaml:"max_connections"`
		ConnectRate       float64  `yaml:"connect_rate"`
		ConnectBurst      float64  `yaml:"connect_burst"`
	} `yaml:"websocket"`
	Backbone struct {
		Type     string   `yaml:"type"`
		Channels []string `yaml:"channels"`
		Redis    struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			GroupID string   `yaml:"group_id"`
		} `yaml:"kafka"`
	} `yaml:"backbone"`
	Activity struct {
		Baseline float64  `yaml:"baseline"`
		Window   Duration `yaml:"window"`
	} `yaml:"activity"`
	Settings struct {
		Enabled   bool     `yaml:"enabled"`
		KeyPrefix string   `yaml:"key_prefix"`
		CacheTTL  Duration `yaml:"cache_ttl"`
	} `yaml:"settings"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("BACKBONE"); v != "" {
		c.Backbone.Type = v
	}
	if v := os.Getenv("BACKBONE_CHANNELS"); v != "" {
		c.Backbone.Channels = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Backbone.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Backbone.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Backbone.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DEV_MODE"); v == "1" || strings.EqualFold(v, "true") {
		c.Server.DevMode = true
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backbone.Type == "" {
		return fmt.Errorf("backbone.type is required")
	}
	if c.Backbone.Type != "redis" && c.Backbone.Type != "kafka" {
		return fmt.Errorf("backbone.type must be 'redis' or 'kafka', got '%s'", c.Backbone.Type)
	}
	if len(c.Backbone.Channels) == 0 {
		return fmt.Errorf("backbone.channels cannot be empty")
	}
	if c.Telegram.BotToken == "" && !c.Server.DevMode {
		return fmt.Errorf("telegram.bot_token is required outside dev mode")
	}
	if c.Backbone.Type == "kafka" && len(c.Backbone.Kafka.Brokers) == 0 {
		return fmt.Errorf("backbone.kafka.brokers cannot be empty")
	}
	return nil
}

// HeartbeatInterval returns the configured heartbeat interval or the default 30s.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.WebSocket.HeartbeatInterval > 0 {
		return c.WebSocket.HeartbeatInterval.Std()
	}
	return 30 * time.Second
}

// HandshakeTimeout returns the configured handshake window or the default 10s.
func (c *Config) HandshakeTimeout() time.Duration {
	if c.WebSocket.HandshakeTimeout > 0 {
		return c.WebSocket.HandshakeTimeout.Std()
	}
	return 10 * time.Second
}

// MaxAuthAge returns the credential freshness window or the default 24h.
func (c *Config) MaxAuthAge() time.Duration {
	if c.Telegram.MaxAuthAge > 0 {
		return c.Telegram.MaxAuthAge.Std()
	}
	return 24 * time.Hour
}

// SendBuffer returns the per-connection outbound queue depth or the default 100.
func (c *Config) SendBuffer() int {
	if c.WebSocket.SendBuffer > 0 {
		return c.WebSocket.SendBuffer
	}
	return 100
}

// MaxConnections returns the connection limit or the default 1000.
func (c *Config) MaxConnections() int {
	if c.WebSocket.MaxConnections > 0 {
		return c.WebSocket.MaxConnections
	}
	return 1000
}
