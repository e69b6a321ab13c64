package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"callboard/internal/logging"
	dbconfig "callboard/pkg/database"
)

// EnvPrefix prefixes every environment override, e.g. CALLBOARD_HTTP_PORT.
const EnvPrefix = "CALLBOARD"

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "CALLBOARD_CONFIG_FILE"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `mapstructure:"database"`
	HTTP      *HTTPConfig      `mapstructure:"http"`
	WebSocket *WebSocketConfig `mapstructure:"websocket"`
	Hub       *HubConfig       `mapstructure:"hub"`
	Auth      *AuthConfig      `mapstructure:"auth"`
	Log       *logging.Config  `mapstructure:"log"`
}

// FUNCTIONAL DISCOVERY: SQLite by path for a single school node, Postgres by DSN
// for a shared deployment
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	Path           string        `mapstructure:"path"`
	DSN            string        `mapstructure:"dsn"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Host         string        `mapstructure:"host"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
// ClassroomToken is the shared secret every classroom display presents
type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	BufferSize     int           `mapstructure:"buffer_size"`
	ClassroomToken string        `mapstructure:"classroom_token"`
}

type HubConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat.
// Secrets have no default and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Driver:         dbconfig.DriverSQLite,
			Path:           "./data/callboard.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Hub:  &HubConfig{QueueSize: 1000},
		Auth: &AuthConfig{},
		Log:  &logging.Config{Level: "info"},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if err := c.Store().Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 asks the kernel for a free port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.ClassroomToken == "" {
		return fmt.Errorf("WebSocket classroom token is required")
	}

	if c.Hub == nil || c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub queue size must be positive")
	}
	if c.Auth == nil || c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	return nil
}

// Store converts the database section into the store configuration.
func (c *Config) Store() *dbconfig.Config {
	store := dbconfig.DefaultConfig()
	store.Driver = c.Database.Driver
	store.DatabasePath = c.Database.Path
	store.DSN = c.Database.DSN
	store.WriteTimeout = c.Database.Timeout
	if c.Database.MaxConnections > 0 {
		store.MaxConnections = c.Database.MaxConnections
	}
	return store
}

// Load builds the configuration from defaults, an optional config file and
// CALLBOARD_* environment variables, environment taking precedence over the
// file. An empty path falls back to $CALLBOARD_CONFIG_FILE. The file format is
// taken from its extension (json, yaml, toml).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// TECHNICAL DISCOVERY: AutomaticEnv only reaches Unmarshal for keys viper already
// knows, so every key gets a default even when it is empty
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)

	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)
	v.SetDefault("websocket.classroom_token", d.WebSocket.ClassroomToken)

	v.SetDefault("hub.queue_size", d.Hub.QueueSize)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}
