package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Bus transports the capture agent can use
const (
	TransportAMQP  = "amqp"
	TransportLocal = "local"
)

// Defaults the services fall back to when a timeout is left unset
const (
	defaultRequestTimeout = 20 * time.Second
	defaultBackendTimeout = 15 * time.Second
	defaultSyncInterval   = 100 * time.Millisecond
)

// Config is shared by the api-service, sync-service and capture-agent.
// Each service validates only the sections it uses.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Storage  StorageConfig  `yaml:"storage"`
	Backend  BackendConfig  `yaml:"backend"`
	Sync     SyncConfig     `yaml:"sync"`
	Capture  CaptureConfig  `yaml:"capture"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
	NoColor      bool   `yaml:"no_color"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration. URL takes
// precedence over the discrete fields.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RabbitMQConfig holds the message bus broker settings. Queue is the
// request queue the background context consumes.
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag string `yaml:"tag"`
}

// StorageConfig selects the durable key/value backend
type StorageConfig struct {
	Driver      string        `yaml:"driver"`
	RedisURL    string        `yaml:"redis_url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	PoolSize    int           `yaml:"pool_size"`
	KeyPrefix   string        `yaml:"key_prefix"`
	SQLitePath  string        `yaml:"sqlite_path"`
}

// BackendConfig configures the job tracker API client
type BackendConfig struct {
	ProductionURL  string        `yaml:"production_url"`
	DevelopmentURL string        `yaml:"development_url"`
	Timeout        time.Duration `yaml:"timeout"`
	VerifyToken    bool          `yaml:"verify_token"`
}

// SyncConfig configures the delivery queue
type SyncConfig struct {
	Interval          time.Duration `yaml:"interval"`
	ReconcileSchedule string        `yaml:"reconcile_schedule"`
}

// CaptureConfig configures the page-side agent
type CaptureConfig struct {
	Transport         string        `yaml:"transport"`
	CompletionTimeout time.Duration `yaml:"completion_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// Load reads the file, expands ${VAR} references from the environment and
// parses it
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks the sections the api-service needs
func (c *Config) Validate() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}

	if c.Database.URL == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if err := validatePort("database", c.Database.Port); err != nil {
			return err
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}

	return nil
}

// ValidateSyncConfig checks the sections the sync-service needs
func (c *Config) ValidateSyncConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync interval must not be negative")
	}

	return c.validateRequestTimeout()
}

// ValidateCaptureConfig checks the sections the capture-agent needs
func (c *Config) ValidateCaptureConfig() error {
	if err := c.validateStorage(); err != nil {
		return err
	}

	switch c.Capture.Transport {
	case TransportAMQP, "":
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
		// the sync-service reads pending jobs and the auth token from the
		// same store, which a local sqlite file cannot provide
		if c.Storage.Driver != "redis" {
			return fmt.Errorf("capture transport %s requires the redis storage driver shared with the sync-service", TransportAMQP)
		}
	case TransportLocal:
	default:
		return fmt.Errorf("unknown capture transport %q (must be %s or %s)", c.Capture.Transport, TransportAMQP, TransportLocal)
	}

	if c.Capture.CompletionTimeout < 0 {
		return fmt.Errorf("capture completion_timeout must not be negative")
	}
	if c.Capture.RequestTimeout < 0 {
		return fmt.Errorf("capture request_timeout must not be negative")
	}

	return c.validateRequestTimeout()
}

// validateRequestTimeout requires a bus round trip to outlast the backend
// call a handler may make before replying, plus one send interval.
func (c *Config) validateRequestTimeout() error {
	request := orDefault(c.Capture.RequestTimeout, defaultRequestTimeout)
	backend := orDefault(c.Backend.Timeout, defaultBackendTimeout)
	interval := orDefault(c.Sync.Interval, defaultSyncInterval)

	if request <= backend+interval {
		return fmt.Errorf("capture request_timeout %s must exceed backend timeout %s plus sync interval %s", request, backend, interval)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage redis_url is required for the redis driver")
		}
	case "sqlite", "":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if err := validatePort("rabbitmq", c.RabbitMQ.Port); err != nil {
		return err
	}
	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}
	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
