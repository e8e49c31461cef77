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

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Runtime settings sources.
const (
	SettingsFromDatabase = "database"
	SettingsFromFile     = "file"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
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
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration.
// An empty host disables the broker.
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queues     QueuesConfig     `yaml:"queues"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

func (r RabbitMQConfig) Enabled() bool {
	return r.Host != ""
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueuesConfig names the queues the services declare.
type QueuesConfig struct {
	Reports       QueueConfig `yaml:"reports"`
	Notifications QueueConfig `yaml:"notifications"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
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
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	MaxRedeliveries int           `yaml:"max_redeliveries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsPort     int           `yaml:"metrics_port"` // 0 disables the metrics listener
}

// DispatchConfig holds the business service wiring.
type DispatchConfig struct {
	Store                  string             `yaml:"store"`
	SettingsSource         string             `yaml:"settings_source"`
	SettingsFile           string             `yaml:"settings_file"`
	SettingsReloadInterval time.Duration      `yaml:"settings_reload_interval"`
	SweepInterval          time.Duration      `yaml:"sweep_interval"`
	SweepBatch             int                `yaml:"sweep_batch"`
	LockTimeout            time.Duration      `yaml:"lock_timeout"`
	NotificationBuffer     int                `yaml:"notification_buffer"`
	ReportEndpoint         string             `yaml:"report_endpoint"`
	ReportTimeout          time.Duration      `yaml:"report_timeout"`
	Verification           VerificationConfig `yaml:"verification"`
	PublicRateLimit        RateLimitConfig    `yaml:"public_rate_limit"`
}

// VerificationConfig points at the credential verification API. An empty
// base URL keeps verification local.
type VerificationConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads and parses the configuration file and fills in defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.RabbitMQ.Queues.Reports.RoutingKey == "" {
		c.RabbitMQ.Queues.Reports.RoutingKey = "dispatch.reports"
	}
	if c.RabbitMQ.Queues.Notifications.RoutingKey == "" {
		c.RabbitMQ.Queues.Notifications.RoutingKey = "dispatch.notifications"
	}
	if c.RabbitMQ.Consumer.PrefetchCount <= 0 {
		c.RabbitMQ.Consumer.PrefetchCount = 10
	}

	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = time.Minute
	}
	if c.Worker.MaxRedeliveries <= 0 {
		c.Worker.MaxRedeliveries = 5
	}
	if c.Worker.RetryDelay <= 0 {
		c.Worker.RetryDelay = 2 * time.Second
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	d := &c.Dispatch
	if d.Store == "" {
		d.Store = StorePostgres
	}
	if d.SettingsSource == "" {
		d.SettingsSource = SettingsFromDatabase
	}
	if d.SettingsReloadInterval <= 0 {
		d.SettingsReloadInterval = 30 * time.Second
	}
	if d.SweepInterval <= 0 {
		d.SweepInterval = time.Minute
	}
	if d.SweepBatch <= 0 {
		d.SweepBatch = 100
	}
	if d.LockTimeout <= 0 {
		d.LockTimeout = 3 * time.Second
	}
	if d.NotificationBuffer <= 0 {
		d.NotificationBuffer = 256
	}
	if d.PublicRateLimit.RequestsPerSecond <= 0 {
		d.PublicRateLimit.RequestsPerSecond = 1
	}
	if d.PublicRateLimit.Burst <= 0 {
		d.PublicRateLimit.Burst = 5
	}
}

func (c *Config) validateDatabase() error {
	if c.Dispatch.Store == StoreMemory {
		return nil
	}
	if c.Dispatch.Store != StorePostgres {
		return fmt.Errorf("unknown dispatch store %q (must be %q or %q)", c.Dispatch.Store, StorePostgres, StoreMemory)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled() {
		return nil
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queues.Reports.Name == "" {
		return fmt.Errorf("rabbitmq reports queue name is required")
	}
	return nil
}

func (c *Config) validateSettingsSource() error {
	switch c.Dispatch.SettingsSource {
	case SettingsFromDatabase:
		if c.Dispatch.Store == StoreMemory {
			return fmt.Errorf("settings source %q needs the postgres store", SettingsFromDatabase)
		}
	case SettingsFromFile:
		if c.Dispatch.SettingsFile == "" {
			return fmt.Errorf("dispatch settings_file is required for settings source %q", SettingsFromFile)
		}
	default:
		return fmt.Errorf("unknown settings source %q", c.Dispatch.SettingsSource)
	}
	return nil
}

// ValidateAPIConfig checks the sections the API service needs.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	return c.validateSettingsSource()
}

// ValidateWorkerConfig checks the sections the worker service needs. The
// worker always consumes from the broker and persists to postgres.
func (c *Config) ValidateWorkerConfig() error {
	if c.Dispatch.Store != StorePostgres {
		return fmt.Errorf("worker requires the %q store", StorePostgres)
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if !c.RabbitMQ.Enabled() {
		return fmt.Errorf("rabbitmq host is required")
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	if c.Dispatch.ReportEndpoint == "" {
		return fmt.Errorf("dispatch report_endpoint is required")
	}
	return c.validateSettingsSource()
}
