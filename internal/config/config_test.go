package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
				assert.Equal(t, "dispatch", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "dispatch.reports", cfg.RabbitMQ.Queues.Reports.Name)
				assert.Equal(t, 5, cfg.RabbitMQ.Consumer.PrefetchCount)
				assert.Equal(t, "http://verify.local", cfg.Dispatch.Verification.BaseURL)
				assert.Equal(t, 2.0, cfg.Dispatch.PublicRateLimit.RequestsPerSecond)
				assert.Equal(t, "dispatch", cfg.App.Name)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	// omitted routing key falls back to the report route
	assert.Equal(t, "dispatch.reports", cfg.RabbitMQ.Queues.Reports.RoutingKey)
	assert.Equal(t, StorePostgres, cfg.Dispatch.Store)
	assert.Equal(t, SettingsFromDatabase, cfg.Dispatch.SettingsSource)
	assert.Equal(t, 100, cfg.Dispatch.SweepBatch)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.LockTimeout)
	assert.Equal(t, 256, cfg.Dispatch.NotificationBuffer)
	assert.Equal(t, 5, cfg.Worker.MaxRedeliveries)
	assert.Equal(t, 2*time.Second, cfg.Worker.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownTimeout)

	// explicit values survive
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.SweepInterval)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadMemoryProfile(t *testing.T) {
	cfg, err := Load("testdata/memory.yaml")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Dispatch.Store)
	assert.False(t, cfg.RabbitMQ.Enabled())
	assert.NoError(t, cfg.ValidateAPIConfig())
	assert.Error(t, cfg.ValidateWorkerConfig())
}

func validConfig() *Config {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Database: "dispatch"},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "dispatch"},
			Queues:   QueuesConfig{Reports: QueueConfig{Name: "dispatch.reports"}},
		},
		Dispatch: DispatchConfig{ReportEndpoint: "http://reports.local/render"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:      "server port out of range",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "unknown store",
			mutate:    func(c *Config) { c.Dispatch.Store = "redis" },
			errString: "unknown dispatch store",
		},
		{
			name:   "broker disabled",
			mutate: func(c *Config) { c.RabbitMQ.Host = "" },
		},
		{
			name:      "broker without exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name: "file settings without path",
			mutate: func(c *Config) {
				c.Dispatch.SettingsSource = SettingsFromFile
			},
			errString: "settings_file is required",
		},
		{
			name: "database settings on memory store",
			mutate: func(c *Config) {
				c.Dispatch.Store = StoreMemory
			},
			errString: "needs the postgres store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:      "broker required",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			errString: "rabbitmq host is required",
		},
		{
			name:      "report endpoint required",
			mutate:    func(c *Config) { c.Dispatch.ReportEndpoint = "" },
			errString: "report_endpoint is required",
		},
		{
			name:      "memory store rejected",
			mutate:    func(c *Config) { c.Dispatch.Store = StoreMemory },
			errString: "worker requires",
		},
		{
			name:      "reports queue required",
			mutate:    func(c *Config) { c.RabbitMQ.Queues.Reports.Name = "" },
			errString: "reports queue name is required",
		},
		{
			// the worker never validates the HTTP port
			name:   "server port ignored",
			mutate: func(c *Config) { c.Server.Port = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
