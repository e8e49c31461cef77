// Package bootstrap turns a loaded config into the infrastructure the
// binaries share: logger, database, broker, store and settings source.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cho-y-j/dispatch/internal/config"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/store"
	"github.com/cho-y-j/dispatch/internal/store/memory"
	"github.com/cho-y-j/dispatch/internal/store/postgres"
	"github.com/cho-y-j/dispatch/shared/logger"
	"github.com/cho-y-j/dispatch/shared/postgresql"
	"github.com/cho-y-j/dispatch/shared/rabbitmq"
)

// Logger initializes and configures the application logger
func Logger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      service,
	})
}

// PostgreSQLConfig maps the database section onto the client config
func PostgreSQLConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}
}

// RabbitMQConfig maps the broker section onto the client config. Every
// configured queue is declared and bound.
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	var bindings []rabbitmq.Binding
	for _, q := range []config.QueueConfig{cfg.Queues.Reports, cfg.Queues.Notifications} {
		if q.Name == "" {
			continue
		}
		bindings = append(bindings, rabbitmq.Binding{Queue: q.Name, RoutingKey: q.RoutingKey})
	}

	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		Bindings:           bindings,
		QueueDurable:       cfg.Queues.Reports.Durable,
		QueueAutoDelete:    cfg.Queues.Reports.AutoDelete,
		QueueExclusive:     cfg.Queues.Reports.Exclusive,
		Prefetch:           cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// RabbitMQ connects to the broker, or returns nil when it is disabled.
func RabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	if !cfg.Enabled() {
		logger.Info("RabbitMQ disabled, running without a broker")
		return nil, nil
	}
	return rabbitmq.NewClient(RabbitMQConfig(cfg), logger)
}

// Backend is the opened store and, for postgres, the pool behind it.
type Backend struct {
	Store store.Store
	DB    *postgresql.Client
}

// OpenBackend opens the configured store. With migrate set the embedded
// schema is applied before the store is returned.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*Backend, error) {
	switch cfg.Dispatch.Store {
	case config.StoreMemory:
		logger.Warn("Using the in-memory store; state is lost on restart")
		return &Backend{Store: memory.New()}, nil

	case config.StorePostgres:
		db, err := postgresql.NewClient(ctx, PostgreSQLConfig(&cfg.Database), logger)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, db.GetDB()); err != nil {
				db.Close()
				return nil, err
			}
			logger.Info("Database schema applied")
		}
		st := postgres.New(db.GetDB(), logger, postgres.WithLockTimeout(cfg.Dispatch.LockTimeout))
		return &Backend{Store: st, DB: db}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Dispatch.Store)
}

// HealthCheck pings the database; the memory store is always healthy.
func (b *Backend) HealthCheck(ctx context.Context) error {
	if b.DB == nil {
		return nil
	}
	return b.DB.HealthCheck(ctx)
}

// PoolStats describes the database pool, or is empty for the memory store.
func (b *Backend) PoolStats() string {
	if b.DB == nil {
		return ""
	}
	return b.DB.Stats()
}

func (b *Backend) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
}

// SettingsSource picks where runtime settings are read from. The returned
// writer is nil when settings cannot be changed at runtime.
func SettingsSource(cfg *config.DispatchConfig, st store.Store) (settings.Source, SettingsWriter) {
	if cfg.SettingsSource == config.SettingsFromFile {
		return settings.FileSource{Path: cfg.SettingsFile}, nil
	}
	return settings.SourceFunc(st.Settings), st
}

// SettingsWriter persists one runtime setting.
type SettingsWriter interface {
	PutSetting(ctx context.Context, key, value string) error
}
