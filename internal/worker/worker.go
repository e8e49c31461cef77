// Package worker consumes report requests from the broker and renders the
// work reports of signed matches with a fixed pool of goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliverySource is satisfied by *rabbitmq.Client.
type DeliverySource interface {
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
}

// ReportGenerator is satisfied by *report.Service.
type ReportGenerator interface {
	Generate(ctx context.Context, matchID int64) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Source          DeliverySource
	Reports         ReportGenerator
	Queue           string
	Concurrency     int
	JobTimeout      time.Duration
	MaxRedeliveries int
	RetryDelay      time.Duration
}

// Worker represents the background report worker
type Worker struct {
	logger          *slog.Logger
	source          DeliverySource
	reports         ReportGenerator
	queue           string
	concurrency     int
	jobTimeout      time.Duration
	maxRedeliveries int
	retryDelay      time.Duration
	workerID        string

	jobsChan chan *reportMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	failures map[int64]int
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = time.Minute
	}

	workerID := "report-worker-" + uuid.NewString()
	return &Worker{
		logger:          cfg.Logger.With("component", "worker", "worker_id", workerID),
		source:          cfg.Source,
		reports:         cfg.Reports,
		queue:           cfg.Queue,
		concurrency:     concurrency,
		jobTimeout:      jobTimeout,
		maxRedeliveries: cfg.MaxRedeliveries,
		retryDelay:      cfg.RetryDelay,
		workerID:        workerID,
		jobsChan:        make(chan *reportMessage),
		stopChan:        make(chan struct{}),
		failures:        make(map[int64]int),
	}
}

// Start subscribes to the report queue and processes requests until ctx is
// canceled (nil) or the broker closes the deliveries (ErrDeliveriesClosed).
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("queue", w.queue),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Int("max_redeliveries", w.maxRedeliveries),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	return w.startMessageDispatcher(ctx, deliveries)
}

// Stop gracefully stops the worker. In-flight reports finish; unacked
// messages return to the queue when the channel closes.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
