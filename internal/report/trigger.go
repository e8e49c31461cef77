package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RoutingKey carries report requests from the API to the workers.
const RoutingKey = "dispatch.reports"

// Request is the message body of a report request.
type Request struct {
	MatchID int64 `json:"match_id"`
}

func DecodeRequest(body []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(body, &r); err != nil {
		return Request{}, fmt.Errorf("invalid report request: %w", err)
	}
	if r.MatchID <= 0 {
		return Request{}, fmt.Errorf("invalid report request: match_id must be positive")
	}
	return r, nil
}

type publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Queue hands report requests to the worker service over the broker. A
// single goroutine publishes from a bounded buffer so the signing request
// never waits on the broker.
type Queue struct {
	client         publisher
	routingKey     string
	logger         *slog.Logger
	requests       chan int64
	publishTimeout time.Duration

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewQueue(client publisher, logger *slog.Logger, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		client:         client,
		routingKey:     RoutingKey,
		logger:         logger.With("component", "report_queue"),
		requests:       make(chan int64, buffer),
		publishTimeout: 10 * time.Second,
	}
}

// Start launches the publishing goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Trigger never fails or blocks the caller; a lost request is recoverable
// through the regenerate endpoint.
func (q *Queue) Trigger(_ context.Context, matchID int64) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("Report request dropped after shutdown", slog.Int64("match_id", matchID))
		return
	}

	select {
	case q.requests <- matchID:
	default:
		q.logger.Error("Report queue full, dropping request", slog.Int64("match_id", matchID))
	}
}

func (q *Queue) run() {
	defer q.wg.Done()

	for matchID := range q.requests {
		body, _ := json.Marshal(Request{MatchID: matchID})
		ctx, cancel := context.WithTimeout(context.Background(), q.publishTimeout)
		err := q.client.PublishWithRetry(ctx, q.routingKey, body, "application/json")
		cancel()
		if err != nil {
			q.logger.Error("Failed to queue report request",
				slog.Int64("match_id", matchID),
				slog.Any("error", err),
			)
			continue
		}
		q.logger.Debug("Report request queued", slog.Int64("match_id", matchID))
	}
}

// Close stops accepting requests and publishes what is buffered.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.requests)
		q.mu.Unlock()
	})
	q.wg.Wait()
}

// Inline renders in a background goroutine of the calling process. It is
// used when no broker is configured.
type Inline struct {
	service *Service
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewInline(s *Service, timeout time.Duration, logger *slog.Logger) *Inline {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Inline{
		service: s,
		timeout: timeout,
		logger:  logger.With("component", "report_inline"),
	}
}

func (i *Inline) Trigger(ctx context.Context, matchID int64) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
		defer cancel()
		if _, err := i.service.Generate(ctx, matchID); err != nil {
			i.logger.Error("Inline report generation failed",
				slog.Int64("match_id", matchID),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until every triggered generation has finished.
func (i *Inline) Wait() {
	i.wg.Wait()
}
