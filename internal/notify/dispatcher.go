package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cho-y-j/dispatch/internal/metrics"
)

// Publisher is what domain services depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Sink delivers one event to its channel.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}

// Dispatcher decouples producers from the sink with a bounded buffer. A full
// buffer drops the event rather than blocking the caller.
type Dispatcher struct {
	sink        Sink
	logger      *slog.Logger
	events      chan Event
	sendTimeout time.Duration

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewDispatcher(sink Sink, logger *slog.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		sink:        sink,
		logger:      logger.With("component", "notify"),
		events:      make(chan Event, buffer),
		sendTimeout: 5 * time.Second,
	}
}

// Start launches the delivery goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *Dispatcher) Publish(_ context.Context, e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Notification dropped after shutdown", slog.String("type", string(e.Type)))
		return
	}

	select {
	case d.events <- e:
	default:
		metrics.NotificationsDropped.Inc()
		d.logger.Warn("Notification buffer full, dropping event",
			slog.String("event_id", e.ID),
			slog.String("type", string(e.Type)),
			slog.Int64("job_id", e.JobID),
		)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for e := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		if err := d.sink.Send(ctx, e); err != nil {
			d.logger.Error("Failed to deliver notification",
				slog.String("event_id", e.ID),
				slog.String("type", string(e.Type)),
				slog.Any("error", err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and drains what is buffered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

// amqpPublisher is satisfied by *rabbitmq.Client.
type amqpPublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQPSink publishes events as JSON under one routing key.
type AMQPSink struct {
	client     amqpPublisher
	routingKey string
}

func NewAMQPSink(client amqpPublisher, routingKey string) *AMQPSink {
	return &AMQPSink{client: client, routingKey: routingKey}
}

func (s *AMQPSink) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return s.client.PublishWithRetry(ctx, s.routingKey, body, "application/json")
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(_ context.Context, e Event) error {
	s.Logger.Info("Notification",
		slog.String("event_id", e.ID),
		slog.String("type", string(e.Type)),
		slog.String("recipient_kind", e.RecipientKind),
		slog.Int64("recipient_id", e.RecipientID),
		slog.Int64("job_id", e.JobID),
		slog.String("title", e.Title),
	)
	return nil
}
