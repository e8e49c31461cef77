package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cho-y-j/dispatch/internal/metrics"
	"github.com/cho-y-j/dispatch/internal/report"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer subscribes to the report queue. Prefetch is applied by the
// client when the channel is set up.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	// Create unique consumer tag using worker ID
	consumerTag := w.workerID

	deliveries, err := w.source.Consume(w.queue, consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
		slog.String("queue", w.queue),
	)

	return deliveries, nil
}

// startMessageDispatcher listens to deliveries and hands report requests to
// the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			req, err := report.DecodeRequest(delivery.Body)
			if err != nil {
				w.logger.Error("Discarding malformed report request",
					slog.Any("error", fmt.Errorf("%w: %v", ErrInvalidMessage, err)),
					slog.String("body", string(delivery.Body)),
				)
				// NACK message without requeue - malformed messages should go to DLQ
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				metrics.WorkerMessagesTotal.WithLabelValues("discarded").Inc()
				continue
			}

			msg := &reportMessage{MatchID: req.MatchID, delivery: delivery}

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Report request dispatched to worker pool",
					slog.Int64("match_id", req.MatchID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.requeueOnShutdown(msg)
				return nil
			case <-w.stopChan:
				w.requeueOnShutdown(msg)
				return nil
			}
		}
	}
}

func (w *Worker) requeueOnShutdown(msg *reportMessage) {
	w.logger.Info("Message dispatcher stopped while dispatching report request",
		slog.Int64("match_id", msg.MatchID),
	)
	if nackErr := msg.delivery.Nack(false, true); nackErr != nil {
		w.logger.Error("Failed to NACK message on shutdown",
			slog.Any("error", nackErr),
		)
	}
}

// WatchBroker returns an error once the broker closes the channel with a
// reason, and nil on ctx cancellation or a clean close.
func WatchBroker(ctx context.Context, closed <-chan *amqp.Error) error {
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-closed:
		if !ok || err == nil {
			return nil
		}
		return fmt.Errorf("broker closed the channel: %w", err)
	}
}
