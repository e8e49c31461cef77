package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cho-y-j/dispatch/internal/metrics"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With("worker_name", workerName)
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg := <-w.jobsChan:
			err := w.processReport(ctx, msg)
			w.settle(logger, msg, err)
		}
	}
}

// settle ACKs or NACKs the delivery based on the processing result
func (w *Worker) settle(logger *slog.Logger, msg *reportMessage, err error) {
	if err == nil {
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.Int64("match_id", msg.MatchID),
				slog.Any("error", ackErr),
			)
			return
		}
		metrics.WorkerMessagesTotal.WithLabelValues("acked").Inc()
		return
	}

	requeue := shouldRequeue(err)
	logger.Error("Report request failed",
		slog.Int64("match_id", msg.MatchID),
		slog.Bool("requeue", requeue),
		slog.Any("error", err),
	)

	if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message",
			slog.Int64("match_id", msg.MatchID),
			slog.Any("error", nackErr),
		)
		return
	}
	if requeue {
		metrics.WorkerMessagesTotal.WithLabelValues("requeued").Inc()
	} else {
		metrics.WorkerMessagesTotal.WithLabelValues("discarded").Inc()
	}
}

// shouldRequeue determines if a request should go back to the queue based
// on the error type
func shouldRequeue(err error) bool {
	if errors.Is(err, ErrMaxRedeliveriesExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidMessage) {
		return false
	}

	// Requeue for transient/retryable errors
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	// Default: don't requeue for unknown errors
	return false
}
