package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/shared/rabbitmq"
)

// processReport renders the report of one match under the job timeout.
// Domain refusals (unknown match, unsigned match) are final; anything else
// is treated as transient until the request has failed more than
// maxRedeliveries times.
func (w *Worker) processReport(ctx context.Context, msg *reportMessage) error {
	logger := w.logger.With("match_id", msg.MatchID)
	logger.Info("Processing report request",
		slog.Bool("redelivered", msg.delivery.Redelivered),
	)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	url, err := w.reports.Generate(jobCtx, msg.MatchID)
	if err == nil {
		w.forget(msg.MatchID)
		logger.Info("Report ready", slog.String("url", url))
		return nil
	}

	if domain.KindOf(err) != 0 {
		w.forget(msg.MatchID)
		return fmt.Errorf("report request rejected: %w", err)
	}

	failures := w.recordFailure(msg)
	if failures > w.maxRedeliveries {
		w.forget(msg.MatchID)
		logger.Warn("Report request exceeded max redeliveries",
			slog.Int("failures", failures),
			slog.Int("max_redeliveries", w.maxRedeliveries),
		)
		return fmt.Errorf("%w: %v", ErrMaxRedeliveriesExceeded, err)
	}

	logger.Info("Report request will be retried",
		slog.Int("failures", failures),
		slog.Int("max_redeliveries", w.maxRedeliveries),
	)
	w.backoff(ctx, failures)
	return NewRetryableError(fmt.Errorf("report generation failed: %w", err))
}

// recordFailure counts a failed attempt and returns the failures so far,
// trusting the broker's delivery count when it knows more than we do.
func (w *Worker) recordFailure(msg *reportMessage) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := max(w.failures[msg.MatchID]+1, deliveryCount(msg.delivery)+1)
	w.failures[msg.MatchID] = n
	return n
}

func (w *Worker) forget(matchID int64) {
	w.mu.Lock()
	delete(w.failures, matchID)
	w.mu.Unlock()
}

// backoff holds the slot before a requeue so a down renderer is not hammered
func (w *Worker) backoff(ctx context.Context, failures int) {
	if w.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(rabbitmq.Backoff(w.retryDelay, 2, failures-1))
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-w.stopChan:
	}
}
