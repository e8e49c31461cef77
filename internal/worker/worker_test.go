package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/cho-y-j/dispatch/internal/report"
	"github.com/cho-y-j/dispatch/internal/store/memory"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type recorder struct {
	mu  sync.Mutex
	log []settlement
}

func (r *recorder) Ack(tag uint64, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, settlement{tag: tag, ack: true})
	return nil
}

func (r *recorder) Nack(tag uint64, _ bool, requeue bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, settlement{tag: tag, requeue: requeue})
	return nil
}

func (r *recorder) Reject(tag uint64, requeue bool) error {
	return r.Nack(tag, false, requeue)
}

func (r *recorder) settled() []settlement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]settlement(nil), r.log...)
}

type chanSource struct {
	ch    chan amqp.Delivery
	err   error
	queue string
	tag   string
}

func (s *chanSource) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	s.queue, s.tag = queue, consumerTag
	return s.ch, s.err
}

type generatorFunc func(ctx context.Context, matchID int64) (string, error)

func (f generatorFunc) Generate(ctx context.Context, matchID int64) (string, error) {
	return f(ctx, matchID)
}

type fixture struct {
	source *chanSource
	acks   *recorder
	worker *Worker
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, gen ReportGenerator, maxRedeliveries int) *fixture {
	t.Helper()
	f := &fixture{
		source: &chanSource{ch: make(chan amqp.Delivery)},
		acks:   &recorder{},
		done:   make(chan error, 1),
	}
	f.worker = NewWorker(&Config{
		Logger:          slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
		Source:          f.source,
		Reports:         gen,
		Queue:           "dispatch.reports",
		Concurrency:     2,
		JobTimeout:      time.Second,
		MaxRedeliveries: maxRedeliveries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.worker.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		f.worker.Stop()
	})
	return f
}

func (f *fixture) deliver(tag uint64, body string) {
	f.source.ch <- amqp.Delivery{
		Acknowledger: f.acks,
		DeliveryTag:  tag,
		Body:         []byte(body),
	}
}

func (f *fixture) waitSettled(t *testing.T, n int) []settlement {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.acks.settled()) >= n }, 2*time.Second, 5*time.Millisecond)
	return f.acks.settled()
}

func TestWorkerAcksGeneratedReport(t *testing.T) {
	var got []int64
	var mu sync.Mutex
	f := start(t, generatorFunc(func(_ context.Context, matchID int64) (string, error) {
		mu.Lock()
		got = append(got, matchID)
		mu.Unlock()
		return fmt.Sprintf("https://reports.local/%d.pdf", matchID), nil
	}), 3)

	f.deliver(1, `{"match_id":7}`)

	log := f.waitSettled(t, 1)
	assert.Equal(t, []settlement{{tag: 1, ack: true}}, log)
	mu.Lock()
	assert.Equal(t, []int64{7}, got)
	mu.Unlock()
	assert.Equal(t, "dispatch.reports", f.source.queue)
	assert.Contains(t, f.source.tag, "report-worker-")
}

func TestWorkerDiscardsMalformedRequests(t *testing.T) {
	called := false
	f := start(t, generatorFunc(func(context.Context, int64) (string, error) {
		called = true
		return "", nil
	}), 3)

	f.deliver(1, `not json`)
	f.deliver(2, `{"match_id":0}`)

	log := f.waitSettled(t, 2)
	assert.Equal(t, []settlement{{tag: 1}, {tag: 2}}, log)
	assert.False(t, called)
}

func TestWorkerRequeuesUnavailableRendererUntilLimit(t *testing.T) {
	f := start(t, generatorFunc(func(context.Context, int64) (string, error) {
		return "", fmt.Errorf("%w: connection refused", report.ErrUnavailable)
	}), 2)

	// each redelivery is only sent after the previous one settled
	for tag := uint64(1); tag <= 3; tag++ {
		f.deliver(tag, `{"match_id":9}`)
		f.waitSettled(t, int(tag))
	}

	assert.Equal(t, []settlement{
		{tag: 1, requeue: true},
		{tag: 2, requeue: true},
		{tag: 3, requeue: false},
	}, f.acks.settled())

	// the counter was reset after giving up
	f.deliver(4, `{"match_id":9}`)
	log := f.waitSettled(t, 4)
	assert.Equal(t, settlement{tag: 4, requeue: true}, log[3])
}

func TestWorkerDropsDomainRefusals(t *testing.T) {
	// a real report service over an empty store answers match-not-found
	svc := report.NewService(memory.New(), report.Unconfigured, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	f := start(t, svc, 5)

	f.deliver(1, `{"match_id":42}`)

	log := f.waitSettled(t, 1)
	assert.Equal(t, []settlement{{tag: 1, requeue: false}}, log)
}

func TestWorkerStartStopsOnClosedDeliveries(t *testing.T) {
	f := start(t, generatorFunc(func(context.Context, int64) (string, error) { return "", nil }), 1)
	close(f.source.ch)

	select {
	case err := <-f.done:
		assert.ErrorIs(t, err, ErrDeliveriesClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after the delivery channel closed")
	}
}

func TestWorkerStartReturnsNilOnCancel(t *testing.T) {
	f := start(t, generatorFunc(func(context.Context, int64) (string, error) { return "", nil }), 1)
	f.cancel()

	select {
	case err := <-f.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestWorkerStartFailsWhenConsumeFails(t *testing.T) {
	w := NewWorker(&Config{
		Logger: slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
		Source: &chanSource{err: errors.New("not connected")},
		Queue:  "dispatch.reports",
	})
	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start consuming")
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable", NewRetryableError(report.ErrUnavailable), true},
		{"wrapped retryable", fmt.Errorf("outer: %w", NewRetryableError(errors.New("timeout"))), true},
		{"max redeliveries", fmt.Errorf("%w: boom", ErrMaxRedeliveriesExceeded), false},
		{"invalid message", ErrInvalidMessage, false},
		{"domain refusal", domain.ErrClientSignatureRequired, false},
		{"unknown", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}

func TestDeliveryCount(t *testing.T) {
	tests := []struct {
		name string
		d    amqp.Delivery
		want int
	}{
		{"first delivery", amqp.Delivery{}, 0},
		{"classic redelivery", amqp.Delivery{Redelivered: true}, 1},
		{"quorum header", amqp.Delivery{Redelivered: true, Headers: amqp.Table{"x-delivery-count": int64(4)}}, 4},
		{"int32 header", amqp.Delivery{Headers: amqp.Table{"x-delivery-count": int32(2)}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deliveryCount(tt.d))
		})
	}
}

func TestRecordFailureTrustsBrokerCount(t *testing.T) {
	w := NewWorker(&Config{Logger: slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))})
	msg := &reportMessage{
		MatchID:  3,
		delivery: amqp.Delivery{Headers: amqp.Table{"x-delivery-count": int64(5)}},
	}
	assert.Equal(t, 6, w.recordFailure(msg))

	w.forget(3)
	assert.Equal(t, 1, w.recordFailure(&reportMessage{MatchID: 3}))
	assert.Equal(t, 2, w.recordFailure(&reportMessage{MatchID: 3}))
}

func TestWatchBroker(t *testing.T) {
	t.Run("close with reason fails", func(t *testing.T) {
		closed := make(chan *amqp.Error, 1)
		closed <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "server shutdown"}
		err := WatchBroker(context.Background(), closed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server shutdown")
	})

	t.Run("clean close", func(t *testing.T) {
		closed := make(chan *amqp.Error)
		close(closed)
		assert.NoError(t, WatchBroker(context.Background(), closed))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, WatchBroker(ctx, make(chan *amqp.Error)))
	})
}
