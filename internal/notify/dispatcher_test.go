package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{}
	err    error
}

func (s *recordingSink) Send(_ context.Context, e Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) got() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	var buf bytes.Buffer
	sink := &recordingSink{}
	d := NewDispatcher(sink, testLogger(&buf), 8)
	d.Start()

	for i := int64(1); i <= 3; i++ {
		d.Publish(context.Background(), NewEvent(DispatchAccepted, ToRequester, i, "accepted").ForJob(i, 0))
	}
	d.Close()

	events := sink.got()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.JobID)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	sink := &recordingSink{gate: make(chan struct{})}
	d := NewDispatcher(sink, testLogger(&buf), 1)
	d.Start()

	// one event held by the blocked sink, one buffered, the rest dropped
	for i := 0; i < 5; i++ {
		d.Publish(context.Background(), NewEvent(NewDispatch, ToBroadcast, 0, "new"))
		time.Sleep(5 * time.Millisecond)
	}
	close(sink.gate)
	d.Close()

	assert.Less(t, len(sink.got()), 5)
	assert.Contains(t, buf.String(), "Notification buffer full")
}

func TestDispatcherSinkErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	sink := &recordingSink{err: errors.New("broker down")}
	d := NewDispatcher(sink, testLogger(&buf), 4)
	d.Start()

	d.Publish(context.Background(), NewEvent(DispatchCancelled, ToContractor, 9, "cancelled"))
	d.Close()

	assert.Contains(t, buf.String(), "broker down")
}

func TestPublishAfterClose(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(&recordingSink{}, testLogger(&buf), 4)
	d.Start()
	d.Close()

	assert.NotPanics(t, func() {
		d.Publish(context.Background(), NewEvent(NewDispatch, ToBroadcast, 0, "late"))
	})
	d.Close()
}

type fakeAMQP struct {
	routingKey string
	body       []byte
}

func (f *fakeAMQP) PublishWithRetry(_ context.Context, routingKey string, body []byte, _ string) error {
	f.routingKey = routingKey
	f.body = body
	return nil
}

func TestAMQPSink(t *testing.T) {
	client := &fakeAMQP{}
	sink := NewAMQPSink(client, "dispatch.notifications")

	e := NewEvent(DispatchArrived, ToRequester, 4, "arrived").ForJob(10, 11).With("site", "Gate 3")
	require.NoError(t, sink.Send(context.Background(), e))

	assert.Equal(t, "dispatch.notifications", client.routingKey)

	var decoded Event
	require.NoError(t, json.Unmarshal(client.body, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, DispatchArrived, decoded.Type)
	assert.Equal(t, int64(11), decoded.MatchID)
	assert.Equal(t, "Gate 3", decoded.Data["site"])
}

func TestEventIDsAreSortable(t *testing.T) {
	a := NewEvent(NewDispatch, ToBroadcast, 0, "a")
	b := NewEvent(NewDispatch, ToBroadcast, 0, "b")
	assert.Len(t, a.ID, 26)
	assert.Less(t, a.ID, b.ID)
}

func TestWithDoesNotAlias(t *testing.T) {
	base := NewEvent(NewDispatch, ToBroadcast, 0, "x").With("k", "1")
	derived := base.With("k", "2")
	assert.Equal(t, "1", base.Data["k"])
	assert.Equal(t, "2", derived.Data["k"])
}
