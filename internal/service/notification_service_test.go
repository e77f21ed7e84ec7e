package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/pkg/jobs"
)

type flakySink struct {
	failures int32
	calls    atomic.Int32
	done     chan Notification
}

func (s *flakySink) Send(ctx context.Context, n Notification) error {
	if s.calls.Add(1) <= s.failures {
		return errors.New("gateway unavailable")
	}
	s.done <- n
	return nil
}

func TestQueueNotifierRetriesUntilDelivered(t *testing.T) {
	sink := &flakySink{failures: 2, done: make(chan Notification, 1)}
	notifier := NewQueueNotifier(sink, NewMetricsService(), jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	notifier.Start(context.Background())
	defer notifier.Stop()

	notifier.Notify(context.Background(), Notification{Title: "New course registration", Body: "Kim Minjun"})

	select {
	case n := <-sink.done:
		assert.Equal(t, "Kim Minjun", n.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
	assert.EqualValues(t, 3, sink.calls.Load())
}

func TestQueueNotifierDropsWhenStopped(t *testing.T) {
	sink := &flakySink{done: make(chan Notification, 1)}
	notifier := NewQueueNotifier(sink, nil, jobs.QueueConfig{Workers: 1})

	notifier.Notify(context.Background(), Notification{Title: "ignored"})
	assert.EqualValues(t, 0, sink.calls.Load())
}

func TestWebhookSinkPostsJSON(t *testing.T) {
	var received Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second)
	err := sink.Send(context.Background(), Notification{Title: "t", Body: "b", Data: map[string]string{"type": "registration_submitted"}})
	require.NoError(t, err)
	assert.Equal(t, "registration_submitted", received.Data["type"])
}

func TestWebhookSinkFailsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookSink(server.URL, time.Second).Send(context.Background(), Notification{Title: "t"})
	assert.ErrorContains(t, err, "502")
}
