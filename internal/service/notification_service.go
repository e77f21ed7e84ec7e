package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/pkg/jobs"
)

const notificationJobType = "registration_notification"

// Notification is an admin-facing message about a registration change.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier accepts notifications after a procedure has committed. It never reports
// failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotificationSink delivers one notification.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the log. It is the sink used when no webhook is set.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Send logs n.
func (s *LogSink) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification", zap.String("title", n.Title), zap.String("body", n.Body), zap.Any("data", n.Data))
	return nil
}

// WebhookSink POSTs notifications as JSON to a push gateway.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a sink for url.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

// Send delivers n; any non-2xx status is an error so the queue retries.
func (s *WebhookSink) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// QueueNotifier hands notifications to a worker queue so delivery happens off the
// request path with retries.
type QueueNotifier struct {
	queue   *jobs.Queue
	sink    NotificationSink
	metrics *MetricsService
	logger  *zap.Logger
}

// NewQueueNotifier builds the notifier and its queue. Call Start before Notify.
func NewQueueNotifier(sink NotificationSink, metrics *MetricsService, cfg jobs.QueueConfig) *QueueNotifier {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	n := &QueueNotifier{sink: sink, metrics: metrics, logger: cfg.Logger}
	n.queue = jobs.NewQueue("notifications", n.deliver, cfg)
	return n
}

// Start launches the workers.
func (n *QueueNotifier) Start(ctx context.Context) { n.queue.Start(ctx) }

// Stop waits for the workers to exit.
func (n *QueueNotifier) Stop() { n.queue.Stop() }

// Stats exposes queue counters.
func (n *QueueNotifier) Stats() jobs.Stats { return n.queue.Stats() }

// Notify enqueues without blocking; a full or stopped queue drops the notification.
func (n *QueueNotifier) Notify(_ context.Context, notification Notification) {
	err := n.queue.TryEnqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    notificationJobType,
		Payload: notification,
	})
	if err != nil {
		n.metrics.RecordNotification("dropped")
		n.logger.Warn("notification dropped", zap.String("title", notification.Title), zap.Error(err))
	}
}

func (n *QueueNotifier) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(Notification)
	if !ok {
		n.metrics.RecordNotification("invalid")
		return nil
	}
	if err := n.sink.Send(ctx, notification); err != nil {
		n.metrics.RecordNotification("failed")
		return err
	}
	n.metrics.RecordNotification("sent")
	return nil
}
