package regclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/pkg/realtime"
)

// Feed consumes the websocket change events of one period and reconnects when the
// stream drops.
type Feed struct {
	client   *Client
	periodID string
	backoff  time.Duration
	// idle bounds the silence between frames; the server pings well inside it.
	idle   time.Duration
	dialer *websocket.Dialer
}

// Feed builds a change feed for periodID.
func (c *Client) Feed(periodID string) *Feed {
	return &Feed{
		client:   c,
		periodID: periodID,
		backoff:  2 * time.Second,
		idle:     time.Minute,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Run delivers events to handle until ctx is cancelled. The "ready" event that opens
// every connection is passed through so callers can refresh after a reconnect.
func (f *Feed) Run(ctx context.Context, handle func(realtime.Event)) error {
	logger := f.client.logger
	for {
		err := f.stream(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("event stream dropped", zap.String("period_id", f.periodID), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.backoff):
		}
	}
}

func (f *Feed) stream(ctx context.Context, handle func(realtime.Event)) error {
	conn, resp, err := f.dialer.DialContext(ctx, socketURL(f.client.periodURL(f.periodID, "events")), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("event stream: status %d: %w", resp.StatusCode, err)
		}
		return err
	}
	defer conn.Close()

	// ReadJSON does not watch ctx; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(f.idle))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(f.idle))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var evt realtime.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.idle))
		if evt.Kind == "" {
			continue
		}
		if evt.PeriodID == "" {
			evt.PeriodID = f.periodID
		}
		handle(evt)
	}
}

// socketURL maps an http(s) endpoint onto its ws(s) form.
func socketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// Watch keeps a session fresh: every feed event triggers the poller, which also ticks on
// its own as a backstop. It blocks until ctx is done and stops the poller on return.
func Watch(ctx context.Context, feed *Feed, poller *Poller) error {
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()
	return feed.Run(ctx, func(realtime.Event) { poller.Trigger() })
}
