package regclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrPollerRunning is returned by Start when the poller already has an owner.
var ErrPollerRunning = errors.New("regclient: poller already running")

// Poller runs refresh on a fixed interval and whenever Trigger is called. It is the
// backstop for the event feed: events trigger an immediate refresh, the ticker catches
// whatever the feed missed.
type Poller struct {
	interval time.Duration
	refresh  func(context.Context) error
	logger   *zap.Logger
	trigger  chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller builds a stopped poller.
func NewPoller(interval time.Duration, refresh func(context.Context) error, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{interval: interval, refresh: refresh, logger: logger, trigger: make(chan struct{}, 1)}
}

// Start launches the loop. It runs until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrPollerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight refresh to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger asks for a refresh as soon as possible. Triggers arriving during a refresh
// coalesce into one.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
			ticker.Reset(p.interval)
		}
		if err := p.refresh(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("refresh failed", zap.Error(err))
		}
	}
}
