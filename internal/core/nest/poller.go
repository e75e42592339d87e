package nest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/trymwestin/nestga/internal/core/devices"
)

// Poller drives the update loop in the background. It is the producer
// for the devices-updated event: every successful poll is announced on
// the client's bus.
type Poller struct {
	client   *Client
	interval time.Duration
	log      *slog.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	running atomic.Bool
}

// NewPoller creates a poller around the client. A non-positive interval
// falls back to the client's update gate.
func NewPoller(client *Client, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = updateInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		log:      log,
	}
}

// Start begins polling until the context is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	if p.running.Load() {
		return fmt.Errorf("nest: poller already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})
	p.running.Store(true)

	go p.run(ctx)
	return nil
}

// Stop halts the poll loop and waits for it to exit.
func (p *Poller) Stop(_ context.Context) error {
	if !p.running.Load() {
		return nil
	}
	p.cancel()
	<-p.stopped
	p.running.Store(false)
	return nil
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.stopped)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Debug("poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.client.UpdateWithReauth(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Error("poll failed", "error", err)
		p.client.bus.Publish(devices.Event{Type: devices.EventPollError, Data: err.Error()})
	}
}
