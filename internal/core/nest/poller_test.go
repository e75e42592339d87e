package nest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/nestga/internal/core/devices"
	"github.com/trymwestin/nestga/internal/core/transport"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPollerPollsImmediatelyAndStops(t *testing.T) {
	h := newTestHarness(t)
	h.buckets = sampleBuckets

	p := NewPoller(h.client, time.Hour, testLogger())
	require.NoError(t, p.Start(context.Background()))

	waitFor(t, func() bool { return h.launches.Load() >= 1 })
	assert.Len(t, h.client.Thermostats(), 1)

	require.NoError(t, p.Stop(context.Background()))
	// stopping again is a no-op
	require.NoError(t, p.Stop(context.Background()))
}

func TestPollerRejectsDoubleStart(t *testing.T) {
	h := newTestHarness(t)
	h.buckets = sampleBuckets

	p := NewPoller(h.client, time.Hour, testLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestPollerPublishesPollErrors(t *testing.T) {
	h := newTestHarness(t)
	h.client.transport = transport.New("http://127.0.0.1:1", h.sessions, testLogger())

	events, unsub := h.bus.Subscribe(16)
	defer unsub()

	p := NewPoller(h.client, time.Hour, testLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	waitFor(t, func() bool {
		for _, typ := range drainEventTypes(events) {
			if typ == devices.EventPollError {
				return true
			}
		}
		return false
	})
}

func TestPollerDefaultsInterval(t *testing.T) {
	h := newTestHarness(t)
	p := NewPoller(h.client, 0, testLogger())
	assert.Equal(t, updateInterval, p.interval)
}
