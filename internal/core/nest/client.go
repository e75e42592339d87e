// Package nest implements the polling client for the Nest consumer API:
// a time-gated snapshot poll that merges "buckets" into long-lived device
// wrappers, plus the setter plumbing those wrappers write through.
package nest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trymwestin/nestga/internal/core/auth"
	"github.com/trymwestin/nestga/internal/core/devices"
	"github.com/trymwestin/nestga/internal/core/transport"
)

// updateInterval gates how often the snapshot endpoint is polled; calls
// inside the window are no-ops.
const updateInterval = 30 * time.Second

// maxAuthRetries bounds how often a stale session is re-authenticated
// before the failure is surfaced.
const maxAuthRetries = 5

// ErrStaleSession marks an app_launch response without the expected
// bucket list, which in practice means the JWT expired.
var ErrStaleSession = errors.New("nest: stale session")

// Client polls the bucket endpoint and owns the device storage.
type Client struct {
	transport *transport.Client
	sessions  *auth.SessionStore
	storage   *devices.Storage
	bus       *devices.Bus
	log       *slog.Logger

	mu         sync.Mutex
	lastUpdate time.Time

	now func() time.Time
}

// NewClient creates a client over the given transport and session store.
func NewClient(t *transport.Client, sessions *auth.SessionStore, bus *devices.Bus, log *slog.Logger) *Client {
	return &Client{
		transport: t,
		sessions:  sessions,
		storage:   devices.NewStorage(),
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// Bus returns the event bus updates are announced on.
func (c *Client) Bus() *devices.Bus { return c.bus }

type bucket struct {
	ObjectKey string      `json:"object_key"`
	Value     devices.Raw `json:"value"`
}

// UpdatedBuckets is a pointer so a response missing the key entirely is
// distinguishable from an empty list; the former means the session went
// stale.
type appLaunchResponse struct {
	UpdatedBuckets *[]bucket `json:"updated_buckets"`
}

// Update polls the snapshot endpoint and merges every returned bucket
// into storage, creating wrappers for first-seen ids. It is a no-op when
// called within the update interval of the last success.
func (c *Client) Update(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastUpdate.IsZero() && c.now().Sub(c.lastUpdate) < updateInterval {
		return nil
	}

	sess := c.sessions.Current()
	body := map[string]any{
		"known_bucket_types":    devices.KnownBucketTypes(),
		"known_bucket_versions": []string{},
	}

	var resp appLaunchResponse
	path := fmt.Sprintf("/api/0.1/user/%s/app_launch", sess.UserID)
	if err := c.transport.PostJSON(ctx, path, body, &resp); err != nil {
		c.log.Error("failed to fetch device snapshot", "error", err)
		return fmt.Errorf("nest: update: %w", err)
	}
	if resp.UpdatedBuckets == nil {
		return ErrStaleSession
	}

	c.log.Debug("fetched nest buckets", "count", len(*resp.UpdatedBuckets))

	for _, b := range *resp.UpdatedBuckets {
		kind, id, ok := devices.ParseBucketKey(b.ObjectKey)
		if !ok {
			c.log.Debug("skipping unknown bucket", "key", b.ObjectKey)
			continue
		}

		if obj, found := c.storage.Get(kind, id); found {
			obj.Merge(b.Value)
			continue
		}

		obj, err := devices.New(kind, id, b.Value, c)
		if err != nil {
			c.log.Error("failed to decode bucket", "key", b.ObjectKey, "error", err)
			return fmt.Errorf("nest: update: %w", err)
		}
		c.log.Info("adding device", "kind", kind, "id", id)
		c.storage.Add(obj)
	}

	c.lastUpdate = c.now()
	c.bus.Publish(devices.Event{Type: devices.EventDevicesUpdated})
	return nil
}

// UpdateWithReauth is Update wrapped in a bounded re-authentication loop:
// a stale session or auth-rejected request refreshes the login and tries
// again, at most maxAuthRetries times.
func (c *Client) UpdateWithReauth(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= maxAuthRetries; attempt++ {
		err = c.Update(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStaleSession) && !transport.IsAuthStatus(err) {
			return err
		}

		c.log.Warn("session looks stale, re-authenticating", "attempt", attempt, "error", err)
		if _, rerr := c.sessions.Refresh(ctx); rerr != nil {
			c.log.Error("re-authentication failed", "attempt", attempt, "error", rerr)
			err = rerr
			continue
		}
		c.bus.Publish(devices.Event{Type: devices.EventSessionRefreshed})
	}
	return fmt.Errorf("nest: update failed after %d re-auth attempts: %w", maxAuthRetries, err)
}

// Put posts a field map to a type-specific sub-path for one object. The
// next poll observes the effect; there is no write acknowledgment.
func (c *Client) Put(ctx context.Context, subpath, id string, fields map[string]any) error {
	path := fmt.Sprintf("/api/0.1/%s/%s", subpath, id)
	if err := c.transport.PostJSON(ctx, path, fields, nil); err != nil {
		return fmt.Errorf("nest: put %s %s: %w", subpath, id, err)
	}
	return nil
}

// ThermostatCount implements devices.Backend.
func (c *Client) ThermostatCount(structureID string) int {
	if structureID == "" {
		return 0
	}
	count := 0
	for _, t := range c.Thermostats() {
		if t.StructureID() == structureID {
			count++
		}
	}
	return count
}

// WhereName implements devices.Backend.
func (c *Client) WhereName(whereID string) (string, bool) {
	for _, obj := range c.storage.All(devices.KindWhere) {
		w, ok := obj.(*devices.Where)
		if !ok {
			continue
		}
		if name, ok := w.Name(whereID); ok {
			return name, true
		}
	}
	return "", false
}

// Structures returns every known structure.
func (c *Client) Structures() []*devices.Structure {
	objs := c.storage.All(devices.KindStructure)
	out := make([]*devices.Structure, 0, len(objs))
	for _, obj := range objs {
		if s, ok := obj.(*devices.Structure); ok {
			out = append(out, s)
		}
	}
	return out
}

// Thermostats returns every known thermostat.
func (c *Client) Thermostats() []*devices.Thermostat {
	objs := c.storage.All(devices.KindThermostat)
	out := make([]*devices.Thermostat, 0, len(objs))
	for _, obj := range objs {
		if t, ok := obj.(*devices.Thermostat); ok {
			out = append(out, t)
		}
	}
	return out
}

// Cameras returns every known camera.
func (c *Client) Cameras() []*devices.Camera {
	objs := c.storage.All(devices.KindCamera)
	out := make([]*devices.Camera, 0, len(objs))
	for _, obj := range objs {
		if cam, ok := obj.(*devices.Camera); ok {
			out = append(out, cam)
		}
	}
	return out
}

// SmokeCoAlarms returns every known smoke/CO alarm.
func (c *Client) SmokeCoAlarms() []*devices.SmokeCoAlarm {
	objs := c.storage.All(devices.KindSmokeCoAlarm)
	out := make([]*devices.SmokeCoAlarm, 0, len(objs))
	for _, obj := range objs {
		if a, ok := obj.(*devices.SmokeCoAlarm); ok {
			out = append(out, a)
		}
	}
	return out
}

// Structure returns one structure by id.
func (c *Client) Structure(id string) (*devices.Structure, bool) {
	obj, ok := c.storage.Get(devices.KindStructure, id)
	if !ok {
		return nil, false
	}
	s, ok := obj.(*devices.Structure)
	return s, ok
}

// StructureByName returns one structure by display name.
func (c *Client) StructureByName(name string) (*devices.Structure, bool) {
	for _, s := range c.Structures() {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Thermostat returns one thermostat by id.
func (c *Client) Thermostat(id string) (*devices.Thermostat, bool) {
	obj, ok := c.storage.Get(devices.KindThermostat, id)
	if !ok {
		return nil, false
	}
	t, ok := obj.(*devices.Thermostat)
	return t, ok
}

// Camera returns one camera by id.
func (c *Client) Camera(id string) (*devices.Camera, bool) {
	obj, ok := c.storage.Get(devices.KindCamera, id)
	if !ok {
		return nil, false
	}
	cam, ok := obj.(*devices.Camera)
	return cam, ok
}

var _ devices.Backend = (*Client)(nil)
