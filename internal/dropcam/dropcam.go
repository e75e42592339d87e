// Package dropcam talks to the Nest camera web API: property writes go
// through webapi.camera.home.nest.com, still snapshots come from the
// regional nexus hosts. Both endpoints authenticate with the session JWT
// as a user_token cookie, not the Basic header the bucket API uses.
package dropcam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trymwestin/nestga/internal/core/transport"
)

const defaultTimeout = 15 * time.Second

// Snapshot pacing: Nest Aware accounts may fetch 10/min, others 2/min.
const (
	snapshotIntervalAware = 6 * time.Second
	snapshotInterval      = 30 * time.Second
)

// TokenSource supplies the current session JWT.
type TokenSource interface {
	JWT() string
}

// Client is the camera web API client.
type Client struct {
	tokens TokenSource
	http   *http.Client
	log    *slog.Logger

	apiBase   string
	nexusBase string

	mu    sync.Mutex
	cache map[string]*snapshotState
	now   func() time.Time
}

type snapshotState struct {
	lastImage []byte
	nextAt    time.Time
}

// New creates a client for the given camera API region.
func New(tokens TokenSource, region string, log *slog.Logger) *Client {
	return &Client{
		tokens:    tokens,
		http:      &http.Client{Timeout: defaultTimeout},
		log:       log,
		apiBase:   "https://webapi.camera.home.nest.com/api",
		nexusBase: fmt.Sprintf("https://nexusapi-%s1.camera.home.nest.com", region),
		cache:     make(map[string]*snapshotState),
		now:       time.Now,
	}
}

// SetBases overrides the API endpoints. Used in tests.
func (c *Client) SetBases(apiBase, nexusBase string) {
	c.apiBase = apiBase
	c.nexusBase = nexusBase
}

// SetHTTPClient replaces the underlying HTTP client. Used in tests.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

// SetProperties posts a property map to dropcams.set_properties. The
// bucket poll observes the effect on the next cycle.
func (c *Client) SetProperties(ctx context.Context, props map[string]string) error {
	form := url.Values{}
	for k, v := range props {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/dropcams.set_properties", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("dropcam: set_properties: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dropcam: set_properties: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dropcam: set_properties: %w",
			&transport.StatusError{Code: resp.StatusCode, Body: string(body)})
	}
	return nil
}

// SetStreaming switches a camera's streaming on or off.
func (c *Client) SetStreaming(ctx context.Context, cameraID string, on bool) error {
	return c.SetProperties(ctx, map[string]string{
		"streaming.enabled": strconv.FormatBool(on),
		"uuid":              cameraID,
	})
}

// Snapshot fetches a still image for a camera, paced per the account's
// Nest Aware status. On failure the last cached image is returned along
// with the error, so callers can keep serving a frame while they
// re-authenticate.
func (c *Client) Snapshot(ctx context.Context, cameraID string, aware bool) ([]byte, error) {
	c.mu.Lock()
	state := c.cache[cameraID]
	if state == nil {
		state = &snapshotState{}
		c.cache[cameraID] = state
	}
	now := c.now()
	if !state.nextAt.IsZero() && now.Before(state.nextAt) {
		img := state.lastImage
		c.mu.Unlock()
		return img, nil
	}
	c.mu.Unlock()

	snapshotURL := fmt.Sprintf("%s/get_image?uuid=%s&cachebuster=%d",
		c.nexusBase, url.QueryEscape(cameraID), now.UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, snapshotURL, nil)
	if err != nil {
		return c.lastImage(cameraID), fmt.Errorf("dropcam: snapshot %s: %w", cameraID, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.lastImage(cameraID), fmt.Errorf("dropcam: snapshot %s: %w", cameraID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.log.Debug("snapshot fetch failed", "camera", cameraID, "status", resp.StatusCode)
		return c.lastImage(cameraID), fmt.Errorf("dropcam: snapshot %s: %w", cameraID,
			&transport.StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.lastImage(cameraID), fmt.Errorf("dropcam: snapshot %s: read: %w", cameraID, err)
	}

	interval := snapshotInterval
	if aware {
		interval = snapshotIntervalAware
	}

	c.mu.Lock()
	state.lastImage = img
	state.nextAt = now.Add(interval)
	c.mu.Unlock()

	return img, nil
}

func (c *Client) lastImage(cameraID string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state := c.cache[cameraID]; state != nil {
		return state.lastImage
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Cookie", "user_token="+c.tokens.JWT())
	req.Header.Set("User-Agent", transport.UserAgent)
	req.Header.Set("Origin", "https://home.nest.com")
	req.Header.Set("Referer", "https://home.nest.com/")
}
