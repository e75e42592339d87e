package dropcam

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) JWT() string { return string(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNewBuildsRegionalNexusHost(t *testing.T) {
	c := New(staticTokens("jwt"), "eu", testLogger())
	assert.Equal(t, "https://nexusapi-eu1.camera.home.nest.com", c.nexusBase)
}

func TestSetPropertiesSendsFormWithCookie(t *testing.T) {
	var gotCookie, gotContentType string
	var gotForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/dropcams.set_properties", r.URL.Path)
		gotCookie = r.Header.Get("Cookie")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(staticTokens("the-jwt"), "us", testLogger())
	c.SetBases(srv.URL+"/api", srv.URL)

	err := c.SetStreaming(context.Background(), "cam1", true)
	require.NoError(t, err)

	assert.Equal(t, "user_token=the-jwt", gotCookie)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, []string{"true"}, gotForm["streaming.enabled"])
	assert.Equal(t, []string{"cam1"}, gotForm["uuid"])
}

func TestSetPropertiesSurfacesStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(staticTokens("jwt"), "us", testLogger())
	c.SetBases(srv.URL+"/api", srv.URL)

	err := c.SetStreaming(context.Background(), "cam1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSnapshotFetchesAndPaces(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/get_image", r.URL.Path)
		assert.Equal(t, "cam1", r.URL.Query().Get("uuid"))
		assert.NotEmpty(t, r.URL.Query().Get("cachebuster"))
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	c := New(staticTokens("jwt"), "us", testLogger())
	c.SetBases(srv.URL+"/api", srv.URL)

	base := time.Now()
	c.now = func() time.Time { return base }

	img, err := c.Snapshot(context.Background(), "cam1", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), img)
	assert.Equal(t, 1, requests)

	// inside the pacing window the cached frame is returned
	img, err = c.Snapshot(context.Background(), "cam1", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), img)
	assert.Equal(t, 1, requests)

	// past the window a fresh fetch happens
	c.now = func() time.Time { return base.Add(snapshotInterval + time.Second) }
	_, err = c.Snapshot(context.Background(), "cam1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestSnapshotAwarePacingIsShorter(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	c := New(staticTokens("jwt"), "us", testLogger())
	c.SetBases(srv.URL+"/api", srv.URL)

	base := time.Now()
	c.now = func() time.Time { return base }
	_, err := c.Snapshot(context.Background(), "cam1", true)
	require.NoError(t, err)

	// past the aware interval but inside the regular one
	c.now = func() time.Time { return base.Add(snapshotIntervalAware + time.Second) }
	_, err = c.Snapshot(context.Background(), "cam1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestSnapshotReturnsCachedImageOnFailure(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write([]byte("cached-frame"))
	}))
	defer srv.Close()

	c := New(staticTokens("jwt"), "us", testLogger())
	c.SetBases(srv.URL+"/api", srv.URL)

	base := time.Now()
	c.now = func() time.Time { return base }
	_, err := c.Snapshot(context.Background(), "cam1", false)
	require.NoError(t, err)

	fail = true
	c.now = func() time.Time { return base.Add(snapshotInterval + time.Second) }
	img, err := c.Snapshot(context.Background(), "cam1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, []byte("cached-frame"), img, "stale frame beats no frame")
}

func TestSnapshotPacingIsPerCamera(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	c := New(staticTokens("jwt"), "us", testLogger())
	c.SetBases(srv.URL+"/api", srv.URL)

	base := time.Now()
	c.now = func() time.Time { return base }

	_, err := c.Snapshot(context.Background(), "cam1", false)
	require.NoError(t, err)
	_, err = c.Snapshot(context.Background(), "cam2", false)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}
