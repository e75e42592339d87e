package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// handshakeServers stands up the three endpoints of the login flow.
type handshakeServers struct {
	issueToken *httptest.Server
	jwt        *httptest.Server
	session    *httptest.Server

	logins atomic.Int64
}

func newHandshakeServers(t *testing.T) *handshakeServers {
	t.Helper()
	h := &handshakeServers{}

	h.issueToken = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logins.Add(1)
		assert.Equal(t, "SID=abc; HSID=def", r.Header.Get("Cookie"))
		assert.Equal(t, "XmlHttpRequest", r.Header.Get("X-Requested-With"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "google-token"})
	}))
	t.Cleanup(h.issueToken.Close)

	h.jwt = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer google-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("x-goog-api-key"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "google-token", r.PostForm.Get("google_oauth_access_token"))
		assert.Equal(t, "authproxy-oauth-policy", r.PostForm.Get("policy_id"))

		json.NewEncoder(w).Encode(map[string]any{
			"jwt": "nest-jwt",
			"claims": map[string]any{
				"subject": map[string]any{
					"nestId": map[string]any{"id": "claims-user"},
				},
			},
		})
	}))
	t.Cleanup(h.jwt.Close)

	h.session = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic nest-jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "user_token=nest-jwt", r.Header.Get("Cookie"))
		json.NewEncoder(w).Encode(map[string]any{
			"urls":   map[string]any{"transport_url": "https://czfe99-front01.transport"},
			"userid": "user.12345",
		})
	}))
	t.Cleanup(h.session.Close)

	return h
}

func (h *handshakeServers) authenticator(log *slog.Logger) *Authenticator {
	a := New(h.issueToken.URL, "SID=abc; HSID=def", "us", log)
	a.SetEndpoints(h.jwt.URL, h.session.URL)
	return a
}

func TestLoginHappyPath(t *testing.T) {
	h := newHandshakeServers(t)
	a := h.authenticator(testLogger())

	sess, err := a.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "google-token", sess.AccessToken)
	assert.Equal(t, "nest-jwt", sess.JWT)
	assert.Equal(t, "user.12345", sess.UserID, "session user id wins over claims")
	assert.Equal(t, "https://czfe99-front01.transport", sess.TransportURL)
	assert.True(t, sess.Valid())
}

func TestLoginFallsBackToClaimsUserID(t *testing.T) {
	h := newHandshakeServers(t)
	h.session.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"transport_url": "https://transport"})
	})
	a := h.authenticator(testLogger())

	sess, err := a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "claims-user", sess.UserID)
	assert.Equal(t, "https://transport", sess.TransportURL, "flat transport_url accepted")
}

func TestLoginFailsWithoutAccessToken(t *testing.T) {
	h := newHandshakeServers(t)
	h.issueToken.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "cookie expired"})
	})
	a := h.authenticator(testLogger())

	_, err := a.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token")
}

func TestLoginFailsWithoutJWT(t *testing.T) {
	h := newHandshakeServers(t)
	h.jwt.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	})
	a := h.authenticator(testLogger())

	_, err := a.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue jwt")
}

func TestLoginFailsWithoutTransportURL(t *testing.T) {
	h := newHandshakeServers(t)
	h.session.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"userid": "user.12345"})
	})
	a := h.authenticator(testLogger())

	sess, err := a.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport_url")
	assert.False(t, sess.Valid(), "no partial session on failure")
}

func TestLoginSurfacesUpstreamStatus(t *testing.T) {
	h := newHandshakeServers(t)
	h.issueToken.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	a := h.authenticator(testLogger())

	_, err := a.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSessionStoreRefreshAndAuthorization(t *testing.T) {
	h := newHandshakeServers(t)
	store := NewSessionStore(h.authenticator(testLogger()), testLogger())

	assert.False(t, store.Current().Valid())
	assert.Equal(t, "Basic ", store.Authorization())

	sess, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, sess.Valid())

	assert.Equal(t, "Basic nest-jwt", store.Authorization())
	assert.Equal(t, "nest-jwt", store.JWT())
	assert.Equal(t, sess, store.Current())
}

func TestSessionStoreRefreshKeepsOldSessionOnFailure(t *testing.T) {
	h := newHandshakeServers(t)
	store := NewSessionStore(h.authenticator(testLogger()), testLogger())

	_, err := store.Refresh(context.Background())
	require.NoError(t, err)

	h.issueToken.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err = store.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, store.Current().Valid(), "failed refresh leaves the old session in place")
}
