package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/whisperwire/whisperwire/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	srv := New(cfg, st, st, zaptest.NewLogger(t))

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) apiResponse {
	t.Helper()
	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// TestHealthHandler verifies the plain-text health check.
func TestHealthHandler(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

// TestSignupAndLogin walks the happy path: create an account, then log in
// with the right password and fail with the wrong one.
func TestSignupAndLogin(t *testing.T) {
	_, ts := newTestServer(t)
	creds := credentialsRequest{Username: "alice", Password: "sup3rsecret"}

	resp := postJSON(t, ts.URL+"/signup", creds)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeResponse(t, resp).Success)

	resp = postJSON(t, ts.URL+"/login", creds)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, "alice", body.Username)

	resp = postJSON(t, ts.URL+"/login", credentialsRequest{Username: "alice", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestSignupValidation verifies minimum lengths and the duplicate-user
// conflict.
func TestSignupValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/signup", credentialsRequest{Username: "al", Password: "sup3rsecret"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/signup", credentialsRequest{Username: "alice", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ok := credentialsRequest{Username: "alice", Password: "sup3rsecret"}
	resp = postJSON(t, ts.URL+"/signup", ok)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/signup", ok)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// TestLoginUnknownUser verifies that an unknown user is refused without
// revealing whether the account exists.
func TestLoginUnknownUser(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/login", credentialsRequest{Username: "ghost", Password: "sup3rsecret"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestAccountEndpointsRejectGet verifies the method guard on the account
// endpoints.
func TestAccountEndpointsRejectGet(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/signup", "/login"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}

// TestWebSocketHandlerRejectsBadOrigin verifies that the upgrade is refused
// when the Origin header is not allowed.
func TestWebSocketHandlerRejectsBadOrigin(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"http://allowed.test"}
	srv := New(cfg, st, st, zaptest.NewLogger(t))

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	rec := httptest.NewRecorder()
	srv.WebSocketHandler(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
