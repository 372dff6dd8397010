package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-hub/internal/application/facade"
	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/config"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/infrastructure/metrics"
)

const (
	testInternalSecret = "internal-secret"
	testTokenSecret    = "token-secret"
)

type testServer struct {
	*httptest.Server
	hub *hub.Hub
	cfg *config.Config
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Auth.InternalSecret = testInternalSecret
	cfg.Auth.TokenSecret = testTokenSecret
	cfg.Auth.AllowAnonymous = true
	cfg.Hub.HeartbeatInterval = time.Hour
	cfg.Hub.StaleThreshold = 2 * time.Hour
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.NewNop()
	registry := metrics.NewRegistry()
	hubInstance := hub.New(hubConfig(cfg.Hub), log, hub.WithMetrics(metrics.NewHubMetrics(registry)))
	require.NoError(t, hubInstance.Start(context.Background()))

	usecase := facade.NewNotificationApplicationService(hubInstance, cfg.Auth.InternalSecret, log)
	router := InitRouter(cfg, hubInstance, usecase, newGateway(cfg.Auth), registry, log)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hubInstance.Stop(ctx)
		srv.Close()
	})
	return &testServer{Server: srv, hub: hubInstance, cfg: cfg}
}

func token(t *testing.T, userID string, privileged bool) string {
	t.Helper()
	tok, err := auth.IssueToken(testTokenSecret, auth.Identity{UserID: userID, Privileged: privileged}, time.Hour)
	require.NoError(t, err)
	return tok
}

type stream struct {
	resp   *http.Response
	reader *bufio.Reader
}

func (ts *testServer) openStream(t *testing.T, query string) *stream {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/v1/notifications/stream" + query)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return &stream{resp: resp, reader: bufio.NewReader(resp.Body)}
}

func (s *stream) next(t *testing.T) map[string]any {
	t.Helper()
	line, err := s.reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)

	blank, err := s.reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "\n", blank)

	var frame map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
	return frame
}

func (ts *testServer) post(t *testing.T, path string, body string, header http.Header) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	return do(t, req)
}

func (ts *testServer) get(t *testing.T, path string, header http.Header) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &body), string(data))
	}
	return resp.StatusCode, body
}

func bearer(tok string) http.Header {
	return http.Header{"Authorization": {"Bearer " + tok}}
}

func TestStream_ConnectedThenTargetedEvent(t *testing.T) {
	ts := newTestServer(t, nil)

	u1 := ts.openStream(t, "?token="+token(t, "u1", false))
	assert.Equal(t, "text/event-stream", u1.resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", u1.resp.Header.Get("Cache-Control"))

	connected := u1.next(t)
	assert.Equal(t, "connected", connected["type"])
	connID, _ := connected["connectionId"].(string)
	require.NotEmpty(t, connID)

	conn, ok := ts.hub.GetConnection(connID)
	require.True(t, ok)
	assert.Equal(t, "u1", conn.OwnerID())

	secret := http.Header{"X-Internal-Secret": {testInternalSecret}}
	status, body := ts.post(t, "/api/v1/notifications/broadcast",
		`{"type":"adminNote","payload":{"text":"hidden"},"targetAdminOnly":true}`, secret)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, _ = ts.post(t, "/api/v1/notifications/broadcast",
		`{"type":"deepSearch","payload":{"status":"started"},"targetUserId":"u1"}`, secret)
	require.Equal(t, http.StatusOK, status)

	// The admin-only note was never queued for u1, so the next frame is the targeted one.
	assert.Equal(t, map[string]any{"type": "deepSearch", "status": "started"}, u1.next(t))
}

func TestStream_AnonymousPolicy(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Auth.AllowAnonymous = false })

	status, body := ts.get(t, "/api/v1/notifications/stream", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body["error"])

	status, _ = ts.get(t, "/api/v1/notifications/stream?token=bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Zero(t, ts.hub.ConnectionCount())
}

func TestStream_CapacityExceeded(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Hub.MaxConnections = 1 })

	first := ts.openStream(t, "")
	assert.Equal(t, "connected", first.next(t)["type"])

	status, body := ts.get(t, "/api/v1/notifications/stream", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, 1, ts.hub.ConnectionCount())
}

func TestStream_ClientAbortRemovesConnection(t *testing.T) {
	ts := newTestServer(t, nil)

	s := ts.openStream(t, "")
	assert.Equal(t, "connected", s.next(t)["type"])
	require.Equal(t, 1, ts.hub.ConnectionCount())

	require.NoError(t, s.resp.Body.Close())
	require.Eventually(t, func() bool { return ts.hub.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcast_Rejections(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.post(t, "/api/v1/notifications/broadcast", `{"type":"x","payload":{}}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body["error"])

	status, _ = ts.post(t, "/api/v1/notifications/broadcast", `{"type":"x","payload":{}}`,
		bearer(token(t, "u1", false)))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = ts.post(t, "/api/v1/notifications/broadcast", `{"payload":{}}`,
		http.Header{"X-Internal-Secret": {testInternalSecret}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])

	status, _ = ts.post(t, "/api/v1/notifications/broadcast", `{"type":"x","payload":{}}`,
		bearer(token(t, "admin", true)))
	assert.Equal(t, http.StatusOK, status)
}

func TestPong(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := token(t, "u1", false)

	s := ts.openStream(t, "?token="+tok)
	connID := s.next(t)["connectionId"].(string)

	status, body := ts.post(t, "/api/v1/notifications/pong", `{"connectionId":"`+connID+`"}`, bearer(tok))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, _ = ts.post(t, "/api/v1/notifications/pong", `{"connectionId":"`+connID+`"}`,
		bearer(token(t, "u2", false)))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.post(t, "/api/v1/notifications/pong", `{"connectionId":"missing"}`, bearer(tok))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.post(t, "/api/v1/notifications/pong", `{}`, bearer(tok))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestConnectionsListing(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.openStream(t, "?token="+token(t, "u1", false))
	s.next(t)

	status, _ := ts.get(t, "/api/v1/notifications/connections", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.get(t, "/api/v1/notifications/connections", bearer(token(t, "u1", false)))
	assert.Equal(t, http.StatusForbidden, status)

	status, body := ts.get(t, "/api/v1/notifications/connections", bearer(token(t, "admin", true)))
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total_connections"])
	conns := body["connections"].([]any)
	require.Len(t, conns, 1)
	assert.Equal(t, "u1", conns[0].(map[string]any)["ownerId"])
}

func TestStatusAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.get(t, "/hub/status", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["hub_running"])
	assert.EqualValues(t, 100, body["capacity"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "notification_hub_active_connections")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/notifications/broadcast", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
