package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/logging"
	"github.com/voxloop/voxloop/internal/orchestrator"
)

type stubInvoker struct {
	last domain.Invocation
}

func (s *stubInvoker) Handle(ctx context.Context, inv domain.Invocation) domain.PlatformResponse {
	s.last = inv
	return domain.PlatformResponse{
		ResponseText: "Hello!",
		Action:       domain.ActionContinue,
		SessionID:    inv.SessionID,
		TurnCount:    1,
	}
}

func newTestServer(t *testing.T, cfg config.GatewayConfig) (*Server, *stubInvoker, *httptest.Server) {
	t.Helper()
	inv := &stubInvoker{}
	s := New(cfg, inv, logging.New(io.Discard, "silent"))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", s.requireAuth(s.handleInvoke))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws/events", s.requireAuth(s.handleEvents))

	ts := httptest.NewServer(withMiddleware(mux, s.log))
	t.Cleanup(ts.Close)
	return s, inv, ts
}

func TestInvokeEndpoint(t *testing.T) {
	_, inv, ts := newTestServer(t, config.GatewayConfig{})

	body := `{"sessionId":"call-1","transcript":"hi","eventType":"user_input"}`
	resp, err := http.Post(ts.URL+"/invoke", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var out domain.PlatformResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Hello!", out.ResponseText)
	assert.Equal(t, domain.ActionContinue, out.Action)
	assert.Equal(t, "call-1", inv.last.SessionID)
}

func TestInvokeDefaultsEventType(t *testing.T) {
	_, inv, ts := newTestServer(t, config.GatewayConfig{})

	resp, err := http.Post(ts.URL+"/invoke", "application/json", strings.NewReader(`{"sessionId":"call-1"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, domain.EventUserInput, inv.last.EventType)
}

func TestInvokeRejectsBadPayload(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{})

	resp, err := http.Post(ts.URL+"/invoke", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvokeRequiresToken(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{AuthToken: "sekrit"})

	resp, err := http.Post(ts.URL+"/invoke", "application/json", strings.NewReader(`{"sessionId":"s"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/invoke", strings.NewReader(`{"sessionId":"s"}`))
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpointIsPublic(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{AuthToken: "sekrit"})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestEventStream(t *testing.T) {
	s, _, ts := newTestServer(t, config.GatewayConfig{})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the subscriber to register before publishing.
	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, time.Second, 10*time.Millisecond)

	s.Hub().TurnCompleted(orchestrator.TurnEvent{
		SessionID: "call-1",
		TurnIndex: 2,
		Action:    domain.ActionContinue,
		Verdict:   domain.VerdictAllowed,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev orchestrator.TurnEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "call-1", ev.SessionID)
	assert.Equal(t, 2, ev.TurnIndex)
}

func TestEventStreamAuthViaQueryToken(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{AuthToken: "sekrit"})

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token=sekrit", nil)
	require.NoError(t, err)
	conn.Close()
}

func TestResolveBindAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:18920", resolveBindAddr(config.GatewayConfig{Bind: "loopback", Port: 18920}))
	assert.Equal(t, "0.0.0.0:18920", resolveBindAddr(config.GatewayConfig{Bind: "lan", Port: 18920}))
	assert.Equal(t, "127.0.0.1:1", resolveBindAddr(config.GatewayConfig{Port: 1}))
}

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("abc", "abc"))
	assert.False(t, safeEqual("abc", "abd"))
	assert.False(t, safeEqual("abc", "abcd"))
	assert.True(t, safeEqual("", ""))
}
