package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minekeeper/minekeeper/internal/config"
	"github.com/minekeeper/minekeeper/internal/detector"
	"github.com/minekeeper/minekeeper/internal/supervisor"
)

func newTestRouter(t *testing.T, command string) (*Router, *supervisor.Supervisor) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sup, err := supervisor.New(supervisor.Spec{
		Name:           "web-test",
		Command:        command,
		StopTimeout:    500 * time.Millisecond,
		RestartBackoff: 50 * time.Millisecond,
		Markers: detector.Config{
			Ready: []detector.MarkerConfig{{Value: "READY"}},
		},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	ep := config.EndpointsConfig{Host: "mc.example.com", JavaPort: 25565, BedrockPort: 19132}
	return NewRouter(sup, ep, "/api"), sup
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestHealthAlwaysAlive(t *testing.T) {
	r, _ := newTestRouter(t, "sleep 5")
	code, out := doJSON(t, r.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
}

func TestStatusOffline(t *testing.T) {
	r, _ := newTestRouter(t, "sleep 5")
	code, out := doJSON(t, r.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	srv := out["server"].(map[string]any)
	assert.Equal(t, "offline", srv["state"])
	assert.Equal(t, false, srv["running"])
	assert.Equal(t, false, srv["ready"])

	ep := out["endpoints"].(map[string]any)
	assert.Equal(t, "mc.example.com", ep["host"])
	assert.Equal(t, float64(25565), ep["java_port"])
	assert.Equal(t, float64(19132), ep["bedrock_port"])
}

func TestStartStopRoundTrip(t *testing.T) {
	r, sup := newTestRouter(t, `sh -c 'echo READY; read line; exit 0'`)
	h := r.Handler()

	code, out := doJSON(t, h, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	require.Eventually(t, func() bool {
		return sup.Status().State == "online"
	}, 5*time.Second, 10*time.Millisecond)

	// Double start is a domain error: still HTTP 200, success:false.
	code, out = doJSON(t, h, http.MethodPost, "/api/start", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])

	code, out = doJSON(t, h, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	require.Eventually(t, func() bool {
		return sup.Status().State == "offline"
	}, 5*time.Second, 10*time.Millisecond)

	code, out = doJSON(t, h, http.MethodPost, "/api/stop", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])
}

func TestCommandValidation(t *testing.T) {
	r, _ := newTestRouter(t, "sleep 5")
	h := r.Handler()

	code, out := doJSON(t, h, http.MethodPost, "/api/command", `{}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])

	long := strings.Repeat("x", 120)
	code, out = doJSON(t, h, http.MethodPost, "/api/command", `{"command":"`+long+`"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])

	// Well-formed command while offline: accepted and silently dropped.
	code, out = doJSON(t, h, http.MethodPost, "/api/command", `{"command":"say hi"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	code, _ = doJSON(t, h, http.MethodPost, "/api/command", `{"command":`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSanitizeBase(t *testing.T) {
	assert.Equal(t, "", sanitizeBase(""))
	assert.Equal(t, "", sanitizeBase("/"))
	assert.Equal(t, "/api", sanitizeBase("api"))
	assert.Equal(t, "/api", sanitizeBase("/api/"))
	assert.Equal(t, "/a/b", sanitizeBase("/a/b"))
}
