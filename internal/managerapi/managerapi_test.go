package managerapi

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
	"github.com/vibe-homelab/vision-insight-api/internal/config"
	"github.com/vibe-homelab/vision-insight-api/internal/memprobe"
	"github.com/vibe-homelab/vision-insight-api/internal/supervisor"
)

type zeroProber struct{}

func (zeroProber) Probe() memprobe.Status {
	return memprobe.Status{TotalGB: 32, AvailableGB: 30}
}

type noopLauncher struct{}

func (noopLauncher) Launch(string, catalog.Kind, string, uint16, map[string]any) (string, []string, error) {
	return "", nil, assertNever{}
}

type assertNever struct{}

func (assertNever) Error() string { return "launch should not be invoked in this test" }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestHandler() *Handler {
	cat := catalog.New(map[string]config.ModelConfig{
		"vlm-fast": {Type: "vlm", Path: "mlx-community/moondream2"},
	})
	sup := supervisor.New(cat, zeroProber{}, noopLauncher{}, supervisor.Policy{
		IdleTimeout:       time.Hour,
		SweepInterval:     time.Hour,
		SpawnReadyTimeout: time.Second,
	}, testLogger())
	return New(sup, testLogger(), prometheus.NewRegistry())
}

func TestHealthRoute(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestSpawnUnknownAliasReturns404(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("POST", "/spawn/does-not-exist", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 404, rr.Code)
	assert.Contains(t, rr.Body.String(), "detail")
}

func TestStopUnknownAliasReturns404(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("POST", "/stop/nope", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 404, rr.Code)
}

func TestTouchUnknownAliasAlwaysOK(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("POST", "/touch/nope", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestStopAllReturnsOK(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("POST", "/stop-all", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestBeginUnknownAliasReturns404(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("POST", "/begin/nope", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 404, rr.Code)
}

func TestEndUnknownAliasAlwaysOK(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("POST", "/end/nope", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestStatusReportsMemory(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "available_gb")
}
