package gatewayapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibe-homelab/vision-insight-api/internal/dispatch"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeCatalog struct {
	aliases map[string]bool
}

func (c fakeCatalog) Has(alias string) bool { return c.aliases[alias] }
func (c fakeCatalog) List() []string {
	out := make([]string, 0, len(c.aliases))
	for a := range c.aliases {
		out = append(out, a)
	}
	return out
}

// IsVLM treats every configured alias except "image-gen" as a VLM, matching
// the fixed diffusion alias used throughout these fixtures.
func (c fakeCatalog) IsVLM(alias string) bool {
	return c.aliases[alias] && alias != "image-gen"
}

func cat(aliases ...string) fakeCatalog {
	m := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		m[a] = true
	}
	return fakeCatalog{aliases: m}
}

// newTestHandler wires a Handler against a fake Manager and a fake worker
// server, reachable through the dispatcher, that answers every request with
// 200 and workerBody.
func newTestHandler(t *testing.T, aliases fakeCatalog, workerBody string) (*Handler, *httptest.Server) {
	t.Helper()

	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(workerBody))
	}))
	t.Cleanup(worker.Close)

	workerPort := strings.TrimPrefix(worker.URL, "http://127.0.0.1:")

	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/spawn/"):
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"alias":"x","port":` + workerPort + `,"memory_gb":1,"status":"running"}`))
		case strings.HasPrefix(r.URL.Path, "/touch/"):
			w.WriteHeader(200)
		case r.URL.Path == "/status":
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"workers":{},"memory":{"available_gb":10}}`))
		case strings.HasPrefix(r.URL.Path, "/stop/"):
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"status":"stopped"}`))
		}
	}))
	t.Cleanup(manager.Close)

	d := dispatch.New(manager.URL, "127.0.0.1", aliases, testLogger())
	return New(d, testLogger(), ""), worker
}

func TestListModels(t *testing.T) {
	h, _ := newTestHandler(t, cat("vlm-fast", "image-gen"), `{}`)
	req := httptest.NewRequest("GET", "/v1/models", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "vlm-fast")
}

func TestChatKnownModel(t *testing.T) {
	h, _ := newTestHandler(t, cat("vlm-fast"), `{"reply":"hi"}`)
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{"model":"vlm-fast","messages":[{"role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "hi")
}

func TestChatRemoteModelRewritesToVLMFast(t *testing.T) {
	h, _ := newTestHandler(t, cat("vlm-fast"), `{"reply":"hi"}`)
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4","messages":[]}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestChatUnknownModelNotFound(t *testing.T) {
	h, _ := newTestHandler(t, cat("vlm-fast"), `{}`)
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{"model":"unknown","messages":[]}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 404, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown")
}

func TestImageGenerationsNotConfigured(t *testing.T) {
	h, _ := newTestHandler(t, cat("vlm-fast"), `{}`)
	req := httptest.NewRequest("POST", "/v1/images/generations", strings.NewReader(`{"prompt":"a cat"}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 404, rr.Code)
}

func TestImageGenerationsConfigured(t *testing.T) {
	h, _ := newTestHandler(t, cat("image-gen"), `{"image":"base64"}`)
	req := httptest.NewRequest("POST", "/v1/images/generations", strings.NewReader(`{"prompt":"a cat"}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestVisionAnalyzeBestTask(t *testing.T) {
	h, _ := newTestHandler(t, cat("vlm-best", "vlm-fast"), `{"result":"ok"}`)
	req := httptest.NewRequest("POST", "/v1/vision/analyze", strings.NewReader(`{"image":"b64","task":"describe"}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestVisionTasksListed(t *testing.T) {
	h, _ := newTestHandler(t, cat(), `{}`)
	req := httptest.NewRequest("GET", "/v1/vision/tasks", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "caption")
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, cat(), `{}`)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestSystemStatus(t *testing.T) {
	h, _ := newTestHandler(t, cat(), `{}`)
	req := httptest.NewRequest("GET", "/v1/system/status", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "available_gb")
}

func TestEvictRequiresAlias(t *testing.T) {
	h, _ := newTestHandler(t, cat(), `{}`)
	req := httptest.NewRequest("POST", "/v1/system/evict/", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 404, rr.Code)
}

func TestAPIKeyRequiredWhenConfigured(t *testing.T) {
	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer manager.Close()

	d := dispatch.New(manager.URL, "127.0.0.1", cat("vlm-fast"), testLogger())
	h := New(d, testLogger(), "secret")

	req := httptest.NewRequest("GET", "/v1/models", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 401, rr.Code)

	req2 := httptest.NewRequest("GET", "/v1/models", nil)
	req2.Header.Set("X-API-Key", "secret")
	rr2 := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr2, req2)
	assert.Equal(t, 200, rr2.Code)
}

func TestHealthzExemptFromAPIKey(t *testing.T) {
	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer manager.Close()

	d := dispatch.New(manager.URL, "127.0.0.1", cat(), testLogger())
	h := New(d, testLogger(), "secret")

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestEvictProxiesToManager(t *testing.T) {
	h, _ := newTestHandler(t, cat("vlm-fast"), `{}`)
	req := httptest.NewRequest("POST", "/v1/system/evict/vlm-fast", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "evicted")
}
