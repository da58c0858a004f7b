package dispatch

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestForwardHappyPath(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "hello")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"reply":"hi"}`))
	}))
	defer worker.Close()

	workerURL, _ := url.Parse(worker.URL)
	workerPort := workerURL.Port()

	var beginCalls, endCalls int
	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/spawn/"):
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"alias":"vlm-fast","port":` + workerPort + `,"memory_gb":4.5,"status":"running"}`))
		case strings.HasPrefix(r.URL.Path, "/touch/"):
			w.WriteHeader(200)
		case strings.HasPrefix(r.URL.Path, "/begin/"):
			beginCalls++
			w.WriteHeader(200)
		case strings.HasPrefix(r.URL.Path, "/end/"):
			endCalls++
			w.WriteHeader(200)
		}
	}))
	defer manager.Close()

	d := New(manager.URL, "127.0.0.1", cat("vlm-fast"), testLogger())

	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{"model":"vlm-fast","messages":[{"role":"user","content":"hello"}]}`))
	rr := httptest.NewRecorder()
	d.Forward(rr, req, "vlm-fast", "/chat", d.ChatClient())

	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "hi")
	assert.Equal(t, 1, beginCalls)
	assert.Equal(t, 1, endCalls)
}

func TestForwardPropagatesManagerNotFound(t *testing.T) {
	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		_, _ = w.Write([]byte(`{"detail":"worker alias not found"}`))
	}))
	defer manager.Close()

	d := New(manager.URL, "127.0.0.1", cat("vlm-fast"), testLogger())
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	d.Forward(rr, req, "vlm-fast", "/chat", d.ChatClient())

	assert.Equal(t, 404, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
}

func TestForwardPropagatesManagerOutOfMemory(t *testing.T) {
	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		_, _ = w.Write([]byte(`{"detail":"need 20.00 GB, have 4.00 GB"}`))
	}))
	defer manager.Close()

	d := New(manager.URL, "127.0.0.1", cat("image-gen"), testLogger())
	req := httptest.NewRequest("POST", "/v1/images/generations", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	d.Forward(rr, req, "image-gen", "/generate", d.ImageClient())

	assert.Equal(t, 503, rr.Code)
}

func TestForwardManagerUnreachable(t *testing.T) {
	d := New("http://127.0.0.1:1", "127.0.0.1", cat("vlm-fast"), testLogger())
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	d.Forward(rr, req, "vlm-fast", "/chat", d.ChatClient())

	assert.Equal(t, 500, rr.Code)
}
