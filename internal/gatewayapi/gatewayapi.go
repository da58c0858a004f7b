// Package gatewayapi implements the Gateway's public HTTP route surface:
// OpenAI-shaped chat/image/vision endpoints plus the small set of
// system routes, all backed by internal/dispatch for alias resolution and
// forwarding.
package gatewayapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vibe-homelab/vision-insight-api/internal/dispatch"
	"github.com/vibe-homelab/vision-insight-api/internal/logging"
	"github.com/vibe-homelab/vision-insight-api/internal/routing"
)

// Handler owns the Gateway's route table.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	log        logging.Logger
	apiKey     string
}

// New constructs a Handler. apiKey, if non-empty, requires every request
// except /healthz to carry a matching X-API-Key header — the "shared key" authentication the
// spec's non-goals name as the one form of auth in scope; anything beyond
// that (per-user accounts, OAuth, and the like) is explicitly out of scope.
func New(d *dispatch.Dispatcher, log logging.Logger, apiKey string) *Handler {
	return &Handler{dispatcher: d, log: log, apiKey: apiKey}
}

// Routes returns the registered mux, normalized against accidental `//`
// collapsing the same way the Manager's mux is. /healthz is exempt from
// the shared-key check so liveness probes don't need a credential.
func (h *Handler) Routes() http.Handler {
	mux := routing.New()
	mux.HandleFunc("/v1/models", h.requireAPIKey(h.handleModels))
	mux.HandleFunc("/v1/chat/completions", h.requireAPIKey(h.handleChat))
	mux.HandleFunc("/v1/images/generations", h.requireAPIKey(h.handleImageGenerations))
	mux.HandleFunc("/v1/images/edits", h.requireAPIKey(h.handleImageEdits))
	mux.HandleFunc("/v1/vision/analyze", h.requireAPIKey(h.handleVisionAnalyze))
	mux.HandleFunc("/v1/vision/tasks", h.requireAPIKey(h.handleVisionTasks))
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/v1/system/status", h.requireAPIKey(h.handleSystemStatus))
	mux.HandleFunc("/v1/system/evict/", h.requireAPIKey(h.handleEvict))
	return mux
}

// requireAPIKey wraps next with the shared-key check when apiKey is
// configured; it's a no-op otherwise.
func (h *Handler) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	if h.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != h.apiKey {
			writeDetail(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// handleModels lists the configured aliases, OpenAI /v1/models-shaped.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	aliases := h.dispatcher.Catalog().List()
	data := make([]map[string]any, 0, len(aliases))
	for _, alias := range aliases {
		data = append(data, map[string]any{
			"id":       alias,
			"object":   "model",
			"owned_by": "local",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

type chatRequest struct {
	Model string `json:"model"`
}

// handleChat resolves the chat alias from the request body, then forwards
// the original bytes unchanged.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := rewind(r)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "reading request body: "+err.Error())
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	alias, err := dispatch.ResolveChatAlias(h.dispatcher.Catalog(), req.Model)
	if err != nil {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	h.dispatcher.Forward(w, r, alias, "/chat", h.dispatcher.ChatClient())
}

// handleImageGenerations routes text-to-image requests to the fixed
// image-gen alias.
func (h *Handler) handleImageGenerations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	alias, ok := dispatch.ResolveImageAlias(h.dispatcher.Catalog())
	if !ok {
		writeDetail(w, http.StatusNotFound, "Diffusion model not configured")
		return
	}
	h.dispatcher.Forward(w, r, alias, "/generate", h.dispatcher.ImageClient())
}

// handleImageEdits routes image-to-image requests to the fixed image-gen
// alias.
func (h *Handler) handleImageEdits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	alias, ok := dispatch.ResolveImageAlias(h.dispatcher.Catalog())
	if !ok {
		writeDetail(w, http.StatusNotFound, "Diffusion model not configured")
		return
	}
	h.dispatcher.Forward(w, r, alias, "/edit", h.dispatcher.ImageClient())
}

type analyzeRequest struct {
	Task string `json:"task"`
}

// handleVisionAnalyze picks vlm-best or vlm-fast depending on the
// requested task, falling back to whichever VLM is configured.
func (h *Handler) handleVisionAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := rewind(r)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "reading request body: "+err.Error())
		return
	}
	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Task == "" {
		req.Task = "caption"
	}
	alias, ok := dispatch.ResolveAnalyzeAlias(h.dispatcher.Catalog(), req.Task)
	if !ok {
		writeDetail(w, http.StatusNotFound, "no vision model configured")
		return
	}
	h.dispatcher.Forward(w, r, alias, "/analyze", h.dispatcher.AnalyzeClient())
}

// visionTasks is the fixed catalog of analysis tasks the worker contract
// recognizes.
var visionTasks = []map[string]string{
	{"id": "caption", "description": "Brief one-sentence caption"},
	{"id": "ocr", "description": "Extract text from image (OCR)"},
	{"id": "describe", "description": "Detailed image description"},
	{"id": "analyze", "description": "Comprehensive analysis"},
	{"id": "objects", "description": "List detected objects"},
	{"id": "custom", "description": "Custom prompt (provide 'prompt' field)"},
}

func (h *Handler) handleVisionTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": visionTasks})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().Unix()})
}

// handleSystemStatus is a direct passthrough to the Manager's own /status:
// the Manager's response body is written back unchanged.
func (h *Handler) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := h.dispatcher.ManagerStatus(r.Context())
	if err != nil {
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(status)
}

// handleEvict manually evicts a worker, proxying straight to the Manager's
// /stop/{alias} — the Manager stays the sole mutator of worker state.
func (h *Handler) handleEvict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	alias := strings.TrimPrefix(r.URL.Path, "/v1/system/evict/")
	if alias == "" {
		writeDetail(w, http.StatusNotFound, "alias required")
		return
	}
	if err := h.dispatcher.Evict(r.Context(), alias); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "evicted", "alias": alias})
}

// rewind reads a request body fully and replaces it with a fresh reader
// over the same bytes, so a handler can peek JSON fields before handing
// the untouched original bytes to Forward.
func rewind(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
