// Package managerapi exposes the Worker Manager's HTTP surface: the routes
// the gateway (and operators) use to drive the supervisor.
package managerapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
	"github.com/vibe-homelab/vision-insight-api/internal/logging"
	"github.com/vibe-homelab/vision-insight-api/internal/routing"
	"github.com/vibe-homelab/vision-insight-api/internal/supervisor"
)

// Handler implements the Manager's HTTP surface.
type Handler struct {
	sup *supervisor.Supervisor
	log logging.Logger

	residentGauge  prometheus.Gauge
	availableGauge prometheus.Gauge
	spawnCounter   *prometheus.CounterVec
}

// New wires a Handler around sup, registering its metrics against the
// given registerer (typically prometheus.DefaultRegisterer).
func New(sup *supervisor.Supervisor, log logging.Logger, reg prometheus.Registerer) *Handler {
	h := &Handler{
		sup: sup,
		log: log,
		residentGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_manager_workers_resident",
			Help: "Number of worker processes currently resident.",
		}),
		availableGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_manager_memory_available_gb",
			Help: "Host memory available, in GB, as of the last probe.",
		}),
		spawnCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_manager_spawn_total",
			Help: "Spawn attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(h.residentGauge, h.availableGauge, h.spawnCounter)
	}
	return h
}

// Routes returns a router with every Manager route registered, plus
// /metrics.
func (h *Handler) Routes() http.Handler {
	mux := routing.New()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/spawn/", h.handleSpawn)
	mux.HandleFunc("/stop/", h.handleStop)
	mux.HandleFunc("/touch/", h.handleTouch)
	mux.HandleFunc("/begin/", h.handleBegin)
	mux.HandleFunc("/end/", h.handleEnd)
	mux.HandleFunc("/stop-all", h.handleStopAll)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func aliasFromPath(r *http.Request, prefix string) string {
	return strings.TrimPrefix(r.URL.Path, prefix)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.sup.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"workers": len(snap.Workers),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.sup.Status()
	h.residentGauge.Set(float64(len(snap.Workers)))
	h.availableGauge.Set(snap.Memory.AvailableGB)

	workers := make(map[string]any, len(snap.Workers))
	for alias, rec := range snap.Workers {
		workers[alias] = map[string]any{
			"port":          rec.Port,
			"model_path":    rec.ModelPath,
			"model_type":    rec.ModelKind,
			"memory_gb":     rec.MemoryGB,
			"state":         rec.State,
			"request_count": rec.RequestCount,
			"pid":           rec.PID,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workers": workers,
		"memory": map[string]any{
			"total_gb":      snap.Memory.TotalGB,
			"used_gb":       snap.Memory.UsedGB,
			"available_gb":  snap.Memory.AvailableGB,
			"usage_percent": snap.Memory.UsagePercent(),
		},
	})
}

func (h *Handler) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	alias := aliasFromPath(r, "/spawn/")
	if alias == "" {
		writeDetail(w, http.StatusNotFound, "alias required")
		return
	}

	ctx, reqID := withRequestID(r.Context())
	w.Header().Set("X-Request-Id", reqID)
	log := h.log.WithField("request_id", reqID).WithField("alias", alias)

	rec, err := h.sup.Spawn(ctx, alias)
	switch {
	case err == nil:
		h.spawnCounter.WithLabelValues("ok").Inc()
		log.WithField("port", rec.Port).Info("spawn ok")
		writeJSON(w, http.StatusOK, map[string]any{
			"alias":     alias,
			"port":      rec.Port,
			"memory_gb": rec.MemoryGB,
			"status":    "running",
		})
	case errors.Is(err, catalog.ErrNotFound):
		h.spawnCounter.WithLabelValues("not_found").Inc()
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, supervisor.ErrStartupFailed):
		h.spawnCounter.WithLabelValues("startup_failure").Inc()
		log.WithField("error", err.Error()).Warn("spawn startup failure")
		writeDetail(w, http.StatusInternalServerError, err.Error())
	default:
		if oom, ok := supervisor.IsOutOfMemory(err); ok {
			h.spawnCounter.WithLabelValues("oom").Inc()
			log.WithField("error", oom.Error()).Warn("spawn rejected: out of memory")
			writeDetail(w, http.StatusServiceUnavailable, oom.Error())
			return
		}
		h.spawnCounter.WithLabelValues("error").Inc()
		log.WithField("error", err.Error()).Error("spawn failed")
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	alias := aliasFromPath(r, "/stop/")
	if alias == "" {
		writeDetail(w, http.StatusNotFound, "alias required")
		return
	}
	if ok := h.sup.Stop(r.Context(), alias); !ok {
		writeDetail(w, http.StatusNotFound, "worker not found: "+alias)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alias": alias, "status": "stopped"})
}

func (h *Handler) handleTouch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	alias := aliasFromPath(r, "/touch/")
	h.sup.Touch(alias)
	writeJSON(w, http.StatusOK, map[string]string{"alias": alias, "status": "touched"})
}

// handleBegin and handleEnd back the gateway's in-flight-request accounting
// around a proxied call, so a drain-on-evict wait (waitForDrainLocked) sees
// a worker's real ActiveRequests count instead of always zero.
func (h *Handler) handleBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	alias := aliasFromPath(r, "/begin/")
	if !h.sup.BeginRequest(alias) {
		writeDetail(w, http.StatusNotFound, "worker not found: "+alias)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alias": alias, "status": "began"})
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	alias := aliasFromPath(r, "/end/")
	h.sup.EndRequest(alias)
	writeJSON(w, http.StatusOK, map[string]string{"alias": alias, "status": "ended"})
}

func (h *Handler) handleStopAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	h.sup.StopAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type requestIDKey struct{}

// withRequestID stamps ctx with a fresh correlation ID, returned alongside
// so callers can also log it and echo it back to the client, without a
// second lookup through the context.
func withRequestID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, requestIDKey{}, id), id
}
