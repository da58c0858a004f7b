// Package dispatch implements the Gateway's stateless routing layer: alias
// resolution, calling the Manager to spawn/touch a worker, and forwarding
// the original request bytes to it.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibe-homelab/vision-insight-api/internal/logging"
)

// Route timeouts, grounded in the original gateway's per-endpoint httpx
// timeouts.
const (
	ChatTimeout    = 60 * time.Second
	AnalyzeTimeout = 120 * time.Second
	ImageTimeout   = 300 * time.Second
)

// Catalog is the subset of internal/catalog.Catalog dispatch needs: alias
// existence and kind checks, without pulling in memory-estimation concerns
// that belong to the manager, not the gateway.
type Catalog interface {
	Has(alias string) bool
	List() []string
	IsVLM(alias string) bool
}

// Dispatcher is stateless: it holds only where the Manager and workers are,
// never a worker's address across requests. Every request re-resolves
// through the Manager, per the spec's single-authority rule.
type Dispatcher struct {
	managerBaseURL string
	workerHost     string
	catalog        Catalog
	log            logging.Logger

	manager *http.Client
	chat    *http.Client
	analyze *http.Client
	image   *http.Client
}

// New constructs a Dispatcher. workerHost is how the gateway reaches
// spawned workers (e.g. "localhost" in a single-host deployment, or
// "host.docker.internal" when the gateway runs in a container alongside a
// host-level manager).
func New(managerBaseURL, workerHost string, cat Catalog, log logging.Logger) *Dispatcher {
	return &Dispatcher{
		managerBaseURL: strings.TrimSuffix(managerBaseURL, "/"),
		workerHost:     workerHost,
		catalog:        cat,
		log:            log,
		manager:        &http.Client{Timeout: 10 * time.Second},
		chat:           &http.Client{Timeout: ChatTimeout},
		analyze:        &http.Client{Timeout: AnalyzeTimeout},
		image:          &http.Client{Timeout: ImageTimeout},
	}
}

// ManagerError is returned when the Manager's response indicated failure;
// Status carries the Manager's HTTP status so the gateway can mirror it.
type ManagerError struct {
	Status int
	Detail string
}

func (e *ManagerError) Error() string {
	return fmt.Sprintf("manager returned %d: %s", e.Status, e.Detail)
}

type spawnResponse struct {
	Alias    string  `json:"alias"`
	Port     int     `json:"port"`
	MemoryGB float64 `json:"memory_gb"`
	Status   string  `json:"status"`
}

// spawn calls the Manager's idempotent /spawn/{alias} and returns the
// worker's port.
func (d *Dispatcher) spawn(ctx context.Context, alias string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 70*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/spawn/%s", d.managerBaseURL, alias)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.manager.Do(req)
	if err != nil {
		return 0, fmt.Errorf("manager unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return 0, &ManagerError{Status: resp.StatusCode, Detail: detailFrom(body)}
	}

	var sr spawnResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return 0, fmt.Errorf("decoding manager response: %w", err)
	}
	return sr.Port, nil
}

// touch calls the Manager's /touch/{alias}, best-effort: failures are
// logged, never surfaced to the client.
func (d *Dispatcher) touch(ctx context.Context, alias string) {
	d.postBestEffort(ctx, "touch", alias)
}

// beginRequest and endRequest bracket the proxied round-trip with the
// Manager's in-flight-request accounting, best-effort like touch: the
// Manager, not the gateway, is the sole owner of ActiveRequests, so a
// transient failure here only means a drain wait sees a stale count, never
// a client-visible error.
func (d *Dispatcher) beginRequest(ctx context.Context, alias string) {
	d.postBestEffort(ctx, "begin", alias)
}

func (d *Dispatcher) endRequest(ctx context.Context, alias string) {
	d.postBestEffort(ctx, "end", alias)
}

func (d *Dispatcher) postBestEffort(ctx context.Context, route, alias string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	url := fmt.Sprintf("%s/%s/%s", d.managerBaseURL, route, alias)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return
	}
	resp, err := d.manager.Do(req)
	if err != nil {
		d.log.WithField("alias", alias).WithField("route", route).Warn(route + " failed (best-effort)")
		return
	}
	resp.Body.Close()
}

func detailFrom(body []byte) string {
	var v struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &v); err == nil && v.Detail != "" {
		return v.Detail
	}
	return string(body)
}

// Forward spawns+touches the already-resolved alias via the Manager, then proxies
// the original request bytes to the worker's route, streaming the worker's
// response back verbatim.
func (d *Dispatcher) Forward(w http.ResponseWriter, r *http.Request, alias, workerRoute string, timeout *http.Client) {
	reqID := uuid.NewString()
	log := d.log.WithField("request_id", reqID).WithField("alias", alias)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "reading request body: "+err.Error())
		return
	}

	port, err := d.spawn(r.Context(), alias)
	if err != nil {
		d.writeUpstreamError(w, err)
		return
	}

	d.touch(r.Context(), alias)
	d.beginRequest(r.Context(), alias)
	defer d.endRequest(context.Background(), alias)

	workerURL := fmt.Sprintf("http://%s:%d%s", d.workerHost, port, workerRoute)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, workerURL, bytes.NewReader(body))
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "building worker request: "+err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := timeout.Do(req)
	if err != nil {
		log.WithField("error", err.Error()).Error("worker request failed")
		writeDetail(w, http.StatusInternalServerError, "worker error: "+err.Error())
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// ManagerStatus proxies the Manager's /status verbatim for the Gateway's
// /v1/system/status route.
func (d *Dispatcher) ManagerStatus(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := d.managerBaseURL + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.manager.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manager unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("manager status returned %d: %s", resp.StatusCode, detailFrom(body))
	}
	return body, nil
}

// Evict proxies straight to the Manager's /stop/{alias}; the Manager
// remains the sole mutator of worker state.
func (d *Dispatcher) Evict(ctx context.Context, alias string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/stop/%s", d.managerBaseURL, alias)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.manager.Do(req)
	if err != nil {
		return fmt.Errorf("manager unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s", detailFrom(body))
	}
	return nil
}

func (d *Dispatcher) writeUpstreamError(w http.ResponseWriter, err error) {
	var mErr *ManagerError
	if me, ok := err.(*ManagerError); ok {
		mErr = me
	}
	if mErr != nil {
		writeDetail(w, mErr.Status, mErr.Detail)
		return
	}
	writeDetail(w, http.StatusInternalServerError, err.Error())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// ChatClient, AnalyzeClient, ImageClient expose the per-route timeout
// clients for handlers that need to pass them to Forward.
func (d *Dispatcher) ChatClient() *http.Client    { return d.chat }
func (d *Dispatcher) AnalyzeClient() *http.Client { return d.analyze }
func (d *Dispatcher) ImageClient() *http.Client   { return d.image }

// Catalog exposes the dispatcher's catalog for route handlers that need to
// check alias existence.
func (d *Dispatcher) Catalog() Catalog { return d.catalog }
