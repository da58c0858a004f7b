// Package supervisor owns every worker subprocess's lifecycle: spawn,
// health, touch, idle sweep, and memory-driven eviction. It is the single
// writer to the resident-worker map; everything else in the manager reads
// through its exported methods.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vibe-homelab/vision-insight-api/internal/admission"
	"github.com/vibe-homelab/vision-insight-api/internal/catalog"
	"github.com/vibe-homelab/vision-insight-api/internal/logging"
	"github.com/vibe-homelab/vision-insight-api/internal/memprobe"
	"github.com/vibe-homelab/vision-insight-api/internal/procgroup"
	"github.com/vibe-homelab/vision-insight-api/internal/tailbuffer"
)

const tailBufferSize = 16 * 1024

// Supervisor is the single-writer owner of every resident worker.
type Supervisor struct {
	catalog  *catalog.Catalog
	prober   memprobe.Prober
	launcher Launcher
	policy   Policy
	log      logging.Logger
	client   *http.Client

	// guard is a buffered (size 1) channel used as the supervisor's mutual
	// exclusion primitive instead of sync.Mutex, so acquisition can be
	// cancelled via context and sweep/spawn/stop share one serialization
	// point without risking a blocked idle sweep holding up shutdown.
	guard chan struct{}

	records *recordTable
	ports   *portAllocator
}

// recordTable groups the supervisor's mutable state so it's clear exactly
// what guard protects.
type recordTable struct {
	byAlias map[string]*Record
	groups  map[string]procgroup.Group
	logs    map[string]*os.File
	tails   map[string]io.ReadWriter
}

// New constructs a Supervisor. cat, prober, launcher and policy are
// threaded explicitly rather than read from globals, so startup order
// (config → memprobe → catalog → supervisor) is visible at the call site.
func New(cat *catalog.Catalog, prober memprobe.Prober, launcher Launcher, policy Policy, log logging.Logger) *Supervisor {
	s := &Supervisor{
		catalog:  cat,
		prober:   prober,
		launcher: launcher,
		policy:   policy,
		log:      log,
		client:   &http.Client{Timeout: 5 * time.Second},
		guard:    make(chan struct{}, 1),
		records: &recordTable{
			byAlias: make(map[string]*Record),
			groups:  make(map[string]procgroup.Group),
			logs:    make(map[string]*os.File),
			tails:   make(map[string]io.ReadWriter),
		},
		ports: newPortAllocator(policy.Ports),
	}
	s.guard <- struct{}{}
	return s
}

func (s *Supervisor) lock(ctx context.Context) bool {
	select {
	case <-s.guard:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) unlock() {
	s.guard <- struct{}{}
}

// Spawn implements the idempotent-spawn/admission/eviction/launch/health-poll
// sequence. It is safe to call concurrently for the same alias: exactly one
// caller performs the launch, the rest observe the resulting record.
func (s *Supervisor) Spawn(ctx context.Context, alias string) (*Record, error) {
	if !s.lock(ctx) {
		return nil, ctx.Err()
	}
	defer s.unlock()

	if rec, ok := s.records.byAlias[alias]; ok {
		if s.childAlive(alias) && healthCheck(ctx, s.client, rec.Port) {
			rec.LastUsed = time.Now()
			return rec, nil
		}
		s.removeLocked(alias)
	}

	entry, err := s.catalog.Lookup(alias)
	if err != nil {
		return nil, err
	}

	requiredGB := catalog.EstimateMemoryGB(entry)

	if err := s.ensureAdmittedLocked(ctx, requiredGB); err != nil {
		return nil, err
	}

	port := s.ports.allocate(alias)

	name, args, err := s.launcher.Launch(alias, entry.Kind, entry.Path, port, entry.Params)
	if err != nil {
		return nil, fmt.Errorf("resolving launch command: %w", err)
	}

	logFile, tail, err := s.openLogSink(alias)
	if err != nil {
		return nil, fmt.Errorf("opening log sink: %w", err)
	}

	spawnID := uuid.NewString()
	s.log.WithFields(map[string]any{
		"alias":    alias,
		"spawn_id": spawnID,
		"port":     port,
	}).Info("spawning worker")

	var out io.Writer = tail
	if logFile != nil {
		out = io.MultiWriter(logFile, tail)
	}

	grp, err := procgroup.Start(name, args, out)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("launching worker: %w", err)
	}

	rec := &Record{
		Alias:     alias,
		Port:      port,
		ModelPath: entry.Path,
		ModelKind: string(entry.Kind),
		MemoryGB:  requiredGB,
		PID:       grp.Command().Process.Pid,
		State:     StateSpawning,
		StartedAt: time.Now(),
		LastUsed:  time.Now(),
	}
	s.records.byAlias[alias] = rec
	s.records.groups[alias] = grp
	s.records.logs[alias] = logFile
	s.records.tails[alias] = tail

	readyCtx, cancel := context.WithTimeout(ctx, s.policy.SpawnReadyTimeout)
	defer cancel()
	if err := waitReady(readyCtx, s.client, port, s.policy.SpawnReadyTimeout); err != nil {
		s.log.WithFields(map[string]any{
			"alias": alias,
			"tail":  tailbuffer.Snapshot(tail),
		}).Warn("worker failed to become ready, force-stopping")
		s.stopLocked(alias, 0)
		return nil, ErrStartupFailed
	}

	rec.State = StateReady
	return rec, nil
}

// ensureAdmittedLocked runs the probe-decide-evict-reprobe cycle. Caller
// must hold the lock.
func (s *Supervisor) ensureAdmittedLocked(ctx context.Context, requiredGB float64) error {
	mem := s.prober.Probe()
	decision := admission.Decide(requiredGB, mem, s.residentsLocked(), s.policy.SafetyMarginGB)
	if decision.Fits {
		return nil
	}

	for _, alias := range decision.Evict {
		s.log.WithField("alias", alias).Info("evicting to satisfy admission")
		s.stopLocked(alias, s.drainFor(alias))
		time.Sleep(500 * time.Millisecond)

		mem = s.prober.Probe()
		if admission.Decide(requiredGB, mem, s.residentsLocked(), s.policy.SafetyMarginGB).Fits {
			return nil
		}
	}

	mem = s.prober.Probe()
	final := admission.Decide(requiredGB, mem, s.residentsLocked(), s.policy.SafetyMarginGB)
	if final.Fits {
		return nil
	}
	return &OutOfMemoryError{NeededGB: requiredGB, AvailableGB: mem.AvailableGB}
}

func (s *Supervisor) drainFor(alias string) time.Duration {
	if !s.policy.DrainOnEvict {
		return 0
	}
	return s.policy.DrainTimeout
}

func (s *Supervisor) residentsLocked() []admission.Resident {
	out := make([]admission.Resident, 0, len(s.records.byAlias))
	for _, r := range s.records.byAlias {
		out = append(out, admission.Resident{Alias: r.Alias, MemoryGB: r.MemoryGB, LastUsed: r.LastUsed})
	}
	return out
}

// childAlive reports whether the process group for alias is still running.
// Caller must hold the lock.
func (s *Supervisor) childAlive(alias string) bool {
	grp, ok := s.records.groups[alias]
	if !ok {
		return false
	}
	return grp.Alive()
}

// openLogSink returns the append-only per-alias log file (nil if no log
// directory is configured) and a fresh tail ring buffer used to retain the
// most recent output for crash diagnostics regardless of whether a log
// file is configured.
func (s *Supervisor) openLogSink(alias string) (*os.File, io.ReadWriter, error) {
	tail := tailbuffer.New(tailBufferSize)
	if s.policy.LogDir == "" {
		return nil, tail, nil
	}
	if err := os.MkdirAll(s.policy.LogDir, 0o755); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(s.policy.LogDir, alias+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(f, "\n=== starting %s at %s ===\n", alias, time.Now().Format(time.RFC3339))
	return f, tail, nil
}

// Stop stops the named worker. It is idempotent: stopping an unknown alias
// returns false, never an error.
func (s *Supervisor) Stop(ctx context.Context, alias string) bool {
	if !s.lock(ctx) {
		return false
	}
	defer s.unlock()
	return s.stopLocked(alias, s.drainFor(alias))
}

// stopLocked performs the actual group kill. Caller must hold the lock.
func (s *Supervisor) stopLocked(alias string, drain time.Duration) bool {
	grp, ok := s.records.groups[alias]
	if !ok {
		return false
	}

	if drain > 0 {
		s.waitForDrainLocked(alias, drain)
	}

	_ = grp.Stop(5 * time.Second)
	s.removeLocked(alias)
	return true
}

// waitForDrainLocked polls ActiveRequests down to zero, bounded by drain.
// It releases and reacquires the guard between polls so that EndRequest,
// which takes the lock, can decrement the counter as in-flight requests
// complete.
func (s *Supervisor) waitForDrainLocked(alias string, drain time.Duration) {
	deadline := time.Now().Add(drain)
	for {
		rec, ok := s.records.byAlias[alias]
		if !ok || rec.Idle() || time.Now().After(deadline) {
			return
		}
		s.unlock()
		time.Sleep(100 * time.Millisecond)
		s.lock(context.Background())
	}
}

func (s *Supervisor) removeLocked(alias string) {
	delete(s.records.byAlias, alias)
	delete(s.records.groups, alias)
	if f, ok := s.records.logs[alias]; ok && f != nil {
		f.Close()
	}
	delete(s.records.logs, alias)
	delete(s.records.tails, alias)
}

// Touch resets a worker's idle clock and increments its request count. It
// is a no-op if alias is absent. Touch is cheap enough (one map lookup,
// two field writes) that it shares the supervisor lock with spawn/stop
// rather than risking a lost update under contention.
func (s *Supervisor) Touch(alias string) {
	if !s.lock(context.Background()) {
		return
	}
	defer s.unlock()

	rec, ok := s.records.byAlias[alias]
	if !ok {
		return
	}
	rec.LastUsed = time.Now()
	rec.RequestCount++
}

// BeginRequest marks a worker active for drain accounting, incrementing
// ActiveRequests. It returns false if the alias is no longer resident.
// Callers (the Manager's /begin/{alias} route, on behalf of the gateway's
// proxied request) must pair every successful call with EndRequest.
func (s *Supervisor) BeginRequest(alias string) bool {
	if !s.lock(context.Background()) {
		return false
	}
	defer s.unlock()
	rec, exists := s.records.byAlias[alias]
	if !exists {
		return false
	}
	rec.ActiveRequests++
	return true
}

// EndRequest decrements ActiveRequests for alias. It is a no-op if the
// alias is absent or already at zero, so a late/duplicate call (e.g. after
// the worker was already evicted) can never drive the counter negative.
func (s *Supervisor) EndRequest(alias string) {
	if !s.lock(context.Background()) {
		return
	}
	defer s.unlock()
	if rec, exists := s.records.byAlias[alias]; exists && rec.ActiveRequests > 0 {
		rec.ActiveRequests--
	}
}

// StopAll tears down every resident worker, best-effort.
func (s *Supervisor) StopAll(ctx context.Context) {
	if !s.lock(ctx) {
		return
	}
	aliases := make([]string, 0, len(s.records.byAlias))
	for alias := range s.records.byAlias {
		aliases = append(aliases, alias)
	}
	s.unlock()

	for _, alias := range aliases {
		s.Stop(ctx, alias)
	}
}

// Snapshot is the read-only view returned by Status.
type Snapshot struct {
	Workers map[string]Record
	Memory  memprobe.Status
}

// Status returns a point-in-time view of every resident worker and the
// current memory status. It does not take the supervisor lock; a reader may
// observe a torn view, which the spec explicitly tolerates.
func (s *Supervisor) Status() Snapshot {
	workers := make(map[string]Record, len(s.records.byAlias))
	for alias, rec := range s.records.byAlias {
		workers[alias] = *rec
	}
	return Snapshot{Workers: workers, Memory: s.prober.Probe()}
}
