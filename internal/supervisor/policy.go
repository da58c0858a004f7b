package supervisor

import "time"

// Policy is the SupervisorPolicy data model: static-after-startup tunables
// governing idle reaping, recycling, and startup/drain timeouts.
type Policy struct {
	IdleTimeout              time.Duration
	MaxRequestsBeforeRestart uint64
	SweepInterval            time.Duration
	SpawnReadyTimeout        time.Duration
	SafetyMarginGB           float64
	DrainOnEvict             bool
	DrainTimeout             time.Duration
	LogDir                   string

	// Ports overrides the port assigned to specific aliases (workers.ports
	// in YAML), taking precedence over the built-in canonical-alias ports
	// and the monotonic pool.
	Ports map[string]uint16
}
