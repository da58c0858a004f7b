package memprobe

// Prober produces memory snapshots. It never errors — callers always get a
// usable Status, degrading to a conservative estimate on any OS-level
// failure.
type Prober interface {
	Probe() Status
}

// New returns the Prober appropriate for the running OS. The concrete type
// is selected by build tag (probe_linux.go / probe_darwin.go / probe_other.go).
func New() Prober {
	return newPlatformProber()
}
