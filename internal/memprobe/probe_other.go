//go:build !linux && !darwin

package memprobe

import (
	"github.com/elastic/go-sysinfo"
)

type fallbackProber struct{}

func newPlatformProber() Prober {
	return fallbackProber{}
}

// Probe on platforms without a native probe implementation uses
// elastic/go-sysinfo for total physical memory and otherwise falls back to
// the conservative 50%-available heuristic.
func (fallbackProber) Probe() Status {
	host, err := sysinfo.Host()
	if err != nil {
		return fallback(0)
	}
	mem, err := host.Memory()
	if err != nil {
		return fallback(0)
	}
	totalGB := float64(mem.Total) / bytesPerGB
	return fallback(totalGB)
}
