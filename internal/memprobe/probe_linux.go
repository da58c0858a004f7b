//go:build linux

package memprobe

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

type linuxProber struct{}

func newPlatformProber() Prober {
	return linuxProber{}
}

// Probe parses /proc/meminfo. MemTotal and MemAvailable are reported in kB;
// Buffers and Cached are subtracted from used memory to approximate
// application (non-cache) usage, matching the kernel's own accounting
// convention.
func (linuxProber) Probe() Status {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return fallback(0)
	}
	defer f.Close()

	meminfo := make(map[string]float64, 8)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		fields := strings.Fields(parts[1])
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		meminfo[key] = kb / kbPerGB
	}
	if err := scanner.Err(); err != nil {
		return fallback(0)
	}

	total, ok := meminfo["MemTotal"]
	if !ok {
		return fallback(0)
	}
	available, ok := meminfo["MemAvailable"]
	if !ok {
		available = total * 0.5
	}
	used := total - available
	buffers := meminfo["Buffers"]
	cached := meminfo["Cached"]

	return Status{
		TotalGB:      round2(total),
		UsedGB:       round2(used),
		AvailableGB:  round2(available),
		AppGB:        round2(used - buffers - cached),
		WiredGB:      0,
		CompressedGB: 0,
	}
}
