//go:build darwin

package memprobe

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type darwinProber struct{}

func newPlatformProber() Prober {
	return darwinProber{}
}

// applePageSize is the vm_stat page size on Apple Silicon hosts (16KiB,
// versus 4KiB on Intel Macs). This probe targets Apple Silicon per the
// host this system is designed to run on.
const applePageSize = 16384

var vmStatLineRe = regexp.MustCompile(`(\d+)`)

// Probe shells out to vm_stat for page statistics and sysctl for total
// physical memory, the same two OS queries original_source's macOS path
// uses.
func (darwinProber) Probe() Status {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	vmOut, err := exec.CommandContext(ctx, "vm_stat").Output()
	if err != nil {
		return fallback(sysctlTotalGB(ctx))
	}

	stats := make(map[string]int64, 8)
	for _, line := range strings.Split(string(vmOut), "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := line[idx+1:]
		m := vmStatLineRe.FindString(value)
		if m == "" {
			continue
		}
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		stats[key] = n
	}

	totalGB := sysctlTotalGB(ctx)
	if totalGB <= 0 {
		return fallback(0)
	}

	pagesToGB := func(pages int64) float64 {
		return float64(pages*applePageSize) / bytesPerGB
	}

	free := stats["Pages free"]
	active := stats["Pages active"]
	inactive := stats["Pages inactive"]
	speculative := stats["Pages speculative"]
	wired := stats["Pages wired down"]
	compressed := stats["Pages occupied by compressor"]
	purgeable := stats["Pages purgeable"]

	availableGB := pagesToGB(free + purgeable + speculative + inactive)
	usedGB := totalGB - availableGB

	return Status{
		TotalGB:      round2(totalGB),
		UsedGB:       round2(usedGB),
		AvailableGB:  round2(availableGB),
		AppGB:        round2(pagesToGB(active + inactive)),
		WiredGB:      round2(pagesToGB(wired)),
		CompressedGB: round2(pagesToGB(compressed)),
	}
}

func sysctlTotalGB(ctx context.Context) float64 {
	out, err := exec.CommandContext(ctx, "sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0
	}
	bytesTotal, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0
	}
	return float64(bytesTotal) / bytesPerGB
}
