// Package memprobe produces a platform-independent snapshot of host memory,
// the single input the admission policy reasons about.
package memprobe

// Status is a host memory snapshot. All fields are in GB.
type Status struct {
	TotalGB      float64
	UsedGB       float64
	AvailableGB  float64
	AppGB        float64
	WiredGB      float64
	CompressedGB float64
}

// UsagePercent returns the fraction of total memory in use, 0 if TotalGB is 0.
func (s Status) UsagePercent() float64 {
	if s.TotalGB <= 0 {
		return 0
	}
	return (s.UsedGB / s.TotalGB) * 100
}

const (
	bytesPerGB = 1024 * 1024 * 1024
	kbPerGB    = 1024 * 1024
)

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// fallback produces the conservative estimate used whenever a real probe
// fails: 50% of total memory assumed available, 32GB assumed total if even
// that cannot be determined.
func fallback(totalGB float64) Status {
	if totalGB <= 0 {
		totalGB = 32.0
	}
	return Status{
		TotalGB:      totalGB,
		UsedGB:       totalGB * 0.5,
		AvailableGB:  totalGB * 0.5,
		AppGB:        totalGB * 0.3,
		WiredGB:      totalGB * 0.15,
		CompressedGB: totalGB * 0.05,
	}
}
