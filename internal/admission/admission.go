// Package admission implements the memory admission policy: given an
// aspiring load and the current resident set, decide whether it fits and,
// if not, which residents must be evicted first.
package admission

import (
	"sort"
	"time"

	"github.com/vibe-homelab/vision-insight-api/internal/memprobe"
)

// Resident describes one currently-loaded worker, as seen by the admission
// policy.
type Resident struct {
	Alias    string
	MemoryGB float64
	LastUsed time.Time
}

// Decision is the result of an admission check.
type Decision struct {
	Fits  bool
	Evict []string
}

// Decide applies the policy from the admission-policy component: reserve a
// safety margin off the top, and if the load still doesn't fit, pick the
// smallest eviction set (by count) that frees enough memory, preferring to
// evict the largest residents first and breaking ties by oldest LastUsed.
func Decide(requiredGB float64, mem memprobe.Status, residents []Resident, safetyMarginGB float64) Decision {
	effectiveAvailable := mem.AvailableGB - safetyMarginGB
	if effectiveAvailable < 0 {
		effectiveAvailable = 0
	}

	if effectiveAvailable >= requiredGB {
		return Decision{Fits: true}
	}

	deficit := requiredGB - effectiveAvailable

	sorted := make([]Resident, len(residents))
	copy(sorted, residents)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MemoryGB != sorted[j].MemoryGB {
			return sorted[i].MemoryGB > sorted[j].MemoryGB
		}
		return sorted[i].LastUsed.Before(sorted[j].LastUsed)
	})

	var evict []string
	var freed float64
	for _, r := range sorted {
		evict = append(evict, r.Alias)
		freed += r.MemoryGB
		if freed >= deficit {
			break
		}
	}

	return Decision{Fits: false, Evict: evict}
}
