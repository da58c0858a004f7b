package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vibe-homelab/vision-insight-api/internal/memprobe"
)

func TestFitsWithinMargin(t *testing.T) {
	mem := memprobe.Status{AvailableGB: 10}
	d := Decide(4, mem, nil, 2)
	assert.True(t, d.Fits)
	assert.Empty(t, d.Evict)
}

func TestEvictionLargestFirst(t *testing.T) {
	// S4 from the scenario table: vlm-fast (4.5GB) resident, 24GB total,
	// margin 4GB, available computed as 24-4.5=19.5 before the new load.
	mem := memprobe.Status{AvailableGB: 19.5}
	residents := []Resident{
		{Alias: "vlm-fast", MemoryGB: 4.5, LastUsed: time.Now()},
	}
	d := Decide(20, mem, residents, 4)
	assert.False(t, d.Fits)
	assert.Equal(t, []string{"vlm-fast"}, d.Evict)
}

func TestEvictionPrefersLargestOverMoreRecentlyUsed(t *testing.T) {
	now := time.Now()
	mem := memprobe.Status{AvailableGB: 2}
	residents := []Resident{
		{Alias: "small-recent", MemoryGB: 2, LastUsed: now},
		{Alias: "large-old", MemoryGB: 10, LastUsed: now.Add(-time.Hour)},
	}
	d := Decide(8, mem, residents, 0)
	assert.False(t, d.Fits)
	assert.Equal(t, []string{"large-old"}, d.Evict)
}

func TestEvictionTieBreakOldestLastUsed(t *testing.T) {
	now := time.Now()
	mem := memprobe.Status{AvailableGB: 0}
	residents := []Resident{
		{Alias: "b-newer", MemoryGB: 5, LastUsed: now},
		{Alias: "a-older", MemoryGB: 5, LastUsed: now.Add(-time.Minute)},
	}
	d := Decide(5, mem, residents, 0)
	assert.False(t, d.Fits)
	require := d.Evict[0]
	assert.Equal(t, "a-older", require)
}

func TestEvictionStopsAtDeficit(t *testing.T) {
	now := time.Now()
	mem := memprobe.Status{AvailableGB: 0}
	residents := []Resident{
		{Alias: "huge", MemoryGB: 20, LastUsed: now},
		{Alias: "medium", MemoryGB: 8, LastUsed: now},
		{Alias: "small", MemoryGB: 2, LastUsed: now},
	}
	d := Decide(15, mem, residents, 0)
	assert.False(t, d.Fits)
	assert.Equal(t, []string{"huge"}, d.Evict)
}

func TestNegativeEffectiveAvailableClampedToZero(t *testing.T) {
	mem := memprobe.Status{AvailableGB: 1}
	d := Decide(5, mem, nil, 10)
	assert.False(t, d.Fits)
}
