package memprobe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackNeverErrors(t *testing.T) {
	s := fallback(0)
	require.Equal(t, 32.0, s.TotalGB)
	assert.InDelta(t, 16.0, s.AvailableGB, 0.001)
	assert.InDelta(t, 16.0, s.UsedGB, 0.001)
}

func TestFallbackPreservesGivenTotal(t *testing.T) {
	s := fallback(64)
	assert.Equal(t, 64.0, s.TotalGB)
	assert.InDelta(t, 32.0, s.AvailableGB, 0.001)
}

func TestUsagePercentZeroTotal(t *testing.T) {
	s := Status{}
	assert.Equal(t, 0.0, s.UsagePercent())
}

func TestUsagePercent(t *testing.T) {
	s := Status{TotalGB: 10, UsedGB: 5}
	assert.Equal(t, 50.0, s.UsagePercent())
}

func TestProbeNeverPanics(t *testing.T) {
	p := New()
	require.NotNil(t, p)
	assert.NotPanics(t, func() {
		_ = p.Probe()
	})
}
