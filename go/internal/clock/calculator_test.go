package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func TestRecompute(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		last      time.Time
		paused    bool
		now       time.Time
		want      Elapsed
	}{
		{"paused ignores elapsed", 45, t0, true, t0.Add(time.Hour), Elapsed{Remaining: 45}},
		{"floors partial seconds", 100, t0, false, t0.Add(10*time.Second + 900*time.Millisecond), Elapsed{Remaining: 90, Seconds: 10}},
		{"clamps at zero", 5, t0, false, t0.Add(30 * time.Second), Elapsed{Remaining: 0, Seconds: 30}},
		{"future last_updated counts as zero", 20, t0.Add(5 * time.Second), false, t0, Elapsed{Remaining: 20}},
		{"zero last_updated is now", 20, time.Time{}, false, t0, Elapsed{Remaining: 20}},
		{"negative stored treated as zero", -3, t0, false, t0, Elapsed{Remaining: 0}},
		{"gap at threshold still applies", 900, t0, false, t0.Add(AnomalyThreshold), Elapsed{Remaining: 300, Seconds: 600}},
		{"gap over threshold is anomaly", 900, t0, false, t0.Add(700 * time.Second), Elapsed{Remaining: 900, Seconds: 700, Anomaly: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recompute(tt.remaining, tt.last, tt.paused, tt.now))
		})
	}
}

func TestRecomputeNormalisesZones(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	last := t0.In(est)

	got := Recompute(60, last, false, t0.Add(15*time.Second))
	assert.Equal(t, 45, got.Remaining)
}

func TestRecomputeCustomThreshold(t *testing.T) {
	got := recompute(100, t0, false, t0.Add(20*time.Second), 10*time.Second)
	assert.True(t, got.Anomaly)
	assert.Equal(t, 100, got.Remaining)

	got = recompute(100, t0, false, t0.Add(20*time.Second), 0)
	assert.False(t, got.Anomaly)
	assert.Equal(t, 80, got.Remaining)
}
