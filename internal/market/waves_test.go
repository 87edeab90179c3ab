package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyWaves(t *testing.T) {
	// 45 minutes after publication: waves 0 and 1 are gone, wave 2 is live
	states := ClassifyWaves(45)
	assert.Len(t, states, WaveCount)

	assert.Equal(t, WaveMissed, states[0].Status)
	assert.Equal(t, WaveMissed, states[1].Status)

	assert.Equal(t, WaveOngoing, states[2].Status)
	assert.Equal(t, 75, states[2].TimeLeftMinutes)

	for w := 3; w < WaveCount; w++ {
		assert.Equal(t, WaveUpcoming, states[w].Status, "wave %d", w)
	}
}

func TestClassifyWaves_AtBoundary(t *testing.T) {
	// age exactly at a wave's end belongs to the next wave
	states := ClassifyWaves(30)
	assert.Equal(t, WaveMissed, states[1].Status)
	assert.Equal(t, WaveOngoing, states[2].Status)
	assert.Equal(t, 90, states[2].TimeLeftMinutes)
}

func TestFallbackWave(t *testing.T) {
	cases := []struct {
		age  int
		want int
	}{
		{0, 0},
		{4, 0},
		{5, 1},
		{45, 2},
		{200, 3},
		{1000, 4},
		{2000, 5},
		{5000, 6},
		{99999, 6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FallbackWave(tc.age), "age %d", tc.age)
	}
}

func TestWaveBounds_Clamped(t *testing.T) {
	start, end := WaveBounds(-3)
	assert.Equal(t, 0, start)
	assert.Equal(t, 5, end)

	start, end = WaveBounds(42)
	assert.Equal(t, 4320, start)
	assert.Equal(t, 10080, end)
}

func TestEntryWindow(t *testing.T) {
	published := time.Date(2025, 3, 14, 14, 0, 0, 0, time.UTC)
	start, end := EntryWindow(published, 2)
	assert.Equal(t, published.Add(30*time.Minute), start)
	assert.Equal(t, published.Add(120*time.Minute), end)
}

func TestHasTradableWaves(t *testing.T) {
	assert.True(t, HasTradableWaves(0))
	assert.True(t, HasTradableWaves(10079))
	assert.False(t, HasTradableWaves(10080))
}
