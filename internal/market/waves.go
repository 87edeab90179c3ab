package market

import "time"

// The wave model buckets the time after a news publication by the market
// actors reacting in it: HFT, fast institutions, institutions, informed
// retail, mass retail, re-valuation, fundamental shift.

// WaveCount is the number of reaction waves
const WaveCount = 7

// waveBounds holds [start, end) in minutes since publication per wave
var waveBounds = [WaveCount][2]int{
	{0, 5},
	{5, 30},
	{30, 120},
	{120, 360},
	{360, 1440},
	{1440, 4320},
	{4320, 10080},
}

// WaveStatus classifies a wave relative to the news age
type WaveStatus string

const (
	WaveUpcoming WaveStatus = "upcoming"
	WaveOngoing  WaveStatus = "ongoing"
	WaveMissed   WaveStatus = "missed"
)

// WaveState is one wave's classification at a given news age
type WaveState struct {
	Wave            int
	Status          WaveStatus
	StartMinutes    int
	EndMinutes      int
	TimeLeftMinutes int // only set while ongoing
}

// WaveBounds returns [start, end) minutes for a wave. Out-of-range waves
// are clamped into 0..6.
func WaveBounds(wave int) (int, int) {
	if wave < 0 {
		wave = 0
	}
	if wave >= WaveCount {
		wave = WaveCount - 1
	}
	return waveBounds[wave][0], waveBounds[wave][1]
}

// ClassifyWaves returns the status of every wave for a news item of the
// given age in minutes.
func ClassifyWaves(ageMinutes int) []WaveState {
	states := make([]WaveState, 0, WaveCount)
	for w := 0; w < WaveCount; w++ {
		start, end := waveBounds[w][0], waveBounds[w][1]
		s := WaveState{Wave: w, StartMinutes: start, EndMinutes: end}
		switch {
		case ageMinutes < start:
			s.Status = WaveUpcoming
		case ageMinutes < end:
			s.Status = WaveOngoing
			s.TimeLeftMinutes = end - ageMinutes
		default:
			s.Status = WaveMissed
		}
		states = append(states, s)
	}
	return states
}

// FallbackWave picks the wave whose interval contains the news age. Ages
// beyond the last wave map to the last wave. Used when the LLM wave call
// fails.
func FallbackWave(ageMinutes int) int {
	for w := 0; w < WaveCount; w++ {
		if ageMinutes < waveBounds[w][1] {
			return w
		}
	}
	return WaveCount - 1
}

// EntryWindow converts a wave's bounds into wall-clock entry timestamps
// relative to the news publication instant.
func EntryWindow(publishedAt time.Time, wave int) (time.Time, time.Time) {
	start, end := WaveBounds(wave)
	return publishedAt.Add(time.Duration(start) * time.Minute),
		publishedAt.Add(time.Duration(end) * time.Minute)
}

// HasTradableWaves reports whether any wave is still ongoing or upcoming
// at the given age.
func HasTradableWaves(ageMinutes int) bool {
	_, lastEnd := WaveBounds(WaveCount - 1)
	return ageMinutes < lastEnd
}
