package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavesens/internal/market"
)

func holdClock(t *testing.T) (*market.Clock, *time.Location) {
	t.Helper()
	clock, err := market.NewClock("")
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return clock, loc
}

func TestHoldDeadline_FitsInsideSession(t *testing.T) {
	clock, et := holdClock(t)
	cfg := testCfg()

	// Friday 10:00 ET, 4 hour hold ends 14:00, well before the close
	entry := time.Date(2025, 3, 14, 10, 0, 0, 0, et)
	deadline, err := HoldDeadline(clock, entry, 4, cfg)
	require.NoError(t, err)
	assert.Equal(t, entry.Add(4*time.Hour), deadline)
}

func TestHoldDeadline_ClampedToSafeClose(t *testing.T) {
	clock, et := holdClock(t)
	cfg := testCfg()

	// Friday 10:00 ET, 8 hour hold would cross the 16:00 close:
	// clamp to 15:45
	entry := time.Date(2025, 3, 14, 10, 0, 0, 0, et)
	deadline, err := HoldDeadline(clock, entry, 8, cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 15, 45, 0, 0, et), deadline)
}

func TestHoldDeadline_RefusedNearClose(t *testing.T) {
	clock, et := holdClock(t)
	cfg := testCfg()

	// Friday 14:30 ET: only 90 minutes left, below the 2 hour minimum
	entry := time.Date(2025, 3, 14, 14, 30, 0, 0, et)
	_, err := HoldDeadline(clock, entry, 6, cfg)
	assert.ErrorIs(t, err, ErrInsufficientWindow)
}
