package portfolio

import (
	"errors"
	"time"

	"wavesens/internal/config"
	"wavesens/internal/market"
)

// ErrInsufficientWindow means the session ends too soon to honor the
// minimum hold time.
var ErrInsufficientWindow = errors.New("insufficient time before market close")

// HoldDeadline converts a desired hold duration into a deadline that never
// crosses the overnight gap: positions must be out by the regular close
// minus a safety buffer, and entries too close to the close are refused.
func HoldDeadline(clock *market.Clock, entry time.Time, desiredHours int, cfg config.PortfolioConfig) (time.Time, error) {
	closeAt := clock.NextRegularClose(entry)

	if closeAt.Sub(entry) < time.Duration(cfg.MinHoldHours)*time.Hour {
		return time.Time{}, ErrInsufficientWindow
	}

	safeClose := closeAt.Add(-time.Duration(cfg.CloseBufferMinutes) * time.Minute)
	deadline := entry.Add(time.Duration(desiredHours) * time.Hour)
	if deadline.After(safeClose) {
		return safeClose, nil
	}
	return deadline, nil
}
