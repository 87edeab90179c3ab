// Package market provides US equity market-hours logic, the news reaction
// wave model, the multi-tier quote adapter and the ticker validator.
package market

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is the state of the US equity market at some instant
type Status string

const (
	StatusClosed     Status = "closed"
	StatusPreMarket  Status = "pre_market"
	StatusRegular    Status = "regular"
	StatusAfterHours Status = "after_hours"
	StatusWeekend    Status = "weekend"
	StatusHoliday    Status = "holiday"
)

// Session boundaries in minutes since midnight Eastern
const (
	preMarketStart = 4 * 60           // 04:00
	regularStart   = 9*60 + 30        // 09:30
	regularEnd     = 16 * 60          // 16:00
	afterHoursEnd  = 20 * 60          // 20:00
)

// Clock answers market-hours questions in US Eastern time, including an
// optional exchange holiday calendar.
type Clock struct {
	eastern  *time.Location
	holidays map[string]bool // keyed YYYY-MM-DD in Eastern
}

// holidayCalendar is the YAML layout of the optional holiday file
type holidayCalendar struct {
	Holidays []string `yaml:"holidays"` // YYYY-MM-DD
}

// NewClock creates a Clock. calendarPath may be empty (no holidays).
func NewClock(calendarPath string) (*Clock, error) {
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load Eastern timezone: %w", err)
	}

	c := &Clock{eastern: eastern, holidays: map[string]bool{}}

	if calendarPath != "" {
		data, err := os.ReadFile(calendarPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read holiday calendar: %w", err)
		}
		var cal holidayCalendar
		if err := yaml.Unmarshal(data, &cal); err != nil {
			return nil, fmt.Errorf("failed to parse holiday calendar: %w", err)
		}
		for _, d := range cal.Holidays {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return nil, fmt.Errorf("invalid holiday date %q: %w", d, err)
			}
			c.holidays[d] = true
		}
	}

	return c, nil
}

// StatusNow returns the market status for the current instant
func (c *Clock) StatusNow() Status {
	return c.StatusAt(time.Now())
}

// StatusAt returns the market status for the given instant
func (c *Clock) StatusAt(t time.Time) Status {
	et := t.In(c.eastern)

	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return StatusWeekend
	}
	if c.holidays[et.Format("2006-01-02")] {
		return StatusHoliday
	}

	minutes := et.Hour()*60 + et.Minute()
	switch {
	case minutes >= preMarketStart && minutes < regularStart:
		return StatusPreMarket
	case minutes >= regularStart && minutes < regularEnd:
		return StatusRegular
	case minutes >= regularEnd && minutes < afterHoursEnd:
		return StatusAfterHours
	default:
		return StatusClosed
	}
}

// IsOpen reports whether any trading session (pre, regular, after) is active
func (c *Clock) IsOpen(t time.Time) bool {
	switch c.StatusAt(t) {
	case StatusPreMarket, StatusRegular, StatusAfterHours:
		return true
	}
	return false
}

// IsRegularSession reports whether the regular session is active
func (c *Clock) IsRegularSession(t time.Time) bool {
	return c.StatusAt(t) == StatusRegular
}

// NextOpen returns the next regular-session open strictly after t,
// rolling over weekends and holidays.
func (c *Clock) NextOpen(t time.Time) time.Time {
	et := t.In(c.eastern)

	candidate := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, c.eastern)
	if !et.Before(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for c.isNonTradingDay(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// NextRegularClose returns the 16:00 ET close of the current or next
// trading day relative to t.
func (c *Clock) NextRegularClose(t time.Time) time.Time {
	et := t.In(c.eastern)

	candidate := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, c.eastern)
	if !et.Before(candidate) || c.isNonTradingDay(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
		for c.isNonTradingDay(candidate) {
			candidate = candidate.AddDate(0, 0, 1)
		}
	}
	return candidate
}

// TradingDay returns the Eastern calendar date of t, used as the
// daily-loss reset key.
func (c *Clock) TradingDay(t time.Time) time.Time {
	et := t.In(c.eastern)
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, c.eastern)
}

// Eastern returns the Eastern location
func (c *Clock) Eastern() *time.Location {
	return c.eastern
}

func (c *Clock) isNonTradingDay(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return true
	}
	return c.holidays[t.Format("2006-01-02")]
}
