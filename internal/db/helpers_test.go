package db

import "time"

func testTime() time.Time {
	return time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)
}
