package util

import "time"

// fixedHolidays are the fixed-date US market holidays. Floating holidays
// (Thanksgiving, MLK, etc.) matter less for multi-week DTE math and are
// approximated as trading days; expiration resolution tolerates the drift.
var fixedHolidays = map[string]bool{
	"01-01": true, // New Year's Day
	"06-19": true, // Juneteenth
	"07-04": true, // Independence Day
	"12-25": true, // Christmas Day
}

// IsTradingDay reports whether d is a weekday and not a fixed-date holiday.
func IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !fixedHolidays[d.Format("01-02")]
}

// NextTradingDay returns the first trading day strictly after d.
func NextTradingDay(d time.Time) time.Time {
	for {
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			return d
		}
	}
}

// AddTradingDays resolves a trading-day offset to a calendar date, skipping
// weekends and holidays. n must be non-negative.
func AddTradingDays(d time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		d = NextTradingDay(d)
	}
	return d
}

// TradingDaysBetween counts trading days in (from, to]. Returns 0 when to is
// not after from.
func TradingDaysBetween(from, to time.Time) int {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	n := 0
	for d := from; d.Before(to); {
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			n++
		}
	}
	return n
}
