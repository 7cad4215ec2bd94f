package qrcode

import (
	"time"
)

// DayLayout is the storage format of calendar days (DATE columns).
const DayLayout = "2006-01-02"

// Window is the calendar month a token is valid for, both ends inclusive.
type Window struct {
	YearMonth  string // YYYYMM
	ValidFrom  string // YYYY-MM-01
	ValidUntil string // last day of the month
}

// MonthWindow returns the month containing t, evaluated in t's location.
// Callers convert t into the award location first.
func MonthWindow(t time.Time) Window {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, -1)
	return Window{
		YearMonth:  start.Format("200601"),
		ValidFrom:  start.Format(DayLayout),
		ValidUntil: end.Format(DayLayout),
	}
}

// Contains reports whether day (YYYY-MM-DD) falls inside the window.
func (w Window) Contains(day string) bool {
	return w.ValidFrom <= day && day <= w.ValidUntil
}

// Day formats t as a calendar day in its own location.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// YearMonthOf turns a YYYY-MM-DD day into YYYYMM.  It returns "" for input
// that is too short to carry a month.
func YearMonthOf(day string) string {
	if len(day) < 7 {
		return ""
	}
	return day[0:4] + day[5:7]
}
