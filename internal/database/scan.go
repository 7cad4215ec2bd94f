package database

import (
	"fmt"
	"strings"
	"time"
)

// The three drivers disagree on how DATE and DATETIME columns come back:
// mysql (parseTime) and pgx return time.Time, SQLite returns text unless the
// declared type triggers parsing.  Day and NullTime accept all of them.

// Day scans a DATE column as YYYY-MM-DD.
type Day string

func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case time.Time:
		*d = Day(v.Format("2006-01-02"))
	case string:
		*d = Day(trimDay(v))
	case []byte:
		*d = Day(trimDay(string(v)))
	default:
		return fmt.Errorf("database: cannot scan %T into Day", src)
	}
	return nil
}

func trimDay(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NullTime scans a nullable timestamp from any supported driver.  Values
// are normalised to UTC.
type NullTime struct {
	Time  time.Time
	Valid bool
}

func (n *NullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	}
	return fmt.Errorf("database: cannot scan %T into NullTime", src)
}

func (n *NullTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("database: unrecognised timestamp %q", s)
}

// Ptr returns nil for NULL and a pointer to the time otherwise.
func (n NullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
