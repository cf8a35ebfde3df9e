package timeutil

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Asia/Tokyo must resolve on minimal images
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "Asia/Tokyo"

// Location loads the named zone, falling back to DefaultTimezone for an empty name.
func Location(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// Now returns the current time in loc.
func Now(loc *time.Location) time.Time {
	if loc == nil {
		return time.Now()
	}
	return time.Now().In(loc)
}

// LookbackStart returns the start of the window of the given length ending at now.
func LookbackStart(now time.Time, hours int) time.Time {
	return now.Add(-time.Duration(hours) * time.Hour)
}

// ToSlackTimestamp formats t as a chat platform timestamp ("seconds.micros").
func ToSlackTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// FromSlackTimestamp parses a "seconds.micros" timestamp.
func FromSlackTimestamp(ts string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slack timestamp %q: %w", ts, err)
	}
	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		fracPart += strings.Repeat("0", 9-len(fracPart))
		nsec, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid slack timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(sec, nsec), nil
}

// WithinLookback reports whether ts is at or after start.
// Unparseable timestamps are treated as outside the window.
func WithinLookback(ts string, start time.Time) bool {
	t, err := FromSlackTimestamp(ts)
	if err != nil {
		return false
	}
	return !t.Before(start)
}

// FormatDate renders the report date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatJST renders t in loc with a zone suffix, e.g. "2025-01-15 08:00:00 JST".
func FormatJST(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

// MonthlyStatsFile returns dir/YYYY-MM.csv for t in loc.
func MonthlyStatsFile(dir string, t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return filepath.Join(dir, t.Format("2006-01")+".csv")
}

// SnapshotStatsFile returns dir/YYYYMMDD_HHMMSS.json for t in loc.
func SnapshotStatsFile(dir string, t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return filepath.Join(dir, t.Format("20060102_150405")+".json")
}
