package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// serialEpoch is the day-zero of the serial date numbers written by common
// spreadsheet tools (1899-12-30, accounting for the Lotus leap-year bug).
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	isoDatePattern    = regexp.MustCompile(`^(\d{4})[-/]?(\d{2})[-/]?(\d{2})`)
	germanDatePattern = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})`)
)

// Date converts a raw cell value into a calendar date. It accepts native
// time values, spreadsheet serial numbers, ISO-like strings (optionally with
// a time suffix) and DD.MM.YYYY strings. The second return value is false
// when the input cannot be interpreted as a date.
func Date(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return truncate(v.UTC()), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return Date(*v)
	case float64:
		return serialDate(v)
	case float32:
		return serialDate(float64(v))
	case int:
		return serialDate(float64(v))
	case int64:
		return serialDate(float64(v))
	case string:
		return parseDateString(v)
	}
	return time.Time{}, false
}

// Number converts a raw cell value into a float64. Native numbers are
// accepted as-is (NaN is rejected); strings are stripped of every character
// other than digits, '-' and '.' before parsing. The second return value is
// false for unparseable input.
func Number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return v, true
	case float32:
		return Number(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		cleaned := stripNonNumeric(strings.TrimSpace(v))
		if cleaned == "" || cleaned == "." || cleaned == "-" {
			return 0, false
		}
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func serialDate(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, false
	}
	seconds := math.Round(serial * 24 * 60 * 60)
	return truncate(serialEpoch.Add(time.Duration(seconds) * time.Second)), true
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}
	if m := germanDatePattern.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], m[2], m[1])
	}
	// Last resort: a handful of layouts seen in exported files.
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return truncate(t.UTC()), true
		}
	}
	return time.Time{}, false
}

// makeDate builds a date from numeric components, rejecting values that
// time.Date would silently roll over (e.g. month 13 or day 40).
func makeDate(year, month, day string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func stripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
