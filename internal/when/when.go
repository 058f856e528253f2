// Package when resolves the loose Spanish date, time and duration phrases
// contacts type ("mañana 10:30", "lunes", "1 hora") into concrete values.
// Every parser falls back to a deterministic default instead of failing.
package when

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dwizi/wa-assistant/internal/textnorm"
)

const DefaultDurationMinutes = 60

var (
	clockPattern     = regexp.MustCompile(`\b([01]?\d|2[0-3])(?::([0-5]\d))?\s*(am|pm)?\b`)
	isoDatePattern   = regexp.MustCompile(`\b(20\d{2})-(\d{1,2})-(\d{1,2})\b`)
	latinDatePattern = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:[/-](20\d{2}))?\b`)
	minutesPattern   = regexp.MustCompile(`\b(\d{2,3})\b`)
)

var weekdays = []struct {
	name string
	day  time.Weekday
}{
	{"lunes", time.Monday},
	{"martes", time.Tuesday},
	{"miercoles", time.Wednesday},
	{"jueves", time.Thursday},
	{"viernes", time.Friday},
	{"sabado", time.Saturday},
	{"domingo", time.Sunday},
}

// ParseDuration reads a meeting length in minutes, defaulting to 60.
func ParseDuration(text string) int {
	clean := textnorm.Fold(text)
	switch {
	case strings.Contains(clean, "30"):
		return 30
	case strings.Contains(clean, "90"):
		return 90
	case strings.Contains(clean, "1 hora"), strings.Contains(clean, "1h"), strings.Contains(clean, "60"):
		return 60
	}
	if match := minutesPattern.FindStringSubmatch(clean); match != nil {
		value, err := strconv.Atoi(match[1])
		if err == nil && value >= 15 && value <= 240 {
			return value
		}
	}
	return DefaultDurationMinutes
}

// ParseDate finds a calendar day in text relative to now. The returned time
// keeps now's clock and location; ok is false when nothing matched.
func ParseDate(text string, now time.Time) (time.Time, bool) {
	clean := textnorm.Fold(text)
	switch {
	case strings.Contains(clean, "pasado manana"):
		return now.AddDate(0, 0, 2), true
	case strings.Contains(clean, "manana"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(clean, "hoy"):
		return now, true
	}
	for _, weekday := range weekdays {
		if strings.Contains(clean, weekday.name) {
			delta := (int(weekday.day) - int(now.Weekday()) + 7) % 7
			return now.AddDate(0, 0, delta), true
		}
	}
	if match := isoDatePattern.FindStringSubmatch(clean); match != nil {
		year, _ := strconv.Atoi(match[1])
		month, _ := strconv.Atoi(match[2])
		day, _ := strconv.Atoi(match[3])
		return onDay(now, year, month, day)
	}
	if match := latinDatePattern.FindStringSubmatch(clean); match != nil {
		day, _ := strconv.Atoi(match[1])
		month, _ := strconv.Atoi(match[2])
		year := now.Year()
		if match[3] != "" {
			year, _ = strconv.Atoi(match[3])
		}
		return onDay(now, year, month, day)
	}
	return time.Time{}, false
}

// ParseClock extracts an hour and minute. Forms with minutes or am/pm win
// over a bare number, so "20/03 10:30" reads as 10:30.
func ParseClock(text string) (hour, minute int, ok bool) {
	clean := textnorm.Fold(text)
	if strings.Contains(clean, "mediodia") {
		return 12, 0, true
	}
	if strings.Contains(clean, "medianoche") {
		return 0, 0, true
	}
	matches := clockPattern.FindAllStringSubmatch(clean, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}
	chosen := matches[0]
	for _, match := range matches {
		if match[2] != "" || match[3] != "" {
			chosen = match
			break
		}
	}
	hour, _ = strconv.Atoi(chosen[1])
	if chosen[2] != "" {
		minute, _ = strconv.Atoi(chosen[2])
	}
	switch chosen[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute, true
}

// ResolveStart combines a date phrase and a time phrase into a start instant
// in now's location. Without a date it uses today; without a time it uses
// the clock of now+fallback. A start that is not strictly after now moves
// forward one day.
func ResolveStart(dateText, timeText string, now time.Time, fallback time.Duration) time.Time {
	day, ok := ParseDate(dateText, now)
	if !ok {
		day = now
	}
	hour, minute, ok := ParseClock(timeText)
	if !ok {
		later := now.Add(fallback)
		hour, minute = later.Hour(), later.Minute()
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if !start.After(now) {
		start = start.Add(24 * time.Hour)
	}
	return start
}

// HasTimeSemantics reports whether text names a day or an explicit clock
// time (with minutes, am/pm, mediodia or medianoche).
func HasTimeSemantics(text string, now time.Time) bool {
	if _, ok := ParseDate(text, now); ok {
		return true
	}
	clean := textnorm.Fold(text)
	if strings.Contains(clean, "mediodia") || strings.Contains(clean, "medianoche") {
		return true
	}
	for _, match := range clockPattern.FindAllStringSubmatch(clean, -1) {
		if match[2] != "" || match[3] != "" {
			return true
		}
	}
	return false
}

func onDay(now time.Time, year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	candidate := time.Date(year, time.Month(month), day, now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), now.Location())
	if candidate.Day() != day || int(candidate.Month()) != month {
		return time.Time{}, false
	}
	return candidate, true
}
