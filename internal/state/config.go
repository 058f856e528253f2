package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeBusy     Mode = "busy"
	ModeVacation Mode = "vacation"
)

const (
	DefaultBusinessStart = "09:00"
	DefaultBusinessEnd   = "19:00"
	DefaultTimezone      = "America/Santiago"
)

func ParseMode(value string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeNormal:
		return ModeNormal, true
	case ModeBusy:
		return ModeBusy, true
	case ModeVacation:
		return ModeVacation, true
	default:
		return "", false
	}
}

type BusinessHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

type AssistantConfig struct {
	Paused        bool          `json:"paused"`
	Mode          Mode          `json:"mode"`
	BusinessHours BusinessHours `json:"business_hours"`
}

func DefaultConfig() AssistantConfig {
	return AssistantConfig{
		Mode: ModeNormal,
		BusinessHours: BusinessHours{
			Start:    DefaultBusinessStart,
			End:      DefaultBusinessEnd,
			Timezone: DefaultTimezone,
		},
	}
}

// normalized fills missing or invalid fields with defaults, field by field.
func (c AssistantConfig) normalized() AssistantConfig {
	defaults := DefaultConfig()
	if mode, ok := ParseMode(string(c.Mode)); ok {
		c.Mode = mode
	} else {
		c.Mode = defaults.Mode
	}
	if _, err := ParseClock(c.BusinessHours.Start); err != nil {
		c.BusinessHours.Start = defaults.BusinessHours.Start
	}
	if _, err := ParseClock(c.BusinessHours.End); err != nil {
		c.BusinessHours.End = defaults.BusinessHours.End
	}
	if strings.TrimSpace(c.BusinessHours.Timezone) == "" {
		c.BusinessHours.Timezone = defaults.BusinessHours.Timezone
	}
	return c
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("invalid clock %q: expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock %q: hour out of range", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock %q: minute out of range", value)
	}
	return hour*60 + minute, nil
}

func (c AssistantConfig) Location() *time.Location {
	location, err := time.LoadLocation(strings.TrimSpace(c.BusinessHours.Timezone))
	if err != nil {
		location, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return time.UTC
		}
	}
	return location
}

// WithinBusinessHours reports whether now falls inside [start, end] in the
// configured timezone. Both ends are inclusive at minute resolution.
func (c AssistantConfig) WithinBusinessHours(now time.Time) bool {
	c = c.normalized()
	local := now.In(c.Location())
	current := local.Hour()*60 + local.Minute()
	start, _ := ParseClock(c.BusinessHours.Start)
	end, _ := ParseClock(c.BusinessHours.End)
	return start <= current && current <= end
}
