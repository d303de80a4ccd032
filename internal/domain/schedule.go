package domain

import (
	"strconv"
	"strings"
	"time"
)

// TimeWindow is an inclusive [Start, End] time-of-day range in "HH:MM".
// A window with End before Start is treated as never-active; overnight
// wrapping is not supported.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Schedule is a watcher's day/time activity window. An empty Windows slice
// means all day on the configured weekdays.
type Schedule struct {
	Enabled bool           `json:"enabled"`
	Days    []time.Weekday `json:"days"`
	Windows []TimeWindow   `json:"windows,omitempty"`
}

// NotifyPolicy controls which escalation severities a user wants pushed.
type NotifyPolicy struct {
	NotifyWarn  bool `json:"notifyWarn"`
	NotifyAlert bool `json:"notifyAlert"`
}

// IsActive reports whether the schedule covers the given instant. Disabled
// schedules and schedules with no active weekdays are never active. With no
// explicit windows the whole day counts; otherwise the instant's
// minute-of-day must fall within at least one window, boundaries inclusive.
func IsActive(s Schedule, now time.Time) bool {
	if !s.Enabled || len(s.Days) == 0 {
		return false
	}

	today := now.Weekday()
	dayIncluded := false
	for _, d := range s.Days {
		if d == today {
			dayIncluded = true
			break
		}
	}
	if !dayIncluded {
		return false
	}

	if len(s.Windows) == 0 {
		return true
	}

	minute := now.Hour()*60 + now.Minute()
	for _, w := range s.Windows {
		start, okStart := parseMinuteOfDay(w.Start)
		end, okEnd := parseMinuteOfDay(w.End)
		if !okStart || !okEnd {
			continue
		}
		if minute >= start && minute <= end {
			return true
		}
	}
	return false
}

// ShouldNotify decides whether a status change should push a notification to
// a watching user. Only escalations fire: OK->WARN, OK->ALERT, WARN->ALERT.
// The user's policy must permit the new severity, and either no watchers are
// configured (global alerts) or at least one watcher schedule is active now.
func ShouldNotify(prev, next Status, policy NotifyPolicy, watchers []Schedule, now time.Time) bool {
	escalated := (next == StatusAlert && prev != StatusAlert) ||
		(next == StatusWarn && prev == StatusOK)
	if !escalated {
		return false
	}

	switch next {
	case StatusAlert:
		if !policy.NotifyAlert {
			return false
		}
	case StatusWarn:
		if !policy.NotifyWarn {
			return false
		}
	}

	if len(watchers) == 0 {
		return true
	}
	for _, w := range watchers {
		if IsActive(w, now) {
			return true
		}
	}
	return false
}

// parseMinuteOfDay converts "HH:MM" to minutes since midnight. Malformed
// values report false so a broken window is skipped rather than failing the
// whole schedule.
func parseMinuteOfDay(s string) (int, bool) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	hour, errH := strconv.Atoi(h)
	mins, errM := strconv.Atoi(m)
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return 0, false
	}
	return hour*60 + mins, true
}
