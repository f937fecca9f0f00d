package habit

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// reminderTimeLayout is the wire format of Habit.ReminderTime.
const reminderTimeLayout = "15:04"

var locationCache sync.Map // zone name -> *time.Location

// LoadLocation resolves an IANA zone name, treating "" as UTC.
// Results are cached; the tick evaluates every habit every minute.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if loc, ok := locationCache.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	locationCache.Store(name, loc)
	return loc, nil
}

// ParseReminderTime splits "HH:MM" into hour and minute.
func ParseReminderTime(s string) (hour, minute int, err error) {
	t, err := time.Parse(reminderTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("reminder time %q is not HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// LocalTime converts now into the habit's timezone.
func LocalTime(h *Habit, now time.Time) (time.Time, error) {
	loc, err := LoadLocation(h.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	return now.In(loc), nil
}

// IsDue reports whether the habit's reminder fires in the minute containing now.
// Matching is exact to the minute, so the caller must evaluate at least once per minute.
// Habits with an unparseable timezone or reminder time are never due.
func IsDue(h *Habit, now time.Time) bool {
	if h == nil || h.ReminderTime == "" {
		return false
	}
	hour, minute, err := ParseReminderTime(h.ReminderTime)
	if err != nil {
		return false
	}
	local, err := LocalTime(h, now)
	if err != nil {
		return false
	}
	if local.Hour() != hour || local.Minute() != minute {
		return false
	}

	switch NormalizeCadence(h.Cadence) {
	case CadenceDaily:
		return true
	case CadenceSemiDaily, CadenceWeekly:
		return slices.Contains(h.SelectedDays, int(local.Weekday()))
	default:
		return false
	}
}

// NormalizeCadence lowercases and trims a cadence value.
func NormalizeCadence(c Cadence) Cadence {
	return Cadence(strings.ToLower(strings.TrimSpace(string(c))))
}

// TimeOfDay buckets a local hour into morning, afternoon or evening.
func TimeOfDay(hour int) string {
	switch {
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	default:
		return "evening"
	}
}
