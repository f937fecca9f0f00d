package habit

import (
	"testing"
	"time"
)

func mustUTC(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("time.Parse(%q): %v", s, err)
	}
	return ts
}

func TestIsDue_WeeklyLosAngeles(t *testing.T) {
	h := &Habit{
		Cadence:      CadenceWeekly,
		SelectedDays: []int{int(time.Wednesday)},
		ReminderTime: "09:00",
		Timezone:     "America/Los_Angeles",
	}

	// 2024-01-03 is a Wednesday; 17:00Z is 09:00 PST.
	if !IsDue(h, mustUTC(t, "2024-01-03T17:00:00Z")) {
		t.Error("IsDue at 17:00Z = false, want true")
	}
	if IsDue(h, mustUTC(t, "2024-01-03T17:01:00Z")) {
		t.Error("IsDue at 17:01Z = true, want false")
	}
	// Seconds within the matching minute still match.
	if !IsDue(h, mustUTC(t, "2024-01-03T17:00:59Z")) {
		t.Error("IsDue at 17:00:59Z = false, want true")
	}
}

func TestIsDue_WeeklyOnlyOnSelectedDay(t *testing.T) {
	h := &Habit{
		Cadence:      CadenceWeekly,
		SelectedDays: []int{int(time.Wednesday)},
		ReminderTime: "09:00",
		Timezone:     "America/Los_Angeles",
	}

	start := mustUTC(t, "2024-01-01T17:00:00Z") // Monday 09:00 PST
	due := 0
	for i := 0; i < 14; i++ {
		now := start.AddDate(0, 0, i)
		if IsDue(h, now) {
			due++
			local, _ := LocalTime(h, now)
			if local.Weekday() != time.Wednesday {
				t.Errorf("due on %s, want only Wednesday", local.Weekday())
			}
		}
	}
	if due != 2 {
		t.Errorf("due %d times in two weeks, want 2", due)
	}
}

func TestIsDue_DailyExactlyOncePerDay(t *testing.T) {
	zones := []string{"UTC", "Asia/Kolkata", "America/New_York", "Pacific/Chatham"}
	for _, tz := range zones {
		t.Run(tz, func(t *testing.T) {
			h := &Habit{Cadence: CadenceDaily, ReminderTime: "07:30", Timezone: tz}
			start := mustUTC(t, "2024-03-05T00:00:00Z")

			due := 0
			for m := 0; m < 24*60; m++ {
				if IsDue(h, start.Add(time.Duration(m)*time.Minute)) {
					due++
				}
			}
			if due != 1 {
				t.Errorf("daily habit due %d times in 24h, want 1", due)
			}
		})
	}
}

func TestIsDue_IndependentOfProcessZone(t *testing.T) {
	h := &Habit{Cadence: CadenceDaily, ReminderTime: "21:15", Timezone: "Europe/Berlin"}
	now := mustUTC(t, "2024-06-10T19:15:00Z") // 21:15 CEST

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	if !IsDue(h, now) || !IsDue(h, now.In(tokyo)) {
		t.Error("IsDue depends on the zone of the instant, want independent")
	}
}

func TestIsDue_SemiDaily(t *testing.T) {
	h := &Habit{
		Cadence:      CadenceSemiDaily,
		SelectedDays: []int{1, 3, 5},
		ReminderTime: "18:00",
		Timezone:     "UTC",
	}

	tests := []struct {
		at   string
		want bool
	}{
		{"2024-01-01T18:00:00Z", true},  // Monday
		{"2024-01-02T18:00:00Z", false}, // Tuesday
		{"2024-01-03T18:00:00Z", true},  // Wednesday
		{"2024-01-05T18:00:00Z", true},  // Friday
		{"2024-01-06T18:00:00Z", false}, // Saturday
		{"2024-01-05T18:01:00Z", false},
	}
	for _, tt := range tests {
		if got := IsDue(h, mustUTC(t, tt.at)); got != tt.want {
			t.Errorf("IsDue(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestIsDue_WeekdayUsesLocalDate(t *testing.T) {
	// 2024-01-04T02:00Z is Wednesday 18:00 in Los Angeles but Thursday in UTC.
	h := &Habit{
		Cadence:      CadenceWeekly,
		SelectedDays: []int{int(time.Wednesday)},
		ReminderTime: "18:00",
		Timezone:     "America/Los_Angeles",
	}
	if !IsDue(h, mustUTC(t, "2024-01-04T02:00:00Z")) {
		t.Error("IsDue = false, want true (local weekday is Wednesday)")
	}
}

func TestIsDue_NeverDue(t *testing.T) {
	now := mustUTC(t, "2024-01-03T09:00:00Z")
	tests := []struct {
		name string
		h    *Habit
	}{
		{"nil habit", nil},
		{"empty reminder time", &Habit{Cadence: CadenceDaily, Timezone: "UTC"}},
		{"bad reminder time", &Habit{Cadence: CadenceDaily, ReminderTime: "nine", Timezone: "UTC"}},
		{"bad timezone", &Habit{Cadence: CadenceDaily, ReminderTime: "09:00", Timezone: "Mars/Olympus"}},
		{"unknown cadence", &Habit{Cadence: "hourly", ReminderTime: "09:00", Timezone: "UTC"}},
		{"weekly without days", &Habit{Cadence: CadenceWeekly, ReminderTime: "09:00", Timezone: "UTC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsDue(tt.h, now) {
				t.Error("IsDue = true, want false")
			}
		})
	}
}

func TestIsDue_CadenceCaseInsensitive(t *testing.T) {
	h := &Habit{Cadence: "Daily", ReminderTime: "09:00", Timezone: ""}
	if !IsDue(h, mustUTC(t, "2024-01-03T09:00:00Z")) {
		t.Error("IsDue with cadence \"Daily\" and empty timezone = false, want true")
	}
}

func TestParseReminderTime(t *testing.T) {
	hour, minute, err := ParseReminderTime("07:05")
	if err != nil {
		t.Fatalf("ParseReminderTime: %v", err)
	}
	if hour != 7 || minute != 5 {
		t.Errorf("got %d:%d, want 7:5", hour, minute)
	}

	for _, bad := range []string{"", "24:00", "7", "07:60", "noon"} {
		if _, _, err := ParseReminderTime(bad); err == nil {
			t.Errorf("ParseReminderTime(%q) error = nil, want error", bad)
		}
	}
}

func TestTimeOfDay(t *testing.T) {
	tests := map[int]string{0: "morning", 11: "morning", 12: "afternoon", 16: "afternoon", 17: "evening", 23: "evening"}
	for hour, want := range tests {
		if got := TimeOfDay(hour); got != want {
			t.Errorf("TimeOfDay(%d) = %q, want %q", hour, got, want)
		}
	}
}
