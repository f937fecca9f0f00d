package habit

import (
	"fmt"
	"strings"

	"github.com/hpungsan/nudge/internal/errors"
)

// Validate checks a habit's schedule invariants:
// daily ignores weekdays, weekly has exactly one, semi-daily has at least one.
func Validate(h *Habit) error {
	if strings.TrimSpace(h.Name) == "" {
		return errors.NewInvalidRequest("name is required")
	}

	if _, _, err := ParseReminderTime(h.ReminderTime); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if _, err := LoadLocation(h.Timezone); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}

	for _, d := range h.SelectedDays {
		if d < 0 || d > 6 {
			return errors.NewInvalidRequest(fmt.Sprintf("selected day %d out of range 0-6", d))
		}
	}

	switch NormalizeCadence(h.Cadence) {
	case CadenceDaily:
		return nil
	case CadenceWeekly:
		if len(h.SelectedDays) != 1 {
			return errors.NewInvalidRequest("weekly habits need exactly one selected day")
		}
	case CadenceSemiDaily:
		if len(h.SelectedDays) == 0 {
			return errors.NewInvalidRequest("semi-daily habits need at least one selected day")
		}
	default:
		return errors.NewInvalidRequest("cadence must be one of: daily, semi-daily, weekly")
	}
	return nil
}
