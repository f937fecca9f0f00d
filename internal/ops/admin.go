package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

// AddUserInput contains parameters for registering a user.
type AddUserInput struct {
	Username           string `json:"username"`
	Phone              string `json:"phone"`
	PhoneVerified      bool   `json:"phone_verified"`
	SubscriptionStatus string `json:"subscription_status"`
	HelperName         string `json:"ai_helper_name,omitempty"`
}

// AddUser registers a user. The phone number is stored normalized.
func (s *Service) AddUser(ctx context.Context, input AddUserInput) (*habit.User, error) {
	phone := habit.NormalizePhone(input.Phone)
	if phone == "" {
		return nil, errors.NewInvalidRequest("phone is required")
	}
	if !strings.HasPrefix(phone, "+") {
		return nil, errors.NewInvalidRequest("phone must be in E.164 form, e.g. +15550102000")
	}
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = phone
	}

	u := &habit.User{
		Username:           username,
		PhoneNumber:        phone,
		PhoneVerified:      input.PhoneVerified,
		SubscriptionStatus: input.SubscriptionStatus,
		AIHelperName:       input.HelperName,
		CreatedAt:          s.now().Unix(),
	}
	if err := db.InsertUser(ctx, s.db, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AddHabitInput contains parameters for creating a habit.
type AddHabitInput struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Cadence      string `json:"cadence"`
	SelectedDays []int  `json:"selected_days,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	ReminderTime string `json:"reminder_time"`

	// Start marks the habit running right away
	Start bool `json:"start,omitempty"`
}

// AddHabit validates and stores a habit for an existing user.
func (s *Service) AddHabit(ctx context.Context, input AddHabitInput) (*habit.Habit, error) {
	if input.UserID == "" {
		return nil, errors.NewInvalidRequest("user_id is required")
	}
	if _, err := db.GetUser(ctx, s.db, input.UserID); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	h := &habit.Habit{
		UserID:       input.UserID,
		Name:         strings.TrimSpace(input.Name),
		Description:  input.Description,
		Cadence:      habit.NormalizeCadence(habit.Cadence(input.Cadence)),
		SelectedDays: input.SelectedDays,
		Timezone:     input.Timezone,
		ReminderTime: input.ReminderTime,
		Running:      input.Start,
		Active:       true,
		CreatedAt:    now,
	}
	if input.Start {
		h.StartedAt = &now
	}
	if err := habit.Validate(h); err != nil {
		return nil, err
	}
	if err := db.InsertHabit(ctx, s.db, h); err != nil {
		return nil, err
	}
	return h, nil
}

// SetRunning starts or stops reminders for a habit.
func (s *Service) SetRunning(ctx context.Context, habitID string, running bool) (*habit.Habit, error) {
	if habitID == "" {
		return nil, errors.NewInvalidRequest("habit_id is required")
	}
	if err := db.SetRunning(ctx, s.db, habitID, running, s.now().Unix()); err != nil {
		return nil, err
	}
	return db.GetHabit(ctx, s.db, habitID)
}

// ListHabitsOutput contains habits oldest first.
type ListHabitsOutput struct {
	Habits []habit.Habit `json:"habits"`
}

// ListHabits lists a user's habits, or every habit when userID is empty.
func (s *Service) ListHabits(ctx context.Context, userID string) (*ListHabitsOutput, error) {
	habits, err := db.ListHabits(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if habits == nil {
		habits = []habit.Habit{}
	}
	return &ListHabitsOutput{Habits: habits}, nil
}
