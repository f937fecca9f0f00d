package habit

// Cadence is how often a habit expects a check-in.
type Cadence string

const (
	CadenceDaily     Cadence = "daily"
	CadenceSemiDaily Cadence = "semi-daily"
	CadenceWeekly    Cadence = "weekly"
)

// ReminderStatus is the state of an outstanding check-in exchange.
type ReminderStatus string

const (
	StatusSent      ReminderStatus = "sent"
	StatusResponded ReminderStatus = "responded"
	StatusTimedOut  ReminderStatus = "timed_out"
)

// Response is the outcome captured from a reply.
type Response string

const (
	ResponseCompleted    Response = "completed"
	ResponseNotCompleted Response = "not_completed"
	ResponseNone         Response = "none"
)

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// InsightType classifies a derived observation.
type InsightType string

const (
	InsightStrength   InsightType = "strength"
	InsightWeakness   InsightType = "weakness"
	InsightSuggestion InsightType = "suggestion"
	InsightFollowUp   InsightType = "follow_up"
)

// User is the subset of account data the engine reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// PhoneNumber is stored in E.164 form (see NormalizePhone)
	PhoneNumber   string `json:"phone_number"`
	PhoneVerified bool   `json:"phone_verified"`

	// SubscriptionStatus mirrors the billing provider's status string; empty means never subscribed
	SubscriptionStatus string `json:"subscription_status"`

	// AIHelperName is the persona the composer speaks as
	AIHelperName string `json:"ai_helper_name"`

	// OpenReminderID points at the user's single open conversation (nullable)
	OpenReminderID *string `json:"open_reminder_id,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// HelperName returns the persona name, defaulting to "Coach".
func (u *User) HelperName() string {
	if u == nil || u.AIHelperName == "" {
		return "Coach"
	}
	return u.AIHelperName
}

// Habit is a tracked behavior with a reminder schedule.
type Habit struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Cadence     Cadence `json:"cadence"`

	// SelectedDays holds weekdays 0=Sunday..6=Saturday; ignored for daily habits
	SelectedDays []int `json:"selected_days,omitempty"`

	// Timezone is an IANA zone name; empty means UTC
	Timezone string `json:"timezone"`

	// ReminderTime is the local time of day as "HH:MM"
	ReminderTime string `json:"reminder_time"`

	Running     bool   `json:"running"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"created_at"`
	StartedAt   *int64 `json:"started_at,omitempty"`
	LastCheckin *int64 `json:"last_checkin,omitempty"`
}

// Reminder is one outstanding "did you do it?" exchange.
type Reminder struct {
	ID             string         `json:"id"`
	HabitID        string         `json:"habit_id"`
	UserID         string         `json:"user_id"`
	PhoneNumber    string         `json:"phone_number"`
	DispatchedAt   int64          `json:"dispatched_at"`
	Status         ReminderStatus `json:"status"`
	Response       Response       `json:"response"`
	FollowUpDueAt  int64          `json:"follow_up_due_at"`
	FollowUpSentAt *int64         `json:"follow_up_sent_at,omitempty"`
}

// Completion records whether a habit was performed on a UTC calendar day.
type Completion struct {
	ID        string `json:"id"`
	HabitID   string `json:"habit_id"`
	UserID    string `json:"user_id"`
	Completed bool   `json:"completed"`

	// Day is the UTC calendar date in DayLayout form
	Day string `json:"day"`

	// CompletedAt is the Unix timestamp of the last write
	CompletedAt int64   `json:"completed_at"`
	Mood        *string `json:"mood,omitempty"`
	Difficulty  *int    `json:"difficulty,omitempty"`
	Note        *string `json:"note,omitempty"`
}

// ConversationEntry is an immutable log line for one message.
type ConversationEntry struct {
	ID        string         `json:"id"`
	HabitID   string         `json:"habit_id"`
	UserID    string         `json:"user_id"`
	Role      Role           `json:"role"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// Insight is a derived, time-boxed observation about a habit.
type Insight struct {
	ID             string         `json:"id"`
	HabitID        string         `json:"habit_id"`
	UserID         string         `json:"user_id"`
	Type           InsightType    `json:"type"`
	Text           string         `json:"insight"`
	RelevanceScore int            `json:"relevance_score"`
	ValidUntil     int64          `json:"valid_until"`
	CreatedAt      int64          `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
