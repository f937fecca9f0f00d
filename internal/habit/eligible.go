package habit

// ineligibleSubscriptions are billing states that stop all messaging.
// The empty string covers users who never subscribed.
var ineligibleSubscriptions = map[string]bool{
	"canceled":           true,
	"":                   true,
	"incomplete_expired": true,
}

// IsEligible reports whether the habit may be messaged at all.
// A false result is a silent skip, never an error.
func IsEligible(h *Habit, u *User) bool {
	if h == nil || u == nil {
		return false
	}
	if !h.Running || !h.Active || h.ReminderTime == "" {
		return false
	}
	if !u.PhoneVerified {
		return false
	}
	return !ineligibleSubscriptions[u.SubscriptionStatus]
}
