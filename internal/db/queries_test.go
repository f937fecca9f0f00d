package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, phone string) *habit.User {
	t.Helper()
	u := &habit.User{
		Username:           "ana",
		PhoneNumber:        phone,
		PhoneVerified:      true,
		SubscriptionStatus: "active",
		CreatedAt:          1000,
	}
	require.NoError(t, InsertUser(context.Background(), db, u))
	return u
}

func seedHabit(t *testing.T, db *DB, userID, name string, running bool) *habit.Habit {
	t.Helper()
	h := &habit.Habit{
		UserID:       userID,
		Name:         name,
		Cadence:      habit.CadenceWeekly,
		SelectedDays: []int{3},
		Timezone:     "America/Los_Angeles",
		ReminderTime: "09:00",
		Running:      running,
		Active:       true,
		CreatedAt:    1000,
	}
	require.NoError(t, InsertHabit(context.Background(), db, h))
	return h
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100001")
	require.NotEmpty(t, u.ID)

	got, err := GetUserByPhone(ctx, db, "+15550100001")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.True(t, got.PhoneVerified)
	require.Nil(t, got.OpenReminderID)

	_, err = GetUserByPhone(ctx, db, "+15550109999")
	require.True(t, errors.Is(err, errors.ErrNotFound))

	dup := &habit.User{Username: "dup", PhoneNumber: "+15550100001", CreatedAt: 1}
	err = InsertUser(ctx, db, dup)
	require.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
}

func TestOpenReminderSlot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100002")

	require.NoError(t, SetOpenReminder(ctx, db, u.ID, "01REMINDER"))
	got, err := GetUser(ctx, db, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OpenReminderID)
	require.Equal(t, "01REMINDER", *got.OpenReminderID)

	require.NoError(t, ClearOpenReminder(ctx, db, u.ID))
	got, err = GetUser(ctx, db, u.ID)
	require.NoError(t, err)
	require.Nil(t, got.OpenReminderID)

	err = ClearOpenReminder(ctx, db, "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestHabits(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100003")
	stopped := seedHabit(t, db, u.ID, "Read", false)
	running := seedHabit(t, db, u.ID, "Run", true)

	got, err := GetHabit(ctx, db, running.ID)
	require.NoError(t, err)
	require.Equal(t, []int{3}, got.SelectedDays)
	require.Equal(t, habit.CadenceWeekly, got.Cadence)
	require.Nil(t, got.LastCheckin)

	first, err := FirstRunningHabit(ctx, db, u.ID)
	require.NoError(t, err)
	require.Equal(t, running.ID, first.ID)

	require.NoError(t, SetRunning(ctx, db, stopped.ID, true, 5000))
	first, err = FirstRunningHabit(ctx, db, u.ID)
	require.NoError(t, err)
	require.Equal(t, stopped.ID, first.ID, "oldest running habit wins")
	require.NotNil(t, first.StartedAt)
	require.Equal(t, int64(5000), *first.StartedAt)

	require.NoError(t, UpdateLastCheckin(ctx, db, running.ID, 7000))
	got, err = GetHabit(ctx, db, running.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7000), *got.LastCheckin)

	all, err := ListHabits(ctx, db, u.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = GetHabit(ctx, db, "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListCandidates(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100004")
	seedHabit(t, db, u.ID, "Stopped", false)
	running := seedHabit(t, db, u.ID, "Running", true)

	daily := &habit.Habit{UserID: u.ID, Name: "Inactive", Cadence: habit.CadenceDaily, Running: true, Active: false, CreatedAt: 1}
	require.NoError(t, InsertHabit(ctx, db, daily))

	candidates, err := ListCandidates(ctx, db)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, running.ID, candidates[0].Habit.ID)
	require.Equal(t, u.PhoneNumber, candidates[0].User.PhoneNumber)
	require.Equal(t, "active", candidates[0].User.SubscriptionStatus)
}

func TestReminders(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100005")
	h := seedHabit(t, db, u.ID, "Run", true)

	r1 := &habit.Reminder{HabitID: h.ID, UserID: u.ID, PhoneNumber: u.PhoneNumber, DispatchedAt: 1000, Status: habit.StatusSent, FollowUpDueAt: 1900}
	require.NoError(t, InsertReminder(ctx, db, r1))
	require.Equal(t, habit.ResponseNone, r1.Response)

	ok, err := DispatchedSince(ctx, db, h.ID, 960)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = DispatchedSince(ctx, db, h.ID, 1020)
	require.NoError(t, err)
	require.False(t, ok)

	due, err := DueFollowUps(ctx, db, 1899)
	require.NoError(t, err)
	require.Empty(t, due)
	due, err = DueFollowUps(ctx, db, 1900)
	require.NoError(t, err)
	require.Len(t, due, 1)

	marked, err := MarkFollowUpSent(ctx, db, r1.ID, 1905)
	require.NoError(t, err)
	require.True(t, marked)
	marked, err = MarkFollowUpSent(ctx, db, r1.ID, 1906)
	require.NoError(t, err)
	require.False(t, marked, "second mark is a no-op")

	due, err = DueFollowUps(ctx, db, 5000)
	require.NoError(t, err)
	require.Empty(t, due)

	// A new dispatch times out the previous one.
	n, err := TimeOutSent(ctx, db, h.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	r2 := &habit.Reminder{HabitID: h.ID, UserID: u.ID, PhoneNumber: u.PhoneNumber, DispatchedAt: 2000, Status: habit.StatusSent, FollowUpDueAt: 2900}
	require.NoError(t, InsertReminder(ctx, db, r2))

	latest, err := LatestReminderForPhone(ctx, db, u.PhoneNumber)
	require.NoError(t, err)
	require.Equal(t, r2.ID, latest.ID)

	closed, err := MarkResponded(ctx, db, r2.ID, habit.ResponseCompleted)
	require.NoError(t, err)
	require.True(t, closed)
	got, err := GetReminder(ctx, db, r2.ID)
	require.NoError(t, err)
	require.Equal(t, habit.StatusResponded, got.Status)
	require.Equal(t, habit.ResponseCompleted, got.Response)

	// A closed reminder keeps its first answer.
	closed, err = MarkResponded(ctx, db, r2.ID, habit.ResponseNotCompleted)
	require.NoError(t, err)
	require.False(t, closed)
	got, err = GetReminder(ctx, db, r2.ID)
	require.NoError(t, err)
	require.Equal(t, habit.ResponseCompleted, got.Response)

	// Answered reminders still get their follow-up.
	due, err = DueFollowUps(ctx, db, 2900)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, r2.ID, due[0].ID)

	closed, err = MarkResponded(ctx, db, r1.ID, habit.ResponseCompleted)
	require.NoError(t, err)
	require.False(t, closed, "timed-out reminders are not reopened")
	got, err = GetReminder(ctx, db, r1.ID)
	require.NoError(t, err)
	require.Equal(t, habit.StatusTimedOut, got.Status)
	require.Equal(t, habit.ResponseNone, got.Response)
	require.NotNil(t, got.FollowUpSentAt)

	list, err := ListReminders(ctx, db, h.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, r2.ID, list[0].ID)
}

func TestUpsertCompletion_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100006")
	h := seedHabit(t, db, u.ID, "Run", true)

	first := &habit.Completion{
		HabitID: h.ID, UserID: u.ID, Day: "2024-01-03", Completed: true, CompletedAt: 100,
		Mood: strPtr(habit.MoodPositive), Difficulty: intPtr(2), Note: strPtr("yes"),
	}
	created, err := UpsertCompletion(ctx, db, first)
	require.NoError(t, err)
	require.True(t, created)
	firstID := first.ID

	second := &habit.Completion{HabitID: h.ID, UserID: u.ID, Day: "2024-01-03", Completed: false, CompletedAt: 200}
	created, err = UpsertCompletion(ctx, db, second)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, firstID, second.ID)
	require.False(t, second.Completed, "latest value wins")
	require.Equal(t, int64(200), second.CompletedAt)
	require.NotNil(t, second.Mood, "unset mood keeps the earlier value")
	require.Equal(t, habit.MoodPositive, *second.Mood)

	count, err := CountCompletions(ctx, db, h.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := GetCompletion(ctx, db, h.ID, "2024-01-03")
	require.NoError(t, err)
	require.False(t, got.Completed)
	require.Equal(t, 2, *got.Difficulty)
}

func TestListCompletions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100007")
	h := seedHabit(t, db, u.ID, "Run", true)

	for i, day := range []string{"2024-01-01", "2024-01-03", "2024-01-02"} {
		c := &habit.Completion{HabitID: h.ID, UserID: u.ID, Day: day, Completed: true, CompletedAt: int64(i)}
		_, err := UpsertCompletion(ctx, db, c)
		require.NoError(t, err)
	}

	all, err := ListCompletions(ctx, db, h.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "2024-01-03", all[0].Day)
	require.Equal(t, "2024-01-01", all[2].Day)

	recent, err := ListCompletions(ctx, db, h.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "2024-01-02", recent[1].Day)
}

func TestConversationEntries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100008")
	h := seedHabit(t, db, u.ID, "Run", true)

	messages := []string{"one", "two", "three", "four"}
	for _, m := range messages {
		e := &habit.ConversationEntry{
			HabitID: h.ID, UserID: u.ID, Role: habit.RoleAssistant, Message: m, Timestamp: 500,
			Context: map[string]any{"type": "reminder"},
		}
		require.NoError(t, AppendEntry(ctx, db, e))
	}

	recent, err := RecentEntries(ctx, db, h.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "two", recent[0].Message, "chronological order, same-second ties broken by id")
	require.Equal(t, "four", recent[2].Message)
	require.Equal(t, "reminder", recent[0].Context["type"])
}

func TestInsights(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u := seedUser(t, db, "+15550100009")
	h := seedHabit(t, db, u.ID, "Run", true)

	fresh := &habit.Insight{
		HabitID: h.ID, UserID: u.ID, Type: habit.InsightStrength, Text: "Strong consistency in habit completion",
		RelevanceScore: 100, ValidUntil: 10_000, CreatedAt: 100,
		Metadata: map[string]any{"source": "weekly_analysis"},
	}
	stale := &habit.Insight{
		HabitID: h.ID, UserID: u.ID, Type: habit.InsightFollowUp, Text: "old",
		RelevanceScore: 100, ValidUntil: 50, CreatedAt: 10,
	}
	require.NoError(t, InsertInsight(ctx, db, fresh))
	require.NoError(t, InsertInsight(ctx, db, stale))

	all, err := ListInsights(ctx, db, h.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	valid, err := ListInsights(ctx, db, h.ID, 1000)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	require.Equal(t, "weekly_analysis", valid[0].Metadata["source"])
	require.Equal(t, habit.InsightStrength, valid[0].Type)
}

func TestInTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.InTx(ctx, func(tx *Tx) error {
		u := &habit.User{Username: "tx", PhoneNumber: "+15550100010", CreatedAt: 1}
		if err := InsertUser(ctx, tx, u); err != nil {
			return err
		}
		return errors.NewInvalidRequest("abort")
	})
	require.Error(t, err)

	_, err = GetUserByPhone(ctx, db, "+15550100010")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}
