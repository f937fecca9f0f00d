package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

const habitColumns = `id, user_id, name, description, cadence, selected_days, timezone,
	reminder_time, running, active, created_at, started_at, last_checkin`

// InsertHabit stores a new habit. ID is assigned when empty.
func InsertHabit(ctx context.Context, q Queryer, h *habit.Habit) error {
	if h.ID == "" {
		h.ID = NewID()
	}
	days, err := json.Marshal(nonNilDays(h.SelectedDays))
	if err != nil {
		return errors.NewInternal(err)
	}
	query := `
		INSERT INTO habits (` + habitColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		h.ID, h.UserID, h.Name, h.Description, string(h.Cadence), string(days), h.Timezone,
		h.ReminderTime, h.Running, h.Active, h.CreatedAt, toNullInt64(h.StartedAt), toNullInt64(h.LastCheckin),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func nonNilDays(days []int) []int {
	if days == nil {
		return []int{}
	}
	return days
}

// GetHabit retrieves a habit by id.
func GetHabit(ctx context.Context, q Queryer, id string) (*habit.Habit, error) {
	row := q.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("habit", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return h, nil
}

// ListHabits returns a user's habits oldest first. An empty userID lists every habit.
func ListHabits(ctx context.Context, q Queryer, userID string) ([]habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collect(rows, scanHabit)
}

// FirstRunningHabit returns the user's oldest running habit.
func FirstRunningHabit(ctx context.Context, q Queryer, userID string) (*habit.Habit, error) {
	query := `
		SELECT ` + habitColumns + ` FROM habits
		WHERE user_id = ? AND running = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`
	h, err := scanHabit(q.QueryRowContext(ctx, query, userID, true))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("running habit for user", userID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return h, nil
}

// Candidate is a running habit together with its owner.
type Candidate struct {
	Habit habit.Habit
	User  habit.User
}

// ListCandidates returns every running, active habit with its owner.
// Due-time and eligibility checks are left to the caller.
func ListCandidates(ctx context.Context, q Queryer) ([]Candidate, error) {
	query := `
		SELECT h.id, h.user_id, h.name, h.description, h.cadence, h.selected_days, h.timezone,
			h.reminder_time, h.running, h.active, h.created_at, h.started_at, h.last_checkin,
			u.id, u.username, u.phone_number, u.phone_verified, u.subscription_status,
			u.ai_helper_name, u.open_reminder_id, u.created_at
		FROM habits h
		JOIN users u ON u.id = h.user_id
		WHERE h.running = ? AND h.active = ?
		ORDER BY h.created_at ASC, h.id ASC
	`
	rows, err := q.QueryContext(ctx, query, true, true)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collect(rows, func(r rowScanner) (*Candidate, error) {
		var (
			c           Candidate
			days        string
			startedAt   sql.NullInt64
			lastCheckin sql.NullInt64
			openSlot    sql.NullString
		)
		err := r.Scan(
			&c.Habit.ID, &c.Habit.UserID, &c.Habit.Name, &c.Habit.Description, &c.Habit.Cadence,
			&days, &c.Habit.Timezone, &c.Habit.ReminderTime, &c.Habit.Running, &c.Habit.Active,
			&c.Habit.CreatedAt, &startedAt, &lastCheckin,
			&c.User.ID, &c.User.Username, &c.User.PhoneNumber, &c.User.PhoneVerified,
			&c.User.SubscriptionStatus, &c.User.AIHelperName, &openSlot, &c.User.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := decodeDays(days, &c.Habit); err != nil {
			return nil, err
		}
		c.Habit.StartedAt = fromNullInt64(startedAt)
		c.Habit.LastCheckin = fromNullInt64(lastCheckin)
		c.User.OpenReminderID = fromNullString(openSlot)
		return &c, nil
	})
}

// SetRunning starts or stops a habit. Starting records startedAt.
func SetRunning(ctx context.Context, q Queryer, id string, running bool, now int64) error {
	query := `UPDATE habits SET running = ? WHERE id = ?`
	args := []any{running, id}
	if running {
		query = `UPDATE habits SET running = ?, started_at = ? WHERE id = ?`
		args = []any{running, now, id}
	}
	return execOne(ctx, q, "habit", id, query, args...)
}

// UpdateLastCheckin records the time of the habit's latest YES/NO reply.
func UpdateLastCheckin(ctx context.Context, q Queryer, id string, at int64) error {
	return execOne(ctx, q, "habit", id, `UPDATE habits SET last_checkin = ? WHERE id = ?`, at, id)
}

// execOne runs an UPDATE that must touch exactly one row identified by id.
func execOne(ctx context.Context, q Queryer, kind, id, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}

func scanHabit(row rowScanner) (*habit.Habit, error) {
	var (
		h           habit.Habit
		days        string
		startedAt   sql.NullInt64
		lastCheckin sql.NullInt64
	)
	err := row.Scan(
		&h.ID, &h.UserID, &h.Name, &h.Description, &h.Cadence, &days, &h.Timezone,
		&h.ReminderTime, &h.Running, &h.Active, &h.CreatedAt, &startedAt, &lastCheckin,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeDays(days, &h); err != nil {
		return nil, err
	}
	h.StartedAt = fromNullInt64(startedAt)
	h.LastCheckin = fromNullInt64(lastCheckin)
	return &h, nil
}

func decodeDays(raw string, h *habit.Habit) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &h.SelectedDays); err != nil {
		return err
	}
	if len(h.SelectedDays) == 0 {
		h.SelectedDays = nil
	}
	return nil
}
