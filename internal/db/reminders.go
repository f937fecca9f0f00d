package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

const reminderColumns = `id, habit_id, user_id, phone_number, dispatched_at, status, response,
	follow_up_due_at, follow_up_sent_at`

// InsertReminder stores a new reminder. ID is assigned when empty.
func InsertReminder(ctx context.Context, q Queryer, r *habit.Reminder) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Response == "" {
		r.Response = habit.ResponseNone
	}
	query := `
		INSERT INTO reminders (` + reminderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		r.ID, r.HabitID, r.UserID, r.PhoneNumber, r.DispatchedAt, string(r.Status), string(r.Response),
		r.FollowUpDueAt, toNullInt64(r.FollowUpSentAt),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetReminder retrieves a reminder by id.
func GetReminder(ctx context.Context, q Queryer, id string) (*habit.Reminder, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("reminder", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// LatestReminderForPhone returns the most recently dispatched reminder sent to phone.
func LatestReminderForPhone(ctx context.Context, q Queryer, phone string) (*habit.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + ` FROM reminders
		WHERE phone_number = ?
		ORDER BY dispatched_at DESC, id DESC
		LIMIT 1
	`
	r, err := scanReminder(q.QueryRowContext(ctx, query, phone))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("reminder for phone", phone)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// DispatchedSince reports whether a reminder for the habit was dispatched at or after since.
func DispatchedSince(ctx context.Context, q Queryer, habitID string, since int64) (bool, error) {
	query := `SELECT 1 FROM reminders WHERE habit_id = ? AND dispatched_at >= ? LIMIT 1`
	var exists int
	err := q.QueryRowContext(ctx, query, habitID, since).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// TimeOutSent moves every still-sent reminder of the habit to timed_out.
// Returns the number of reminders closed.
func TimeOutSent(ctx context.Context, q Queryer, habitID string) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE reminders SET status = ? WHERE habit_id = ? AND status = ?`,
		string(habit.StatusTimedOut), habitID, string(habit.StatusSent),
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// MarkResponded closes a still-sent reminder with the captured response.
// Returns false, leaving the row untouched, if the reminder was already
// responded or timed out.
func MarkResponded(ctx context.Context, q Queryer, id string, response habit.Response) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE reminders SET status = ?, response = ? WHERE id = ? AND status = ?`,
		string(habit.StatusResponded), string(response), id, string(habit.StatusSent),
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n == 1, nil
}

// DueFollowUps returns reminders whose follow-up is due and not yet sent, oldest first.
// Answered reminders are included; only reminders superseded by a newer dispatch are not.
func DueFollowUps(ctx context.Context, q Queryer, now int64) ([]habit.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + ` FROM reminders
		WHERE status IN (?, ?) AND follow_up_sent_at IS NULL AND follow_up_due_at <= ?
		ORDER BY follow_up_due_at ASC, id ASC
	`
	rows, err := q.QueryContext(ctx, query, string(habit.StatusSent), string(habit.StatusResponded), now)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collect(rows, scanReminder)
}

// MarkFollowUpSent records the follow-up send time. Returns false if another
// worker already marked it.
func MarkFollowUpSent(ctx context.Context, q Queryer, id string, at int64) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE reminders SET follow_up_sent_at = ? WHERE id = ? AND follow_up_sent_at IS NULL`,
		at, id,
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n == 1, nil
}

// ListReminders returns the habit's reminders, newest first.
func ListReminders(ctx context.Context, q Queryer, habitID string, limit int) ([]habit.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + ` FROM reminders
		WHERE habit_id = ?
		ORDER BY dispatched_at DESC, id DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, habitID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collect(rows, scanReminder)
}

func scanReminder(row rowScanner) (*habit.Reminder, error) {
	var (
		r      habit.Reminder
		sentAt sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.HabitID, &r.UserID, &r.PhoneNumber, &r.DispatchedAt, &r.Status, &r.Response,
		&r.FollowUpDueAt, &sentAt,
	)
	if err != nil {
		return nil, err
	}
	r.FollowUpSentAt = fromNullInt64(sentAt)
	return &r, nil
}
