package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

const userColumns = `id, username, phone_number, phone_verified, subscription_status,
	ai_helper_name, open_reminder_id, created_at`

// InsertUser stores a new user. ID and CreatedAt are assigned when empty.
func InsertUser(ctx context.Context, q Queryer, u *habit.User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		u.ID, u.Username, u.PhoneNumber, u.PhoneVerified, u.SubscriptionStatus,
		u.AIHelperName, toNullString(u.OpenReminderID), u.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("phone number already registered: " + u.PhoneNumber)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetUser retrieves a user by id.
func GetUser(ctx context.Context, q Queryer, id string) (*habit.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("user", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

// GetUserByPhone retrieves a user by normalized phone number.
func GetUserByPhone(ctx context.Context, q Queryer, phone string) (*habit.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = ?`, phone)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("user", phone)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

// SetOpenReminder points the user's open-conversation slot at reminderID.
func SetOpenReminder(ctx context.Context, q Queryer, userID, reminderID string) error {
	return updateOpenReminder(ctx, q, userID, sql.NullString{String: reminderID, Valid: true})
}

// ClearOpenReminder empties the user's open-conversation slot.
func ClearOpenReminder(ctx context.Context, q Queryer, userID string) error {
	return updateOpenReminder(ctx, q, userID, sql.NullString{})
}

func updateOpenReminder(ctx context.Context, q Queryer, userID string, reminderID sql.NullString) error {
	result, err := q.ExecContext(ctx, `UPDATE users SET open_reminder_id = ? WHERE id = ?`, reminderID, userID)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("user", userID)
	}
	return nil
}

func scanUser(row rowScanner) (*habit.User, error) {
	var (
		u        habit.User
		openSlot sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.PhoneNumber, &u.PhoneVerified, &u.SubscriptionStatus,
		&u.AIHelperName, &openSlot, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.OpenReminderID = fromNullString(openSlot)
	return &u, nil
}
