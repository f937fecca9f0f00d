package db

import (
	"context"
	"database/sql"
	"slices"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

const entryColumns = `id, habit_id, user_id, role, message, created_at, context`

// AppendEntry adds a conversation log line. Entries are never updated.
func AppendEntry(ctx context.Context, q Queryer, e *habit.ConversationEntry) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	contextJSON, err := toJSON(e.Context)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO conversation_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.HabitID, e.UserID, string(e.Role), e.Message, e.Timestamp, contextJSON,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RecentEntries returns the habit's last n entries in chronological order.
func RecentEntries(ctx context.Context, q Queryer, habitID string, n int) ([]habit.ConversationEntry, error) {
	query := `
		SELECT ` + entryColumns + ` FROM conversation_entries
		WHERE habit_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, habitID, n)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	entries, err := collect(rows, scanEntry)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

func scanEntry(row rowScanner) (*habit.ConversationEntry, error) {
	var (
		e           habit.ConversationEntry
		contextJSON sql.NullString
	)
	if err := row.Scan(&e.ID, &e.HabitID, &e.UserID, &e.Role, &e.Message, &e.Timestamp, &contextJSON); err != nil {
		return nil, err
	}
	m, err := fromJSON(contextJSON)
	if err != nil {
		return nil, err
	}
	e.Context = m
	return &e, nil
}
