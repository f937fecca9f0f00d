package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

const completionColumns = `id, habit_id, user_id, completed, day, completed_at, mood, difficulty, note`

// UpsertCompletion writes the completion for (habit, day) atomically.
// An existing row keeps its id and has completed overwritten; mood, difficulty and
// note are overwritten only when provided. created reports whether a new row was inserted.
// On return c holds the stored row.
func UpsertCompletion(ctx context.Context, q Queryer, c *habit.Completion) (created bool, err error) {
	newID := NewID()
	query := `
		INSERT INTO completions (` + completionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (habit_id, day) DO UPDATE SET
			completed    = excluded.completed,
			completed_at = excluded.completed_at,
			mood         = COALESCE(excluded.mood, completions.mood),
			difficulty   = COALESCE(excluded.difficulty, completions.difficulty),
			note         = COALESCE(excluded.note, completions.note)
		RETURNING ` + completionColumns

	row := q.QueryRowContext(ctx, query,
		newID, c.HabitID, c.UserID, c.Completed, c.Day, c.CompletedAt,
		toNullString(c.Mood), toNullInt(c.Difficulty), toNullString(c.Note),
	)
	stored, err := scanCompletion(row)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	*c = *stored
	return stored.ID == newID, nil
}

// GetCompletion returns the completion for (habit, day).
func GetCompletion(ctx context.Context, q Queryer, habitID, day string) (*habit.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE habit_id = ? AND day = ?`
	c, err := scanCompletion(q.QueryRowContext(ctx, query, habitID, day))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("completion", habitID+"/"+day)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// ListCompletions returns the habit's completions newest day first.
// A limit of 0 returns the full history.
func ListCompletions(ctx context.Context, q Queryer, habitID string, limit int) ([]habit.Completion, error) {
	query := `
		SELECT ` + completionColumns + ` FROM completions
		WHERE habit_id = ?
		ORDER BY day DESC, completed_at DESC
	`
	args := []any{habitID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collect(rows, scanCompletion)
}

// CountCompletions returns how many completion rows the habit has.
func CountCompletions(ctx context.Context, q Queryer, habitID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM completions WHERE habit_id = ?`, habitID).Scan(&n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func scanCompletion(row rowScanner) (*habit.Completion, error) {
	var (
		c          habit.Completion
		mood       sql.NullString
		difficulty sql.NullInt64
		note       sql.NullString
	)
	err := row.Scan(&c.ID, &c.HabitID, &c.UserID, &c.Completed, &c.Day, &c.CompletedAt, &mood, &difficulty, &note)
	if err != nil {
		return nil, err
	}
	c.Mood = fromNullString(mood)
	c.Difficulty = fromNullInt(difficulty)
	c.Note = fromNullString(note)
	return &c, nil
}
