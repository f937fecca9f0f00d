package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
)

const insightColumns = `id, habit_id, user_id, type, insight, relevance_score, valid_until, created_at, metadata`

// InsertInsight stores a derived insight. ID is assigned when empty.
func InsertInsight(ctx context.Context, q Queryer, in *habit.Insight) error {
	if in.ID == "" {
		in.ID = NewID()
	}
	metadata, err := toJSON(in.Metadata)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO insights (`+insightColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.HabitID, in.UserID, string(in.Type), in.Text, in.RelevanceScore,
		in.ValidUntil, in.CreatedAt, metadata,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListInsights returns the habit's insights newest first. When validAt is non-zero,
// only insights with valid_until >= validAt are returned.
func ListInsights(ctx context.Context, q Queryer, habitID string, validAt int64) ([]habit.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE habit_id = ?`
	args := []any{habitID}
	if validAt > 0 {
		query += ` AND valid_until >= ?`
		args = append(args, validAt)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collect(rows, scanInsight)
}

func scanInsight(row rowScanner) (*habit.Insight, error) {
	var (
		in       habit.Insight
		metadata sql.NullString
	)
	err := row.Scan(&in.ID, &in.HabitID, &in.UserID, &in.Type, &in.Text, &in.RelevanceScore,
		&in.ValidUntil, &in.CreatedAt, &metadata)
	if err != nil {
		return nil, err
	}
	m, err := fromJSON(metadata)
	if err != nil {
		return nil, err
	}
	in.Metadata = m
	return &in, nil
}
