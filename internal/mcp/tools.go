package mcp

import "github.com/mark3labs/mcp-go/mcp"

var statsToolDef = mcp.NewTool("habit_stats",
	mcp.WithDescription("Get a habit's streak, completion rate and most recent mood and difficulty."),
	mcp.WithString("habit_id", mcp.Required(), mcp.Description("Habit ID")),
)

var insightsToolDef = mcp.NewTool("habit_insights",
	mcp.WithDescription("List insights derived from a habit's check-ins, newest first. Only currently valid insights unless include_expired is set."),
	mcp.WithString("habit_id", mcp.Required(), mcp.Description("Habit ID")),
	mcp.WithBoolean("include_expired", mcp.Description("Also return insights past their validity window")),
)

var conversationToolDef = mcp.NewTool("habit_conversation",
	mcp.WithDescription("Read the most recent SMS exchange for a habit in chronological order."),
	mcp.WithString("habit_id", mcp.Required(), mcp.Description("Habit ID")),
	mcp.WithNumber("limit", mcp.Description("Entries to return (default 20, max 200)")),
)

var recordToolDef = mcp.NewTool("completion_record",
	mcp.WithDescription("Record whether a habit was done on a day. Recording the same day again overwrites it."),
	mcp.WithString("habit_id", mcp.Required(), mcp.Description("Habit ID")),
	mcp.WithBoolean("completed", mcp.Required(), mcp.Description("Whether the habit was done")),
	mcp.WithString("day", mcp.Description("YYYY-MM-DD (UTC) or RFC 3339 timestamp; defaults to today")),
	mcp.WithString("mood", mcp.Enum("positive", "neutral", "negative"), mcp.Description("How it felt")),
	mcp.WithNumber("difficulty", mcp.Min(1), mcp.Max(5), mcp.Description("1 (very easy) to 5 (very hard)")),
	mcp.WithString("note", mcp.Description("Free-form note")),
)

var dispatchToolDef = mcp.NewTool("reminder_dispatch",
	mcp.WithDescription("Send a check-in SMS for a habit now, regardless of its schedule."),
	mcp.WithString("habit_id", mcp.Required(), mcp.Description("Habit ID")),
)
