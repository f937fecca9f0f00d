package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/config"
	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/habit"
	"github.com/hpungsan/nudge/internal/ops"
	"github.com/hpungsan/nudge/internal/sms"
)

var testNow = time.Date(2024, 1, 3, 17, 0, 0, 0, time.UTC)

// testSetup creates a temporary database, a service and one running habit.
func testSetup(t *testing.T) (*Handlers, *ops.Service, *config.Config, *habit.Habit) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	svc := ops.NewService(ops.Deps{
		DB:      database,
		Gateway: sms.NewLogGateway(zap.NewNop()),
		Config:  cfg,
		Logger:  zap.NewNop(),
		Now:     func() time.Time { return testNow },
	})

	ctx := context.Background()
	u, err := svc.AddUser(ctx, ops.AddUserInput{
		Phone:              "+15551234567",
		PhoneVerified:      true,
		SubscriptionStatus: "active",
	})
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	h, err := svc.AddHabit(ctx, ops.AddHabitInput{
		UserID:       u.ID,
		Name:         "Read",
		Cadence:      "daily",
		ReminderTime: "09:00",
		Start:        true,
	})
	if err != nil {
		t.Fatalf("AddHabit: %v", err)
	}

	return NewHandlers(svc), svc, cfg, h
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleStats(t *testing.T) {
	h, svc, _, hb := testSetup(t)
	ctx := context.Background()

	for _, day := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		if _, err := svc.RecordCompletion(ctx, ops.RecordInput{HabitID: hb.ID, Day: day, Completed: true}); err != nil {
			t.Fatalf("RecordCompletion(%s): %v", day, err)
		}
	}

	t.Run("success", func(t *testing.T) {
		result, err := h.HandleStats(ctx, makeRequest(map[string]any{"habit_id": hb.ID}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := parseOutput(t, result)
		if output["name"] != "Read" {
			t.Errorf("name = %v, want Read", output["name"])
		}
		stats := output["stats"].(map[string]any)
		if stats["streak"] != float64(3) {
			t.Errorf("streak = %v, want 3", stats["streak"])
		}
		if stats["completion_rate"] != float64(100) {
			t.Errorf("completion_rate = %v, want 100", stats["completion_rate"])
		}
	})

	t.Run("not found", func(t *testing.T) {
		result, _ := h.HandleStats(ctx, makeRequest(map[string]any{"habit_id": "missing"}))
		if !result.IsError {
			t.Fatal("expected error result")
		}
		assertErrorCode(t, result, "NOT_FOUND")
	})

	t.Run("wrong argument type", func(t *testing.T) {
		result, _ := h.HandleStats(ctx, makeRequest(map[string]any{"habit_id": 42}))
		if !result.IsError {
			t.Fatal("expected error result")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

func TestHandleRecord(t *testing.T) {
	h, _, _, hb := testSetup(t)

	t.Run("creates then overwrites", func(t *testing.T) {
		args := map[string]any{
			"habit_id":   hb.ID,
			"day":        "2024-01-02",
			"completed":  false,
			"mood":       "negative",
			"difficulty": float64(4),
			"note":       "too tired",
		}
		output := parseOutput(t, mustCall(t, h.HandleRecord, args))
		if output["created"] != true {
			t.Errorf("created = %v, want true", output["created"])
		}
		completion := output["completion"].(map[string]any)
		if completion["day"] != "2024-01-02" {
			t.Errorf("day = %v, want 2024-01-02", completion["day"])
		}
		if completion["difficulty"] != float64(4) {
			t.Errorf("difficulty = %v, want 4", completion["difficulty"])
		}

		args["completed"] = true
		output = parseOutput(t, mustCall(t, h.HandleRecord, args))
		if output["created"] != false {
			t.Errorf("created = %v, want false on overwrite", output["created"])
		}
		if output["completion"].(map[string]any)["completed"] != true {
			t.Error("expected completed=true after overwrite")
		}
	})

	t.Run("defaults to today", func(t *testing.T) {
		output := parseOutput(t, mustCall(t, h.HandleRecord, map[string]any{
			"habit_id":  hb.ID,
			"completed": true,
		}))
		if day := output["completion"].(map[string]any)["day"]; day != "2024-01-03" {
			t.Errorf("day = %v, want 2024-01-03", day)
		}
	})

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{"missing completed", map[string]any{"habit_id": hb.ID}, "INVALID_REQUEST"},
		{"difficulty out of range", map[string]any{"habit_id": hb.ID, "completed": true, "difficulty": float64(9)}, "INVALID_REQUEST"},
		{"fractional difficulty", map[string]any{"habit_id": hb.ID, "completed": true, "difficulty": 2.5}, "INVALID_REQUEST"},
		{"unknown mood", map[string]any{"habit_id": hb.ID, "completed": true, "mood": "ecstatic"}, "INVALID_REQUEST"},
		{"bad day", map[string]any{"habit_id": hb.ID, "completed": true, "day": "yesterday"}, "INVALID_REQUEST"},
		{"missing habit", map[string]any{"habit_id": "missing", "completed": true}, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mustCall(t, h.HandleRecord, tt.args)
			if !result.IsError {
				t.Fatal("expected error result")
			}
			assertErrorCode(t, result, tt.code)
		})
	}
}

func TestHandleInsights(t *testing.T) {
	h, svc, _, hb := testSetup(t)
	ctx := context.Background()

	output := parseOutput(t, mustCall(t, h.HandleInsights, map[string]any{"habit_id": hb.ID}))
	if insights := output["insights"].([]any); len(insights) != 0 {
		t.Fatalf("expected no insights, got %d", len(insights))
	}

	for i := range habit.InsightInterval {
		day := testNow.AddDate(0, 0, -i).Format(habit.DayLayout)
		if _, err := svc.RecordCompletion(ctx, ops.RecordInput{HabitID: hb.ID, Day: day, Completed: true}); err != nil {
			t.Fatalf("RecordCompletion(%s): %v", day, err)
		}
	}

	output = parseOutput(t, mustCall(t, h.HandleInsights, map[string]any{
		"habit_id":        hb.ID,
		"include_expired": true,
	}))
	insights := output["insights"].([]any)
	if len(insights) == 0 {
		t.Fatal("expected insights after the seventh completion")
	}
	first := insights[0].(map[string]any)
	if first["habit_id"] != hb.ID {
		t.Errorf("habit_id = %v, want %s", first["habit_id"], hb.ID)
	}
	if first["insight"] == "" {
		t.Error("expected insight text")
	}
}

func TestHandleConversation(t *testing.T) {
	h, svc, _, hb := testSetup(t)
	ctx := context.Background()

	if _, err := svc.Remind(ctx, ops.RemindInput{HabitID: hb.ID}); err != nil {
		t.Fatalf("Remind: %v", err)
	}
	svc.HandleInbound(ctx, "+15551234567", "YES")

	output := parseOutput(t, mustCall(t, h.HandleConversation, map[string]any{"habit_id": hb.ID}))
	entries := output["entries"].([]any)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	roles := make([]string, len(entries))
	for i, e := range entries {
		roles[i] = e.(map[string]any)["role"].(string)
	}
	if strings.Join(roles, ",") != "assistant,user,assistant" {
		t.Errorf("roles = %v, want assistant,user,assistant", roles)
	}

	output = parseOutput(t, mustCall(t, h.HandleConversation, map[string]any{"habit_id": hb.ID, "limit": float64(1)}))
	if entries := output["entries"].([]any); len(entries) != 1 {
		t.Errorf("expected 1 entry with limit=1, got %d", len(entries))
	}

	result := mustCall(t, h.HandleConversation, map[string]any{"habit_id": hb.ID, "limit": float64(500)})
	if !result.IsError {
		t.Fatal("expected error for limit over maximum")
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleDispatch(t *testing.T) {
	h, _, _, hb := testSetup(t)

	output := parseOutput(t, mustCall(t, h.HandleDispatch, map[string]any{"habit_id": hb.ID}))
	if output["sid"] != "SMlog000001" {
		t.Errorf("sid = %v, want SMlog000001", output["sid"])
	}
	if output["reminder_id"] == "" || output["reminder_id"] == nil {
		t.Error("expected reminder_id")
	}
	if output["message"] == "" || output["message"] == nil {
		t.Error("expected message text")
	}

	result := mustCall(t, h.HandleDispatch, map[string]any{"habit_id": "missing"})
	if !result.IsError {
		t.Fatal("expected error for missing habit")
	}
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestServerRegistration(t *testing.T) {
	_, svc, cfg, _ := testSetup(t)

	s := NewServer(svc, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"habit_stats",
		"habit_insights",
		"habit_conversation",
		"completion_record",
		"reminder_dispatch",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	_, svc, cfg, _ := testSetup(t)

	cfg.DisabledTools = []string{"completion_record", "reminder_dispatch"}
	s := NewServer(svc, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 3 {
		t.Errorf("registered tool count = %d, want 3", len(tools))
	}

	for _, name := range cfg.DisabledTools {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}

	// Read-only tools remain.
	for _, name := range []string{"habit_stats", "habit_insights", "habit_conversation"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("read-only tool %q should be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	_, svc, cfg, _ := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(svc, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{
			name:    "all valid",
			input:   []string{"reminder_dispatch", "completion_record"},
			wantLen: 0,
		},
		{
			name:    "one unknown",
			input:   []string{"reminder_dispatch", "fake_tool"},
			wantLen: 1,
		},
		{
			name:    "empty list",
			input:   []string{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()

	if len(names) != 5 {
		t.Errorf("AllToolNames() returned %d names, want 5", len(names))
	}
	if names[0] != "completion_record" {
		t.Errorf("AllToolNames()[0] = %q, want sorted order", names[0])
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if strings.Contains(errObj["message"].(string), "secret.db") {
		t.Fatal("internal message leaked")
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	r := errorResult(fmt.Errorf("lookup: %w", errors.NewNotFound("habit", "abc")))

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if errObj["status"] != float64(404) {
		t.Errorf("status=%v, want 404", errObj["status"])
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

func mustCall(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned transport error: %v", err)
	}
	return result
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatal("no error object in payload")
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}
	if code := errorObject(t, result)["code"]; code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
