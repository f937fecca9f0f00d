package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// HabitRequest carries the habit a read-only tool targets.
type HabitRequest struct {
	HabitID string `json:"habit_id"`
}

// InsightsRequest represents the arguments for habit_insights.
type InsightsRequest struct {
	HabitID        string `json:"habit_id"`
	IncludeExpired bool   `json:"include_expired,omitempty"`
}

// ConversationRequest represents the arguments for habit_conversation.
type ConversationRequest struct {
	HabitID string `json:"habit_id"`
	Limit   int    `json:"limit,omitempty"`
}

// RecordRequest represents the arguments for completion_record.
type RecordRequest struct {
	HabitID    string  `json:"habit_id"`
	Completed  *bool   `json:"completed"`
	Day        string  `json:"day,omitempty"`
	Mood       *string `json:"mood,omitempty"`
	Difficulty *int    `json:"difficulty,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// HandleStats handles the habit_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HabitRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := h.svc.Stats(ctx, ops.StatsInput{HabitID: input.HabitID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleInsights handles the habit_insights tool call.
func (h *Handlers) HandleInsights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InsightsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := h.svc.Insights(ctx, ops.InsightsInput{
		HabitID:        input.HabitID,
		IncludeExpired: input.IncludeExpired,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleConversation handles the habit_conversation tool call.
func (h *Handlers) HandleConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConversationRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := h.svc.Conversation(ctx, ops.ConversationInput{
		HabitID: input.HabitID,
		Limit:   input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRecord handles the completion_record tool call.
func (h *Handlers) HandleRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecordRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Completed == nil {
		return errorResult(errors.NewInvalidRequest("completed is required")), nil
	}
	result, err := h.svc.RecordCompletion(ctx, ops.RecordInput{
		HabitID:    input.HabitID,
		Day:        input.Day,
		Completed:  *input.Completed,
		Mood:       input.Mood,
		Difficulty: input.Difficulty,
		Note:       input.Note,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDispatch handles the reminder_dispatch tool call.
func (h *Handlers) HandleDispatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HabitRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := h.svc.Remind(ctx, ops.RemindInput{HabitID: input.HabitID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// decode unmarshals tool arguments into a typed struct. Malformed arguments
// are reported as INVALID_REQUEST.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("marshal args: %v", err))
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("invalid arguments: %v", err))
	}
	return result, nil
}

// errorResult creates an MCP error result. Internal error details are replaced
// with a generic message.
func errorResult(err error) *mcp.CallToolResult {
	errorObj := map[string]any{
		"code":    string(errors.ErrInternal),
		"message": "an internal error occurred",
		"status":  500,
	}
	if nErr, ok := errors.As(err); ok && nErr.Code != errors.ErrInternal {
		errorObj["code"] = string(nErr.Code)
		errorObj["message"] = nErr.Message
		errorObj["status"] = nErr.Status
		if nErr.Details != nil {
			errorObj["details"] = nErr.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
