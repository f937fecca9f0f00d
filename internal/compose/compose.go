// Package compose writes the SMS text for check-ins, follow-ups and replies.
// Every entry point returns usable text: generation failures fall back to fixed templates.
package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/habit"
)

// Check-in generation parameters.
const (
	checkInTemperature      = 0.9
	checkInPresencePenalty  = 0.8
	checkInFrequencyPenalty = 1.0
	checkInMaxTokens        = 150
)

// Reply fallbacks.
const (
	CompletionReplyFallback = "Keep up the good work!"
	GenericReplyFallback    = "Thanks for your response!"
)

// Options configures a Composer.
type Options struct {
	// Model is used for check-ins and follow-ups
	Model string

	// ReplyModel is used for conversational replies
	ReplyModel string

	// Timeout bounds each generation call
	Timeout time.Duration
}

// Composer builds messages with a Generator and falls back to templates.
type Composer struct {
	gen    Generator
	opts   Options
	logger *zap.Logger
}

// New creates a Composer. A nil gen always uses the fallback templates.
func New(gen Generator, opts Options, logger *zap.Logger) *Composer {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{gen: gen, opts: opts, logger: logger.With(zap.String("component", "compose"))}
}

// Request describes a check-in or follow-up to compose.
type Request struct {
	Habit   *habit.Habit
	User    *habit.User
	Stats   habit.Stats
	History []habit.ConversationEntry

	// FollowUp selects the follow-up prompt and fallback
	FollowUp bool

	// AnsweredToday is set when today's completion is already recorded
	AnsweredToday bool

	Now time.Time
}

// Compose returns the message text for req. It never fails.
func (c *Composer) Compose(ctx context.Context, req Request) string {
	fallback := Fallback(req.Habit.Name, req.FollowUp)
	if c.gen == nil {
		return fallback
	}

	text, err := c.generate(ctx, BuildPrompt(req, c.opts.Model))
	if err != nil {
		c.logger.Warn("generation failed, using fallback",
			zap.String("habit_id", req.Habit.ID),
			zap.Bool("follow_up", req.FollowUp),
			zap.Error(err))
		return fallback
	}
	return text
}

// Fallback is the fixed message used when generation is unavailable.
func Fallback(habitName string, followUp bool) string {
	if followUp {
		return fmt.Sprintf("Hey! Just checking in about \"%s\". How's it going?", habitName)
	}
	return fmt.Sprintf("Time to check in on %s! Reply YES or NO.", habitName)
}

// BuildPrompt renders the check-in or follow-up prompt.
func BuildPrompt(req Request, model string) Prompt {
	h := req.Habit
	helper := req.User.HelperName()

	hour := req.Now.UTC().Hour()
	if local, err := habit.LocalTime(h, req.Now); err == nil {
		hour = local.Hour()
	}
	timeOfDay := habit.TimeOfDay(hour)

	description := h.Description
	if description == "" {
		description = "No description provided"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a supportive habit coach with a warm, friendly personality.\n", helper)
	b.WriteString("Important guidelines:\n")
	b.WriteString("- Keep responses under 160 characters for SMS\n")
	b.WriteString("- Never repeat previous messages\n")
	b.WriteString("- Adapt tone based on user's history and current streak\n")
	b.WriteString("- Be encouraging but authentic\n")
	b.WriteString("- Use varied language and expressions\n")
	b.WriteString("- Personalize based on time of day and user's patterns\n")
	b.WriteString("- Each response must be completely unique, even if context is similar\n\n")

	b.WriteString("Current context:\n")
	fmt.Fprintf(&b, "- Time of day: %s\n", timeOfDay)
	fmt.Fprintf(&b, "- Habit: %s\n", h.Name)
	fmt.Fprintf(&b, "- Description: %s\n", description)
	fmt.Fprintf(&b, "- Streak: %d days\n", req.Stats.Streak)
	fmt.Fprintf(&b, "- Completion rate: %.1f%%\n", req.Stats.CompletionRate)
	fmt.Fprintf(&b, "- Recent mood: %s\n", orUnknown(req.Stats.RecentMood))
	fmt.Fprintf(&b, "- Recent difficulty level: %s\n", intOrUnknown(req.Stats.RecentDifficulty))
	fmt.Fprintf(&b, "- Helper name: %s\n\n", helper)

	b.WriteString("Recent conversations:\n")
	for _, e := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Message)
	}
	b.WriteString("\n")

	var user string
	switch {
	case req.FollowUp && req.AnsweredToday:
		b.WriteString("They already checked in today. Create a short, warm acknowledgement of their answer; do not ask again.")
		user = fmt.Sprintf("Create a unique follow-up message for %q acknowledging today's check-in and their %d-day streak.", h.Name, req.Stats.Streak)
	case req.FollowUp:
		b.WriteString("Create a unique follow-up message that acknowledges their pattern and encourages engagement")
		user = fmt.Sprintf("Create a unique follow-up message for %q considering their %d-day streak and recent interactions.", h.Name, req.Stats.Streak)
	default:
		b.WriteString("Generate a fresh check-in message that feels personal and timely. End with clear YES/NO instructions")
		user = fmt.Sprintf("Create a fresh, personalized check-in message for %q considering their %d-day streak and the current time of day (%s).", h.Name, req.Stats.Streak, timeOfDay)
	}

	return Prompt{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: b.String()},
			{Role: "user", Content: user},
		},
		Temperature:      checkInTemperature,
		PresencePenalty:  checkInPresencePenalty,
		FrequencyPenalty: checkInFrequencyPenalty,
		MaxTokens:        checkInMaxTokens,
	}
}

// ReplyRequest describes an inbound message to answer.
type ReplyRequest struct {
	Stats        habit.Stats
	History      []habit.ConversationEntry
	Message      string
	IsCompletion bool
}

// Reply answers an inbound SMS. It never fails.
func (c *Composer) Reply(ctx context.Context, req ReplyRequest) string {
	fallback := GenericReplyFallback
	if req.IsCompletion {
		fallback = CompletionReplyFallback
	}
	if c.gen == nil {
		return fallback
	}

	text, err := c.generate(ctx, BuildReplyPrompt(req, c.opts.ReplyModel))
	if err != nil {
		c.logger.Warn("reply generation failed, using fallback", zap.Error(err))
		return fallback
	}
	return text
}

// BuildReplyPrompt renders the conversational reply prompt: stats, history, then the new message.
func BuildReplyPrompt(req ReplyRequest, model string) Prompt {
	system := fmt.Sprintf(`You are a supportive habit coach. Current stats:
- Streak: %d days
- Completion rate: %.1f%%
- Recent mood: %s
- Recent difficulty: %s`,
		req.Stats.Streak, req.Stats.CompletionRate,
		orNA(req.Stats.RecentMood), intOrNA(req.Stats.RecentDifficulty))

	messages := make([]Message, 0, len(req.History)+2)
	messages = append(messages, Message{Role: "system", Content: system})
	for _, e := range req.History {
		messages = append(messages, Message{Role: string(e.Role), Content: e.Message})
	}
	messages = append(messages, Message{Role: "user", Content: req.Message})

	return Prompt{Model: model, Messages: messages}
}

// generate runs the generator under the configured timeout; empty output is an error.
func (c *Composer) generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	text, err := c.gen.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty generation")
	}
	return text, nil
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "unknown"
	}
	return *s
}

func intOrUnknown(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprint(*v)
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func intOrNA(v *int) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprint(*v)
}
