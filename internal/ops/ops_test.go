package ops

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/compose"
	"github.com/hpungsan/nudge/internal/config"
	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/habit"
)

// wednesdayDue is 09:00 America/Los_Angeles on Wednesday 2024-01-03.
var wednesdayDue = time.Date(2024, 1, 3, 17, 0, 0, 0, time.UTC)

type sentMessage struct {
	To   string
	Body string
}

// fakeGateway records messages instead of sending them.
type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (g *fakeGateway) Send(_ context.Context, to, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.sent = append(g.sent, sentMessage{To: to, Body: body})
	return fmt.Sprintf("SMtest%03d", len(g.sent)), nil
}

func (g *fakeGateway) messages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

// fakeGenerator returns canned text and records prompts.
type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []compose.Prompt
}

func (g *fakeGenerator) Generate(_ context.Context, p compose.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	return g.text, g.err
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	svc     *Service
	db      *db.DB
	gateway *fakeGateway
	clock   *clock
	cfg     *config.Config
}

type fixtureOption func(*config.Config, *Deps)

func withGenerator(gen compose.Generator) fixtureOption {
	return func(cfg *config.Config, d *Deps) {
		d.Composer = compose.New(gen, compose.Options{Model: cfg.AIModel, ReplyModel: cfg.ReplyModel}, nil)
	}
}

func withConfig(fn func(*config.Config)) fixtureOption {
	return func(cfg *config.Config, _ *Deps) { fn(cfg) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	f := &fixture{
		db:      database,
		gateway: &fakeGateway{},
		clock:   &clock{t: wednesdayDue},
		cfg:     config.DefaultConfig(),
	}
	deps := Deps{
		DB:      database,
		Gateway: f.gateway,
		Config:  f.cfg,
		Logger:  zap.NewNop(),
		Now:     f.clock.Now,
	}
	for _, opt := range opts {
		opt(f.cfg, &deps)
	}
	f.svc = NewService(deps)
	return f
}

func (f *fixture) addUser(t *testing.T, phone string) *habit.User {
	t.Helper()
	u, err := f.svc.AddUser(context.Background(), AddUserInput{
		Username:           "ana",
		Phone:              phone,
		PhoneVerified:      true,
		SubscriptionStatus: "active",
	})
	require.NoError(t, err)
	return u
}

// addWeeklyHabit creates a running habit due Wednesdays 09:00 in Los Angeles.
func (f *fixture) addWeeklyHabit(t *testing.T, userID, name string) *habit.Habit {
	t.Helper()
	h, err := f.svc.AddHabit(context.Background(), AddHabitInput{
		UserID:       userID,
		Name:         name,
		Cadence:      "weekly",
		SelectedDays: []int{3},
		Timezone:     "America/Los_Angeles",
		ReminderTime: "09:00",
		Start:        true,
	})
	require.NoError(t, err)
	return h
}

func (f *fixture) addDailyHabit(t *testing.T, userID, name, reminderTime string) *habit.Habit {
	t.Helper()
	h, err := f.svc.AddHabit(context.Background(), AddHabitInput{
		UserID:       userID,
		Name:         name,
		Cadence:      "daily",
		ReminderTime: reminderTime,
		Start:        true,
	})
	require.NoError(t, err)
	return h
}

func (f *fixture) user(t *testing.T, id string) *habit.User {
	t.Helper()
	u, err := db.GetUser(context.Background(), f.db, id)
	require.NoError(t, err)
	return u
}

func (f *fixture) reminders(t *testing.T, habitID string) []habit.Reminder {
	t.Helper()
	rs, err := db.ListReminders(context.Background(), f.db, habitID, 100)
	require.NoError(t, err)
	return rs
}

func (f *fixture) entries(t *testing.T, habitID string) []habit.ConversationEntry {
	t.Helper()
	es, err := db.RecentEntries(context.Background(), f.db, habitID, 100)
	require.NoError(t, err)
	return es
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
