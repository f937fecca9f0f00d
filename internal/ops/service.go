// Package ops implements the check-in engine's operations: dispatching reminders,
// sweeping follow-ups, handling inbound replies and recording completions.
package ops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/compose"
	"github.com/hpungsan/nudge/internal/config"
	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/habit"
	"github.com/hpungsan/nudge/internal/sms"
)

const (
	// HistoryLen is how many conversation entries feed a prompt
	HistoryLen = 3

	// InsightRelevance is the score stored on every generated insight
	InsightRelevance = 100

	InsightTTL         = 7 * 24 * time.Hour
	FollowUpInsightTTL = 24 * time.Hour
)

// Fixed replies for inbound messages that cannot be correlated.
const (
	UnknownUserReply   = "User not found. Please verify your phone number first."
	NoActiveHabitReply = "No active habits found. Please start a habit in the app first."
)

// Deps are the collaborators a Service needs.
type Deps struct {
	DB       *db.DB
	Composer *compose.Composer
	Gateway  sms.Gateway
	Config   *config.Config
	Logger   *zap.Logger

	// Now defaults to time.Now
	Now func() time.Time
}

// Service runs operations against the store and the outside world.
type Service struct {
	db       *db.DB
	composer *compose.Composer
	gateway  sms.Gateway
	cfg      *config.Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a Service. Missing optional deps get defaults.
func NewService(d Deps) *Service {
	s := &Service{
		db:       d.DB,
		composer: d.Composer,
		gateway:  d.Gateway,
		cfg:      d.Config,
		logger:   d.Logger,
		now:      d.Now,
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.composer == nil {
		s.composer = compose.New(nil, compose.Options{}, s.logger)
	}
	if s.gateway == nil {
		s.gateway = sms.NewLogGateway(s.logger)
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With(zap.String("component", "ops"))
	return s
}

// loadStats computes stats from the habit's full completion history.
func (s *Service) loadStats(ctx context.Context, q db.Queryer, habitID string, now time.Time) (habit.Stats, error) {
	completions, err := db.ListCompletions(ctx, q, habitID, 0)
	if err != nil {
		return habit.Stats{}, err
	}
	return habit.ComputeStats(completions, now), nil
}
