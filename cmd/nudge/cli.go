package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/nudge/internal/config"
	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/mcp"
	"github.com/hpungsan/nudge/internal/ops"
	"github.com/hpungsan/nudge/internal/scheduler"
	"github.com/hpungsan/nudge/internal/web"
)

// env carries output streams and the lazily opened runtime.
// Help and version never touch the database.
type env struct {
	stdout io.Writer
	stderr io.Writer
	rt     *runtime
}

func (e *env) runtime(c *cli.Context) (*runtime, error) {
	if e.rt != nil {
		return e.rt, nil
	}
	baseDir, err := config.BaseDir(c.String("home"))
	if err != nil {
		return nil, err
	}
	rt, err := openRuntime(c.Context, baseDir)
	if err != nil {
		return nil, err
	}
	e.rt = rt
	return rt, nil
}

func (e *env) close() {
	if e.rt != nil {
		e.rt.close()
		e.rt = nil
	}
}

// action wraps a command body that needs the runtime. Errors are written
// as JSON to stderr.
func (e *env) action(fn func(c *cli.Context, rt *runtime) (any, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := e.runtime(c)
		if err != nil {
			return e.outputError(err)
		}
		out, err := fn(c, rt)
		if err != nil {
			return e.outputError(err)
		}
		if out == nil {
			return nil
		}
		return e.outputJSON(out)
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:      "nudge",
		Usage:     "SMS habit reminders and check-ins",
		Version:   Version,
		Writer:    e.stdout,
		ErrWriter: e.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "home", Usage: "Data directory (default $NUDGE_HOME or ~/.nudge)"},
		},
		Commands: []*cli.Command{
			serveCmd(e),
			tickCmd(e),
			inboundCmd(e),
			statsCmd(e),
			insightsCmd(e),
			conversationCmd(e),
			reportCmd(e),
			recordCmd(e),
			remindCmd(e),
			userCmd(e),
			habitCmd(e),
			mcpCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the scheduler and the HTTP server until interrupted.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the reminder scheduler and the webhook/HTTP server",
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			if err := rt.cfg.Validate(); err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid config: %v", err))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := web.NewServer(rt.svc, rt.db, rt.cfg, Version, rt.logger)
			if err != nil {
				return nil, err
			}
			sched := scheduler.New(func(ctx context.Context, now time.Time) error {
				_, err := rt.svc.Tick(ctx, now)
				return err
			}, scheduler.Options{Interval: rt.cfg.TickInterval(), Align: true}, rt.logger)

			rt.logger.Info("nudge starting",
				zap.String("version", Version),
				zap.String("addr", rt.cfg.Addr()),
				zap.String("db_driver", rt.db.Driver()),
				zap.String("sms_driver", rt.cfg.SMSDriver),
				zap.String("ai_driver", rt.cfg.AIDriver))

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(ctx) })
			g.Go(func() error { return web.Run(ctx, srv, rt.logger) })
			if err := g.Wait(); err != nil {
				return nil, err
			}
			rt.logger.Info("nudge stopped")
			return nil, nil
		}),
	}
}

// tickCmd runs a single scheduler pass.
func tickCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "Run one scheduling pass (due reminders and follow-ups)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "at", Usage: "Evaluate as of this RFC 3339 instant (default now)"},
		},
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			now := time.Now()
			if at := c.String("at"); at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid --at %q: expected RFC 3339", at))
				}
				now = t
			}
			return rt.svc.Tick(c.Context, now)
		}),
	}
}

// inboundCmd simulates an inbound SMS.
func inboundCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "inbound",
		Usage: "Handle an inbound SMS as if it arrived on the webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Required: true, Usage: "Sender phone number"},
			&cli.StringFlag{Name: "body", Required: true, Usage: "Message text"},
		},
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			reply := rt.svc.HandleInbound(c.Context, c.String("from"), c.String("body"))
			return map[string]string{"reply": reply}, nil
		}),
	}
}

func statsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show a habit's streak and completion rate",
		ArgsUsage: "<habit-id>",
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			id, err := habitArg(c)
			if err != nil {
				return nil, err
			}
			return rt.svc.Stats(c.Context, ops.StatsInput{HabitID: id})
		}),
	}
}

func insightsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "insights",
		Usage:     "List a habit's insights",
		ArgsUsage: "<habit-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Include expired insights"},
		},
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			id, err := habitArg(c)
			if err != nil {
				return nil, err
			}
			return rt.svc.Insights(c.Context, ops.InsightsInput{HabitID: id, IncludeExpired: c.Bool("all")})
		}),
	}
}

func conversationCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "conversation",
		Usage:     "Show the recent SMS exchange for a habit",
		ArgsUsage: "<habit-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultConversationLimit, Usage: "Entries to show"},
		},
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			id, err := habitArg(c)
			if err != nil {
				return nil, err
			}
			return rt.svc.Conversation(c.Context, ops.ConversationInput{HabitID: id, Limit: c.Int("limit")})
		}),
	}
}

func reportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render a habit's Markdown report",
		ArgsUsage: "<habit-id>",
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			id, err := habitArg(c)
			if err != nil {
				return nil, err
			}
			return rt.svc.Report(c.Context, ops.StatsInput{HabitID: id})
		}),
	}
}

// recordCmd edits one calendar day.
func recordCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "record",
		Usage:     "Record whether a habit was done on a day",
		ArgsUsage: "<habit-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "completed", Required: true, Usage: "Whether the habit was done (--completed=false for a miss)"},
			&cli.StringFlag{Name: "day", Aliases: []string{"d"}, Usage: "YYYY-MM-DD (UTC); defaults to today"},
			&cli.StringFlag{Name: "mood", Usage: "positive|neutral|negative"},
			&cli.IntFlag{Name: "difficulty", Usage: "1-5"},
			&cli.StringFlag{Name: "note", Usage: "Free-form note"},
		},
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			id, err := habitArg(c)
			if err != nil {
				return nil, err
			}
			input := ops.RecordInput{
				HabitID:   id,
				Day:       c.String("day"),
				Completed: c.Bool("completed"),
			}
			if c.IsSet("mood") {
				mood := c.String("mood")
				input.Mood = &mood
			}
			if c.IsSet("difficulty") {
				d := c.Int("difficulty")
				input.Difficulty = &d
			}
			if c.IsSet("note") {
				note := c.String("note")
				input.Note = &note
			}
			return rt.svc.RecordCompletion(c.Context, input)
		}),
	}
}

func remindCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "remind",
		Usage:     "Send a check-in SMS now, ignoring the schedule",
		ArgsUsage: "<habit-id>",
		Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
			id, err := habitArg(c)
			if err != nil {
				return nil, err
			}
			return rt.svc.Remind(c.Context, ops.RemindInput{HabitID: id})
		}),
	}
}

// userCmd groups user administration.
func userCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage users",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "phone", Required: true, Usage: "E.164 phone number, e.g. +15551234567"},
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Display name (defaults to the phone)"},
					&cli.BoolFlag{Name: "verified", Value: true, Usage: "Mark the phone number verified"},
					&cli.StringFlag{Name: "subscription", Value: "active", Usage: "Subscription status"},
					&cli.StringFlag{Name: "helper", Usage: "Name the assistant signs with"},
				},
				Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
					return rt.svc.AddUser(c.Context, ops.AddUserInput{
						Username:           c.String("username"),
						Phone:              c.String("phone"),
						PhoneVerified:      c.Bool("verified"),
						SubscriptionStatus: c.String("subscription"),
						HelperName:         c.String("helper"),
					})
				}),
			},
		},
	}
}

// habitCmd groups habit administration.
func habitCmd(e *env) *cli.Command {
	setRunning := func(running bool) cli.ActionFunc {
		return e.action(func(c *cli.Context, rt *runtime) (any, error) {
			id, err := habitArg(c)
			if err != nil {
				return nil, err
			}
			return rt.svc.SetRunning(c.Context, id, running)
		})
	}

	return &cli.Command{
		Name:  "habit",
		Usage: "Manage habits",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a habit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "Owning user ID"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Habit name"},
					&cli.StringFlag{Name: "description", Usage: "Longer description"},
					&cli.StringFlag{Name: "cadence", Value: "daily", Usage: "daily|weekly"},
					&cli.IntSliceFlag{Name: "days", Usage: "Weekdays for weekly habits, 0=Sunday (repeatable or comma-separated)"},
					&cli.StringFlag{Name: "timezone", Aliases: []string{"tz"}, Usage: "IANA zone (default UTC)"},
					&cli.StringFlag{Name: "time", Required: true, Usage: "Local reminder time, HH:MM"},
					&cli.BoolFlag{Name: "start", Usage: "Start sending reminders immediately"},
				},
				Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
					return rt.svc.AddHabit(c.Context, ops.AddHabitInput{
						UserID:       c.String("user"),
						Name:         c.String("name"),
						Description:  c.String("description"),
						Cadence:      c.String("cadence"),
						SelectedDays: c.IntSlice("days"),
						Timezone:     c.String("timezone"),
						ReminderTime: c.String("time"),
						Start:        c.Bool("start"),
					})
				}),
			},
			{
				Name:      "start",
				Usage:     "Start reminders for a habit",
				ArgsUsage: "<habit-id>",
				Action:    setRunning(true),
			},
			{
				Name:      "stop",
				Usage:     "Stop reminders for a habit",
				ArgsUsage: "<habit-id>",
				Action:    setRunning(false),
			},
			{
				Name:  "list",
				Usage: "List habits",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "Only this user's habits"},
				},
				Action: e.action(func(c *cli.Context, rt *runtime) (any, error) {
					return rt.svc.ListHabits(c.Context, c.String("user"))
				}),
			},
		},
	}
}

// mcpCmd serves the MCP tools over stdio.
func mcpCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve habit tools over MCP (stdio)",
		Action: e.action(func(_ *cli.Context, rt *runtime) (any, error) {
			if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
				rt.logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
			}
			return nil, mcp.Run(rt.svc, rt.cfg, Version)
		}),
	}
}

// Helper functions

// habitArg returns the required positional habit ID.
func habitArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 || c.Args().First() == "" {
		return "", errors.NewInvalidRequest("habit id is required")
	}
	return c.Args().First(), nil
}

// outputJSON marshals result to stdout as JSON.
func (e *env) outputJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError writes err to stderr as a JSON error object and exits 1.
// Internal details stay out of the payload.
func (e *env) outputError(err error) error {
	payload := map[string]any{
		"code":    string(errors.ErrInternal),
		"message": err.Error(),
	}
	if nErr, ok := errors.As(err); ok {
		payload["code"] = string(nErr.Code)
		payload["message"] = nErr.Message
		if nErr.Code == errors.ErrInternal {
			payload["message"] = "an internal error occurred"
		}
	}
	enc := json.NewEncoder(e.stderr)
	_ = enc.Encode(map[string]any{"error": payload})
	return cli.Exit("", 1)
}
