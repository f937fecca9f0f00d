package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	// Embedded zone database so habit timezones resolve on hosts without tzdata.
	_ "time/tzdata"

	"github.com/hpungsan/nudge/internal/compose"
	"github.com/hpungsan/nudge/internal/config"
	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/logging"
	"github.com/hpungsan/nudge/internal/ops"
	"github.com/hpungsan/nudge/internal/sms"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	e := &env{stdout: os.Stdout, stderr: os.Stderr}
	defer e.close()

	app := newCLIApp(e)
	if err := app.Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if stderrors.As(err, &exitErr) {
			e.close()
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		e.close()
		os.Exit(1)
	}
}

// runtime is everything a command needs once the base directory is known.
type runtime struct {
	baseDir string
	cfg     *config.Config
	logger  *zap.Logger
	db      *db.DB
	svc     *ops.Service
}

// openRuntime loads config from baseDir, builds the logger, opens the store
// and wires the service with the configured SMS and AI drivers.
func openRuntime(ctx context.Context, baseDir string) (*runtime, error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logFile := cfg.LogFile
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(baseDir, logFile)
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    logFile,
		Console: logging.IsTerminal(),
	})
	if err != nil {
		return nil, err
	}

	database, err := db.Open(ctx, cfg, baseDir)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}

	svc := ops.NewService(ops.Deps{
		DB:       database,
		Composer: newComposer(cfg, logger),
		Gateway:  newGateway(cfg, logger),
		Config:   cfg,
		Logger:   logger,
	})

	return &runtime{baseDir: baseDir, cfg: cfg, logger: logger, db: database, svc: svc}, nil
}

func (rt *runtime) close() {
	rt.db.Close()
	_ = rt.logger.Sync()
}

// newComposer returns a Composer backed by OpenAI, or by the fallback
// templates alone when ai_driver is "none" or no key is configured.
func newComposer(cfg *config.Config, logger *zap.Logger) *compose.Composer {
	var gen compose.Generator
	if cfg.AIDriver == config.AIDriverOpenAI && cfg.OpenAIAPIKey != "" {
		gen = compose.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
	return compose.New(gen, compose.Options{
		Model:      cfg.AIModel,
		ReplyModel: cfg.ReplyModel,
		Timeout:    cfg.AITimeout(),
	}, logger)
}

func newGateway(cfg *config.Config, logger *zap.Logger) sms.Gateway {
	if cfg.SMSDriver == config.SMSDriverTwilio {
		return sms.NewTwilio(sms.TwilioOptions{
			AccountSID:    cfg.TwilioAccountSID,
			AuthToken:     cfg.TwilioAuthToken,
			From:          cfg.TwilioPhoneNumber,
			RatePerSecond: cfg.SMSRatePerSecond,
		})
	}
	return sms.NewLogGateway(logger)
}
