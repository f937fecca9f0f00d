package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Driver names accepted by the store, composer and SMS settings.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	AIDriverOpenAI = "openai"
	AIDriverNone   = "none"

	SMSDriverTwilio = "twilio"
	SMSDriverLog    = "log"
)

// Environment variables read on top of config.json.
const (
	EnvHome              = "NUDGE_HOME"
	EnvDBDSN             = "NUDGE_DB_DSN"
	EnvLogLevel          = "NUDGE_LOG_LEVEL"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvOpenAIBaseURL     = "OPENAI_BASE_URL"
	EnvTwilioAccountSID  = "TWILIO_ACCOUNT_SID"
	EnvTwilioAuthToken   = "TWILIO_AUTH_TOKEN"
	EnvTwilioPhoneNumber = "TWILIO_PHONE_NUMBER"
)

// Config holds application configuration.
type Config struct {
	// DBDriver selects the store: "sqlite" (default) or "postgres"
	DBDriver string `json:"db_driver,omitempty"`

	// DBDSN is the Postgres connection string. Ignored for sqlite, which lives in the base dir.
	DBDSN string `json:"db_dsn,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// PublicURL is the externally visible base URL, used to verify webhook signatures
	PublicURL string `json:"public_url,omitempty"`

	// ValidateWebhookSignature rejects inbound SMS without a valid X-Twilio-Signature
	ValidateWebhookSignature bool `json:"validate_webhook_signature,omitempty"`

	TickIntervalSeconds  int `json:"tick_interval_seconds,omitempty"`
	FollowUpDelayMinutes int `json:"follow_up_delay_minutes,omitempty"`

	// DispatchConcurrency bounds the reminders sent in parallel within one tick
	DispatchConcurrency int `json:"dispatch_concurrency,omitempty"`

	// SuppressAnsweredFollowUps skips the follow-up when today's completion is already recorded
	SuppressAnsweredFollowUps bool `json:"suppress_answered_follow_ups,omitempty"`

	AIDriver         string `json:"ai_driver,omitempty"`
	AIModel          string `json:"ai_model,omitempty"`
	ReplyModel       string `json:"reply_model,omitempty"`
	AITimeoutSeconds int    `json:"ai_timeout_seconds,omitempty"`

	SMSDriver        string  `json:"sms_driver,omitempty"`
	SMSRatePerSecond float64 `json:"sms_rate_per_second,omitempty"`

	// LogLevel is a zap level name: debug, info, warn, error
	LogLevel string `json:"log_level,omitempty"`

	// LogFile enables a rotating file sink in addition to stderr
	LogFile string `json:"log_file,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// Secrets. Only ever read from the environment.
	OpenAIAPIKey      string `json:"-"`
	OpenAIBaseURL     string `json:"-"`
	TwilioAccountSID  string `json:"-"`
	TwilioAuthToken   string `json:"-"`
	TwilioPhoneNumber string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DBDriver:             DriverSQLite,
		Bind:                 "127.0.0.1",
		Port:                 8080,
		TickIntervalSeconds:  60,
		FollowUpDelayMinutes: 15,
		DispatchConcurrency:  4,
		AIDriver:             AIDriverOpenAI,
		AIModel:              "gpt-4o",
		ReplyModel:           "gpt-3.5-turbo",
		AITimeoutSeconds:     10,
		SMSDriver:            SMSDriverTwilio,
		SMSRatePerSecond:     1,
		LogLevel:             "info",
	}
}

// BaseDir resolves the data directory: flag value, then NUDGE_HOME, then ~/.nudge.
func BaseDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvHome); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".nudge"), nil
}

// Load loads configuration from baseDir/config.json, then applies the environment.
// A baseDir/.env file, if present, is loaded into the process environment first;
// variables already set take precedence over it.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.nudge.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := loadDotenv(filepath.Join(baseDir, ".env")); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadDotenv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBDSN); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	cfg.OpenAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	cfg.OpenAIBaseURL = os.Getenv(EnvOpenAIBaseURL)
	cfg.TwilioAccountSID = os.Getenv(EnvTwilioAccountSID)
	cfg.TwilioAuthToken = os.Getenv(EnvTwilioAuthToken)
	cfg.TwilioPhoneNumber = os.Getenv(EnvTwilioPhoneNumber)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		DBDriver:             pick(overlay.DBDriver, base.DBDriver),
		DBDSN:                pick(overlay.DBDSN, base.DBDSN),
		DBMaxOpenConns:       pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:       pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		Bind:                 pick(overlay.Bind, base.Bind),
		Port:                 pick(overlay.Port, base.Port),
		PublicURL:            pick(overlay.PublicURL, base.PublicURL),
		TickIntervalSeconds:  pick(overlay.TickIntervalSeconds, base.TickIntervalSeconds),
		FollowUpDelayMinutes: pick(overlay.FollowUpDelayMinutes, base.FollowUpDelayMinutes),
		DispatchConcurrency:  pick(overlay.DispatchConcurrency, base.DispatchConcurrency),
		AIDriver:             pick(overlay.AIDriver, base.AIDriver),
		AIModel:              pick(overlay.AIModel, base.AIModel),
		ReplyModel:           pick(overlay.ReplyModel, base.ReplyModel),
		AITimeoutSeconds:     pick(overlay.AITimeoutSeconds, base.AITimeoutSeconds),
		SMSDriver:            pick(overlay.SMSDriver, base.SMSDriver),
		SMSRatePerSecond:     pick(overlay.SMSRatePerSecond, base.SMSRatePerSecond),
		LogLevel:             pick(overlay.LogLevel, base.LogLevel),
		LogFile:              pick(overlay.LogFile, base.LogFile),
		OpenAIAPIKey:         pick(overlay.OpenAIAPIKey, base.OpenAIAPIKey),
		OpenAIBaseURL:        pick(overlay.OpenAIBaseURL, base.OpenAIBaseURL),
		TwilioAccountSID:     pick(overlay.TwilioAccountSID, base.TwilioAccountSID),
		TwilioAuthToken:      pick(overlay.TwilioAuthToken, base.TwilioAuthToken),
		TwilioPhoneNumber:    pick(overlay.TwilioPhoneNumber, base.TwilioPhoneNumber),
	}

	// Booleans: overlay wins if true, else base
	result.ValidateWebhookSignature = base.ValidateWebhookSignature || overlay.ValidateWebhookSignature
	result.SuppressAnsweredFollowUps = base.SuppressAnsweredFollowUps || overlay.SuppressAnsweredFollowUps

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay if non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range slices.Concat(a, b) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DBDSN == "" {
			add("db_driver %q requires db_dsn or %s", c.DBDriver, EnvDBDSN)
		}
	default:
		add("db_driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}

	if c.Port < 1 || c.Port > 65535 {
		add("port %d out of range", c.Port)
	}
	if c.TickIntervalSeconds < 1 {
		add("tick_interval_seconds must be positive")
	}
	if c.FollowUpDelayMinutes < 1 {
		add("follow_up_delay_minutes must be positive")
	}
	if c.DispatchConcurrency < 1 {
		add("dispatch_concurrency must be positive")
	}
	if c.AITimeoutSeconds < 1 {
		add("ai_timeout_seconds must be positive")
	}
	if c.SMSRatePerSecond <= 0 {
		add("sms_rate_per_second must be positive")
	}

	switch c.AIDriver {
	case AIDriverNone:
	case AIDriverOpenAI:
		if c.OpenAIAPIKey == "" {
			add("ai_driver %q requires %s", c.AIDriver, EnvOpenAIAPIKey)
		}
	default:
		add("ai_driver must be %q or %q, got %q", AIDriverOpenAI, AIDriverNone, c.AIDriver)
	}

	switch c.SMSDriver {
	case SMSDriverLog:
	case SMSDriverTwilio:
		for env, v := range map[string]string{
			EnvTwilioAccountSID:  c.TwilioAccountSID,
			EnvTwilioAuthToken:   c.TwilioAuthToken,
			EnvTwilioPhoneNumber: c.TwilioPhoneNumber,
		} {
			if v == "" {
				add("sms_driver %q requires %s", c.SMSDriver, env)
			}
		}
	default:
		add("sms_driver must be %q or %q, got %q", SMSDriverTwilio, SMSDriverLog, c.SMSDriver)
	}

	if c.ValidateWebhookSignature {
		if c.PublicURL == "" {
			add("validate_webhook_signature requires public_url")
		}
		if c.TwilioAuthToken == "" {
			add("validate_webhook_signature requires %s", EnvTwilioAuthToken)
		}
	}

	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.Bind + ":" + strconv.Itoa(c.Port)
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

func (c *Config) FollowUpDelay() time.Duration {
	return time.Duration(c.FollowUpDelayMinutes) * time.Minute
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}
