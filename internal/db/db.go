package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hpungsan/nudge/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DB wraps *sql.DB and rewrites `?` placeholders for the active driver.
// All queries in this package are written with `?`.
type DB struct {
	*sql.DB
	driver string
}

// Queryer is satisfied by *DB and *Tx so queries can run inside or outside a transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Driver returns the driver name ("sqlite" or "postgres").
func (d *DB) Driver() string { return d.driver }

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, rebind(d.driver, query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, rebind(d.driver, query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, rebind(d.driver, query), args...)
}

// Tx is a transaction with the same placeholder handling as DB.
type Tx struct {
	*sql.Tx
	driver string
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.Tx.ExecContext(ctx, rebind(t.driver, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.Tx.QueryContext(ctx, rebind(t.driver, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.Tx.QueryRowContext(ctx, rebind(t.driver, query), args...)
}

// InTx runs fn in a transaction, committing if it returns nil.
func (d *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{Tx: sqlTx, driver: d.driver}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebind converts `?` placeholders to `$1..$n` for postgres.
// Question marks inside single-quoted literals are left alone.
func rebind(driver, query string) string {
	if driver != config.DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Open connects to the store selected by cfg. SQLite lives at baseDir/nudge.db;
// Postgres uses cfg.DBDSN.
func Open(ctx context.Context, cfg *config.Config, baseDir string) (*DB, error) {
	var (
		d   *DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		d, err = InitPostgres(ctx, cfg.DBDSN)
	default:
		d, err = Init(baseDir)
	}
	if err != nil {
		return nil, err
	}
	ConfigurePool(d, cfg)
	return d, nil
}

// Init initializes the SQLite database at baseDir/nudge.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.nudge.
func Init(baseDir string) (*DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "nudge.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	d := &DB{DB: sqlDB, driver: config.DriverSQLite}

	// Verify WAL mode is active
	if err := verifyWALMode(d); err != nil {
		d.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(context.Background(), d); err != nil {
		d.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return d, nil
}

// InitPostgres connects to Postgres and applies migrations.
func InitPostgres(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	d := &DB{DB: sqlDB, driver: config.DriverPostgres}
	if err := migrate(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(d *DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		d.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		d.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// schemaV1 is portable between SQLite and Postgres.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS users (
  id                  TEXT PRIMARY KEY,
  username            TEXT NOT NULL,
  phone_number        TEXT NOT NULL UNIQUE,
  phone_verified      BOOLEAN NOT NULL DEFAULT FALSE,
  subscription_status TEXT NOT NULL DEFAULT '',
  ai_helper_name      TEXT NOT NULL DEFAULT '',
  open_reminder_id    TEXT,
  created_at          BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS habits (
  id            TEXT PRIMARY KEY,
  user_id       TEXT NOT NULL REFERENCES users(id),
  name          TEXT NOT NULL,
  description   TEXT NOT NULL DEFAULT '',
  cadence       TEXT NOT NULL,
  selected_days TEXT NOT NULL DEFAULT '[]',
  timezone      TEXT NOT NULL DEFAULT 'UTC',
  reminder_time TEXT NOT NULL DEFAULT '',
  running       BOOLEAN NOT NULL DEFAULT FALSE,
  active        BOOLEAN NOT NULL DEFAULT TRUE,
  created_at    BIGINT NOT NULL,
  started_at    BIGINT,
  last_checkin  BIGINT
);

CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_habits_running ON habits(running, active);

CREATE TABLE IF NOT EXISTS reminders (
  id                TEXT PRIMARY KEY,
  habit_id          TEXT NOT NULL REFERENCES habits(id),
  user_id           TEXT NOT NULL REFERENCES users(id),
  phone_number      TEXT NOT NULL,
  dispatched_at     BIGINT NOT NULL,
  status            TEXT NOT NULL,
  response          TEXT NOT NULL DEFAULT 'none',
  follow_up_due_at  BIGINT NOT NULL,
  follow_up_sent_at BIGINT
);

CREATE INDEX IF NOT EXISTS idx_reminders_habit_status ON reminders(habit_id, status);
CREATE INDEX IF NOT EXISTS idx_reminders_follow_up ON reminders(status, follow_up_due_at);
CREATE INDEX IF NOT EXISTS idx_reminders_phone ON reminders(phone_number, dispatched_at);

CREATE TABLE IF NOT EXISTS completions (
  id           TEXT PRIMARY KEY,
  habit_id     TEXT NOT NULL REFERENCES habits(id),
  user_id      TEXT NOT NULL REFERENCES users(id),
  completed    BOOLEAN NOT NULL,
  day          TEXT NOT NULL,
  completed_at BIGINT NOT NULL,
  mood         TEXT,
  difficulty   INTEGER,
  note         TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_completions_habit_day ON completions(habit_id, day);

CREATE TABLE IF NOT EXISTS conversation_entries (
  id         TEXT PRIMARY KEY,
  habit_id   TEXT NOT NULL REFERENCES habits(id),
  user_id    TEXT NOT NULL REFERENCES users(id),
  role       TEXT NOT NULL,
  message    TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  context    TEXT
);

CREATE INDEX IF NOT EXISTS idx_conversation_habit ON conversation_entries(habit_id, created_at);

CREATE TABLE IF NOT EXISTS insights (
  id              TEXT PRIMARY KEY,
  habit_id        TEXT NOT NULL REFERENCES habits(id),
  user_id         TEXT NOT NULL REFERENCES users(id),
  type            TEXT NOT NULL,
  insight         TEXT NOT NULL,
  relevance_score INTEGER NOT NULL,
  valid_until     BIGINT NOT NULL,
  created_at      BIGINT NOT NULL,
  metadata        TEXT
);

CREATE INDEX IF NOT EXISTS idx_insights_habit ON insights(habit_id, valid_until);
`

// migrate applies schema migrations based on the stored schema version.
func migrate(ctx context.Context, d *DB) error {
	version, err := GetUserVersion(ctx, d)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		if err := execStatements(ctx, d, schemaV1); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(ctx, d, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// execStatements runs a multi-statement script one statement at a time;
// lib/pq does not accept several statements with a single Exec.
func execStatements(ctx context.Context, d *DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(d *DB) error {
	var journalMode string
	if err := d.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version: the user_version pragma on SQLite,
// the schema_version table on Postgres.
func GetUserVersion(ctx context.Context, d *DB) (int, error) {
	var version int
	if d.driver == config.DriverPostgres {
		if _, err := d.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return 0, fmt.Errorf("failed to create schema_version: %w", err)
		}
		err := d.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
		if err != nil {
			return 0, fmt.Errorf("failed to get schema version: %w", err)
		}
		return version, nil
	}
	if err := d.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion records the schema version.
func SetUserVersion(ctx context.Context, d *DB, version int) error {
	var err error
	if d.driver == config.DriverPostgres {
		_, err = d.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version)
	} else {
		_, err = d.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", version))
	}
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
