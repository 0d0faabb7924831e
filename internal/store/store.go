package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/notesync/internal/clock"
	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/realtime"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on tasks(user_id, created_at) for owner-wide task loads
const currentSchemaVersion = 1

// Driver names accepted by WithDriver.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// Store is the relational store. It implements gateway.Gateway.
type Store struct {
	db     *sql.DB
	driver string
	broker *realtime.Broker
	clock  clock.Clock
	ids    IDGenerator

	ownsBroker bool
}

var _ gateway.Gateway = (*Store)(nil)

type options struct {
	driver string
	broker *realtime.Broker
	clock  clock.Clock
	ids    IDGenerator
}

// Option configures Open.
type Option func(*options)

// WithDriver selects the SQLite driver (DriverCGO or DriverPure).
func WithDriver(name string) Option {
	return func(o *options) { o.driver = name }
}

// WithBroker publishes changes on an existing broker. The store does not
// close a broker it was given.
func WithBroker(b *realtime.Broker) Option {
	return func(o *options) { o.broker = b }
}

// WithClock overrides the wall clock used for created_at/updated_at stamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator overrides row id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{
		driver: DriverCGO,
		clock:  clock.System{},
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	var dsn string
	switch o.driver {
	case DriverCGO:
		dsn = path
	case DriverPure:
		dsn = sqliteDSN(path)
	default:
		return nil, fmt.Errorf("unknown sqlite driver %q", o.driver)
	}

	db, err := sql.Open(o.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		driver: o.driver,
		broker: o.broker,
		clock:  o.clock,
		ids:    o.ids,
	}
	if s.broker == nil {
		s.broker = realtime.NewBroker(nil)
		s.ownsBroker = true
	}
	return s, nil
}

// Close closes the database connection and, if the store created it, the
// change broker.
func (s *Store) Close() error {
	if s.broker != nil && s.ownsBroker {
		s.broker.Close()
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Broker returns the change broker writes are published on.
func (s *Store) Broker() *realtime.Broker {
	return s.broker
}

// Subscribe streams changes matching topic. The subscription outlives ctx;
// call Close on it to stop delivery.
func (s *Store) Subscribe(ctx context.Context, topic model.Topic) (*gateway.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.Transport("subscribe", err)
	}
	sub, err := s.broker.Subscribe(topic.Pattern())
	if err != nil {
		return nil, gateway.Transport("subscribe", err)
	}
	return gateway.NewSubscription(sub.Changes(), sub.Close), nil
}

// sqliteDSN builds a file: URL for modernc.org/sqlite, which takes pragmas
// and the open mode as query parameters.
func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: path}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes tasks by owner for the single-query task load that
// runs at sign-in.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_user_created
		ON tasks(user_id, created_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
