package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jmoiron/sqlx"

	// Postgres driver registered as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a record does not exist in the caller's scope.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a compare-and-swap write loses to a
	// concurrent write.
	ErrVersionConflict = errors.New("version conflict")
	// ErrRemoteLinked is returned when a write would link a remote event that
	// another lesson of the same instructor already holds.
	ErrRemoteLinked = errors.New("remote event already linked to a lesson")
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects the database backend.
type Config struct {
	Driver Driver `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Store holds the database handle and provides access to repositories.
type Store struct {
	db      *sqlx.DB
	dialect string
	now     func() time.Time
}

// Open connects to the configured database, applies pragmas for SQLite and
// runs pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.DSN)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenSQLite opens the SQLite database at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers anyway; a single connection also keeps
	// in-memory databases alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	s := FromDB(db, dialect.SQLite)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres opens a PostgreSQL database through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{db: db, dialect: dialect.Postgres, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// FromDB wraps an existing connection. No migrations are run.
func FromDB(db *sql.DB, dialectName string) *Store {
	driver := "sqlite"
	if dialectName == dialect.Postgres {
		driver = "pgx"
	}
	return &Store{
		db:      sqlx.NewDb(db, driver),
		dialect: dialectName,
		now:     time.Now,
	}
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() string {
	return s.dialect
}

// SetClock overrides the clock used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lessons returns the lesson repository scoped to one instructor.
func (s *Store) Lessons(instructorID string) LessonRepo {
	return &lessonRepo{store: s, instructorID: instructorID}
}

// Attempts returns the provider call log.
func (s *Store) Attempts() AttemptRepo {
	return &attemptRepo{store: s}
}

// Conflicts returns the conflict log scoped to one instructor.
func (s *Store) Conflicts(instructorID string) ConflictRepo {
	return &conflictRepo{store: s, instructorID: instructorID}
}

// Tokens returns the provider token repository.
func (s *Store) Tokens() TokenRepo {
	return &tokenRepo{store: s}
}

// applyPragmas configures SQLite for single-user performance.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. LESSONSYNC_DB environment variable
// 2. $XDG_DATA_HOME/lessonsync/lessonsync.db
// 3. ~/.local/share/lessonsync/lessonsync.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("LESSONSYNC_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "lessonsync", "lessonsync.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
