// Package store persists the assistant's per-device state in SQLite: the
// creator profile, conversation history, learning state and the concepts
// taught to the local engine.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var (
	// ErrStorageUnavailable wraps every failure to open, read or write the database.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound is returned when a singleton record has not been seeded.
	ErrNotFound = errors.New("record not found")
	// ErrLevelRegression is returned when an update would lower the learning level.
	ErrLevelRegression = errors.New("learning level cannot decrease")
	// ErrEmptyConcept is returned when a concept has no trigger or no response.
	ErrEmptyConcept = errors.New("concept trigger and response must not be empty")
	// ErrInvalidProfile is returned when a creator profile lacks a name or title.
	ErrInvalidProfile = errors.New("creator profile needs a name and a title")
)

const dbFileName = "jarbas.db"

// Config controls where the database lives.
type Config struct {
	DataDir string
	// Clock overrides time.Now, mostly for tests.
	Clock func() time.Time
}

// DefaultDataDir returns ~/.local/share/jarbas, or a relative fallback when
// the home directory cannot be resolved.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "jarbas")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jarbas"
	}
	return filepath.Join(home, ".local", "share", "jarbas")
}

// Store is the SQLite-backed persistent store. Writes are serialized by mu.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	now  func() time.Time
	path string
}

// Open creates the data directory, opens the database, applies pending
// migrations and seeds the singleton records.
func Open(cfg Config) (*Store, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = DefaultDataDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w: %w", ErrStorageUnavailable, err)
	}

	path := filepath.Join(dir, dbFileName)
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w: %w", ErrStorageUnavailable, err)
	}
	// one connection keeps pragmas and transactions on the same handle
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w: %w", p, ErrStorageUnavailable, err)
		}
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	s := &Store{db: db, now: now, path: path}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = [][]string{
	// 1: core tables
	{
		`CREATE TABLE IF NOT EXISTS creator (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			uid          TEXT NOT NULL,
			name         TEXT NOT NULL,
			title        TEXT NOT NULL,
			speech_style TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_history (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			uid          TEXT NOT NULL,
			user_message TEXT NOT NULL,
			reply        TEXT NOT NULL,
			context      TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON conversation_history(created_at)`,
		`CREATE TABLE IF NOT EXISTS learning_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			uid        TEXT NOT NULL,
			level      INTEGER NOT NULL CHECK (level >= 1),
			areas      TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		)`,
	},
	// 2: concepts taught to the local engine
	{
		`CREATE TABLE IF NOT EXISTS local_memory (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			uid        TEXT NOT NULL,
			phrase     TEXT NOT NULL,
			response   TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_local_memory_phrase ON local_memory(phrase)`,
	},
}

// SchemaVersion is the version reached once every migration has run.
var SchemaVersion = len(migrations)

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("store: read schema version: %w: %w", ErrStorageUnavailable, err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("store: migrate to v%d: %w: %w", i+1, ErrStorageUnavailable, err)
		}
		for _, stmt := range migrations[i] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("store: migrate to v%d: %w: %w", i+1, ErrStorageUnavailable, err)
			}
		}
		// PRAGMA does not accept bound parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migrate to v%d: %w: %w", i+1, ErrStorageUnavailable, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: migrate to v%d: %w: %w", i+1, ErrStorageUnavailable, err)
		}
	}
	return nil
}

// Version reports the schema version currently applied.
func (s *Store) Version(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, unavailable("read schema version", err)
	}
	return version, nil
}

// Initialize seeds the creator profile and learning state when they are
// absent. Running it again changes nothing.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := DefaultCreator()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO creator (id, uid, name, title, speech_style) VALUES (1, ?, ?, ?, ?)`,
		newUID(), def.Name, def.Title, def.SpeechStyle,
	); err != nil {
		return unavailable("seed creator", err)
	}

	areas, err := encodeAreas(DefaultAreas())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO learning_state (id, uid, level, areas, updated_at) VALUES (1, ?, ?, ?, ?)`,
		newUID(), DefaultLevel, areas, s.now().UnixMilli(),
	); err != nil {
		return unavailable("seed learning state", err)
	}
	return nil
}

// Stats summarizes what is stored.
type Stats struct {
	Conversations int
	Concepts      int
}

// Stats counts history records and taught concepts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_history`).Scan(&st.Conversations); err != nil {
		return Stats{}, unavailable("count history", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM local_memory`).Scan(&st.Concepts); err != nil {
		return Stats{}, unavailable("count concepts", err)
	}
	return st, nil
}

// Normalize lower-cases and trims a trigger or query. It is idempotent.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, ErrStorageUnavailable, err)
}

func newUID() string {
	return uuid.NewString()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
