package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Config configures the hybrid store.
type Config struct {
	// DataDir is where sqlite databases and the vector snapshot live.
	// Empty means fully in-memory (tests).
	DataDir string

	// KeywordBackend selects the keyword index: "sqlite" or "bleve".
	KeywordBackend string

	// VectorDimensions is the embedding dimension for the vector index.
	VectorDimensions int
}

// Store is the relational hybrid store.
type Store struct {
	db      *sql.DB
	keyword KeywordIndex
	vector  VectorIndex
	lock    *flock.Flock
	dataDir string
}

// Open opens (or creates) the store under cfg.DataDir. A cross-process file
// lock on the data dir prevents two processes from writing the same indexes.
func Open(cfg Config) (*Store, error) {
	s := &Store{dataDir: cfg.DataDir}

	dsn := ":memory:"
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}

		s.lock = flock.New(filepath.Join(cfg.DataDir, ".store.lock"))
		locked, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire store lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("store at %s is locked by another process", cfg.DataDir)
		}

		path := filepath.Join(cfg.DataDir, "quarry.db")
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		s.unlock()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer prevents lock contention inside the process; WAL keeps
	// readers unblocked in other processes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			s.unlock()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	var integrity string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&integrity); err != nil || integrity != "ok" {
		_ = db.Close()
		s.unlock()
		if err == nil {
			err = fmt.Errorf("quick_check reported %q", integrity)
		}
		return nil, fmt.Errorf("database failed integrity check: %w", err)
	}

	s.db = db
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		s.unlock()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	keyword, err := newKeywordIndex(cfg)
	if err != nil {
		_ = db.Close()
		s.unlock()
		return nil, err
	}
	s.keyword = keyword

	vecPath := ""
	if cfg.DataDir != "" {
		vecPath = filepath.Join(cfg.DataDir, "vectors.hnsw")
	}
	dims := cfg.VectorDimensions
	if dims <= 0 {
		dims = 768
	}
	vector, err := NewHNSWIndex(VectorConfig{Path: vecPath, Dimensions: dims})
	if err != nil {
		_ = keyword.Close()
		_ = db.Close()
		s.unlock()
		return nil, err
	}
	s.vector = vector

	return s, nil
}

// initSchema creates all relational tables.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT 'general',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		name        TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS patterns (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		use_count  INTEGER NOT NULL DEFAULT 0 CHECK (use_count >= 0),
		confidence TEXT NOT NULL DEFAULT 'LOW',
		evidence   TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entities (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'concept'
	);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

	CREATE TABLE IF NOT EXISTS entity_mentions (
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		PRIMARY KEY (entity_id, memory_id)
	);

	CREATE TABLE IF NOT EXISTS entity_relations (
		src_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		dst_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		relation TEXT NOT NULL,
		PRIMARY KEY (src_id, dst_id, relation)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	INSERT OR IGNORE INTO categories (name, description) VALUES
		('general',  'Uncategorized memories'),
		('pattern',  'Recurring solution patterns'),
		('decision', 'Recorded decisions and rationale'),
		('client',   'Client and project context');
	`
	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying database for sibling components (pattern store,
// registry) that share the same connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Keyword returns the keyword index leg.
func (s *Store) Keyword() KeywordIndex {
	return s.keyword
}

// Vector returns the vector index leg.
func (s *Store) Vector() VectorIndex {
	return s.vector
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close persists indexes and releases every resource.
func (s *Store) Close() error {
	var firstErr error
	if s.vector != nil {
		if err := s.vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.keyword != nil {
		if err := s.keyword.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.unlock()
	return firstErr
}

func (s *Store) unlock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// newKeywordIndex selects the keyword backend. The set is closed: config
// validation guarantees one of the two names below.
func newKeywordIndex(cfg Config) (KeywordIndex, error) {
	switch cfg.KeywordBackend {
	case "bleve":
		path := ""
		if cfg.DataDir != "" {
			path = filepath.Join(cfg.DataDir, "keyword.bleve")
		}
		return NewBleveIndex(path)
	case "sqlite", "":
		path := ""
		if cfg.DataDir != "" {
			path = filepath.Join(cfg.DataDir, "keyword.db")
		}
		return NewFTSIndex(path)
	default:
		return nil, fmt.Errorf("unknown keyword backend %q", cfg.KeywordBackend)
	}
}
