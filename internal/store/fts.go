package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// FTSIndex implements KeywordIndex using SQLite FTS5.
// WAL mode allows concurrent multi-process readers.
type FTSIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ KeywordIndex = (*FTSIndex)(nil)

// NewFTSIndex creates an FTS5-backed keyword index.
// An empty path creates an in-memory index for testing.
func NewFTSIndex(path string) (*FTSIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_memories USING fts5(
		memory_id UNINDEXED,
		body,
		tokenize='unicode61'
	);
	CREATE TABLE IF NOT EXISTS fts_ids (
		memory_id TEXT PRIMARY KEY
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize FTS schema: %w", err)
	}

	return &FTSIndex{db: db, path: path}, nil
}

// Index adds or replaces documents. Title and content are indexed together.
func (f *FTSIndex) Index(ctx context.Context, docs []*Memory) error {
	if len(docs) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so delete first.
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_memories WHERE memory_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_memories(memory_id, body) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	idStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO fts_ids(memory_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare id statement: %w", err)
	}
	defer idStmt.Close()

	for _, doc := range docs {
		tokens := FilterStopWords(TokenizeText(doc.Title + " " + doc.Content))
		body := strings.Join(tokens, " ")

		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID, body); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if _, err := idStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to track document id %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns documents matching the query, scored by BM25.
func (f *FTSIndex) Search(ctx context.Context, queryStr string, limit int) ([]*KeywordResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, fmt.Errorf("index is closed")
	}

	tokens := FilterStopWords(TokenizeText(queryStr))
	if len(tokens) == 0 {
		return []*KeywordResult{}, nil
	}

	// OR matching: memory titles are short, so requiring every term would
	// drop most relevant rows.
	match := strings.Join(tokens, " OR ")

	// FTS5 bm25() returns negative values, lower = better.
	rows, err := f.db.QueryContext(ctx, `
		SELECT memory_id, bm25(fts_memories) AS score
		FROM fts_memories
		WHERE body MATCH ?
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		// FTS5 rejects some token sequences as syntax errors; treat as no hits.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []*KeywordResult{}, nil
		}
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var results []*KeywordResult
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &KeywordResult{MemoryID: id, Score: -score})
	}

	return results, rows.Err()
}

// Delete removes documents from the index.
func (f *FTSIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_memories WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_ids WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete id %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of indexed documents.
func (f *FTSIndex) Count() (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return 0, fmt.Errorf("index is closed")
	}

	var count int
	err := f.db.QueryRow(`SELECT COUNT(*) FROM fts_ids`).Scan(&count)
	return count, err
}

// Close closes the underlying database.
func (f *FTSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.db.Close()
}
