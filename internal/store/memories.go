package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SaveMemories upserts memory rows and indexes them in the keyword leg.
// Vector indexing is the caller's responsibility because embeddings come
// from the external embedding service.
func (s *Store) SaveMemories(ctx context.Context, memories []*Memory) error {
	if len(memories) == 0 {
		return nil
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, title, content, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	catStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO categories (name) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare category insert: %w", err)
	}
	defer catStmt.Close()

	for _, m := range memories {
		if m.Category == "" {
			m.Category = "general"
		}
		m.Category = strings.ToLower(strings.TrimSpace(m.Category))
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.Title, m.Content, m.Category, createdAt, now); err != nil {
			return fmt.Errorf("failed to save memory %s: %w", m.ID, err)
		}
		if _, err := catStmt.ExecContext(ctx, m.Category); err != nil {
			return fmt.Errorf("failed to register category %s: %w", m.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memories: %w", err)
	}

	return s.keyword.Index(ctx, memories)
}

// GetMemories fetches memory rows by id in a single query.
// Missing ids are silently skipped.
func (s *Store) GetMemories(ctx context.Context, ids []string) (map[string]*Memory, error) {
	if len(ids) == 0 {
		return map[string]*Memory{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, content, category, created_at, updated_at
		FROM memories WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch memories: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Memory, len(ids))
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &m.Category, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		result[m.ID] = &m
	}

	return result, rows.Err()
}

// DeleteMemories removes rows and their index entries.
func (s *Store) DeleteMemories(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM memories WHERE id IN (%s)`, placeholders), args...); err != nil {
		return fmt.Errorf("failed to delete memories: %w", err)
	}

	// Best-effort index cleanup: the relational rows are the source of
	// truth, orphaned index entries are filtered at read time.
	if err := s.keyword.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete keyword entries: %w", err)
	}
	return s.vector.Delete(ctx, ids)
}

// MemoryCount returns the number of stored memory rows.
func (s *Store) MemoryCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return count, nil
}
