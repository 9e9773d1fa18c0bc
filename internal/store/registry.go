package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Category describes a memory category known to the store.
type Category struct {
	Name        string
	Description string
}

const registryTTL = 5 * time.Minute

// CategoryRegistry caches the category table. Categories change rarely
// and are consulted on every formatted result, so reads are served from
// memory and refreshed at most once per TTL window.
type CategoryRegistry struct {
	store *Store

	mu        sync.RWMutex
	cats      map[string]Category
	fetchedAt time.Time
	ttl       time.Duration
}

// NewCategoryRegistry returns a registry backed by the store.
func NewCategoryRegistry(s *Store) *CategoryRegistry {
	return &CategoryRegistry{store: s, ttl: registryTTL}
}

// Lookup returns the category for name, or false when unknown. A stale
// cache is refreshed before answering; refresh failures keep serving
// the previous snapshot when one exists.
func (r *CategoryRegistry) Lookup(ctx context.Context, name string) (Category, bool, error) {
	r.mu.RLock()
	fresh := r.cats != nil && time.Since(r.fetchedAt) < r.ttl
	if fresh {
		c, ok := r.cats[name]
		r.mu.RUnlock()
		return c, ok, nil
	}
	r.mu.RUnlock()

	if err := r.refresh(ctx); err != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.cats == nil {
			return Category{}, false, err
		}
		c, ok := r.cats[name]
		return c, ok, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cats[name]
	return c, ok, nil
}

// All returns every known category.
func (r *CategoryRegistry) All(ctx context.Context) ([]Category, error) {
	r.mu.RLock()
	fresh := r.cats != nil && time.Since(r.fetchedAt) < r.ttl
	r.mu.RUnlock()

	if !fresh {
		if err := r.refresh(ctx); err != nil {
			r.mu.RLock()
			defer r.mu.RUnlock()
			if r.cats == nil {
				return nil, err
			}
			return r.snapshotLocked(), nil
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(), nil
}

// Resolve maps a free-form label to its canonical category name.
// Matching is case-insensitive; unknown labels pass through trimmed and
// lowercased so external sources cannot fork the category namespace on
// casing alone.
func (r *CategoryRegistry) Resolve(ctx context.Context, raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == "" {
		return "general"
	}
	if c, ok, err := r.Lookup(ctx, label); err == nil && ok {
		return c.Name
	}
	return label
}

// Invalidate drops the cache so the next read refetches.
func (r *CategoryRegistry) Invalidate() {
	r.mu.Lock()
	r.cats = nil
	r.mu.Unlock()
}

func (r *CategoryRegistry) refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	if r.cats != nil && time.Since(r.fetchedAt) < r.ttl {
		return nil
	}

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT name, description FROM categories ORDER BY name`)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	cats := make(map[string]Category)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Name, &c.Description); err != nil {
			return fmt.Errorf("failed to scan category: %w", err)
		}
		cats[c.Name] = c
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.cats = cats
	r.fetchedAt = time.Now()
	return nil
}

func (r *CategoryRegistry) snapshotLocked() []Category {
	out := make([]Category, 0, len(r.cats))
	for _, c := range r.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
