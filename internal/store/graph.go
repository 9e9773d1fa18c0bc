package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GraphHit is a memory reached through the entity graph, scored by how
// many query terms matched entities mentioning it. Direct mentions count
// double relative to one-hop neighbors.
type GraphHit struct {
	MemoryID string
	Score    float64
}

// UpsertEntity inserts an entity if absent and returns its id.
func (s *Store) UpsertEntity(ctx context.Context, name, kind string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("entity name is empty")
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE name = ? AND kind = ?`, name, kind).Scan(&id)
	if err == nil {
		return id, nil
	}

	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, name, kind) VALUES (?, ?, ?)`, id, name, kind); err != nil {
		return "", fmt.Errorf("failed to insert entity: %w", err)
	}
	return id, nil
}

// LinkMention records that a memory mentions an entity.
func (s *Store) LinkMention(ctx context.Context, entityID, memoryID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entity_mentions (entity_id, memory_id) VALUES (?, ?)`,
		entityID, memoryID)
	if err != nil {
		return fmt.Errorf("failed to link mention: %w", err)
	}
	return nil
}

// LinkRelation records a directed edge between two entities.
func (s *Store) LinkRelation(ctx context.Context, srcID, dstID, relation string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entity_relations (src_id, dst_id, relation) VALUES (?, ?, ?)`,
		srcID, dstID, relation)
	if err != nil {
		return fmt.Errorf("failed to link relation: %w", err)
	}
	return nil
}

// SearchGraph resolves query terms to entities, expands one hop along
// relations, and returns the memories those entities mention. Results
// are ordered by score descending with memory id as a stable tiebreak.
func (s *Store) SearchGraph(ctx context.Context, terms []string, limit int) ([]GraphHit, error) {
	terms = FilterStopWords(terms)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	placeholders := make([]string, len(terms))
	args := make([]any, 0, len(terms)+1)
	for i, t := range terms {
		placeholders[i] = "?"
		args = append(args, strings.ToLower(t))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		WITH matched AS (
			SELECT id FROM entities WHERE name IN (%[1]s)
		),
		expanded AS (
			SELECT id, 2.0 AS weight FROM matched
			UNION ALL
			SELECT r.dst_id, 1.0 FROM entity_relations r JOIN matched m ON r.src_id = m.id
			UNION ALL
			SELECT r.src_id, 1.0 FROM entity_relations r JOIN matched m ON r.dst_id = m.id
		)
		SELECT em.memory_id, SUM(e.weight) AS score
		FROM expanded e
		JOIN entity_mentions em ON em.entity_id = e.id
		GROUP BY em.memory_id
		ORDER BY score DESC, em.memory_id ASC
		LIMIT ?`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph search failed: %w", err)
	}
	defer rows.Close()

	var hits []GraphHit
	for rows.Next() {
		var h GraphHit
		if err := rows.Scan(&h.MemoryID, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan graph hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
