package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/quarryhq/quarry/internal/errors"
)

// Confidence is the derived confidence tier of a pattern. It is a pure
// function of UseCount and is never set independently.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// ConfidenceFor maps a use count to its tier: <2 LOW, 2-4 MEDIUM, >=5 HIGH.
func ConfidenceFor(useCount int) Confidence {
	switch {
	case useCount < 2:
		return ConfidenceLow
	case useCount < 5:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// Pattern is a stored reinforcement pattern.
type Pattern struct {
	ID         string
	Name       string
	UseCount   int
	Confidence Confidence
	Evidence   []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreatePattern inserts a pattern on first observation with UseCount 0.
func (s *Store) CreatePattern(ctx context.Context, name string, evidence []string) (*Pattern, error) {
	now := time.Now().UTC()
	p := &Pattern{
		ID:         uuid.NewString(),
		Name:       name,
		UseCount:   0,
		Confidence: ConfidenceFor(0),
		Evidence:   evidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	evidenceJSON, err := json.Marshal(p.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, name, use_count, confidence, evidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.UseCount, string(p.Confidence), string(evidenceJSON), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern: %w", err)
	}

	return p, nil
}

// GetPattern fetches a pattern by id.
func (s *Store) GetPattern(ctx context.Context, id string) (*Pattern, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, use_count, confidence, evidence, created_at, updated_at
		FROM patterns WHERE id = ?`, id)
	return scanPattern(row)
}

// IncrementPattern atomically increments use_count, recomputes the
// confidence tier, and appends evidence in one statement. The single
// UPDATE ... RETURNING makes concurrent reinforcements serialize at the
// storage layer: a read-then-write here would lose updates.
func (s *Store) IncrementPattern(ctx context.Context, id string, newEvidence []string) (*Pattern, error) {
	evidenceJSON, err := json.Marshal(newEvidence)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE patterns SET
			use_count  = use_count + 1,
			confidence = CASE
				WHEN use_count + 1 < 2 THEN 'LOW'
				WHEN use_count + 1 < 5 THEN 'MEDIUM'
				ELSE 'HIGH'
			END,
			evidence   = (
				SELECT json_group_array(value) FROM (
					SELECT value FROM json_each(patterns.evidence)
					UNION ALL
					SELECT value FROM json_each(?)
				)
			),
			updated_at = ?
		WHERE id = ?
		RETURNING id, name, use_count, confidence, evidence, created_at, updated_at`,
		string(evidenceJSON), time.Now().UTC(), id)

	p, err := scanPattern(row)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// scanPattern reads one pattern row, translating sql.ErrNoRows and busy
// errors into the structured taxonomy.
func scanPattern(row *sql.Row) (*Pattern, error) {
	var p Pattern
	var confidence, evidenceJSON string
	err := row.Scan(&p.ID, &p.Name, &p.UseCount, &confidence, &evidenceJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, qerrors.New(qerrors.ErrCodePatternNotFound, "pattern does not exist", nil)
	}
	if err != nil {
		if isBusyErr(err) {
			return nil, qerrors.Wrap(qerrors.ErrCodeReinforceConflict, err)
		}
		return nil, fmt.Errorf("failed to scan pattern: %w", err)
	}

	p.Confidence = Confidence(confidence)
	if err := json.Unmarshal([]byte(evidenceJSON), &p.Evidence); err != nil {
		return nil, fmt.Errorf("failed to decode evidence: %w", err)
	}
	return &p, nil
}

// isBusyErr detects sqlite lock contention.
func isBusyErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
