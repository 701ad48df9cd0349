// ABOUTME: Follow-up question persistence for the SQLite store
// ABOUTME: Follow-ups are kept in an explicit display order

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const followUpColumns = `id, text, category, template_id, position, is_active, created_at, updated_at`

// CreateFollowUp inserts a follow-up at the end of the display order.
// The Position field is assigned by the store.
func (s *SQLiteStore) CreateFollowUp(ctx context.Context, f *FollowUp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var maxPos sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM followups`).Scan(&maxPos); err != nil {
			return fmt.Errorf("querying follow-up position: %w", err)
		}
		f.Position = int(maxPos.Int64) + 1

		_, err := tx.ExecContext(ctx,
			`INSERT INTO followups (`+followUpColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Text, f.Category, nullString(f.TemplateID), f.Position, f.IsActive,
			formatTime(f.CreatedAt), formatTime(f.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting follow-up: %w", err)
		}
		return nil
	})
}

// GetFollowUp retrieves a follow-up by ID.
func (s *SQLiteStore) GetFollowUp(ctx context.Context, id string) (*FollowUp, error) {
	f, err := scanFollowUp(s.db.QueryRowContext(ctx, `SELECT `+followUpColumns+` FROM followups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying follow-up: %w", err)
	}
	return f, nil
}

// UpdateFollowUp updates text, scope and active flag. Position is only
// changed through ReorderFollowUps.
func (s *SQLiteStore) UpdateFollowUp(ctx context.Context, f *FollowUp) error {
	query := `
		UPDATE followups
		SET text = ?, category = ?, template_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		f.Text, f.Category, nullString(f.TemplateID), f.IsActive, formatTime(f.UpdatedAt), f.ID,
	)
	if err != nil {
		return fmt.Errorf("updating follow-up: %w", err)
	}
	return checkAffected(result)
}

// DeleteFollowUp removes a follow-up.
func (s *SQLiteStore) DeleteFollowUp(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM followups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting follow-up: %w", err)
	}
	return checkAffected(result)
}

// ListFollowUps returns follow-ups in display order.
func (s *SQLiteStore) ListFollowUps(ctx context.Context, f FollowUpFilter) ([]*FollowUp, error) {
	query := `
		SELECT ` + followUpColumns + `
		FROM followups
		WHERE (? IS NULL OR template_id = ?)
		  AND (? IS NULL OR category = ?)
		  AND (? = 0 OR is_active = 1)
		ORDER BY position ASC, created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query,
		f.TemplateID, f.TemplateID,
		f.Category, f.Category,
		f.ActiveOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("querying follow-ups: %w", err)
	}
	defer rows.Close()

	followUps := []*FollowUp{}
	for rows.Next() {
		fu, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning follow-up row: %w", err)
		}
		followUps = append(followUps, fu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating follow-up rows: %w", err)
	}
	return followUps, nil
}

// ReorderFollowUps assigns positions 1..n to ids in the given order.
// Follow-ups not listed keep their positions. Returns ErrNotFound if any ID
// is unknown, leaving the order unchanged.
func (s *SQLiteStore) ReorderFollowUps(ctx context.Context, ids []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i, id := range ids {
			result, err := tx.ExecContext(ctx, `UPDATE followups SET position = ? WHERE id = ?`, i+1, id)
			if err != nil {
				return fmt.Errorf("updating follow-up position: %w", err)
			}
			if err := checkAffected(result); err != nil {
				return fmt.Errorf("follow-up %s: %w", id, err)
			}
		}
		return nil
	})
}

func scanFollowUp(row rowScanner) (*FollowUp, error) {
	var f FollowUp
	var templateID sql.NullString
	var createdAtStr, updatedAtStr string

	if err := row.Scan(
		&f.ID, &f.Text, &f.Category, &templateID, &f.Position, &f.IsActive, &createdAtStr, &updatedAtStr,
	); err != nil {
		return nil, err
	}
	f.TemplateID = templateID.String

	var err error
	if f.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return nil, err
	}
	return &f, nil
}
