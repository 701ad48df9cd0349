// ABOUTME: Template and category persistence for the SQLite store
// ABOUTME: Variables are stored as a JSON column alongside the template text

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/assistant-console/internal/prompt"
)

const templateColumns = `id, name, description, category, content, variables_json, is_default, is_active, created_by, created_at, updated_at`

// CreateTemplate inserts a new template.
// Returns ErrDuplicate if the name is taken.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, t *Template) error {
	varsJSON, err := marshalVariables(t.Variables)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Description,
		t.Category,
		t.Content,
		varsJSON,
		t.IsDefault,
		t.IsActive,
		t.CreatedBy,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("template %q: %w", t.Name, ErrDuplicate)
		}
		return fmt.Errorf("inserting template: %w", err)
	}

	s.logger.Debug("created template", "id", t.ID, "name", t.Name)
	return nil
}

// GetTemplate retrieves a template by ID.
// Returns ErrNotFound if the template doesn't exist.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = ?`

	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying template: %w", err)
	}
	return t, nil
}

// UpdateTemplate replaces the mutable fields of an existing template.
// Returns ErrNotFound if the template doesn't exist, ErrDuplicate if the new
// name is taken.
func (s *SQLiteStore) UpdateTemplate(ctx context.Context, t *Template) error {
	varsJSON, err := marshalVariables(t.Variables)
	if err != nil {
		return err
	}

	query := `
		UPDATE templates
		SET name = ?, description = ?, category = ?, content = ?, variables_json = ?,
		    is_default = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		t.Name,
		t.Description,
		t.Category,
		t.Content,
		varsJSON,
		t.IsDefault,
		t.IsActive,
		formatTime(t.UpdatedAt),
		t.ID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("template %q: %w", t.Name, ErrDuplicate)
		}
		return fmt.Errorf("updating template: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	s.logger.Debug("updated template", "id", t.ID)
	return nil
}

// DeleteTemplate removes a template and its follow-ups.
func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	s.logger.Debug("deleted template", "id", id)
	return nil
}

// ListTemplates returns templates ordered by category then name.
func (s *SQLiteStore) ListTemplates(ctx context.Context, f TemplateFilter) ([]*Template, error) {
	limit := normalizeLimit(f.Limit, 500, 1000)

	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE (? IS NULL OR category = ?)
		  AND (? IS NULL OR is_active = ?)
		ORDER BY category ASC, name ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, f.Category, f.Category, f.Active, f.Active, limit)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	defer rows.Close()

	templates := []*Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating template rows: %w", err)
	}

	return templates, nil
}

// SetDefaultTemplate marks a template as the default of its category and
// clears the flag on every other template in that category.
func (s *SQLiteStore) SetDefaultTemplate(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var category string
		err := tx.QueryRowContext(ctx, `SELECT category FROM templates WHERE id = ?`, id).Scan(&category)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying template category: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE templates SET is_default = (id = ?) WHERE category = ?`, id, category,
		); err != nil {
			return fmt.Errorf("updating default template: %w", err)
		}

		s.logger.Debug("set default template", "id", id, "category", category)
		return nil
	})
}

// TemplateNameExists reports whether a template already uses name.
func (s *SQLiteStore) TemplateNameExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("counting templates: %w", err)
	}
	return n > 0, nil
}

func scanTemplate(row rowScanner) (*Template, error) {
	var t Template
	var varsJSON, createdAtStr, updatedAtStr string

	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.Category,
		&t.Content,
		&varsJSON,
		&t.IsDefault,
		&t.IsActive,
		&t.CreatedBy,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(varsJSON), &t.Variables); err != nil {
		return nil, fmt.Errorf("unmarshaling variables: %w", err)
	}

	var err error
	if t.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalVariables(vars []prompt.Variable) (string, error) {
	if vars == nil {
		vars = []prompt.Variable{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("marshaling variables: %w", err)
	}
	return string(data), nil
}

// CreateCategory inserts a new category.
// Returns ErrDuplicate if the name is taken.
func (s *SQLiteStore) CreateCategory(ctx context.Context, c *Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, formatTime(c.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("category %q: %w", c.Name, ErrDuplicate)
		}
		return fmt.Errorf("inserting category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by ID.
func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (*Category, error) {
	return s.getCategory(ctx, `SELECT id, name, description, created_at FROM categories WHERE id = ?`, id)
}

// GetCategoryByName retrieves a category by its unique name.
func (s *SQLiteStore) GetCategoryByName(ctx context.Context, name string) (*Category, error) {
	return s.getCategory(ctx, `SELECT id, name, description, created_at FROM categories WHERE name = ?`, name)
}

func (s *SQLiteStore) getCategory(ctx context.Context, query string, arg string) (*Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying category: %w", err)
	}
	return c, nil
}

// UpdateCategory updates a category. Renaming a category moves its
// templates and follow-ups to the new name in the same transaction.
func (s *SQLiteStore) UpdateCategory(ctx context.Context, c *Category) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var oldName string
		err := tx.QueryRowContext(ctx, `SELECT name FROM categories WHERE id = ?`, c.ID).Scan(&oldName)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying category: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE categories SET name = ?, description = ? WHERE id = ?`, c.Name, c.Description, c.ID,
		); err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("category %q: %w", c.Name, ErrDuplicate)
			}
			return fmt.Errorf("updating category: %w", err)
		}

		if oldName != c.Name {
			if _, err := tx.ExecContext(ctx, `UPDATE templates SET category = ? WHERE category = ?`, c.Name, oldName); err != nil {
				return fmt.Errorf("renaming template category: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE followups SET category = ? WHERE category = ?`, c.Name, oldName); err != nil {
				return fmt.Errorf("renaming follow-up category: %w", err)
			}
		}
		return nil
	})
}

// DeleteCategory removes a category.
// Returns ErrCategoryInUse if any template still references it.
func (s *SQLiteStore) DeleteCategory(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var name string
		err := tx.QueryRowContext(ctx, `SELECT name FROM categories WHERE id = ?`, id).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying category: %w", err)
		}

		var inUse int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates WHERE category = ?`, name).Scan(&inUse); err != nil {
			return fmt.Errorf("counting category templates: %w", err)
		}
		if inUse > 0 {
			return fmt.Errorf("%w: %d templates", ErrCategoryInUse, inUse)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting category: %w", err)
		}
		return nil
	})
}

// ListCategories returns all categories ordered by name.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	categories := []*Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category rows: %w", err)
	}
	return categories, nil
}

func scanCategory(row rowScanner) (*Category, error) {
	var c Category
	var createdAtStr string
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &createdAtStr); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	return &c, nil
}
