// ABOUTME: Model provider persistence for the SQLite store
// ABOUTME: The model list is stored as a JSON column

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const providerColumns = `id, name, kind, base_url, api_key, models_json, default_model, temperature, max_tokens, is_active, created_at, updated_at`

// CreateProvider inserts a new provider.
// Returns ErrDuplicate if the name is taken.
func (s *SQLiteStore) CreateProvider(ctx context.Context, p *Provider) error {
	modelsJSON, err := marshalModels(p.Models)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (`+providerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Kind, p.BaseURL, p.APIKey, modelsJSON, p.DefaultModel,
		p.Temperature, p.MaxTokens, p.IsActive,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("provider %q: %w", p.Name, ErrDuplicate)
		}
		return fmt.Errorf("inserting provider: %w", err)
	}

	s.logger.Debug("created provider", "id", p.ID, "kind", p.Kind)
	return nil
}

// GetProvider retrieves a provider by ID.
func (s *SQLiteStore) GetProvider(ctx context.Context, id string) (*Provider, error) {
	p, err := scanProvider(s.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying provider: %w", err)
	}
	return p, nil
}

// UpdateProvider replaces the mutable fields of a provider.
func (s *SQLiteStore) UpdateProvider(ctx context.Context, p *Provider) error {
	modelsJSON, err := marshalModels(p.Models)
	if err != nil {
		return err
	}

	query := `
		UPDATE providers
		SET name = ?, kind = ?, base_url = ?, api_key = ?, models_json = ?, default_model = ?,
		    temperature = ?, max_tokens = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		p.Name, p.Kind, p.BaseURL, p.APIKey, modelsJSON, p.DefaultModel,
		p.Temperature, p.MaxTokens, p.IsActive, formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("provider %q: %w", p.Name, ErrDuplicate)
		}
		return fmt.Errorf("updating provider: %w", err)
	}
	return checkAffected(result)
}

// DeleteProvider removes a provider.
func (s *SQLiteStore) DeleteProvider(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting provider: %w", err)
	}
	return checkAffected(result)
}

// ListProviders returns all providers ordered by name.
func (s *SQLiteStore) ListProviders(ctx context.Context) ([]*Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying providers: %w", err)
	}
	defer rows.Close()

	providers := []*Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider row: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider rows: %w", err)
	}
	return providers, nil
}

func scanProvider(row rowScanner) (*Provider, error) {
	var p Provider
	var modelsJSON, createdAtStr, updatedAtStr string

	if err := row.Scan(
		&p.ID, &p.Name, &p.Kind, &p.BaseURL, &p.APIKey, &modelsJSON, &p.DefaultModel,
		&p.Temperature, &p.MaxTokens, &p.IsActive, &createdAtStr, &updatedAtStr,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(modelsJSON), &p.Models); err != nil {
		return nil, fmt.Errorf("unmarshaling models: %w", err)
	}

	var err error
	if p.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return nil, err
	}
	return &p, nil
}

func marshalModels(models []Model) (string, error) {
	if models == nil {
		models = []Model{}
	}
	data, err := json.Marshal(models)
	if err != nil {
		return "", fmt.Errorf("marshaling models: %w", err)
	}
	return string(data), nil
}
