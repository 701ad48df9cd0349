// ABOUTME: Knowledge-base persistence for the SQLite store
// ABOUTME: Resources hold a typed JSON payload; directory resources own ingested documents

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const knowledgeColumns = `id, type, title, payload_json, last_synced_at, created_at, updated_at`

// CreateKnowledgeResource inserts a new resource.
func (s *SQLiteStore) CreateKnowledgeResource(ctx context.Context, r *KnowledgeResource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_resources (`+knowledgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.Title, payloadString(r.Payload), optionalTime(r.LastSyncedAt),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting knowledge resource: %w", err)
	}
	s.logger.Debug("created knowledge resource", "id", r.ID, "type", r.Type)
	return nil
}

// GetKnowledgeResource retrieves a resource by ID.
func (s *SQLiteStore) GetKnowledgeResource(ctx context.Context, id string) (*KnowledgeResource, error) {
	r, err := scanKnowledgeResource(s.db.QueryRowContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_resources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying knowledge resource: %w", err)
	}
	return r, nil
}

// UpdateKnowledgeResource replaces title and payload. The resource type is
// fixed at creation.
func (s *SQLiteStore) UpdateKnowledgeResource(ctx context.Context, r *KnowledgeResource) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_resources SET title = ?, payload_json = ?, updated_at = ? WHERE id = ?`,
		r.Title, payloadString(r.Payload), formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating knowledge resource: %w", err)
	}
	return checkAffected(result)
}

// DeleteKnowledgeResource removes a resource and any ingested documents.
func (s *SQLiteStore) DeleteKnowledgeResource(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting knowledge resource: %w", err)
	}
	return checkAffected(result)
}

// ListKnowledgeResources returns resources, newest first. An empty
// resourceType lists every type.
func (s *SQLiteStore) ListKnowledgeResources(ctx context.Context, resourceType string) ([]*KnowledgeResource, error) {
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_resources
		WHERE (? IS NULL OR type = ?)
		ORDER BY updated_at DESC, title ASC
	`
	typeArg := nullString(resourceType)
	rows, err := s.db.QueryContext(ctx, query, typeArg, typeArg)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge resources: %w", err)
	}
	defer rows.Close()

	resources := []*KnowledgeResource{}
	for rows.Next() {
		r, err := scanKnowledgeResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning knowledge resource row: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge resource rows: %w", err)
	}
	return resources, nil
}

// ReplaceKnowledgeDocuments swaps the document set of a directory resource
// for docs and stamps the resource with syncedAt, all in one transaction.
func (s *SQLiteStore) ReplaceKnowledgeDocuments(ctx context.Context, resourceID string, docs []*KnowledgeDocument, syncedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE knowledge_resources SET last_synced_at = ? WHERE id = ?`, formatTime(syncedAt), resourceID)
		if err != nil {
			return fmt.Errorf("stamping sync time: %w", err)
		}
		if err := checkAffected(result); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE resource_id = ?`, resourceID); err != nil {
			return fmt.Errorf("clearing documents: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO knowledge_documents (id, resource_id, path, content, encoding, size, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing document insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range docs {
			if _, err := stmt.ExecContext(ctx,
				d.ID, resourceID, d.Path, d.Content, d.Encoding, d.Size, formatTime(d.ModifiedAt),
			); err != nil {
				return fmt.Errorf("inserting document %s: %w", d.Path, err)
			}
		}

		s.logger.Debug("replaced knowledge documents", "resource", resourceID, "count", len(docs))
		return nil
	})
}

// ListKnowledgeDocuments returns a resource's documents ordered by path.
func (s *SQLiteStore) ListKnowledgeDocuments(ctx context.Context, resourceID string) ([]*KnowledgeDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, path, content, encoding, size, modified_at
		FROM knowledge_documents
		WHERE resource_id = ?
		ORDER BY path ASC
	`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []*KnowledgeDocument{}
	for rows.Next() {
		var d KnowledgeDocument
		var modifiedStr string
		if err := rows.Scan(&d.ID, &d.ResourceID, &d.Path, &d.Content, &d.Encoding, &d.Size, &modifiedStr); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if d.ModifiedAt, err = parseTime("modified_at", modifiedStr); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

func scanKnowledgeResource(row rowScanner) (*KnowledgeResource, error) {
	var r KnowledgeResource
	var payload, createdAtStr, updatedAtStr string
	var syncedStr sql.NullString

	if err := row.Scan(&r.ID, &r.Type, &r.Title, &payload, &syncedStr, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}
	r.Payload = []byte(payload)

	var err error
	if syncedStr.Valid {
		t, err := parseTime("last_synced_at", syncedStr.String)
		if err != nil {
			return nil, err
		}
		r.LastSyncedAt = &t
	}
	if r.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return nil, err
	}
	return &r, nil
}

func payloadString(p []byte) string {
	if len(p) == 0 {
		return "{}"
	}
	return string(p)
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
