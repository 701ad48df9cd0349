// ABOUTME: Audit log entity and store methods for tracking console changes
// ABOUTME: Records who changed which template, provider or setting and when

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditCreateTemplate     AuditAction = "create_template"
	AuditUpdateTemplate     AuditAction = "update_template"
	AuditDeleteTemplate     AuditAction = "delete_template"
	AuditRenameVariable     AuditAction = "rename_variable"
	AuditSetDefault         AuditAction = "set_default_template"
	AuditCreateCategory     AuditAction = "create_category"
	AuditUpdateCategory     AuditAction = "update_category"
	AuditDeleteCategory     AuditAction = "delete_category"
	AuditUpdateSystemPrompt AuditAction = "update_system_prompt"
	AuditCreateProvider     AuditAction = "create_provider"
	AuditUpdateProvider     AuditAction = "update_provider"
	AuditDeleteProvider     AuditAction = "delete_provider"
	AuditUpdateFormatting   AuditAction = "update_formatting"
	AuditUpdateBranding     AuditAction = "update_branding"
	AuditCreateFollowUp     AuditAction = "create_followup"
	AuditUpdateFollowUp     AuditAction = "update_followup"
	AuditDeleteFollowUp     AuditAction = "delete_followup"
	AuditReorderFollowUps   AuditAction = "reorder_followups"
	AuditCreateKnowledge    AuditAction = "create_knowledge"
	AuditUpdateKnowledge    AuditAction = "update_knowledge"
	AuditDeleteKnowledge    AuditAction = "delete_knowledge"
	AuditSyncKnowledge      AuditAction = "sync_knowledge"
	AuditCreateUser         AuditAction = "create_user"
	AuditUpdateUser         AuditAction = "update_user"
	AuditDeleteUser         AuditAction = "delete_user"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         string         // UUID v4
	ActorID    string         // admin user who performed the action
	Action     AuditAction    // what action was performed
	TargetType string         // "template", "provider", "setting", ...
	TargetID   string         // ID of the affected resource
	Timestamp  time.Time      // when it happened
	Detail     map[string]any // additional context
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since      *time.Time   // entries at or after this time
	Until      *time.Time   // entries at or before this time
	ActorID    *string      // filter by actor
	Action     *AuditAction // filter by action type
	TargetType *string      // filter by target type
	TargetID   *string      // filter by target ID
	Limit      int          // max results (default 100, max 1000)
}

// AuditStore persists the append-only audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, actor_id, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.ActorID,
		string(e.Action),
		e.TargetType,
		e.TargetID,
		formatTime(e.Timestamp),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"actor", e.ActorID,
		"action", e.Action,
		"target", e.TargetType+"/"+e.TargetID,
	)
	return nil
}

// Record appends an audit entry for a change that has already been
// committed. A failed write is logged, not returned.
func Record(ctx context.Context, a AuditStore, logger *slog.Logger, e AuditEntry) {
	if err := a.AppendAuditLog(ctx, &e); err != nil {
		logger.Warn("failed to append audit log", "action", e.Action, "target", e.TargetType+"/"+e.TargetID, "error", err)
	}
}

const auditLogQuery = `
	SELECT audit_id, actor_id, action, target_type, target_id, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR actor_id = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR target_type = ?)
	  AND (? IS NULL OR target_id = ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListAuditLog returns audit entries matching the filter criteria.
// Results are returned newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := normalizeLimit(f.Limit, 100, 1000)
	since := optionalTime(f.Since)
	until := optionalTime(f.Until)
	var action any
	if f.Action != nil {
		action = string(*f.Action)
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		since, since,
		until, until,
		f.ActorID, f.ActorID,
		action, action,
		f.TargetType, f.TargetType,
		f.TargetID, f.TargetID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(row rowScanner) (AuditEntry, error) {
	var e AuditEntry
	var action, ts string
	var detailJSON *string

	if err := row.Scan(&e.ID, &e.ActorID, &action, &e.TargetType, &e.TargetID, &ts, &detailJSON); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.Action = AuditAction(action)

	var err error
	if e.Timestamp, err = parseTime("ts", ts); err != nil {
		return e, err
	}
	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}
