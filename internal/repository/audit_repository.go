package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/model"
)

// AuditRepository handles audit log persistence
type AuditRepository struct {
	db *database.Postgres
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLogEntry) error {
	dataJSON, err := json.Marshal(entry.Data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (id, event_type, account_id, ip, user_agent,
		    severity, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.EventType,
		entry.AccountID,
		entry.IP,
		entry.UserAgent,
		string(entry.Severity),
		dataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// AuditFilter narrows audit log queries.
type AuditFilter struct {
	AccountID string
	EventType string
	Severity  string
	Since     time.Time
	Limit     int
}

// List returns audit entries matching the filter, newest first
func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]*model.AuditLogEntry, error) {
	query := `
		SELECT id, event_type, account_id, ip, user_agent, severity, data, created_at
		FROM audit_logs
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR event_type = $2)
		  AND ($3 = '' OR severity = $3)
		  AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT $5
	`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	since := f.Since
	if since.IsZero() {
		since = time.Now().Add(-30 * 24 * time.Hour)
	}

	rows, err := r.db.QueryContext(ctx, query, f.AccountID, f.EventType, f.Severity, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		var severity string
		var data []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.AccountID, &e.IP, &e.UserAgent, &severity, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.Severity = model.Severity(severity)
		if err := json.Unmarshal(data, &e.Data); err != nil {
			e.Data = nil
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
