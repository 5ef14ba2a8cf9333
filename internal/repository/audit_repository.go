package repository

import (
	"context"
	"database/sql"

	"github.com/cliniva/access-core/internal/model"
)

// AuditRepo appends to the immutable `audit_events` table. Insert is the
// only operation: no update or delete path exists for written events. The
// retention sweep that flips is_archived runs out of process.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert appends one event.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditEvent) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO audit_events
		 (id, actor_id, actor_email, actor_role, actor_ip, actor_user_agent,
		  action, entity, entity_id, result, error_message, timestamp,
		  is_high_risk, is_sensitive_data, retention_date, is_archived)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ActorID, e.ActorEmail, e.ActorRole, e.ActorIP, e.ActorUserAgent,
		string(e.Action), string(e.Entity), e.EntityID, string(e.Result), e.ErrorMessage,
		e.Timestamp, e.IsHighRisk, e.IsSensitiveData, e.RetentionDate, false)
	return err
}
