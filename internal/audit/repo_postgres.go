package audit

import (
	"context"

	"voicebatch-platform/pkg/utils"
)

// PostgresRepo appends events to the audit_events table.
type PostgresRepo struct {
	db utils.DB
}

func NewPostgresRepo(db utils.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, tenant_id, type, actor_user_id, actor_role, ip_address, batch_id, lead_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '')::jsonb, $11)
`
	_, err := r.db.Exec(ctx, q,
		e.ID,
		e.TenantID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.BatchID,
		e.LeadID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
