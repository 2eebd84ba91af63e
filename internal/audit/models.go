package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required; platform-originated events without a resolved
//   tenant use SystemTenant.
// - Audit is best-effort; do not block critical flows on audit failures.
type Event struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	Type     EventType `json:"type"`

	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	BatchID string `json:"batch_id,omitempty"`
	LeadID  string `json:"lead_id,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`
	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeBatchSubmitted  EventType = "batch_submitted"
	EventTypeBatchCompleted  EventType = "batch_completed"
	EventTypeCleanupFailed   EventType = "cleanup_failed"
	EventTypeWebhookRejected EventType = "webhook_rejected"
)

// SystemTenant tags events whose tenant could not be resolved.
const SystemTenant = "_system"
