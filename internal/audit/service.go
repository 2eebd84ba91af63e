package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; no Update/Delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Audit is internal-only. Callers should treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogBatchSubmitted records a batch submitted by a tenant user.
func (s *Service) LogBatchSubmitted(ctx context.Context, tenantID, batchID, actorUserID, actorRole, ip string, recipients int) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeBatchSubmitted,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		BatchID:     batchID,
		Message:     "batch submitted",
		Metadata:    toJSON(map[string]any{"recipients": recipients}),
	})
}

// LogBatchCompleted records the in_progress -> completed transition.
// source names the path that observed completion (webhook or poll).
func (s *Service) LogBatchCompleted(ctx context.Context, tenantID, batchID, source string) error {
	return s.Append(ctx, Event{
		TenantID: tenantID,
		Type:     EventTypeBatchCompleted,
		BatchID:  batchID,
		Message:  "batch completed",
		Metadata: toJSON(map[string]any{"source": source}),
	})
}

// LogCleanupFailed records a completed batch whose pending leads could not be
// deleted. These rows need repair.
func (s *Service) LogCleanupFailed(ctx context.Context, tenantID, batchID string, cause error) error {
	msg := "pending lead cleanup failed"
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return s.Append(ctx, Event{
		TenantID: tenantID,
		Type:     EventTypeCleanupFailed,
		BatchID:  batchID,
		Message:  msg,
	})
}

// LogWebhookRejected records a webhook delivery refused before tenant
// resolution.
func (s *Service) LogWebhookRejected(ctx context.Context, ip, reason string, status int) error {
	return s.Append(ctx, Event{
		TenantID:  SystemTenant,
		Type:      EventTypeWebhookRejected,
		IPAddress: ip,
		Message:   reason,
		Metadata:  toJSON(map[string]any{"status": status}),
	})
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
