package batches

import (
	"context"
	"fmt"

	"voicebatch-platform/pkg/logger"
)

// CompletionAuditor receives lifecycle events from the Detector.
// *audit.Service satisfies it.
type CompletionAuditor interface {
	LogBatchCompleted(ctx context.Context, tenantID, batchID, source string) error
	LogCleanupFailed(ctx context.Context, tenantID, batchID string, cause error) error
}

// CompletionStore is the subset of Store the Detector needs.
type CompletionStore interface {
	CountPendingLeads(ctx context.Context, tenantID, batchID string) (int, error)
	MarkBatchCompleted(ctx context.Context, tenantID, batchID string) (bool, error)
	DeletePendingLeads(ctx context.Context, tenantID, batchID string) (int64, error)
}

// Detector marks a batch completed once no pending leads remain and then
// deletes its pending lead rows.
//
// Check is idempotent: on an already completed and cleaned batch the count is
// zero, the status update is a no-op and the delete removes nothing.
type Detector struct {
	store CompletionStore
	audit CompletionAuditor
}

func NewDetector(store CompletionStore, auditor CompletionAuditor) *Detector {
	return &Detector{store: store, audit: auditor}
}

// Check reports whether the batch is complete after this call.
func (d *Detector) Check(ctx context.Context, tenantID, batchID, source string) (bool, error) {
	n, err := d.store.CountPendingLeads(ctx, tenantID, batchID)
	if err != nil {
		return false, fmt.Errorf("count pending leads: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := d.Finalize(ctx, tenantID, batchID, source); err != nil {
		return false, err
	}
	return true, nil
}

// Finalize marks the batch completed and deletes its pending leads without
// looking at the pending count. Used when the platform itself reports the
// batch completed.
//
// A failed delete leaves the batch completed with stale pending leads; it is
// logged and audited for repair and not returned as an error.
func (d *Detector) Finalize(ctx context.Context, tenantID, batchID, source string) error {
	log := logger.From(ctx).With("tenant_id", tenantID, "batch_id", batchID)

	transitioned, err := d.store.MarkBatchCompleted(ctx, tenantID, batchID)
	if err != nil {
		return fmt.Errorf("mark batch completed: %w", err)
	}
	if transitioned {
		log.Info("batch completed", "source", source)
		if d.audit != nil {
			if err := d.audit.LogBatchCompleted(ctx, tenantID, batchID, source); err != nil {
				log.Warn("audit batch_completed failed", "err", err)
			}
		}
	}

	deleted, err := d.store.DeletePendingLeads(ctx, tenantID, batchID)
	if err != nil {
		log.Error("batch completed but pending lead cleanup failed; rows need repair", "err", err)
		if d.audit != nil {
			if aerr := d.audit.LogCleanupFailed(ctx, tenantID, batchID, err); aerr != nil {
				log.Warn("audit cleanup_failed failed", "err", aerr)
			}
		}
		return nil
	}
	if deleted > 0 {
		log.Debug("pending leads deleted", "count", deleted)
	}
	return nil
}
