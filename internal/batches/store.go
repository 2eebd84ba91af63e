package batches

import (
	"context"

	"voicebatch-platform/internal/calls"
)

// LeadRegistry tracks pending leads per batch.
type LeadRegistry interface {
	// FindPendingLead resolves the owning tenant of a lead. The row is
	// returned regardless of its status.
	FindPendingLead(ctx context.Context, batchID, leadID string) (PendingLead, error)
	CompleteLead(ctx context.Context, tenantID, batchID, leadID string) error
	CountPendingLeads(ctx context.Context, tenantID, batchID string) (int, error)
	DeletePendingLeads(ctx context.Context, tenantID, batchID string) (int64, error)
}

// BatchStore persists batches.
type BatchStore interface {
	// CreateBatch stores the batch and its leads atomically.
	CreateBatch(ctx context.Context, b Batch, leads []PendingLead) error
	GetBatch(ctx context.Context, tenantID, batchID string) (Batch, error)
	ListBatches(ctx context.Context, tenantID string, limit, offset int) ([]Batch, int, error)
	// MarkBatchCompleted reports whether this call moved the batch to
	// completed. A completed batch never changes status again.
	MarkBatchCompleted(ctx context.Context, tenantID, batchID string) (bool, error)
	// MarkBatchFailed moves an in_progress batch to failed.
	MarkBatchFailed(ctx context.Context, tenantID, batchID string) (bool, error)
}

// ResultStore persists call results keyed by (tenant, batch, lead).
type ResultStore interface {
	// UpsertCallResult inserts or merges r and returns the stored row.
	UpsertCallResult(ctx context.Context, r calls.CallResult) (calls.CallResult, error)
	GetCallResult(ctx context.Context, key calls.Key) (calls.CallResult, error)
	// ListCallResults orders by start time, newest first.
	ListCallResults(ctx context.Context, tenantID, batchID string) ([]calls.CallResult, error)
}

// Store is the full persistence contract.
type Store interface {
	LeadRegistry
	BatchStore
	ResultStore
}

func validateResult(r calls.CallResult) error {
	if !r.Key().Valid() {
		return ErrInvalidArgument
	}
	if !r.Outcome.Valid() {
		return ErrInvalidArgument
	}
	return nil
}
