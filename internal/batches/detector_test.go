package batches

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"voicebatch-platform/internal/audit"
)

func TestDetector_CompletesOnlyAfterLastLead(t *testing.T) {
	const n = 5
	s := NewMemoryStore()
	repo := audit.NewMemoryRepo()
	d := NewDetector(s, audit.NewService(repo))
	ctx := context.Background()

	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("l%d", i)
	}
	seedBatch(t, s, "t1", "b1", ids...)

	for i, id := range ids {
		if err := s.CompleteLead(ctx, "t1", "b1", id); err != nil {
			t.Fatalf("CompleteLead: %v", err)
		}
		done, err := d.Check(ctx, "t1", "b1", "test")
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		b, _ := s.GetBatch(ctx, "t1", "b1")

		if i < n-1 {
			if done || b.Status != BatchStatusInProgress {
				t.Fatalf("after %d/%d leads batch must stay in_progress, got %s", i+1, n, b.Status)
			}
			if got := len(s.PendingLeads("t1", "b1")); got != n {
				t.Fatalf("lead rows must stay until completion, got %d", got)
			}
			continue
		}
		if !done || b.Status != BatchStatusCompleted {
			t.Fatalf("expected completed after last lead, got %s", b.Status)
		}
		if got := len(s.PendingLeads("t1", "b1")); got != 0 {
			t.Fatalf("expected pending leads deleted, got %d", got)
		}
	}

	if got := len(repo.OfType(audit.EventTypeBatchCompleted)); got != 1 {
		t.Fatalf("expected one batch_completed event, got %d", got)
	}
}

func TestDetector_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	repo := audit.NewMemoryRepo()
	d := NewDetector(s, audit.NewService(repo))
	ctx := context.Background()
	seedBatch(t, s, "t1", "b1", "l1")
	_ = s.CompleteLead(ctx, "t1", "b1", "l1")

	for i := 0; i < 3; i++ {
		done, err := d.Check(ctx, "t1", "b1", "test")
		if err != nil || !done {
			t.Fatalf("run %d: done=%v err=%v", i, done, err)
		}
	}
	if got := len(repo.OfType(audit.EventTypeBatchCompleted)); got != 1 {
		t.Fatalf("completion must be recorded once, got %d", got)
	}
}

func TestDetector_CleanupFailureIsAudited(t *testing.T) {
	s := NewMemoryStore()
	repo := audit.NewMemoryRepo()
	d := NewDetector(s, audit.NewService(repo))
	ctx := context.Background()
	seedBatch(t, s, "t1", "b1", "l1")
	_ = s.CompleteLead(ctx, "t1", "b1", "l1")
	s.FailDeletes(errors.New("connection reset"))

	done, err := d.Check(ctx, "t1", "b1", "test")
	if err != nil || !done {
		t.Fatalf("cleanup failure must not fail the check: done=%v err=%v", done, err)
	}
	b, _ := s.GetBatch(ctx, "t1", "b1")
	if b.Status != BatchStatusCompleted {
		t.Fatalf("expected completed, got %s", b.Status)
	}
	if len(s.PendingLeads("t1", "b1")) != 1 {
		t.Fatalf("expected stale lead row to remain")
	}
	if got := len(repo.OfType(audit.EventTypeCleanupFailed)); got != 1 {
		t.Fatalf("expected cleanup_failed event, got %d", got)
	}

	s.FailDeletes(nil)
	if _, err := d.Check(ctx, "t1", "b1", "repair"); err != nil {
		t.Fatalf("repair run: %v", err)
	}
	if len(s.PendingLeads("t1", "b1")) != 0 {
		t.Fatalf("expected repair run to delete stale rows")
	}
}

type failingCounter struct{ *MemoryStore }

func (failingCounter) CountPendingLeads(ctx context.Context, tenantID, batchID string) (int, error) {
	return 0, errors.New("db down")
}

func TestDetector_CountErrorLeavesBatchUntouched(t *testing.T) {
	s := NewMemoryStore()
	seedBatch(t, s, "t1", "b1", "l1")
	d := NewDetector(failingCounter{s}, nil)

	if _, err := d.Check(context.Background(), "t1", "b1", "test"); err == nil {
		t.Fatalf("expected error")
	}
	b, _ := s.GetBatch(context.Background(), "t1", "b1")
	if b.Status != BatchStatusInProgress {
		t.Fatalf("batch must stay in_progress, got %s", b.Status)
	}
}
