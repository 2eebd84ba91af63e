package batches

import (
	"context"
	"sort"
	"sync"
	"time"

	"voicebatch-platform/internal/calls"
)

type batchKey struct{ tenantID, batchID string }
type leadKey struct{ batchID, leadID string }

// MemoryStore is a mutex-guarded Store for tests and local runs.
// It follows the same upsert and lifecycle rules as PostgresStore.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[batchKey]Batch
	leads   map[leadKey]PendingLead
	results map[calls.Key]calls.CallResult
	nextID  int64
	clock   func() time.Time

	// failDelete, when set, is returned by DeletePendingLeads.
	failDelete error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[batchKey]Batch),
		leads:   make(map[leadKey]PendingLead),
		results: make(map[calls.Key]calls.CallResult),
		clock:   time.Now,
	}
}

func (s *MemoryStore) CreateBatch(ctx context.Context, b Batch, leads []PendingLead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk := batchKey{b.TenantID, b.BatchID}
	if _, ok := s.batches[bk]; ok {
		return ErrConflict
	}
	for _, l := range leads {
		if _, ok := s.leads[leadKey{l.BatchID, l.LeadID}]; ok {
			return ErrConflict
		}
	}

	now := s.clock().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Status == "" {
		b.Status = BatchStatusInProgress
	}
	s.batches[bk] = b
	for _, l := range leads {
		l.CreatedAt, l.UpdatedAt = now, now
		if l.Status == "" {
			l.Status = LeadStatusPending
		}
		s.leads[leadKey{l.BatchID, l.LeadID}] = l
	}
	return nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, tenantID, batchID string) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchKey{tenantID, batchID}]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) ListBatches(ctx context.Context, tenantID string, limit, offset int) ([]Batch, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []Batch
	for k, b := range s.batches {
		if k.tenantID == tenantID {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].BatchID > all[j].BatchID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []Batch{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) MarkBatchCompleted(ctx context.Context, tenantID, batchID string) (bool, error) {
	return s.transition(tenantID, batchID, BatchStatusCompleted, BatchStatusInProgress, BatchStatusFailed)
}

func (s *MemoryStore) MarkBatchFailed(ctx context.Context, tenantID, batchID string) (bool, error) {
	return s.transition(tenantID, batchID, BatchStatusFailed, BatchStatusInProgress)
}

func (s *MemoryStore) transition(tenantID, batchID string, to BatchStatus, from ...BatchStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := batchKey{tenantID, batchID}
	b, ok := s.batches[k]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if b.Status == f {
			b.Status = to
			b.UpdatedAt = s.clock().UTC()
			s.batches[k] = b
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) FindPendingLead(ctx context.Context, batchID, leadID string) (PendingLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadKey{batchID, leadID}]
	if !ok {
		return PendingLead{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) CompleteLead(ctx context.Context, tenantID, batchID, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := leadKey{batchID, leadID}
	l, ok := s.leads[k]
	if !ok || l.TenantID != tenantID {
		return ErrNotFound
	}
	if l.Status != LeadStatusCompleted {
		l.Status = LeadStatusCompleted
		l.UpdatedAt = s.clock().UTC()
		s.leads[k] = l
	}
	return nil
}

func (s *MemoryStore) CountPendingLeads(ctx context.Context, tenantID, batchID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, l := range s.leads {
		if k.batchID == batchID && l.TenantID == tenantID && l.Status == LeadStatusPending {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeletePendingLeads(ctx context.Context, tenantID, batchID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return 0, s.failDelete
	}
	var n int64
	for k, l := range s.leads {
		if k.batchID == batchID && l.TenantID == tenantID {
			delete(s.leads, k)
			n++
		}
	}
	return n, nil
}

// PendingLeads returns the lead rows of one batch.
func (s *MemoryStore) PendingLeads(tenantID, batchID string) []PendingLead {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PendingLead
	for k, l := range s.leads {
		if k.batchID == batchID && l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeadID < out[j].LeadID })
	return out
}

// FailDeletes makes DeletePendingLeads return err until cleared with nil.
func (s *MemoryStore) FailDeletes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = err
}

func (s *MemoryStore) UpsertCallResult(ctx context.Context, r calls.CallResult) (calls.CallResult, error) {
	if err := validateResult(r); err != nil {
		return calls.CallResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	k := r.Key()
	existing, ok := s.results[k]
	if !ok {
		s.nextID++
		existing = calls.CallResult{
			ID:        s.nextID,
			TenantID:  k.TenantID,
			BatchID:   k.BatchID,
			LeadID:    k.LeadID,
			CreatedAt: now,
		}
	}
	r.UpdatedAt = now
	merged := calls.Merge(existing, r)
	s.results[k] = merged
	return merged, nil
}

func (s *MemoryStore) GetCallResult(ctx context.Context, key calls.Key) (calls.CallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[key]
	if !ok {
		return calls.CallResult{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) ListCallResults(ctx context.Context, tenantID, batchID string) ([]calls.CallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []calls.CallResult{}
	for k, r := range s.results {
		if k.TenantID == tenantID && k.BatchID == batchID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StartedAtUnix, out[j].StartedAtUnix
		switch {
		case a != nil && b != nil && *a != *b:
			return *a > *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out, nil
}
