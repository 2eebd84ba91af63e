package reconcile

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/calls"
	"voicebatch-platform/internal/voiceagent"
)

const (
	tenant = "t1"
	batch  = "btcal_1"
)

func ptr[T any](v T) *T { return &v }

type recorder struct {
	mu        sync.Mutex
	outcomes  []string
	upserts   int
	completed int
}

func (r *recorder) SyncOutcome(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) ResultUpserted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
}

func (r *recorder) BatchCompleted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func seed(t *testing.T, store *batches.MemoryStore, leads ...batches.PendingLead) {
	t.Helper()
	for i := range leads {
		leads[i].TenantID = tenant
		leads[i].BatchID = batch
	}
	err := store.CreateBatch(context.Background(), batches.Batch{TenantID: tenant, BatchID: batch, Name: "Herbst", TotalRecipients: len(leads)}, leads)
	require.NoError(t, err)
}

func recipient(leadID, status, conversationID string) voiceagent.Recipient {
	return voiceagent.Recipient{
		ID:             "rcp_" + leadID,
		Status:         status,
		ConversationID: conversationID,
		ConversationInitiationClientData: &voiceagent.ClientData{
			DynamicVariables: map[string]any{"lead_id": leadID},
		},
	}
}

func TestSync_WebhookThenPollCompletesBatch(t *testing.T) {
	ctx := context.Background()
	store := batches.NewMemoryStore()
	seed(t, store,
		batches.PendingLead{LeadID: "lead-a", FirstName: "Anna", PhoneNumber: "+4930901820"},
		batches.PendingLead{LeadID: "lead-b", FirstName: "Bernd", PhoneNumber: "+4930901821"},
	)

	// Lead A arrives through the webhook first.
	_, err := store.UpsertCallResult(ctx, calls.CallResult{
		TenantID: tenant, BatchID: batch, LeadID: "lead-a", FirstName: "Anna",
		Outcome: calls.OutcomeSuccess, DurationSeconds: ptr(42),
	})
	require.NoError(t, err)
	require.NoError(t, store.CompleteLead(ctx, tenant, batch, "lead-a"))

	platform := voiceagent.NewFake()
	platform.SetBatch(voiceagent.BatchDetail{
		ID:     batch,
		Status: voiceagent.BatchStatusCompleted,
		Recipients: []voiceagent.Recipient{
			recipient("lead-a", "completed", "conv_a"),
			recipient("lead-b", "no_answer", ""),
		},
	})
	obs := &recorder{}
	svc := NewService(store, platform, batches.NewDetector(store, nil), WithObserver(obs))

	res, err := svc.Sync(ctx, tenant, batch)
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.Equal(t, BatchInfo{Status: voiceagent.BatchStatusCompleted, TotalCalls: 2}, res.Info)
	assert.Equal(t, 1, res.Reconciled)
	assert.Empty(t, platform.ConversationCalls, "lead A already has a result and must not be refetched")

	a, err := store.GetCallResult(ctx, calls.Key{TenantID: tenant, BatchID: batch, LeadID: "lead-a"})
	require.NoError(t, err)
	assert.Equal(t, calls.OutcomeSuccess, a.Outcome)
	assert.Equal(t, 42, *a.DurationSeconds)

	b, err := store.GetCallResult(ctx, calls.Key{TenantID: tenant, BatchID: batch, LeadID: "lead-b"})
	require.NoError(t, err)
	assert.Equal(t, calls.OutcomeNoAnswer, b.Outcome)
	assert.Equal(t, "Bernd", b.FirstName)
	assert.Equal(t, "+4930901821", b.PhoneNumber)

	got, err := store.GetBatch(ctx, tenant, batch)
	require.NoError(t, err)
	assert.Equal(t, batches.BatchStatusCompleted, got.Status)
	assert.Empty(t, store.PendingLeads(tenant, batch))
	assert.Equal(t, []string{"ok"}, obs.outcomes)
	assert.Equal(t, 1, obs.completed)

	// A second poll changes nothing.
	res, err = svc.Sync(ctx, tenant, batch)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Zero(t, res.Reconciled)
	assert.Equal(t, 1, obs.completed)
}

func TestSync_RecipientFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := batches.NewMemoryStore()
	seed(t, store,
		batches.PendingLead{LeadID: "lead-1"},
		batches.PendingLead{LeadID: "lead-2"},
		batches.PendingLead{LeadID: "lead-3"},
	)

	platform := voiceagent.NewFake()
	platform.SetBatch(voiceagent.BatchDetail{
		ID:     batch,
		Status: voiceagent.BatchStatusInProgress,
		Recipients: []voiceagent.Recipient{
			recipient("lead-1", "completed", "conv_1"),
			recipient("lead-2", "completed", "conv_2"),
			recipient("lead-3", "completed", "conv_3"),
		},
	})
	for _, id := range []string{"conv_1", "conv_2", "conv_3"} {
		platform.Conversations[id] = voiceagent.Conversation{
			ConversationID: id,
			Status:         "done",
			Metadata:       voiceagent.Metadata{CallDurationSecs: ptr(10), StartTimeUnixSecs: ptr(int64(1_700_000_000))},
			Transcript:     []calls.TranscriptTurn{{Role: "agent", Message: "Hallo"}},
		}
	}
	platform.ConversationErrs["conv_2"] = &voiceagent.APIError{Op: "get_conversation", Status: http.StatusGatewayTimeout}

	svc := NewService(store, platform, batches.NewDetector(store, nil))

	res, err := svc.Sync(ctx, tenant, batch)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 2, res.Reconciled)
	assert.Equal(t, 1, res.Failed)

	pending, err := store.CountPendingLeads(ctx, tenant, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	got, _ := store.GetBatch(ctx, tenant, batch)
	assert.Equal(t, batches.BatchStatusInProgress, got.Status)

	// The next poll picks up the skipped recipient and completes the batch
	// even though the platform still reports it in progress.
	delete(platform.ConversationErrs, "conv_2")
	res, err = svc.Sync(ctx, tenant, batch)
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, 1, res.Reconciled)

	got, _ = store.GetBatch(ctx, tenant, batch)
	assert.Equal(t, batches.BatchStatusCompleted, got.Status)

	r2, err := store.GetCallResult(ctx, calls.Key{TenantID: tenant, BatchID: batch, LeadID: "lead-2"})
	require.NoError(t, err)
	assert.Equal(t, "agent: Hallo", r2.Transcript)
	assert.Equal(t, int64(1_700_000_000), *r2.StartedAtUnix)
}

func TestSync_UpstreamFailureReturnsLocalResults(t *testing.T) {
	ctx := context.Background()
	store := batches.NewMemoryStore()
	seed(t, store, batches.PendingLead{LeadID: "lead-a"}, batches.PendingLead{LeadID: "lead-b"})
	_, err := store.UpsertCallResult(ctx, calls.CallResult{TenantID: tenant, BatchID: batch, LeadID: "lead-a", Outcome: calls.OutcomeSuccess})
	require.NoError(t, err)

	platform := voiceagent.NewFake()
	platform.BatchErr = &voiceagent.APIError{Op: "get_batch", Status: http.StatusBadGateway}
	obs := &recorder{}
	svc := NewService(store, platform, batches.NewDetector(store, nil), WithObserver(obs))

	res, err := svc.Sync(ctx, tenant, batch)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, batch, syncErr.BatchID)

	var apiErr *voiceagent.APIError
	assert.ErrorAs(t, err, &apiErr)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "lead-a", res.Results[0].LeadID)
	assert.Equal(t, BatchInfo{Status: string(batches.BatchStatusInProgress), TotalCalls: 2}, res.Info)
	assert.Equal(t, []string{"upstream_error"}, obs.outcomes)
}

type failingListStore struct {
	batches.Store
}

func (failingListStore) ListCallResults(context.Context, string, string) ([]calls.CallResult, error) {
	return nil, errors.New("connection reset")
}

func TestSync_UpstreamAndListingFailureKeepsResultShape(t *testing.T) {
	store := batches.NewMemoryStore()
	seed(t, store, batches.PendingLead{LeadID: "lead-a"})

	platform := voiceagent.NewFake()
	platform.BatchErr = &voiceagent.APIError{Op: "get_batch", Status: http.StatusBadGateway}
	svc := NewService(failingListStore{store}, platform, batches.NewDetector(store, nil))

	res, err := svc.Sync(context.Background(), tenant, batch)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.ErrorContains(t, err, "list call results")
	require.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
	assert.Equal(t, BatchInfo{Status: string(batches.BatchStatusInProgress), TotalCalls: 1}, res.Info)
}

func TestSync_BatchMissingOnPlatform(t *testing.T) {
	ctx := context.Background()
	store := batches.NewMemoryStore()
	seed(t, store, batches.PendingLead{LeadID: "lead-a"})
	_, err := store.UpsertCallResult(ctx, calls.CallResult{TenantID: tenant, BatchID: batch, LeadID: "lead-a", Outcome: calls.OutcomeSuccess})
	require.NoError(t, err)

	// The fake answers 404 for batches it never saw.
	svc := NewService(store, voiceagent.NewFake(), batches.NewDetector(store, nil))

	res, err := svc.Sync(ctx, tenant, batch)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.ErrorIs(t, err, ErrUnknownOnPlatform)
	assert.True(t, voiceagent.IsNotFound(err))
	assert.Len(t, res.Results, 1)

	// A transient upstream failure is not reported as a missing batch.
	platform := voiceagent.NewFake()
	platform.BatchErr = &voiceagent.APIError{Op: "get_batch", Status: http.StatusServiceUnavailable}
	_, err = NewService(store, platform, batches.NewDetector(store, nil)).Sync(ctx, tenant, batch)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownOnPlatform)
}

func TestSync_UnknownBatchIsNotFound(t *testing.T) {
	store := batches.NewMemoryStore()
	seed(t, store, batches.PendingLead{LeadID: "lead-a"})
	svc := NewService(store, voiceagent.NewFake(), batches.NewDetector(store, nil))

	_, err := svc.Sync(context.Background(), "t2", batch)
	assert.ErrorIs(t, err, batches.ErrNotFound)

	_, err = svc.Sync(context.Background(), tenant, " ")
	assert.ErrorIs(t, err, batches.ErrInvalidArgument)
}

func TestSync_SkipsUpstreamWhileAnotherSyncHoldsTheSlot(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := batches.NewMemoryStore()
	seed(t, store, batches.PendingLead{LeadID: "lead-a"})

	platform := voiceagent.NewFake()
	platform.BatchErr = errors.New("platform must not be called")
	limiter := NewRedisLimiter(rdb, 1, time.Minute)
	svc := NewService(store, platform, batches.NewDetector(store, nil), WithLimiter(limiter))

	held, err := limiter.Acquire(ctx, syncKey(tenant, batch))
	require.NoError(t, err)
	require.True(t, held)

	res, err := svc.Sync(ctx, tenant, batch)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.NotNil(t, res.Results)

	require.NoError(t, limiter.Release(ctx, syncKey(tenant, batch)))

	_, err = svc.Sync(ctx, tenant, batch)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr, "with the slot free the platform is called")
	assert.False(t, mr.Exists(syncKey(tenant, batch)), "slot must be released after the sync")
}

func TestSync_FailedPlatformBatch(t *testing.T) {
	ctx := context.Background()
	store := batches.NewMemoryStore()
	seed(t, store, batches.PendingLead{LeadID: "lead-a"}, batches.PendingLead{LeadID: "lead-b"})

	platform := voiceagent.NewFake()
	platform.SetBatch(voiceagent.BatchDetail{
		ID:     batch,
		Status: voiceagent.BatchStatusCancelled,
		Recipients: []voiceagent.Recipient{
			recipient("lead-a", "in_progress", ""),
			recipient("lead-b", "failed", ""),
		},
	})
	svc := NewService(store, platform, batches.NewDetector(store, nil))

	res, err := svc.Sync(ctx, tenant, batch)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, calls.OutcomeFailed, res.Results[0].Outcome)

	got, _ := store.GetBatch(ctx, tenant, batch)
	assert.Equal(t, batches.BatchStatusFailed, got.Status)

	pending, _ := store.CountPendingLeads(ctx, tenant, batch)
	assert.Equal(t, 1, pending, "an unfinished recipient keeps its lead pending")
}

func TestSync_FallsBackToDynamicVariables(t *testing.T) {
	ctx := context.Background()
	store := batches.NewMemoryStore()
	seed(t, store, batches.PendingLead{LeadID: "lead-a"})

	platform := voiceagent.NewFake()
	platform.SetBatch(voiceagent.BatchDetail{
		ID:       batch,
		CallName: "Herbstaktion",
		Status:   voiceagent.BatchStatusInProgress,
		Calls: []voiceagent.Recipient{{
			ID:                 "lead-x",
			PhoneNumber:        "+4930901899",
			Status:             "voicemail",
			DurationSeconds:    ptr(3),
			StartTimestampUnix: ptr(int64(1_700_000_100)),
			ConversationInitiationClientData: &voiceagent.ClientData{
				DynamicVariables: map[string]any{"vorname": "Xaver", "firma": "ACME"},
			},
		}},
	})
	svc := NewService(store, platform, batches.NewDetector(store, nil))

	res, err := svc.Sync(ctx, tenant, batch)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	r := res.Results[0]
	assert.Equal(t, "lead-x", r.LeadID)
	assert.Equal(t, "Xaver", r.FirstName)
	assert.Equal(t, "ACME", r.Company)
	assert.Equal(t, "+4930901899", r.PhoneNumber)
	assert.Equal(t, "Herbstaktion", r.CampaignLabel)
	assert.Equal(t, calls.OutcomeNoAnswer, r.Outcome)
	assert.Equal(t, 3, *r.DurationSeconds)
}
