package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/calls"
	"voicebatch-platform/internal/voiceagent"
	"voicebatch-platform/internal/webhook"
)

const webhookSecret = "whsec_test"

const leadABody = `{
  "type": "post_call_transcription",
  "data": {
    "conversation_id": "conv_a",
    "status": "done",
    "transcript": [{"role": "agent", "message": "Hallo"}],
    "metadata": {"start_time_unix_secs": 1700000000, "call_duration_secs": 42,
      "batch_call": {"batch_call_id": "btcal_1"}},
    "conversation_initiation_client_data": {"dynamic_variables": {"lead_id": "lead-a", "first_name": "Anna"}}
  }
}`

func TestWebhookAndSyncConvergeOnOneRow(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for i := 0; i < 20; i++ {
		ctx := context.Background()
		store := batches.NewMemoryStore()
		seed(t, store, batches.PendingLead{LeadID: "lead-a", FirstName: "Anna", PhoneNumber: "+4930901820"})
		detector := batches.NewDetector(store, nil)

		platform := voiceagent.NewFake()
		platform.SetBatch(voiceagent.BatchDetail{
			ID:         batch,
			Status:     voiceagent.BatchStatusInProgress,
			Recipients: []voiceagent.Recipient{recipient("lead-a", "completed", "conv_a")},
		})
		platform.Conversations["conv_a"] = voiceagent.Conversation{
			ConversationID: "conv_a",
			Status:         "done",
			Metadata:       voiceagent.Metadata{CallDurationSecs: ptr(42), StartTimeUnixSecs: ptr(int64(1_700_000_000))},
			Transcript:     []calls.TranscriptTurn{{Role: "agent", Message: "Hallo"}},
		}
		svc := NewService(store, platform, detector)

		h := webhook.Handler{
			Secret:    webhookSecret,
			Tolerance: webhook.DefaultTolerance,
			Leads:     store,
			Results:   store,
			Detector:  detector,
		}
		r := gin.New()
		r.POST("/webhooks/voice", h.Handle)

		var (
			wg       sync.WaitGroup
			code     int
			syncErr  error
			syncRows int
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", strings.NewReader(leadABody))
			req.Header.Set("xi-signature", webhook.Sign(webhookSecret, []byte(leadABody)))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			code = w.Code
		}()
		go func() {
			defer wg.Done()
			res, err := svc.Sync(ctx, tenant, batch)
			syncErr, syncRows = err, len(res.Results)
		}()
		wg.Wait()

		require.NoError(t, syncErr)
		assert.LessOrEqual(t, syncRows, 1)
		// The webhook loses the lead lookup when the poll already finished
		// the batch and cleaned up.
		assert.Contains(t, []int{http.StatusOK, http.StatusNotFound}, code)

		rows, err := store.ListCallResults(ctx, tenant, batch)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "lead-a", rows[0].LeadID)
		assert.Equal(t, calls.OutcomeSuccess, rows[0].Outcome)
		assert.Equal(t, 42, *rows[0].DurationSeconds)
		assert.Equal(t, "agent: Hallo", rows[0].Transcript)

		got, err := store.GetBatch(ctx, tenant, batch)
		require.NoError(t, err)
		assert.Equal(t, batches.BatchStatusCompleted, got.Status)
		pending, err := store.CountPendingLeads(ctx, tenant, batch)
		require.NoError(t, err)
		assert.Zero(t, pending)
	}
}
