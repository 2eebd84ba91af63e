package voiceagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestHTTPClient_SubmitBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/batch-calling/submit", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body SubmitBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Herbst", body.CallName)
		require.Len(t, body.Recipients, 1)
		assert.Equal(t, "lead-1", body.Recipients[0].ConversationInitiationClientData.String("lead_id"))

		_, _ = w.Write([]byte(`{"id":"btcal_1","name":"Herbst","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("secret-key", WithBaseURL(srv.URL+"/"))
	resp, err := c.SubmitBatch(context.Background(), SubmitBatchRequest{
		CallName: "Herbst",
		AgentID:  "agent",
		Recipients: []OutboundRecipient{{
			PhoneNumber:                      "+4930901820",
			ConversationInitiationClientData: &ClientData{DynamicVariables: map[string]any{"lead_id": "lead-1"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "btcal_1", resp.ID)
}

func TestHTTPClient_GetBatch_LegacyCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batch-calling/btcal_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"btcal_1","status":"completed","calls":[{"id":"c1","lead_id":"l1","phone_number":"+1","status":"completed"}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("k", WithBaseURL(srv.URL))
	b, err := c.GetBatch(context.Background(), "btcal_1")
	require.NoError(t, err)
	assert.Equal(t, BatchStatusCompleted, b.Status)
	require.Len(t, b.AllRecipients(), 1)
	assert.Equal(t, "l1", b.AllRecipients()[0].ResolveLeadID())
}

func TestHTTPClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"not found"}`))
	}))
	defer srv.Close()

	var observed atomic.Int32
	c := NewHTTPClient("k", WithBaseURL(srv.URL), WithObserver(func(op string, status int, d time.Duration) {
		assert.Equal(t, "get_conversation", op)
		observed.Store(int32(status))
	}))
	_, err := c.GetConversation(context.Background(), "conv_1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Body, "not found")
	assert.Equal(t, int32(http.StatusNotFound), observed.Load())
}

func TestHTTPClient_RateLimiterHonoursContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"id":"b"}`))
	}))
	defer srv.Close()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := NewHTTPClient("k", WithBaseURL(srv.URL), WithRateLimiter(limiter))

	_, err := c.GetBatch(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetBatch(ctx, "b")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestConversation_Extraction(t *testing.T) {
	raw := `{
		"conversation_id": "conv_1",
		"status": "done",
		"transcript": [{"role":"agent","message":"Hallo"},{"role":"user","message":"Ja"}],
		"metadata": {"start_time_unix_secs": 1700000000, "call_duration_secs": 42, "termination_reason": "end_call tool"},
		"analysis": {"data_collection_results": {
			"answer_1": {"value": "ja"},
			"answer_2": {"value": 3},
			"answer_4": {"value": null},
			"other":    {"value": "x"}
		}}
	}`
	var c Conversation
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	assert.Equal(t, "success", string(c.Outcome()))
	require.NotNil(t, c.StartedAt())
	assert.Equal(t, int64(1700000000), *c.StartedAt())
	assert.Equal(t, "agent: Hallo --- user: Ja", c.FlatTranscript())

	a := c.Answers()
	require.NotNil(t, a)
	assert.Equal(t, "ja", *a.Get(1))
	assert.Equal(t, "3", *a.Get(2))
	assert.Nil(t, a.Get(4))
}

func TestConversation_NoAnswers(t *testing.T) {
	assert.Nil(t, Conversation{}.Answers())
	assert.Nil(t, Conversation{Analysis: &Analysis{DataCollectionResults: map[string]DataCollectionResult{"x": {Value: "y"}}}}.Answers())
}

func TestRecipient_ResolveLeadID(t *testing.T) {
	r := Recipient{ID: "rid", LeadID: "lid"}
	assert.Equal(t, "lid", r.ResolveLeadID())
	r.ConversationInitiationClientData = &ClientData{DynamicVariables: map[string]any{"lead_id": "dyn"}}
	assert.Equal(t, "dyn", r.ResolveLeadID())
	assert.Equal(t, "rid", Recipient{ID: "rid"}.ResolveLeadID())
}
