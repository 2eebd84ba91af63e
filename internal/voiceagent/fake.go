package voiceagent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// Fake is an in-memory Client for tests and local runs.
type Fake struct {
	mu sync.Mutex

	Batches       map[string]BatchDetail
	Conversations map[string]Conversation
	// ConversationErrs fails GetConversation for the given ids.
	ConversationErrs map[string]error
	// BatchErr fails every GetBatch call when set.
	BatchErr error
	// SubmitErr fails every SubmitBatch call when set.
	SubmitErr error

	Submitted         []SubmitBatchRequest
	ConversationCalls []string
	nextID            int
}

func NewFake() *Fake {
	return &Fake{
		Batches:          make(map[string]BatchDetail),
		Conversations:    make(map[string]Conversation),
		ConversationErrs: make(map[string]error),
	}
}

func (f *Fake) SubmitBatch(ctx context.Context, req SubmitBatchRequest) (SubmitBatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return SubmitBatchResponse{}, f.SubmitErr
	}
	f.nextID++
	id := fmt.Sprintf("btcal_%d", f.nextID)
	f.Submitted = append(f.Submitted, req)

	detail := BatchDetail{ID: id, Name: req.CallName, Status: BatchStatusPending, TotalCallsScheduled: len(req.Recipients)}
	for i, r := range req.Recipients {
		detail.Recipients = append(detail.Recipients, Recipient{
			ID:                               fmt.Sprintf("%s_r%d", id, i+1),
			PhoneNumber:                      r.PhoneNumber,
			Status:                           "pending",
			ConversationInitiationClientData: r.ConversationInitiationClientData,
		})
	}
	f.Batches[id] = detail
	return SubmitBatchResponse{ID: id, Name: req.CallName, AgentID: req.AgentID, Status: BatchStatusPending}, nil
}

func (f *Fake) GetBatch(ctx context.Context, batchID string) (BatchDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BatchErr != nil {
		return BatchDetail{}, f.BatchErr
	}
	b, ok := f.Batches[batchID]
	if !ok {
		return BatchDetail{}, &APIError{Op: "get_batch", Status: http.StatusNotFound, Body: "batch not found"}
	}
	return b, nil
}

func (f *Fake) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConversationCalls = append(f.ConversationCalls, conversationID)
	if err := f.ConversationErrs[conversationID]; err != nil {
		return Conversation{}, err
	}
	c, ok := f.Conversations[conversationID]
	if !ok {
		return Conversation{}, &APIError{Op: "get_conversation", Status: http.StatusNotFound, Body: "conversation not found"}
	}
	return c, nil
}

// SetBatch replaces the stored detail of a batch.
func (f *Fake) SetBatch(b BatchDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Batches[b.ID] = b
}
