package voiceagent

import (
	"fmt"
	"strconv"
	"strings"

	"voicebatch-platform/internal/calls"
)

// SubmitBatchRequest is the body of POST /batch-calling/submit.
type SubmitBatchRequest struct {
	CallName           string              `json:"call_name"`
	AgentID            string              `json:"agent_id"`
	AgentPhoneNumberID string              `json:"agent_phone_number_id"`
	ScheduledTimeUnix  *int64              `json:"scheduled_time_unix,omitempty"`
	Recipients         []OutboundRecipient `json:"recipients"`
}

type OutboundRecipient struct {
	PhoneNumber                      string      `json:"phone_number"`
	ConversationInitiationClientData *ClientData `json:"conversation_initiation_client_data,omitempty"`
}

type ClientData struct {
	DynamicVariables map[string]any `json:"dynamic_variables,omitempty"`
}

// String returns dynamic variable key rendered as a string, or "".
func (d *ClientData) String(key string) string {
	if d == nil || d.DynamicVariables == nil {
		return ""
	}
	return stringify(d.DynamicVariables[key])
}

type SubmitBatchResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at_unix,omitempty"`
}

// BatchDetail is the body of GET /batch-calling/{id}.
// Older API revisions list recipients under "calls".
type BatchDetail struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	CallName             string      `json:"call_name"`
	Status               string      `json:"status"`
	TotalCallsScheduled  int         `json:"total_calls_scheduled"`
	TotalCallsDispatched int         `json:"total_calls_dispatched"`
	Recipients           []Recipient `json:"recipients"`
	Calls                []Recipient `json:"calls"`
}

// AllRecipients returns Recipients, falling back to the legacy Calls list.
func (b BatchDetail) AllRecipients() []Recipient {
	if len(b.Recipients) > 0 {
		return b.Recipients
	}
	return b.Calls
}

// Batch statuses reported by the platform.
const (
	BatchStatusPending    = "pending"
	BatchStatusInProgress = "in_progress"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
	BatchStatusCancelled  = "cancelled"
)

// Recipient is one entry of a batch detail.
type Recipient struct {
	ID                               string      `json:"id"`
	LeadID                           string      `json:"lead_id,omitempty"`
	PhoneNumber                      string      `json:"phone_number"`
	Status                           string      `json:"status"`
	ConversationID                   string      `json:"conversation_id,omitempty"`
	ConversationInitiationClientData *ClientData `json:"conversation_initiation_client_data,omitempty"`

	// Inline call data sent by older API revisions.
	DurationSeconds    *int                   `json:"duration_seconds,omitempty"`
	StartTimestampUnix *int64                 `json:"start_timestamp_unix,omitempty"`
	Transcript         []calls.TranscriptTurn `json:"transcript,omitempty"`
}

// ResolveLeadID returns the lead id injected at submission, then the
// recipient's own lead_id, then its platform id.
func (r Recipient) ResolveLeadID() string {
	if v := r.ConversationInitiationClientData.String("lead_id"); v != "" {
		return v
	}
	if r.LeadID != "" {
		return r.LeadID
	}
	return r.ID
}

// Conversation is the body of GET /conversations/{id} and the data block of
// post-call webhooks.
type Conversation struct {
	AgentID                          string                 `json:"agent_id"`
	ConversationID                   string                 `json:"conversation_id"`
	Status                           string                 `json:"status"`
	Transcript                       []calls.TranscriptTurn `json:"transcript"`
	Metadata                         Metadata               `json:"metadata"`
	Analysis                         *Analysis              `json:"analysis,omitempty"`
	ConversationInitiationClientData *ClientData            `json:"conversation_initiation_client_data,omitempty"`
}

type Metadata struct {
	StartTimeUnixSecs    *int64        `json:"start_time_unix_secs,omitempty"`
	AcceptedTimeUnixSecs *int64        `json:"accepted_time_unix_secs,omitempty"`
	CallDurationSecs     *int          `json:"call_duration_secs,omitempty"`
	TerminationReason    string        `json:"termination_reason,omitempty"`
	BatchCall            *BatchCallRef `json:"batch_call,omitempty"`
}

type BatchCallRef struct {
	BatchCallID string `json:"batch_call_id"`
	RecipientID string `json:"batch_call_recipient_id,omitempty"`
}

type Analysis struct {
	CallSuccessful        string                          `json:"call_successful,omitempty"`
	TranscriptSummary     string                          `json:"transcript_summary,omitempty"`
	DataCollectionResults map[string]DataCollectionResult `json:"data_collection_results,omitempty"`
}

type DataCollectionResult struct {
	DataCollectionID string `json:"data_collection_id,omitempty"`
	Value            any    `json:"value"`
	Rationale        string `json:"rationale,omitempty"`
}

// Outcome classifies the conversation.
func (c Conversation) Outcome() calls.Outcome {
	return calls.ClassifyOutcome(c.Metadata.TerminationReason, c.Status)
}

// StartedAt prefers the dial start time and falls back to the accepted time.
func (c Conversation) StartedAt() *int64 {
	if c.Metadata.StartTimeUnixSecs != nil {
		return c.Metadata.StartTimeUnixSecs
	}
	return c.Metadata.AcceptedTimeUnixSecs
}

// FlatTranscript renders the transcript as stored in call results.
func (c Conversation) FlatTranscript() string {
	return calls.FlattenTranscript(c.Transcript)
}

// Answers extracts answer_1..answer_5 from the analysis block, or nil.
func (c Conversation) Answers() *calls.Answers {
	if c.Analysis == nil || len(c.Analysis.DataCollectionResults) == 0 {
		return nil
	}
	var out calls.Answers
	for i := 1; i <= calls.AnswerSlots; i++ {
		res, ok := c.Analysis.DataCollectionResults[fmt.Sprintf("answer_%d", i)]
		if !ok {
			continue
		}
		if v := stringify(res.Value); v != "" {
			out.Set(i, v)
		}
	}
	if out.Empty() {
		return nil
	}
	return &out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
