package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/calls"
	"voicebatch-platform/internal/voiceagent"
)

// Recognized "call finished" event types. Anything else is acknowledged and
// ignored.
var recognizedEvents = map[string]struct{}{
	"post_call_transcription": {},
	"post_call_analysis":      {},
	"call_ended":              {},
	"conversation_completed":  {},
	"call_completed":          {},
}

// IsRecognized reports whether eventType is a call-finished event.
func IsRecognized(eventType string) bool {
	_, ok := recognizedEvents[eventType]
	return ok
}

var (
	ErrMalformedPayload    = errors.New("webhook: malformed JSON payload")
	ErrUnrecognizedPayload = errors.New("webhook: payload matches no known schema")
)

// Schema versions.
const (
	// SchemaV1 is the envelope {"type", "event_timestamp", "data": {...}}.
	SchemaV1 = "v1"
	// SchemaV0 is the flat form {"event_type", ...conversation fields}.
	SchemaV0 = "v0"
)

// Event is a call-finished webhook reduced to what ingestion needs.
type Event struct {
	Type           string
	Schema         string
	LeadID         string
	BatchID        string
	ConversationID string

	FirstName     string
	LastName      string
	Company       string
	PhoneNumber   string
	CampaignLabel string

	Outcome         calls.Outcome
	StartedAtUnix   *int64
	DurationSeconds *int
	Transcript      string
	Answers         *calls.Answers
}

type envelope struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Status    string          `json:"status"`
	BatchID   string          `json:"batch_id"`
	BatchID0  string          `json:"batchid"`
}

func (e envelope) eventType() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Type
}

// conversationPayload is the conversation object plus the loose
// correlation fields some deliveries carry.
type conversationPayload struct {
	voiceagent.Conversation
	ID               string         `json:"id"`
	LeadID           string         `json:"lead_id"`
	BatchID          string         `json:"batch_id"`
	BatchID0         string         `json:"batchid"`
	DynamicVariables map[string]any `json:"dynamic_variables"`
}

// PeekEventType decodes just enough of body to read its event type.
func PeekEventType(body []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", ErrMalformedPayload
	}
	return env.eventType(), nil
}

// ParseEvent decodes a call-finished delivery.
//
// A body whose "data" member is an object is read as SchemaV1, anything else
// as SchemaV0. Lead id resolution: dynamic variable lead_id, lead_id,
// conversation_id, id. Batch id: metadata.batch_call.batch_call_id, batch_id,
// batchid (conversation first, then envelope).
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, ErrMalformedPayload
	}

	schema := SchemaV0
	raw := body
	if d := bytes.TrimSpace(env.Data); len(d) > 0 && d[0] == '{' {
		schema = SchemaV1
		raw = d
	}

	var p conversationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, ErrUnrecognizedPayload
	}

	vars := p.ConversationInitiationClientData
	if vars == nil && p.DynamicVariables != nil {
		vars = &voiceagent.ClientData{DynamicVariables: p.DynamicVariables}
	}

	ev := Event{
		Type:           env.eventType(),
		Schema:         schema,
		LeadID:         firstNonEmpty(vars.String("lead_id"), p.LeadID, p.ConversationID, p.ID),
		BatchID:        firstNonEmpty(batchCallID(p.Metadata), p.BatchID, p.BatchID0, env.BatchID, env.BatchID0),
		ConversationID: p.ConversationID,

		FirstName:     firstNonEmpty(vars.String("first_name"), vars.String("vorname")),
		LastName:      firstNonEmpty(vars.String("last_name"), vars.String("nachname")),
		Company:       firstNonEmpty(vars.String("company"), vars.String("firma")),
		PhoneNumber:   firstNonEmpty(vars.String("phone_number"), vars.String("nummer")),
		CampaignLabel: firstNonEmpty(vars.String("campaign_label"), vars.String("call_name")),

		Outcome:         calls.ClassifyOutcome(p.Metadata.TerminationReason, firstNonEmpty(p.Status, env.Status)),
		StartedAtUnix:   p.StartedAt(),
		DurationSeconds: p.Metadata.CallDurationSecs,
		Transcript:      p.FlatTranscript(),
		Answers:         p.Answers(),
	}

	if ev.LeadID == "" || ev.BatchID == "" {
		return Event{}, ErrUnrecognizedPayload
	}
	return ev, nil
}

// toResult converts the event into a result owned by lead's tenant.
// Recipient fields recorded at submission win over the payload.
func (e Event) toResult(lead batches.PendingLead) calls.CallResult {
	return calls.CallResult{
		TenantID:        lead.TenantID,
		BatchID:         e.BatchID,
		LeadID:          e.LeadID,
		FirstName:       firstNonEmpty(lead.FirstName, e.FirstName),
		LastName:        firstNonEmpty(lead.LastName, e.LastName),
		Company:         firstNonEmpty(lead.Company, e.Company),
		PhoneNumber:     firstNonEmpty(lead.PhoneNumber, e.PhoneNumber),
		CampaignLabel:   firstNonEmpty(lead.CampaignLabel, e.CampaignLabel),
		Outcome:         e.Outcome,
		StartedAtUnix:   e.StartedAtUnix,
		DurationSeconds: e.DurationSeconds,
		Transcript:      e.Transcript,
		Answers:         e.Answers,
	}
}

func batchCallID(m voiceagent.Metadata) string {
	if m.BatchCall == nil {
		return ""
	}
	return m.BatchCall.BatchCallID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
