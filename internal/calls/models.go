package calls

import "time"

// CallResult is the durable record of one resolved call.
//
// Identity is the composite (TenantID, BatchID, LeadID); both ingestion paths
// upsert on that key. Nullable fields are pointers so "unknown" stays distinct
// from zero.
type CallResult struct {
	ID       int64  `json:"id"`
	TenantID string `json:"tenant_id"`
	BatchID  string `json:"batch_id"`
	LeadID   string `json:"lead_id"`

	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`

	CampaignLabel string  `json:"campaign_label,omitempty"`
	Outcome       Outcome `json:"outcome"`

	// StartedAtUnix is the call start time in unix seconds.
	StartedAtUnix   *int64 `json:"started_at_unix,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`

	Transcript string   `json:"transcript,omitempty"`
	Answers    *Answers `json:"answers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the de-duplication key of a result.
func (r CallResult) Key() Key {
	return Key{TenantID: r.TenantID, BatchID: r.BatchID, LeadID: r.LeadID}
}

// Key is the composite identity of a CallResult.
type Key struct {
	TenantID string
	BatchID  string
	LeadID   string
}

func (k Key) Valid() bool {
	return k.TenantID != "" && k.BatchID != "" && k.LeadID != ""
}

// Answers holds the five structured answer slots extracted by the agent.
type Answers struct {
	Answer1 *string `json:"answer_1,omitempty"`
	Answer2 *string `json:"answer_2,omitempty"`
	Answer3 *string `json:"answer_3,omitempty"`
	Answer4 *string `json:"answer_4,omitempty"`
	Answer5 *string `json:"answer_5,omitempty"`
}

// AnswerSlots is the number of structured answer slots.
const AnswerSlots = 5

// Set stores v in slot i (1-based). Out-of-range slots are ignored.
func (a *Answers) Set(i int, v string) {
	if p := a.slot(i); p != nil {
		s := v
		*p = &s
	}
}

// Get returns slot i (1-based) or nil.
func (a *Answers) Get(i int) *string {
	if a == nil {
		return nil
	}
	if p := a.slot(i); p != nil {
		return *p
	}
	return nil
}

// Empty reports whether no slot is set.
func (a *Answers) Empty() bool {
	if a == nil {
		return true
	}
	for i := 1; i <= AnswerSlots; i++ {
		if a.Get(i) != nil {
			return false
		}
	}
	return true
}

func (a *Answers) slot(i int) **string {
	switch i {
	case 1:
		return &a.Answer1
	case 2:
		return &a.Answer2
	case 3:
		return &a.Answer3
	case 4:
		return &a.Answer4
	case 5:
		return &a.Answer5
	default:
		return nil
	}
}
