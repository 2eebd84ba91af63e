package batches

import "time"

// Batch is one outbound calling campaign owned by a tenant.
// BatchID is the opaque id assigned by the voice-agent platform.
type Batch struct {
	TenantID        string      `json:"tenant_id"`
	BatchID         string      `json:"batch_id"`
	Name            string      `json:"name"`
	Status          BatchStatus `json:"status"`
	TotalRecipients int         `json:"total_recipients"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type BatchStatus string

const (
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// PendingLead tracks one recipient until its call resolves.
// Exactly one row exists per (BatchID, LeadID) until the batch completes.
type PendingLead struct {
	BatchID  string `json:"batch_id"`
	LeadID   string `json:"lead_id"`
	TenantID string `json:"tenant_id"`

	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Company       string `json:"company"`
	PhoneNumber   string `json:"phone_number"`
	CampaignLabel string `json:"campaign_label"`

	Status    LeadStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type LeadStatus string

const (
	LeadStatusPending   LeadStatus = "pending"
	LeadStatusCompleted LeadStatus = "completed"
)

// Page is a window over a paginated listing.
type Page struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
}

// NewPage computes paging metadata. page is 1-based.
func NewPage(page, pageSize, total int) Page {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Page{
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}
