package batches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"voicebatch-platform/internal/calls"
	"voicebatch-platform/internal/voiceagent"
	"voicebatch-platform/pkg/logger"
	"voicebatch-platform/pkg/phone"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SubmitRequest starts an outbound batch.
type SubmitRequest struct {
	Name               string           `json:"call_name" validate:"required,max=200"`
	AgentID            string           `json:"agent_id" validate:"required"`
	AgentPhoneNumberID string           `json:"agent_phone_number_id" validate:"required"`
	ScheduledTimeUnix  *int64           `json:"scheduled_time_unix,omitempty" validate:"omitempty,gt=0"`
	CampaignLabel      string           `json:"campaign_label" validate:"max=500"`
	Recipients         []RecipientInput `json:"recipients" validate:"required,min=1,max=10000,dive"`
}

// RecipientInput is one lead of a SubmitRequest.
type RecipientInput struct {
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	Company     string `json:"company" validate:"max=200"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	// DynamicVariables are passed to the agent unchanged, except for the
	// keys reserved below.
	DynamicVariables map[string]any `json:"dynamic_variables,omitempty"`
}

// Keys injected into each recipient's dynamic variables.
const (
	VarLeadID        = "lead_id"
	VarTenantID      = "tenant_id"
	VarFirstName     = "first_name"
	VarLastName      = "last_name"
	VarCompany       = "company"
	VarPhoneNumber   = "phone_number"
	VarCampaignLabel = "campaign_label"
)

// ListResult is one page of batches.
type ListResult struct {
	Batches []Batch `json:"batches"`
	Page    Page    `json:"pagination"`
}

// Service owns batch submission and batch reads.
type Service struct {
	store    Store
	platform voiceagent.Client
	validate *validator.Validate
	region   string
	newID    func() string
	clock    func() time.Time
}

type ServiceOption func(*Service)

// WithPhoneRegion sets the region used for numbers without a country prefix.
func WithPhoneRegion(region string) ServiceOption {
	return func(s *Service) { s.region = region }
}

func NewService(store Store, platform voiceagent.Client, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		platform: platform,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		region:   phone.DefaultRegion,
		newID:    uuid.NewString,
		clock:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit validates req, submits it to the platform and records the batch
// with one pending lead per recipient.
func (s *Service) Submit(ctx context.Context, tenantID string, req SubmitRequest) (Batch, error) {
	if tenantID == "" {
		return Batch{}, fmt.Errorf("%w: tenant id is required", ErrInvalidArgument)
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return Batch{}, fmt.Errorf("%w: %s", ErrInvalidArgument, describeValidation(err))
	}

	leads := make([]PendingLead, 0, len(req.Recipients))
	outbound := make([]voiceagent.OutboundRecipient, 0, len(req.Recipients))
	for i, r := range req.Recipients {
		number, err := phone.NormalizeE164(r.PhoneNumber, s.region)
		if err != nil {
			return Batch{}, fmt.Errorf("%w: recipients[%d].phone_number %q is not a valid phone number", ErrInvalidArgument, i, r.PhoneNumber)
		}

		lead := PendingLead{
			LeadID:        s.newID(),
			TenantID:      tenantID,
			FirstName:     strings.TrimSpace(r.FirstName),
			LastName:      strings.TrimSpace(r.LastName),
			Company:       strings.TrimSpace(r.Company),
			PhoneNumber:   number,
			CampaignLabel: req.CampaignLabel,
			Status:        LeadStatusPending,
		}
		leads = append(leads, lead)

		vars := make(map[string]any, len(r.DynamicVariables)+7)
		for k, v := range r.DynamicVariables {
			vars[k] = v
		}
		vars[VarLeadID] = lead.LeadID
		vars[VarTenantID] = tenantID
		vars[VarFirstName] = lead.FirstName
		vars[VarLastName] = lead.LastName
		vars[VarCompany] = lead.Company
		vars[VarPhoneNumber] = number
		vars[VarCampaignLabel] = req.CampaignLabel

		outbound = append(outbound, voiceagent.OutboundRecipient{
			PhoneNumber:                      number,
			ConversationInitiationClientData: &voiceagent.ClientData{DynamicVariables: vars},
		})
	}

	scheduled := req.ScheduledTimeUnix
	if scheduled == nil {
		now := s.clock().Unix()
		scheduled = &now
	}

	resp, err := s.platform.SubmitBatch(ctx, voiceagent.SubmitBatchRequest{
		CallName:           req.Name,
		AgentID:            req.AgentID,
		AgentPhoneNumberID: req.AgentPhoneNumberID,
		ScheduledTimeUnix:  scheduled,
		Recipients:         outbound,
	})
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	name := resp.Name
	if name == "" {
		name = req.Name
	}
	b := Batch{
		TenantID:        tenantID,
		BatchID:         resp.ID,
		Name:            name,
		Status:          BatchStatusInProgress,
		TotalRecipients: len(leads),
	}
	for i := range leads {
		leads[i].BatchID = resp.ID
	}

	if err := s.store.CreateBatch(ctx, b, leads); err != nil {
		// The platform is already dialing; webhooks for this batch will 404
		// until the rows exist.
		logger.From(ctx).Error("batch submitted upstream but not recorded",
			"tenant_id", tenantID, "batch_id", resp.ID, "err", err)
		return Batch{}, fmt.Errorf("record batch %s: %w", resp.ID, err)
	}

	stored, err := s.store.GetBatch(ctx, tenantID, resp.ID)
	if err != nil {
		return b, nil
	}
	return stored, nil
}

// List returns one page of the tenant's batches, newest first.
// page is 1-based; pageSize defaults to DefaultPageSize.
func (s *Service) List(ctx context.Context, tenantID string, page, pageSize int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	items, total, err := s.store.ListBatches(ctx, tenantID, pageSize, (page-1)*pageSize)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Batches: items, Page: NewPage(page, pageSize, total)}, nil
}

// Results returns the batch and its call results.
func (s *Service) Results(ctx context.Context, tenantID, batchID string) (Batch, []calls.CallResult, error) {
	if batchID == "" {
		return Batch{}, nil, fmt.Errorf("%w: batch id is required", ErrInvalidArgument)
	}
	b, err := s.store.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	results, err := s.store.ListCallResults(ctx, tenantID, batchID)
	if err != nil {
		return Batch{}, nil, err
	}
	return b, results, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
