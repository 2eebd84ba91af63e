package reporting

import (
	"context"
	"errors"

	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// batches.Store satisfies it.
//
// IMPORTANT: methods must enforce tenant filtering.
type Repository interface {
	GetBatch(ctx context.Context, tenantID, batchID string) (batches.Batch, error)
	ListCallResults(ctx context.Context, tenantID, batchID string) ([]calls.CallResult, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) BatchSummary(ctx context.Context, tenantID, batchID string) (BatchSummary, error) {
	if tenantID == "" || batchID == "" {
		return BatchSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return BatchSummary{}, errors.New("reporting: repository not configured")
	}

	b, err := s.repo.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return BatchSummary{}, err
	}
	rows, err := s.repo.ListCallResults(ctx, tenantID, batchID)
	if err != nil {
		return BatchSummary{}, err
	}

	out := BatchSummary{
		TenantID:        tenantID,
		BatchID:         batchID,
		Name:            b.Name,
		Status:          string(b.Status),
		TotalRecipients: b.TotalRecipients,
	}
	timed := 0
	for _, r := range rows {
		out.TotalCalls++
		switch r.Outcome {
		case calls.OutcomeSuccess:
			out.SuccessCalls++
		case calls.OutcomeNoAnswer:
			out.NoAnswerCalls++
		case calls.OutcomeFailed:
			out.FailedCalls++
		}
		if r.Answers != nil && !r.Answers.Empty() {
			out.AnsweredCalls++
		}
		if r.DurationSeconds != nil {
			out.TotalDurationSeconds += *r.DurationSeconds
			timed++
		}
	}
	if timed > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / timed
	}
	if out.TotalCalls > 0 {
		out.SuccessRate = float64(out.SuccessCalls) / float64(out.TotalCalls)
	}
	// Results for recipients outside the submitted list do not make the
	// open count negative.
	if open := out.TotalRecipients - out.TotalCalls; open > 0 {
		out.OpenCalls = open
	}
	return out, nil
}
