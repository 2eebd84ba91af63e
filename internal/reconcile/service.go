package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/calls"
	"voicebatch-platform/internal/voiceagent"
	"voicebatch-platform/pkg/logger"
)

// Completer is satisfied by *batches.Detector.
type Completer interface {
	Check(ctx context.Context, tenantID, batchID, source string) (bool, error)
	Finalize(ctx context.Context, tenantID, batchID, source string) error
}

// Observer receives sync counters. *metrics.Metrics satisfies it.
type Observer interface {
	SyncOutcome(outcome string)
	ResultUpserted(source string)
	BatchCompleted(source string)
}

type Option func(*Service)

// WithLimiter caps concurrent syncs of the same batch.
func WithLimiter(l Limiter) Option { return func(s *Service) { s.limiter = l } }

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

// Service pulls batch state from the voice platform and reconciles it into
// the local result store. It is the fallback for dropped or late webhooks.
type Service struct {
	store    batches.Store
	platform voiceagent.Client
	detector Completer
	limiter  Limiter
	observer Observer
}

func NewService(store batches.Store, platform voiceagent.Client, detector Completer, opts ...Option) *Service {
	s := &Service{store: store, platform: platform, detector: detector}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync reconciles one batch and returns the freshly read result set.
//
// An upstream failure returns a *SyncError together with the local results.
// Recipients are processed one at a time; a failure on one recipient skips it
// for this pass only.
func (s *Service) Sync(ctx context.Context, tenantID, batchID string) (Result, error) {
	tenantID = strings.TrimSpace(tenantID)
	batchID = strings.TrimSpace(batchID)
	if tenantID == "" || batchID == "" {
		return Result{}, batches.ErrInvalidArgument
	}
	log := logger.From(ctx).With("tenant_id", tenantID, "batch_id", batchID)
	ctx = logger.With(ctx, log)

	local, err := s.store.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return Result{}, err
	}
	info := BatchInfo{Status: string(local.Status), TotalCalls: local.TotalRecipients}

	if s.limiter != nil {
		key := syncKey(tenantID, batchID)
		acquired, err := s.limiter.Acquire(ctx, key)
		switch {
		case err != nil:
			log.Warn("sync limiter unavailable; continuing without it", "err", err)
		case !acquired:
			log.Info("sync already in flight; returning local results")
			s.outcome("skipped")
			out, err := s.localResult(ctx, tenantID, batchID, info)
			out.Skipped = true
			return out, err
		default:
			defer func() {
				if err := s.limiter.Release(context.WithoutCancel(ctx), key); err != nil {
					log.Warn("sync limiter release failed", "err", err)
				}
			}()
		}
	}

	detail, err := s.platform.GetBatch(ctx, batchID)
	if err != nil {
		log.Error("fetch batch from platform failed", "err", err)
		s.outcome("upstream_error")
		if voiceagent.IsNotFound(err) {
			err = fmt.Errorf("%w: %w", ErrUnknownOnPlatform, err)
		}
		out, lerr := s.localResult(ctx, tenantID, batchID, info)
		if lerr != nil {
			return out, errors.Join(&SyncError{BatchID: batchID, Err: err}, lerr)
		}
		return out, &SyncError{BatchID: batchID, Err: err}
	}

	var reconciled, failed int
	recipients := detail.AllRecipients()
	for _, r := range recipients {
		wrote, err := s.reconcileRecipient(ctx, tenantID, batchID, detail, r)
		if err != nil {
			failed++
			log.Warn("recipient skipped for this pass", "lead_id", r.ResolveLeadID(), "recipient_status", r.Status, "err", err)
			continue
		}
		if wrote {
			reconciled++
		}
	}

	if err := s.settleBatch(ctx, tenantID, batchID, detail.Status); err != nil {
		s.outcome("error")
		return Result{}, err
	}

	info.Status = detail.Status
	info.TotalCalls = len(recipients)
	if info.TotalCalls == 0 {
		info.TotalCalls = detail.TotalCallsScheduled
	}
	out, err := s.localResult(ctx, tenantID, batchID, info)
	if err != nil {
		s.outcome("error")
		return out, err
	}
	out.Reconciled, out.Failed = reconciled, failed

	log.Info("batch synced", "platform_status", detail.Status, "recipients", len(recipients), "reconciled", reconciled, "failed", failed)
	if failed > 0 {
		s.outcome("partial")
	} else {
		s.outcome("ok")
	}
	return out, nil
}

// settleBatch applies the platform's batch status locally.
func (s *Service) settleBatch(ctx context.Context, tenantID, batchID, platformStatus string) error {
	switch platformStatus {
	case voiceagent.BatchStatusCompleted:
		local, err := s.store.GetBatch(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		if err := s.detector.Finalize(ctx, tenantID, batchID, Source); err != nil {
			return err
		}
		if local.Status != batches.BatchStatusCompleted {
			s.completed()
		}
		return nil
	case voiceagent.BatchStatusFailed, voiceagent.BatchStatusCancelled:
		moved, err := s.store.MarkBatchFailed(ctx, tenantID, batchID)
		if err != nil {
			return fmt.Errorf("mark batch failed: %w", err)
		}
		if moved {
			logger.From(ctx).Warn("platform reported batch as "+platformStatus, "batch_status", batches.BatchStatusFailed)
		}
		return nil
	default:
		done, err := s.detector.Check(ctx, tenantID, batchID, Source)
		if err != nil {
			return err
		}
		if done {
			s.completed()
		}
		return nil
	}
}

// reconcileRecipient reports whether it wrote a result.
func (s *Service) reconcileRecipient(ctx context.Context, tenantID, batchID string, detail voiceagent.BatchDetail, r voiceagent.Recipient) (bool, error) {
	leadID := r.ResolveLeadID()
	if leadID == "" {
		return false, errors.New("recipient carries no lead id")
	}
	key := calls.Key{TenantID: tenantID, BatchID: batchID, LeadID: leadID}

	if _, err := s.store.GetCallResult(ctx, key); err == nil {
		// Already recorded, usually by the webhook. Completing the lead again
		// heals a delivery that wrote the result but not the lead status.
		return false, s.completeLead(ctx, key)
	} else if !errors.Is(err, batches.ErrNotFound) {
		return false, err
	}

	outcome, terminal := classifyRecipient(r.Status)
	if !terminal {
		return false, nil
	}

	res := calls.CallResult{
		TenantID:        tenantID,
		BatchID:         batchID,
		LeadID:          leadID,
		Outcome:         outcome,
		StartedAtUnix:   r.StartTimestampUnix,
		DurationSeconds: r.DurationSeconds,
		Transcript:      calls.FlattenTranscript(r.Transcript),
	}

	if outcome == calls.OutcomeSuccess && r.ConversationID != "" {
		conv, err := s.platform.GetConversation(ctx, r.ConversationID)
		if err != nil {
			return false, fmt.Errorf("fetch conversation %s: %w", r.ConversationID, err)
		}
		res.Outcome = conv.Outcome()
		res.StartedAtUnix = pickPtr(conv.StartedAt(), res.StartedAtUnix)
		res.DurationSeconds = pickPtr(conv.Metadata.CallDurationSecs, res.DurationSeconds)
		res.Transcript = pick(conv.FlatTranscript(), res.Transcript)
		res.Answers = conv.Answers()
	}

	vars := r.ConversationInitiationClientData
	res.FirstName = pick(vars.String("first_name"), vars.String("vorname"))
	res.LastName = pick(vars.String("last_name"), vars.String("nachname"))
	res.Company = pick(vars.String("company"), vars.String("firma"))
	res.PhoneNumber = pick(vars.String("phone_number"), r.PhoneNumber)
	res.CampaignLabel = pick(vars.String("campaign_label"), detail.CallName, detail.Name)

	lead, err := s.store.FindPendingLead(ctx, batchID, leadID)
	switch {
	case err == nil && lead.TenantID != tenantID:
		return false, fmt.Errorf("lead %s belongs to another tenant", leadID)
	case err == nil:
		res.FirstName = pick(lead.FirstName, res.FirstName)
		res.LastName = pick(lead.LastName, res.LastName)
		res.Company = pick(lead.Company, res.Company)
		res.PhoneNumber = pick(lead.PhoneNumber, res.PhoneNumber)
		res.CampaignLabel = pick(lead.CampaignLabel, res.CampaignLabel)
	case !errors.Is(err, batches.ErrNotFound):
		return false, err
	}

	if _, err := s.store.UpsertCallResult(ctx, res); err != nil {
		return false, fmt.Errorf("upsert call result: %w", err)
	}
	if s.observer != nil {
		s.observer.ResultUpserted(Source)
	}
	return true, s.completeLead(ctx, key)
}

func (s *Service) completeLead(ctx context.Context, key calls.Key) error {
	err := s.store.CompleteLead(ctx, key.TenantID, key.BatchID, key.LeadID)
	if err != nil && !errors.Is(err, batches.ErrNotFound) {
		return fmt.Errorf("complete lead: %w", err)
	}
	return nil
}

func (s *Service) localResult(ctx context.Context, tenantID, batchID string, info BatchInfo) (Result, error) {
	rows, err := s.store.ListCallResults(ctx, tenantID, batchID)
	if err != nil {
		return Result{Results: []calls.CallResult{}, Info: info}, fmt.Errorf("list call results: %w", err)
	}
	if rows == nil {
		rows = []calls.CallResult{}
	}
	return Result{Results: rows, Info: info}, nil
}

func (s *Service) outcome(o string) {
	if s.observer != nil {
		s.observer.SyncOutcome(o)
	}
}

func (s *Service) completed() {
	if s.observer != nil {
		s.observer.BatchCompleted(Source)
	}
}

// classifyRecipient maps a per-recipient platform status to an outcome.
// terminal is false while the call has not finished.
func classifyRecipient(status string) (outcome calls.Outcome, terminal bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "done", "success":
		return calls.OutcomeSuccess, true
	case "voicemail", "no_answer", "no-answer", "busy", "declined":
		return calls.OutcomeNoAnswer, true
	case "failed", "error", "cancelled", "canceled":
		return calls.OutcomeFailed, true
	default:
		return "", false
	}
}

func pick(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func pickPtr[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}
