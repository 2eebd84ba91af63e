package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"voicebatch-platform/internal/batches"
	"voicebatch-platform/pkg/logger"
)

// MaxBodyBytes caps the accepted webhook body.
const MaxBodyBytes = 1 << 20

// CompletionChecker is satisfied by *batches.Detector.
type CompletionChecker interface {
	Check(ctx context.Context, tenantID, batchID, source string) (bool, error)
}

// RejectionAuditor is satisfied by *audit.Service.
type RejectionAuditor interface {
	LogWebhookRejected(ctx context.Context, ip, reason string, status int) error
}

// Observer receives ingestion counters. *metrics.Metrics satisfies it.
type Observer interface {
	WebhookOutcome(outcome string)
	ResultUpserted(source string)
	BatchCompleted(source string)
}

// Source labels writes made by this path.
const Source = "webhook"

// Handler receives call-finished deliveries from the voice platform.
//
// Tenant scoping: the platform cannot authenticate as a tenant, so the owning
// tenant is resolved from the pending lead for (batch, lead).
type Handler struct {
	Secret    string
	Tolerance time.Duration

	Leads    batches.LeadRegistry
	Results  batches.ResultStore
	Detector CompletionChecker

	// Optional.
	Deliveries DeliveryLog
	Audit      RejectionAuditor
	// AuditLimit bounds rejection audit writes; rejections over the budget
	// are only counted. Nil audits every rejection.
	AuditLimit *rate.Limiter
	Observer   Observer

	Now func() time.Time
}

func (h Handler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()
	if h.Now == nil {
		h.Now = time.Now
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if err != nil || len(body) > MaxBodyBytes {
		h.reject(c, http.StatusBadRequest, "unreadable or oversized body", "bad_request")
		return
	}

	eventType, err := PeekEventType(body)
	if err != nil {
		log.Warn("webhook payload is not valid JSON", "err", err)
		h.reject(c, http.StatusBadRequest, "malformed JSON payload", "bad_request")
		return
	}
	if !IsRecognized(eventType) {
		log.Debug("webhook event ignored", "event_type", eventType)
		h.observe("ignored")
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}

	if err := VerifySignature(SignatureFromHeaders(c.Request.Header), body, h.Secret, h.Tolerance, h.Now()); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrMalformedSignature) {
			status = http.StatusBadRequest
		}
		if errors.Is(err, ErrMissingSecret) {
			log.Error("webhook secret not configured")
		} else {
			log.Warn("webhook signature rejected", "err", err)
		}
		h.reject(c, status, err.Error(), "unauthorized")
		return
	}

	if h.Deliveries != nil {
		seen, err := h.Deliveries.Seen(ctx, body)
		if err != nil {
			log.Warn("delivery log lookup failed", "err", err)
		} else if seen {
			log.Info("duplicate webhook delivery acknowledged", "event_type", eventType)
			h.observe("duplicate")
			c.JSON(http.StatusOK, gin.H{"success": true, "duplicate": true})
			return
		}
	}

	ev, err := ParseEvent(body)
	if err != nil {
		log.Warn("webhook payload rejected", "event_type", eventType, "err", err)
		h.reject(c, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	log = log.With("batch_id", ev.BatchID, "lead_id", ev.LeadID, "schema", ev.Schema)

	lead, err := h.Leads.FindPendingLead(ctx, ev.BatchID, ev.LeadID)
	if err != nil {
		if errors.Is(err, batches.ErrNotFound) {
			log.Warn("no pending lead for webhook; batch cleaned up or stale delivery")
			h.observe("lead_not_found")
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no matching pending lead"})
			return
		}
		log.Error("pending lead lookup failed", "err", err)
		h.fail(c)
		return
	}
	log = log.With("tenant_id", lead.TenantID)
	ctx = logger.With(ctx, log)

	if _, err := h.Results.UpsertCallResult(ctx, ev.toResult(lead)); err != nil {
		log.Error("call result upsert failed", "err", err)
		h.fail(c)
		return
	}
	h.upserted()

	if err := h.Leads.CompleteLead(ctx, lead.TenantID, ev.BatchID, ev.LeadID); err != nil && !errors.Is(err, batches.ErrNotFound) {
		log.Error("mark lead completed failed", "err", err)
		h.fail(c)
		return
	}

	done, err := h.Detector.Check(ctx, lead.TenantID, ev.BatchID, Source)
	if err != nil {
		log.Error("completion check failed", "err", err)
		h.fail(c)
		return
	}
	if done && h.Observer != nil {
		h.Observer.BatchCompleted(Source)
	}

	if h.Deliveries != nil {
		if err := h.Deliveries.Record(ctx, body); err != nil {
			log.Warn("delivery log write failed", "err", err)
		}
	}

	log.Info("webhook processed", "outcome", ev.Outcome, "batch_completed", done)
	h.observe("processed")
	c.JSON(http.StatusOK, gin.H{"success": true, "outcome": ev.Outcome, "batch_completed": done})
}

func (h Handler) reject(c *gin.Context, status int, reason, outcome string) {
	switch {
	case h.Audit == nil:
	case h.AuditLimit != nil && !h.AuditLimit.Allow():
		logger.FromGin(c).Debug("rejection audit suppressed", "status", status)
	default:
		if err := h.Audit.LogWebhookRejected(c.Request.Context(), c.ClientIP(), reason, status); err != nil {
			logger.FromGin(c).Warn("audit webhook_rejected failed", "err", err)
		}
	}
	h.observe(outcome)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": reason})
}

func (h Handler) fail(c *gin.Context) {
	h.observe("error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}

func (h Handler) observe(outcome string) {
	if h.Observer != nil {
		h.Observer.WebhookOutcome(outcome)
	}
}

func (h Handler) upserted() {
	if h.Observer != nil {
		h.Observer.ResultUpserted(Source)
	}
}
