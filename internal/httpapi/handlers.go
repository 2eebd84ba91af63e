package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"voicebatch-platform/internal/audit"
	"voicebatch-platform/internal/auth"
	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/reconcile"
	"voicebatch-platform/internal/reporting"
	"voicebatch-platform/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Batches   *batches.Service
	Sync      *reconcile.Service
	Reporting *reporting.Service

	// Optional.
	Audit *audit.Service
}

// SubmitBatch starts a batch for the caller's tenant.
// RBAC: owner, broker.
func (h Handlers) SubmitBatch(c *gin.Context) {
	tenantID, ok := tenant(c)
	if !ok {
		return
	}
	var req batches.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}

	b, err := h.Batches.Submit(c.Request.Context(), tenantID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.Audit != nil {
		userID, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		if err := h.Audit.LogBatchSubmitted(c.Request.Context(), tenantID, b.BatchID, userID, role, c.ClientIP(), b.TotalRecipients); err != nil {
			logger.FromGin(c).Warn("audit batch_submitted failed", "batch_id", b.BatchID, "err", err)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": b})
}

// ListBatches pages through the tenant's batches, newest first.
func (h Handlers) ListBatches(c *gin.Context) {
	tenantID, ok := tenant(c)
	if !ok {
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		abort(c, http.StatusBadRequest, "page must be an integer")
		return
	}
	size, err := queryInt(c, "page_size")
	if err != nil {
		abort(c, http.StatusBadRequest, "page_size must be an integer")
		return
	}

	res, err := h.Batches.List(c.Request.Context(), tenantID, page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res.Batches, "pagination": res.Page})
}

type syncRequest struct {
	BatchID  string `json:"batchid"`
	BatchID2 string `json:"batch_id"`
}

// SyncBatch reconciles a batch against the voice platform.
// RBAC: owner, broker.
func (h Handlers) SyncBatch(c *gin.Context) {
	tenantID, ok := tenant(c)
	if !ok {
		return
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		batchID = strings.TrimSpace(req.BatchID2)
	}
	if batchID == "" {
		abort(c, http.StatusBadRequest, "Batch ID required")
		return
	}

	res, err := h.Sync.Sync(c.Request.Context(), tenantID, batchID)
	var syncErr *reconcile.SyncError
	if errors.As(err, &syncErr) {
		// Previously reconciled data stays visible when the platform is down.
		status, msg := http.StatusInternalServerError, "Failed to fetch batch results from voice platform"
		if errors.Is(err, reconcile.ErrUnknownOnPlatform) {
			status, msg = http.StatusNotFound, "Batch not found on voice platform"
		}
		c.AbortWithStatusJSON(status, gin.H{
			"success":    false,
			"error":      msg,
			"data":       res.Results,
			"batch_info": res.Info,
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res.Results, "batch_info": res.Info})
}

// BatchResults returns the stored results without contacting the platform.
func (h Handlers) BatchResults(c *gin.Context) {
	tenantID, ok := tenant(c)
	if !ok {
		return
	}
	b, results, err := h.Batches.Results(c.Request.Context(), tenantID, c.Param("batch_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "batch": b, "data": results})
}

func (h Handlers) BatchSummary(c *gin.Context) {
	tenantID, ok := tenant(c)
	if !ok {
		return
	}
	sum, err := h.Reporting.BatchSummary(c.Request.Context(), tenantID, c.Param("batch_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sum})
}

func tenant(c *gin.Context) (string, bool) {
	id, err := auth.TenantID(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "tenant_id required")
		return "", false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
