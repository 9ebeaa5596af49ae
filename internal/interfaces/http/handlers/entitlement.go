package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainErrors "github.com/goalforge/entitlement/internal/domain/errors"
	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/infrastructure/logging"
	"github.com/goalforge/entitlement/internal/interfaces/http/response"
)

// EntitlementHandler serves the subscription status surface
type EntitlementHandler struct {
	reconciler *service.Reconciler
	logger     *zap.Logger
}

// NewEntitlementHandler creates a new entitlement handler
func NewEntitlementHandler(reconciler *service.Reconciler) *EntitlementHandler {
	return &EntitlementHandler{
		reconciler: reconciler,
		logger:     logging.WithComponent("entitlement_handler"),
	}
}

// Status returns the current reconciled subscription snapshot
// GET /v1/status
func (h *EntitlementHandler) Status(c *gin.Context) {
	response.OK(c, h.reconciler.Snapshot())
}

// Features returns the current feature access table
// GET /v1/features
func (h *EntitlementHandler) Features(c *gin.Context) {
	response.OK(c, h.reconciler.FeatureAccess())
}

type startTrialRequest struct {
	Source string `json:"source"`
}

// StartTrial activates the once-per-install trial
// POST /v1/trial
func (h *EntitlementHandler) StartTrial(c *gin.Context) {
	var req startTrialRequest
	// Body is optional; the source tag is informational only.
	_ = c.ShouldBindJSON(&req)

	if err := h.reconciler.StartTrial(c.Request.Context(), req.Source); err != nil {
		h.fail(c, err, "failed to start trial")
		return
	}
	response.OK(c, h.reconciler.Snapshot())
}

type purchaseHTTPRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// Purchase buys a product. A user cancellation is a success response with
// cancelled set; the caller shows no error for it.
// POST /v1/purchase
func (h *EntitlementHandler) Purchase(c *gin.Context) {
	var req purchaseHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "product_id is required")
		return
	}

	receipt, err := h.reconciler.Purchase(c.Request.Context(), req.ProductID)
	if err != nil {
		h.fail(c, err, "purchase failed")
		return
	}
	if receipt == nil {
		response.OK(c, gin.H{"cancelled": true})
		return
	}
	response.OK(c, gin.H{
		"cancelled": false,
		"receipt":   receipt,
		"status":    h.reconciler.Snapshot(),
	})
}

// Restore replays historical purchases
// POST /v1/restore
func (h *EntitlementHandler) Restore(c *gin.Context) {
	restored, err := h.reconciler.Restore(c.Request.Context())
	if err != nil {
		h.fail(c, err, "restore failed")
		return
	}
	response.OK(c, gin.H{
		"restored": restored,
		"status":   h.reconciler.Snapshot(),
	})
}

// Refresh forces a fresh entitlement read; force=true also invalidates the
// platform-side cache first.
// POST /v1/refresh?force=true
func (h *EntitlementHandler) Refresh(c *gin.Context) {
	synced, err := h.reconciler.ForceRefresh(c.Request.Context(), c.Query("force") == "true")
	if err != nil {
		h.fail(c, err, "refresh failed")
		return
	}
	response.OK(c, gin.H{
		"synced": synced,
		"status": h.reconciler.Snapshot(),
	})
}

// Offerings lists purchasable packages
// GET /v1/offerings
func (h *EntitlementHandler) Offerings(c *gin.Context) {
	response.OK(c, gin.H{"packages": h.reconciler.Offerings(c.Request.Context())})
}

// Health reports service liveness
// GET /health
func (h *EntitlementHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"environment": h.reconciler.Env().String(),
	})
}

func (h *EntitlementHandler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, domainErrors.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domainErrors.ErrOperationInFlight):
		response.Conflict(c, "Another operation is already in progress")
	case errors.Is(err, domainErrors.ErrNotHydrated):
		response.ServiceUnavailable(c, "Service is still starting")
	case errors.Is(err, domainErrors.ErrPurchaseFailed):
		response.Error(c, http.StatusBadGateway, "PURCHASE_FAILED", "Purchase could not be completed")
	default:
		h.logger.Error(msg, zap.Error(err))
		response.InternalError(c, msg)
	}
}
