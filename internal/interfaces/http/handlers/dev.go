package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainErrors "github.com/goalforge/entitlement/internal/domain/errors"
	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/infrastructure/external/purchases"
	"github.com/goalforge/entitlement/internal/infrastructure/logging"
	"github.com/goalforge/entitlement/internal/interfaces/http/response"
)

// DevHandler serves the non-production test surface. Routing only mounts it
// when the environment allows it; each operation is additionally gated inside
// the reconciler.
type DevHandler struct {
	reconciler *service.Reconciler
	mock       *purchases.MockSource // nil when a real platform is wired
	logger     *zap.Logger
}

// NewDevHandler creates a new dev surface handler
func NewDevHandler(reconciler *service.Reconciler, mock *purchases.MockSource) *DevHandler {
	return &DevHandler{
		reconciler: reconciler,
		mock:       mock,
		logger:     logging.WithComponent("dev_handler"),
	}
}

// Reset clears all persisted entitlement state
// POST /dev/reset
func (h *DevHandler) Reset(c *gin.Context) {
	if err := h.reconciler.FullReset(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("entitlement state fully reset")
	response.OK(c, h.reconciler.Snapshot())
}

// CancelSubscription drops the local premium flag
// POST /dev/cancel-subscription
func (h *DevHandler) CancelSubscription(c *gin.Context) {
	if err := h.reconciler.DevCancelSubscription(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, h.reconciler.Snapshot())
}

// ExpireTrial rewrites the trial start so the window is already over
// POST /dev/expire-trial
func (h *DevHandler) ExpireTrial(c *gin.Context) {
	if err := h.reconciler.DevExpireTrial(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, h.reconciler.Snapshot())
}

// CancelNextPurchase makes the next simulated purchase report a user
// cancellation
// POST /dev/cancel-next-purchase
func (h *DevHandler) CancelNextPurchase(c *gin.Context) {
	if h.mock == nil {
		response.Conflict(c, "Simulated purchases are not active")
		return
	}
	h.mock.CancelNextPurchase()
	response.NoContent(c)
}

func (h *DevHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, domainErrors.ErrDevOnly) {
		response.Forbidden(c, "Not available in this environment")
		return
	}
	h.logger.Error("dev operation failed", zap.Error(err))
	response.InternalError(c, "dev operation failed")
}
