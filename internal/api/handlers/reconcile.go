package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"focusgate/internal/scheduler"
)

// Reconciler runs a wake on demand
type Reconciler interface {
	RunOnce(ctx context.Context) scheduler.Result
}

// ReconcileHandler triggers reconciler wakes
type ReconcileHandler struct {
	reconciler Reconciler
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(reconciler Reconciler) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

// Reconcile runs one wake and returns what it did
// POST /reconcile
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	c.JSON(http.StatusOK, h.reconciler.RunOnce(c.Request.Context()))
}
