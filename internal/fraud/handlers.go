package fraud

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Handler provides HTTP endpoints for fraud assessment and the audit
// trail. All routes are admin-facing; the server mounts them behind the
// admin guard.
type Handler struct {
	aggregator *Aggregator
	sweeper    *Sweeper
}

// NewHandler creates a new fraud handler. sweeper may be nil when the
// background job is disabled.
func NewHandler(aggregator *Aggregator, sweeper *Sweeper) *Handler {
	return &Handler{aggregator: aggregator, sweeper: sweeper}
}

// RegisterRoutes sets up fraud routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/fraud/assess", h.Assess)
	r.GET("/users/:id/fraud/assessments", h.ListAssessments)
	r.GET("/users/:id/fraud/signals", h.ListSignals)
	r.POST("/fraud/sweep", h.RunSweep)
}

// AssessRequest is the body for POST /fraud/assess. Evidence fields
// default to the user's stored profile values when omitted.
type AssessRequest struct {
	UserID            string `json:"userId" binding:"required"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	IPAddress         string `json:"ipAddress"`
	UPIID             string `json:"upiId"`
}

// Assess handles POST /v1/admin/fraud/assess
func (h *Handler) Assess(c *gin.Context) {
	var req AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId is required",
		})
		return
	}

	assessment, err := h.aggregator.Assess(c.Request.Context(),
		req.UserID, req.DeviceFingerprint, req.IPAddress, req.UPIID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// ListAssessments handles GET /v1/admin/users/:id/fraud/assessments
func (h *Handler) ListAssessments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	assessments, err := h.aggregator.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":      c.Param("id"),
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// ListSignals handles GET /v1/admin/users/:id/fraud/signals
func (h *Handler) ListSignals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	signals, err := h.aggregator.Signals(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  c.Param("id"),
		"signals": signals,
		"count":   len(signals),
	})
}

// RunSweep handles POST /v1/admin/fraud/sweep for on-demand sweeps.
func (h *Handler) RunSweep(c *gin.Context) {
	if h.sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "sweep_disabled",
			"message": "multi-account sweep is not configured",
		})
		return
	}

	marked, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := err.Error()
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
		code = "validation_error"
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, apperr.ErrTransient):
		status = http.StatusServiceUnavailable
		code = "store_unavailable"
		message = "Temporary storage problem, try again"
	default:
		message = "Unexpected server error"
	}
	c.JSON(status, gin.H{"error": code, "message": message})
}
