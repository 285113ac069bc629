package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Handler provides HTTP endpoints for escrow operations. The caller's
// identity comes from the X-User-ID header set by the session layer.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/problems/:id/escrow", h.Lock)
	r.GET("/problems/:id/escrow", h.GetByProblem)
	r.POST("/problems/:id/escrow/release", h.Release)
	r.POST("/problems/:id/escrow/dispute", h.Dispute)
	r.GET("/users/:id/escrows", h.ListByUser)
}

// LockRequest is the body for POST /problems/:id/escrow.
type LockRequest struct {
	HelperID  string `json:"helperId" binding:"required"`
	AmountINR int64  `json:"amountInr" binding:"required"`
}

// Lock handles POST /v1/problems/:id/escrow
func (h *Handler) Lock(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		return
	}

	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "helperId and amountInr are required",
		})
		return
	}

	t, err := h.service.Lock(c.Request.Context(), c.Param("id"), caller, req.HelperID, req.AmountINR)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

// GetByProblem handles GET /v1/problems/:id/escrow
func (h *Handler) GetByProblem(c *gin.Context) {
	t, err := h.service.GetByProblem(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// Release handles POST /v1/problems/:id/escrow/release
func (h *Handler) Release(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		return
	}

	t, err := h.service.Release(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// DisputeRequest is the body for POST /problems/:id/escrow/dispute.
type DisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Dispute handles POST /v1/problems/:id/escrow/dispute
func (h *Handler) Dispute(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		return
	}

	var req DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}

	t, err := h.service.Dispute(c.Request.Context(), c.Param("id"), caller, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

// ListByUser handles GET /v1/users/:id/escrows
func (h *Handler) ListByUser(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.service.ListByUser(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"escrows": list,
		"count":   len(list),
	})
}

func callerID(c *gin.Context) string {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthenticated",
			"message": "X-User-ID header is required",
		})
	}
	return id
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
	case errors.Is(err, apperr.ErrPrecondition):
		status = http.StatusForbidden
		code = "precondition_failed"
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
		code = "conflict"
	case errors.Is(err, apperr.ErrTransient):
		status = http.StatusServiceUnavailable
		code = "store_unavailable"
		message = "Temporary storage problem, try again"
	default:
		// Unclassified errors must not leak internals to the client.
		message = "Unexpected server error"
	}
	c.JSON(status, gin.H{"error": code, "message": message})
}
