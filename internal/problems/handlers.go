package problems

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Handler provides HTTP endpoints for postings. The caller's identity
// comes from the X-User-ID header set by the session layer upstream.
type Handler struct {
	service *Service
}

// NewHandler creates a new problems handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up posting routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/problems", h.Post)
	r.GET("/problems", h.ListOpen)
	r.GET("/problems/:id", h.View)
	r.POST("/problems/:id/cancel", h.Cancel)
}

// PostRequest is the body for POST /problems.
type PostRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	RiskLevel   RiskLevel `json:"riskLevel" binding:"required"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	AmountINR   int64     `json:"amountInr"`
}

// Post handles POST /v1/problems
func (h *Handler) Post(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "title and riskLevel are required",
		})
		return
	}

	p, err := h.service.Post(c.Request.Context(), caller, PostInput{
		Title:       req.Title,
		Description: req.Description,
		RiskLevel:   req.RiskLevel,
		Lat:         req.Lat,
		Lng:         req.Lng,
		AmountINR:   req.AmountINR,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	tier, _ := TierFor(p.RiskLevel)
	c.JSON(http.StatusCreated, gin.H{
		"problem": p,
		"tier":    tier,
	})
}

// ListOpen handles GET /v1/problems
func (h *Handler) ListOpen(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, next, err := h.service.ListOpenFor(c.Request.Context(), caller, c.Query("cursor"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"problems":   list,
		"count":      len(list),
		"nextCursor": next,
		"hasMore":    next != "",
	})
}

// View handles GET /v1/problems/:id
func (h *Handler) View(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		return
	}

	p, err := h.service.View(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	tier, _ := TierFor(p.RiskLevel)
	c.JSON(http.StatusOK, gin.H{
		"problem": p,
		"tier":    tier,
	})
}

// Cancel handles POST /v1/problems/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	caller := callerID(c)
	if caller == "" {
		return
	}

	if err := h.service.Cancel(c.Request.Context(), caller, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"problemId": c.Param("id"),
		"status":    StatusCancelled,
	})
}

// callerID extracts the acting user from the request, aborting with 401
// when absent.
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
		message = "Unexpected server error"
	}
	c.JSON(status, gin.H{"error": code, "message": message})
}
