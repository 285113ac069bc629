package trust

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Handler provides HTTP endpoints for trust score operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new trust handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) trust routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/trust", h.GetTrust)
	r.GET("/users/:id/access/:action", h.CheckAccess)
}

// RegisterProtectedRoutes sets up routes that mutate scores. These are
// called by internal flows (escrow release, moderation) and admin tools.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/users/:id/trust/events", h.ApplyEvent)
}

// EventRequest is the body for POST /users/:id/trust/events.
type EventRequest struct {
	Event EventType `json:"event" binding:"required"`
	Delta *int      `json:"delta,omitempty"` // overrides the table delta (rating-driven)
}

// GetTrust handles GET /v1/users/:id/trust
func (h *Handler) GetTrust(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId": rec.UserID,
		"score":  rec.Score,
		"badge":  rec.Badge(),
	})
}

// ApplyEvent handles POST /v1/users/:id/trust/events
func (h *Handler) ApplyEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "event is required",
		})
		return
	}

	rec, err := h.service.Apply(c.Request.Context(), c.Param("id"), req.Event, req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId": rec.UserID,
		"score":  rec.Score,
		"badge":  rec.Badge(),
	})
}

// CheckAccess handles GET /v1/users/:id/access/:action
func (h *Handler) CheckAccess(c *gin.Context) {
	result, err := h.service.CheckAccess(c.Request.Context(), c.Param("id"), Action(c.Param("action")))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// writeError maps engine errors onto the API error shape.
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
