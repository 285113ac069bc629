package gps

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Handler provides HTTP endpoints for location pings.
type Handler struct {
	checker *Checker
}

// NewHandler creates a new GPS handler.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// RegisterRoutes sets up location routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users/:id/location", h.Ping)
	r.GET("/users/:id/location/consistency", h.Consistency)
}

// PingRequest is the body for POST /users/:id/location.
type PingRequest struct {
	Lat       float64    `json:"lat" binding:"required"`
	Lng       float64    `json:"lng" binding:"required"`
	Accuracy  float64    `json:"accuracy"`
	MockFlag  bool       `json:"mockFlag"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Ping handles POST /v1/users/:id/location
func (h *Handler) Ping(c *gin.Context) {
	var req PingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "lat and lng are required",
		})
		return
	}

	sample := Sample{
		Lat:      req.Lat,
		Lng:      req.Lng,
		Accuracy: req.Accuracy,
		MockFlag: req.MockFlag,
	}
	if req.Timestamp != nil {
		sample.Timestamp = *req.Timestamp
	}

	eval, err := h.checker.Check(c.Request.Context(), c.Param("id"), sample)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, eval)
}

// Consistency handles GET /v1/users/:id/location/consistency
func (h *Handler) Consistency(c *gin.Context) {
	score, err := h.checker.Consistency(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":           c.Param("id"),
		"consistencyScore": score,
	})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := err.Error()
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
		code = "validation_error"
	case errors.Is(err, apperr.ErrTransient):
		status = http.StatusServiceUnavailable
		code = "store_unavailable"
		message = "Temporary storage problem, try again"
	default:
		message = "Unexpected server error"
	}
	c.JSON(status, gin.H{"error": code, "message": message})
}
