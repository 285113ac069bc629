package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Handler provides HTTP endpoints for account management.
type Handler struct {
	service *Service
}

// NewHandler creates a new users handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public account routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users", h.Register)
	r.GET("/users/:id", h.Get)
}

// RegisterAdminRoutes sets up admin-only account routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/users/:id/restrict", h.Restrict)
}

// RegisterRequest is the body for POST /users.
type RegisterRequest struct {
	Name              string   `json:"name" binding:"required"`
	Phone             string   `json:"phone" binding:"required"`
	UPIID             string   `json:"upiId"`
	DeviceFingerprint string   `json:"deviceFingerprint"`
	HomeLat           *float64 `json:"homeLat"`
	HomeLng           *float64 `json:"homeLng"`
}

// Register handles POST /v1/users
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name and phone are required",
		})
		return
	}

	u, err := h.service.Register(c.Request.Context(), RegisterInput{
		Name:              req.Name,
		Phone:             req.Phone,
		UPIID:             req.UPIID,
		DeviceFingerprint: req.DeviceFingerprint,
		IP:                c.ClientIP(),
		HomeLat:           req.HomeLat,
		HomeLng:           req.HomeLng,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, u)
}

// Get handles GET /v1/users/:id
func (h *Handler) Get(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

// RestrictRequest is the body for POST /admin/users/:id/restrict.
type RestrictRequest struct {
	Restricted bool `json:"restricted"`
}

// Restrict handles POST /v1/admin/users/:id/restrict
func (h *Handler) Restrict(c *gin.Context) {
	var req RestrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "restricted flag is required",
		})
		return
	}

	if err := h.service.SetRestricted(c.Request.Context(), c.Param("id"), req.Restricted); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":     c.Param("id"),
		"restricted": req.Restricted,
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
