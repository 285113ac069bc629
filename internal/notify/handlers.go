package notify

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sahaay-app/sahaay/internal/apperr"
)

// Handler provides HTTP endpoints for notifications and the realtime
// feed.
type Handler struct {
	dispatcher *Dispatcher
	hub        *Hub
}

// NewHandler creates a new notification handler. hub may be nil; the
// websocket route is skipped then.
func NewHandler(dispatcher *Dispatcher, hub *Hub) *Handler {
	return &Handler{dispatcher: dispatcher, hub: hub}
}

// RegisterRoutes sets up notification routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/notifications", h.List)
	r.POST("/users/:id/notifications/:nid/read", h.MarkRead)
	r.POST("/users/:id/notifications/read-all", h.MarkAllRead)
	if h.hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			h.hub.HandleWebSocket(c.Writer, c.Request)
		})
		r.GET("/ws/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, h.hub.Stats())
		})
	}
}

// List handles GET /v1/users/:id/notifications
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	unreadOnly := c.Query("unread") == "true"

	list, err := h.dispatcher.List(c.Request.Context(), c.Param("id"), unreadOnly, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"count":         len(list),
	})
}

// MarkRead handles POST /v1/users/:id/notifications/:nid/read
func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.dispatcher.MarkRead(c.Request.Context(), c.Param("id"), c.Param("nid")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MarkAllRead handles POST /v1/users/:id/notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) {
	if err := h.dispatcher.MarkAllRead(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
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
