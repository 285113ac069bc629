// Package notify stores user notifications and fans them out over the
// realtime hub. Dispatch is fire-and-forget: engines never wait on
// delivery.
package notify

import (
	"context"
	"time"

	"github.com/sahaay-app/sahaay/internal/idgen"
	"github.com/sahaay-app/sahaay/internal/logging"
	"github.com/sahaay-app/sahaay/internal/metrics"
)

// Priority orders notifications for the client UI.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is one delivered message.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// Dispatcher persists and broadcasts notifications. It satisfies the
// escrow machine's Notifier.
type Dispatcher struct {
	store Store
	hub   *Hub
}

// NewDispatcher creates a dispatcher. hub may be nil; persistence still
// happens.
func NewDispatcher(store Store, hub *Hub) *Dispatcher {
	return &Dispatcher{store: store, hub: hub}
}

// Notify records and broadcasts one notification. Errors are logged,
// never returned; delivery is best-effort.
func (d *Dispatcher) Notify(ctx context.Context, userID, typ, title, message, priority string) {
	p := Priority(priority)
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
	default:
		p = PriorityNormal
	}

	n := &Notification{
		ID:        idgen.WithPrefix("ntf_"),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Priority:  p,
		CreatedAt: time.Now(),
	}

	if err := d.store.Create(ctx, n); err != nil {
		logging.L(ctx).Warn("notification store failed",
			"userId", userID, "type", typ, "error", err)
	}

	if d.hub != nil {
		d.hub.BroadcastNotification(n)
	}

	metrics.NotificationsTotal.WithLabelValues(string(p)).Inc()
}

// List returns a user's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	return d.store.ListByUser(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one notification read.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id string) error {
	return d.store.MarkRead(ctx, userID, id)
}

// MarkAllRead marks everything read for a user.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) error {
	return d.store.MarkAllRead(ctx, userID)
}
