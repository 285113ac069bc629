package notify

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sahaay-app/sahaay/internal/apperr"
)

// PostgresStore persists notifications in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed notification store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a notification.
func (s *PostgresStore) Create(ctx context.Context, n *Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, priority, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, string(n.Priority), n.Read, n.CreatedAt,
	)
	if err != nil {
		return apperr.Transientf("insert notification: %v", err)
	}
	return nil
}

// ListByUser returns up to limit notifications, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	q := `
		SELECT id, user_id, type, title, message, priority, read, created_at
		FROM notifications
		WHERE user_id = $1`
	if unreadOnly {
		q += ` AND read = FALSE`
	}
	q += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, apperr.Transientf("list notifications: %v", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		var priority string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &priority, &n.Read, &n.CreatedAt); err != nil {
			return nil, apperr.Transientf("scan notification: %v", err)
		}
		n.Priority = Priority(priority)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transientf("iterate notifications: %v", err)
	}
	return out, nil
}

// MarkRead marks one notification read.
func (s *PostgresStore) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return apperr.Transientf("mark notification read: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Transientf("mark notification read: %v", err)
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// MarkAllRead marks every notification read for a user.
func (s *PostgresStore) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE user_id = $1 AND read = FALSE`,
		userID,
	)
	if err != nil {
		return apperr.Transientf("mark all notifications read: %v", err)
	}
	return nil
}
