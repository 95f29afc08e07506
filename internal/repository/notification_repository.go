package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/asmorodws/simlok2-sub012/internal/model"
)

// NotificationRepo provides data access to the notifications table.  Rows
// are the durable half of what the broadcaster fans out live: a dashboard
// that was offline during a publish still finds the notification here,
// while connected dashboards received it over their stream.  Scope
// filtering happens in SQL so a caller can never read outside the scopes
// resolved from its identity.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the given
// database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Create inserts a notification row and populates the generated ID and
// timestamp on the provided record.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (scope, type, permit_id, message) VALUES (?, ?, ?, ?)`,
		n.Scope, n.Type, n.PermitID, n.Message,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		`SELECT created_at FROM notifications WHERE id = ?`, n.ID,
	).Scan(&n.CreatedAt)
}

// ListByScopes returns up to limit notifications belonging to any of the
// given scopes, newest first.  An empty scope list yields an empty slice.
func (r *NotificationRepo) ListByScopes(ctx context.Context, scopes []string, limit int) ([]model.Notification, error) {
	if len(scopes) == 0 {
		return []model.Notification{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	placeholders := make([]string, 0, len(scopes))
	args := make([]interface{}, 0, len(scopes)+1)
	for _, s := range scopes {
		placeholders = append(placeholders, "?")
		args = append(args, s)
	}
	args = append(args, limit)
	q := `SELECT id, scope, type, permit_id, message, is_read, created_at
	      FROM notifications
	      WHERE scope IN (` + strings.Join(placeholders, ",") + `)
	      ORDER BY created_at DESC, id DESC
	      LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Scope, &n.Type, &n.PermitID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// CountUnread returns the number of unread notifications across the given
// scopes.
func (r *NotificationRepo) CountUnread(ctx context.Context, scopes []string) (int64, error) {
	if len(scopes) == 0 {
		return 0, nil
	}
	placeholders := make([]string, 0, len(scopes))
	args := make([]interface{}, 0, len(scopes))
	for _, s := range scopes {
		placeholders = append(placeholders, "?")
		args = append(args, s)
	}
	q := `SELECT COUNT(*) FROM notifications
	      WHERE is_read = FALSE AND scope IN (` + strings.Join(placeholders, ",") + `)`
	var count int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead flags a notification as read, but only when it belongs to one
// of the caller's scopes.  A notification outside those scopes (or one
// that does not exist) returns ErrNotificationNotFound, so a caller can
// never acknowledge another audience's notifications.
func (r *NotificationRepo) MarkRead(ctx context.Context, id uint64, scopes []string) error {
	if len(scopes) == 0 {
		return ErrNotificationNotFound
	}
	placeholders := make([]string, 0, len(scopes))
	args := make([]interface{}, 0, len(scopes)+1)
	args = append(args, id)
	for _, s := range scopes {
		placeholders = append(placeholders, "?")
		args = append(args, s)
	}
	q := `UPDATE notifications SET is_read = TRUE
	      WHERE id = ? AND scope IN (` + strings.Join(placeholders, ",") + `)`
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
