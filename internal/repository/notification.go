package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ddpcore/internal/model"
	"ddpcore/internal/realtime"
)

type notificationRepository struct {
	db  *sqlx.DB
	bus realtime.Bus
}

func NewNotificationRepository(db *sqlx.DB, bus realtime.Bus) NotificationRepository {
	return &notificationRepository{db: db, bus: bus}
}

const notificationColumns = `id, recipient_id, sender_id, sender_name, message, type, related_id, read, created_at`

// Create inserts a new notification.
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if !model.IsValidNotificationType(n.Type) {
		return fmt.Errorf("%w: %q", model.ErrInvalidNotificationType, n.Type)
	}
	n.ID = uuid.NewString()
	query := `
		INSERT INTO notifications (id, recipient_id, sender_id, sender_name, message, type, related_id, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		n.ID, n.RecipientID, n.SenderID, n.SenderName, n.Message, n.Type, n.RelatedID, n.Read,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	publish(ctx, r.bus, realtime.NotificationsTopic(n.RecipientID), realtime.KindCreated, n.ID)
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// SetRead sets the read flag. Setting it to its current value is a no-op write.
func (r *notificationRepository) SetRead(ctx context.Context, id string, read bool) error {
	var recipientID string
	query := `UPDATE notifications SET read = $2 WHERE id = $1 RETURNING recipient_id`
	if err := r.db.QueryRowxContext(ctx, query, id, read).Scan(&recipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotificationNotFound
		}
		return fmt.Errorf("set notification read: %w", err)
	}

	publish(ctx, r.bus, realtime.NotificationsTopic(recipientID), realtime.KindUpdated, id)
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id string) error {
	var recipientID string
	err := r.db.QueryRowxContext(ctx, `DELETE FROM notifications WHERE id = $1 RETURNING recipient_id`, id).Scan(&recipientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}

	publish(ctx, r.bus, realtime.NotificationsTopic(recipientID), realtime.KindDeleted, id)
	return nil
}

func (r *notificationRepository) WatchForRecipient(ctx context.Context, recipientID string, fn func([]model.Notification)) error {
	load := func(ctx context.Context) ([]model.Notification, error) {
		query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
		items := []model.Notification{}
		if err := r.db.SelectContext(ctx, &items, query, recipientID); err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		return items, nil
	}
	return watchQuery(ctx, r.bus, realtime.NotificationsTopic(recipientID), load, fn)
}
