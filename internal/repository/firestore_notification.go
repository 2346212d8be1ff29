package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"ddpcore/internal/model"
)

type firestoreNotificationRepository struct {
	client *firestore.Client
}

// NewFirestoreNotificationRepository stores notifications in the notifications collection.
func NewFirestoreNotificationRepository(client *firestore.Client) NotificationRepository {
	return &firestoreNotificationRepository{client: client}
}

func setNotificationID(n *model.Notification, id string) { n.ID = id }

func (r *firestoreNotificationRepository) col() *firestore.CollectionRef {
	return r.client.Collection(CollectionNotifications)
}

func (r *firestoreNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if !model.IsValidNotificationType(n.Type) {
		return fmt.Errorf("%w: %q", model.ErrInvalidNotificationType, n.Type)
	}
	ref := r.col().NewDoc()
	wr, err := ref.Create(ctx, map[string]interface{}{
		"recipientId": n.RecipientID,
		"senderId":    n.SenderID,
		"senderName":  n.SenderName,
		"message":     n.Message,
		"type":        n.Type,
		"relatedId":   n.RelatedID,
		"read":        n.Read,
		"createdAt":   firestore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID = ref.ID
	n.CreatedAt = wr.UpdateTime
	return nil
}

func (r *firestoreNotificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, model.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	var n model.Notification
	if err := snap.DataTo(&n); err != nil {
		return nil, fmt.Errorf("decode notification %s: %w", id, err)
	}
	n.ID = snap.Ref.ID
	return &n, nil
}

func (r *firestoreNotificationRepository) SetRead(ctx context.Context, id string, read bool) error {
	if _, err := r.col().Doc(id).Update(ctx, []firestore.Update{{Path: "read", Value: read}}); err != nil {
		if isNotFound(err) {
			return model.ErrNotificationNotFound
		}
		return fmt.Errorf("set notification read: %w", err)
	}
	return nil
}

func (r *firestoreNotificationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.col().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// WatchForRecipient filters by recipient only; ordering is done by the caller
// so the query needs no composite index.
func (r *firestoreNotificationRepository) WatchForRecipient(ctx context.Context, recipientID string, fn func([]model.Notification)) error {
	q := r.col().Where("recipientId", "==", recipientID)
	return watchSnapshots(ctx, q, setNotificationID, fn)
}
