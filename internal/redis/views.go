package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ViewLedger records which viewer has already counted a view of which photo,
// across sessions and devices. One key per (photo, viewer) pair acts as the
// idempotency key of the view-count increment.
type ViewLedger struct {
	client *redis.Client
}

func NewViewLedger(client *redis.Client) *ViewLedger {
	return &ViewLedger{client: client}
}

func viewKey(photoID, viewerID string) string {
	return fmt.Sprintf("view:%s:%s", photoID, viewerID)
}

// MarkViewed returns true if this is the first view of photoID by viewerID.
func (l *ViewLedger) MarkViewed(ctx context.Context, viewerID, photoID string) (bool, error) {
	first, err := l.client.SetNX(ctx, viewKey(photoID, viewerID), 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx view key: %w", err)
	}
	return first, nil
}

// Forget drops every view key of a deleted photo.
func (l *ViewLedger) Forget(ctx context.Context, photoID string) error {
	iter := l.client.Scan(ctx, 0, viewKey(photoID, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan view keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete view keys: %w", err)
	}
	return nil
}
