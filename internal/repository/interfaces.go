package repository

import (
	"context"

	"ddpcore/internal/model"
)

// Watch* methods deliver the full current result of their query once, then
// again after every change, until ctx is cancelled. They block; run them in
// their own goroutine. A failed re-read is logged and skipped.

type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	// Create writes the profile document keyed by user.ID with empty follow sets.
	Create(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error
	// Set-union / set-remove on the follow arrays. Each call is one independent write.
	AddFollowing(ctx context.Context, userID, targetID string) error
	RemoveFollowing(ctx context.Context, userID, targetID string) error
	AddFollower(ctx context.Context, userID, followerID string) error
	RemoveFollower(ctx context.Context, userID, followerID string) error
}

// AccountRepository stores credentials for the password session backend.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByID(ctx context.Context, id string) (*model.Account, error)
	Ping(ctx context.Context) error
}

type PhotoRepository interface {
	// Create assigns ID and CreatedAt; ViewCount starts at zero.
	Create(ctx context.Context, photo *model.Photo) error
	GetByID(ctx context.Context, id string) (*model.Photo, error)
	Delete(ctx context.Context, id string) error
	IncrementViewCount(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]model.Photo, error)
	// WatchAll watches every photo ordered by creation time, newest first.
	WatchAll(ctx context.Context, fn func([]model.Photo)) error
	WatchByUser(ctx context.Context, userID string, fn func([]model.Photo)) error
}

type NotificationRepository interface {
	// Create assigns ID and CreatedAt.
	Create(ctx context.Context, n *model.Notification) error
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	SetRead(ctx context.Context, id string, read bool) error
	// Delete is a hard delete; deleting a missing notification is not an error.
	Delete(ctx context.Context, id string) error
	// WatchForRecipient delivers the recipient's notifications in no particular order.
	WatchForRecipient(ctx context.Context, recipientID string, fn func([]model.Notification)) error
}
