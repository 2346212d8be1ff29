package model

import (
	"errors"
	"time"
)

// Notification types
const (
	NotificationTypeFollow  = "follow"
	NotificationTypeLike    = "like"
	NotificationTypeComment = "comment"
)

const (
	// FollowMessage is the message text of a follow notification.
	FollowMessage = "seni takip etmeye başladı"

	// DefaultSenderName is used when the sender has neither a display name nor an email.
	DefaultSenderName = "Kullanıcı"
)

// Notification is a single document in the notifications collection.
// SenderName is a snapshot taken at creation and is not kept in sync with
// later profile edits.
type Notification struct {
	ID          string    `db:"id" firestore:"-" json:"id"`
	RecipientID string    `db:"recipient_id" firestore:"recipientId" json:"recipient_id"`
	SenderID    string    `db:"sender_id" firestore:"senderId" json:"sender_id"`
	SenderName  string    `db:"sender_name" firestore:"senderName" json:"sender_name"`
	Message     string    `db:"message" firestore:"message" json:"message"`
	Type        string    `db:"type" firestore:"type" json:"type"`
	RelatedID   *string   `db:"related_id" firestore:"relatedId" json:"related_id,omitempty"`
	Read        bool      `db:"read" firestore:"read" json:"read"`
	CreatedAt   time.Time `db:"created_at" firestore:"createdAt" json:"created_at"`
}

// IsValidNotificationType reports whether t is one of the known types.
func IsValidNotificationType(t string) bool {
	switch t {
	case NotificationTypeFollow, NotificationTypeLike, NotificationTypeComment:
		return true
	}
	return false
}

// Route kinds returned when a notification is opened.
const (
	RouteProfile = "profile"
	RoutePhoto   = "photo"
)

// Route is the navigation target of an opened notification.
type Route struct {
	Kind string
	ID   string
}

var (
	// ErrNotificationNotFound is returned when a notification cannot be found
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidNotificationType is returned when creating a notification of an unknown type
	ErrInvalidNotificationType = errors.New("invalid notification type")
)
