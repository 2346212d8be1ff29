package model

import (
	"errors"
	"time"
)

// PlaceholderUsername is shown whenever a profile document is missing or unreadable.
const PlaceholderUsername = "ddp_user"

// BirthdayLayout is the storage format of User.Birthday.
const BirthdayLayout = "2006-01-02"

// User is the profile document stored in the users collection, keyed by the
// auth identity id.
type User struct {
	ID        string    `db:"id" firestore:"-" json:"id"`
	Email     string    `db:"email" firestore:"mail" json:"email"`
	Username  string    `db:"username" firestore:"username" json:"username"`
	Birthday  string    `db:"birthday" firestore:"birthday" json:"birthday"`
	Gender    string    `db:"gender" firestore:"gender" json:"gender"`
	CreatedAt time.Time `db:"created_at" firestore:"createdAt" json:"created_at"`
	Followers []string  `db:"-" firestore:"followers" json:"followers"`
	Following []string  `db:"-" firestore:"following" json:"following"`
}

// PlaceholderUser returns the stand-in profile used for a missing document.
func PlaceholderUser(id string) *User {
	return &User{ID: id, Username: PlaceholderUsername}
}

// DisplayName returns the username, or the placeholder when it is empty.
func (u *User) DisplayName() string {
	if u == nil || u.Username == "" {
		return PlaceholderUsername
	}
	return u.Username
}

// IsFollowing reports whether targetID is in the user's following set.
func (u *User) IsFollowing(targetID string) bool {
	if u == nil {
		return false
	}
	return containsID(u.Following, targetID)
}

// HasFollower reports whether followerID is in the user's followers set.
func (u *User) HasFollower(followerID string) bool {
	if u == nil {
		return false
	}
	return containsID(u.Followers, followerID)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ProfileUpdate holds the editable profile fields. Empty fields are left unchanged.
type ProfileUpdate struct {
	Username string `json:"username"`
	Birthday string `json:"birthday"`
	Gender   string `json:"gender"`
}

// RegisterRequest represents the data needed to register a new user
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Birthday string `json:"birthday"`
	Gender   string `json:"gender"`
}

// Account is the credential record owned by the password session backend.
// It never leaves the auth subsystem.
type Account struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	DisplayName  string    `db:"display_name"`
	CreatedAt    time.Time `db:"created_at"`
}

var (
	// ErrUserNotFound is returned when a profile document cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrAccountNotFound is returned when no credential record matches
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailExists is returned when an account with the same email already exists
	ErrEmailExists = errors.New("email already exists")
)
