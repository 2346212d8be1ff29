package model

import (
	"errors"
	"strings"
)

// SessionStatus is the state of the session state machine.
type SessionStatus string

const (
	SessionLoading         SessionStatus = "loading"
	SessionUnauthenticated SessionStatus = "unauthenticated"
	SessionAuthenticated   SessionStatus = "authenticated"
)

// CanTransition reports whether the session may move from one status to another.
// Republishing an authenticated session (refresh, profile edit) is allowed.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case SessionLoading:
		return to == SessionUnauthenticated || to == SessionAuthenticated
	case SessionUnauthenticated:
		return to == SessionAuthenticated
	case SessionAuthenticated:
		return to == SessionUnauthenticated || to == SessionAuthenticated
	}
	return false
}

// Identity is the auth-provider view of the signed-in user.
type Identity struct {
	ID          string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Anonymous   bool   `json:"anonymous"`
}

// SenderName is the name snapshotted into notifications sent by this identity.
func (i *Identity) SenderName() string {
	if i == nil {
		return DefaultSenderName
	}
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if local, _, _ := strings.Cut(i.Email, "@"); local != "" {
		return local
	}
	return DefaultSenderName
}

// Session is the identity merged with its profile document. Profile is nil
// when the profile document does not exist.
type Session struct {
	User    Identity `json:"user"`
	Profile *User    `json:"profile"`
}

// SessionState is what the session manager publishes to its subscribers.
type SessionState struct {
	Status  SessionStatus
	Session *Session
}

var (
	// ErrNotAuthenticated is returned by operations that need a signed-in user
	ErrNotAuthenticated = errors.New("not authenticated")
)
