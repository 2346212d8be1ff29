package model

import (
	"errors"
	"fmt"
)

// Auth error codes
const (
	AuthInvalidCredentials  = "invalid_credentials"
	AuthEmailInUse          = "email_in_use"
	AuthWeakPassword        = "weak_password"
	AuthInvalidEmail        = "invalid_email"
	AuthOperationNotAllowed = "operation_not_allowed"
	AuthUnavailable         = "auth_unavailable"
	AuthUnknown             = "unknown"
)

var authMessages = map[string]string{
	AuthInvalidCredentials:  "E-posta veya parola hatalı",
	AuthEmailInUse:          "Bu email adresi zaten kullanılıyor",
	AuthWeakPassword:        "Parola çok zayıf",
	AuthInvalidEmail:        "Geçersiz email adresi",
	AuthOperationNotAllowed: "Bu giriş yöntemi etkin değil",
	AuthUnavailable:         "Kimlik doğrulama servisi kullanılamıyor",
	AuthUnknown:             "Giriş yapılamadı",
}

// AuthError is a failed sign-in, sign-up or session call. Message is the
// user-facing text; Err keeps the backend cause for logs.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

// NewAuthError builds an AuthError with the localized message for code.
func NewAuthError(code string, cause error) *AuthError {
	msg, ok := authMessages[code]
	if !ok {
		code = AuthUnknown
		msg = authMessages[AuthUnknown]
	}
	return &AuthError{Code: code, Message: msg, Err: cause}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Code, e.Err)
	}
	return "auth " + e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another AuthError by code, so sentinels like ErrAuthUnavailable
// work with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

var (
	ErrAuthInvalidCredentials = &AuthError{Code: AuthInvalidCredentials}
	ErrAuthEmailInUse         = &AuthError{Code: AuthEmailInUse}
	ErrAuthWeakPassword       = &AuthError{Code: AuthWeakPassword}
	ErrAuthUnavailable        = &AuthError{Code: AuthUnavailable}
	ErrAuthNotAllowed         = &AuthError{Code: AuthOperationNotAllowed}
)

// ValidationError is a client-side check that failed before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConsistencyWarning describes a missing or unreadable document that was
// replaced by a placeholder. It is logged, never returned from read paths.
type ConsistencyWarning struct {
	Entity string
	ID     string
	Err    error
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("%s %s unavailable: %v", w.Entity, w.ID, w.Err)
}

func (w *ConsistencyWarning) Unwrap() error { return w.Err }

// Upload stages
const (
	StageDecode  = "decode"
	StageResize  = "resize"
	StageEncode  = "encode"
	StageArchive = "archive"
	StageWrite   = "write"
)

// UploadFailure is a photo processing or persistence failure that happened
// after the local preview was already shown.
type UploadFailure struct {
	Stage string
	Err   error
}

func (e *UploadFailure) Error() string {
	return fmt.Sprintf("upload failed at %s: %v", e.Stage, e.Err)
}

func (e *UploadFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
