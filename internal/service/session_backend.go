package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"ddpcore/internal/config"
	"ddpcore/internal/model"
)

// SessionBackend is an auth provider. Failures are returned as *model.AuthError.
type SessionBackend interface {
	Name() string
	// Available probes whether the backend can serve requests right now.
	Available(ctx context.Context) error
	// Restore returns the identity of a session that survived from an
	// earlier run, or nil when there is none.
	Restore(ctx context.Context) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	// SignUp creates the identity and sets its display name.
	SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error)
	SignInAnonymously(ctx context.Context) (*model.Identity, error)
	// Reload re-reads the signed-in identity from the provider.
	Reload(ctx context.Context) (*model.Identity, error)
	SignOut(ctx context.Context) error
}

// SelectBackend picks the session backend for mode. In auto mode the primary
// backend is used when its probe succeeds, otherwise the fallback.
func SelectBackend(ctx context.Context, mode string, primary, fallback SessionBackend) (SessionBackend, error) {
	switch mode {
	case config.AuthModePassword:
		if primary == nil {
			return nil, fmt.Errorf("auth mode %q: password backend not configured", mode)
		}
		return primary, nil
	case config.AuthModeREST:
		if fallback == nil {
			return nil, fmt.Errorf("auth mode %q: rest backend not configured", mode)
		}
		return fallback, nil
	}

	if primary != nil {
		err := primary.Available(ctx)
		if err == nil {
			log.Info().Str("backend", primary.Name()).Msg("Session backend selected")
			return primary, nil
		}
		log.Warn().Err(err).Str("backend", primary.Name()).Msg("Primary session backend unavailable")
	}
	if fallback != nil {
		log.Info().Str("backend", fallback.Name()).Msg("Session backend selected (fallback)")
		return fallback, nil
	}
	return nil, model.NewAuthError(model.AuthUnavailable, nil)
}

// authCodeFor maps identity-provider error reasons to auth error codes.
func authCodeFor(reason string) string {
	switch reason {
	case "EMAIL_EXISTS":
		return model.AuthEmailInUse
	case "WEAK_PASSWORD":
		return model.AuthWeakPassword
	case "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "MISSING_PASSWORD", "INVALID_ID_TOKEN", "USER_NOT_FOUND":
		return model.AuthInvalidCredentials
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return model.AuthInvalidEmail
	case "OPERATION_NOT_ALLOWED", "PASSWORD_LOGIN_DISABLED", "ADMIN_ONLY_OPERATION":
		return model.AuthOperationNotAllowed
	}
	return model.AuthUnknown
}
