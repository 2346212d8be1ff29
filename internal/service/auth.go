package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"ddpcore/internal/model"
	"ddpcore/internal/prefs"
	"ddpcore/internal/repository"
)

const (
	// sessionTokenKey is the prefs key holding the signed session token.
	sessionTokenKey = "session_token"

	// MinPasswordLength is the shortest password the password backend accepts.
	MinPasswordLength = 6

	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

// PasswordBackend authenticates against the accounts table with bcrypt
// hashes and keeps the session as an HS256 token in device-local prefs, so
// it survives restarts.
type PasswordBackend struct {
	accounts repository.AccountRepository
	store    prefs.Store
	secret   []byte
	maxAge   time.Duration

	mu      sync.Mutex
	current *model.Identity
}

func NewPasswordBackend(accounts repository.AccountRepository, store prefs.Store, secret string, maxAge time.Duration) *PasswordBackend {
	return &PasswordBackend{
		accounts: accounts,
		store:    store,
		secret:   []byte(secret),
		maxAge:   maxAge,
	}
}

func (b *PasswordBackend) Name() string { return "password" }

func (b *PasswordBackend) Available(ctx context.Context) error {
	if b.accounts == nil || len(b.secret) == 0 {
		return model.NewAuthError(model.AuthUnavailable, errors.New("password backend not configured"))
	}
	if err := b.accounts.Ping(ctx); err != nil {
		return model.NewAuthError(model.AuthUnavailable, err)
	}
	return nil
}

func (b *PasswordBackend) SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewAuthError(model.AuthInvalidEmail, err)
	}
	if len(password) < MinPasswordLength {
		return nil, model.NewAuthError(model.AuthWeakPassword, nil)
	}
	if len(password) > MaxPasswordBytes {
		return nil, model.NewAuthError(model.AuthWeakPassword, bcrypt.ErrPasswordTooLong)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, model.NewAuthError(model.AuthUnavailable, fmt.Errorf("failed to hash password: %w", err))
	}

	account := &model.Account{
		Email:        email,
		PasswordHash: string(hashed),
		DisplayName:  displayName,
	}
	if err := b.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, model.ErrEmailExists) {
			return nil, model.NewAuthError(model.AuthEmailInUse, err)
		}
		return nil, model.NewAuthError(model.AuthUnavailable, err)
	}

	return b.startSession(account), nil
}

// SignIn does not reveal whether the email exists.
func (b *PasswordBackend) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	account, err := b.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, model.NewAuthError(model.AuthInvalidCredentials, nil)
		}
		return nil, model.NewAuthError(model.AuthUnavailable, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewAuthError(model.AuthInvalidCredentials, nil)
	}

	return b.startSession(account), nil
}

func (b *PasswordBackend) SignInAnonymously(ctx context.Context) (*model.Identity, error) {
	return nil, model.NewAuthError(model.AuthOperationNotAllowed, errors.New("anonymous sign-in is not supported by the password backend"))
}

func (b *PasswordBackend) Restore(ctx context.Context) (*model.Identity, error) {
	token, ok := b.store.Get(sessionTokenKey)
	if !ok || token == "" {
		return nil, nil
	}

	accountID, err := b.parseToken(token)
	if err != nil {
		log.Info().Err(err).Msg("Stored session token rejected")
		b.forgetToken()
		return nil, nil
	}

	account, err := b.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			b.forgetToken()
			return nil, nil
		}
		return nil, model.NewAuthError(model.AuthUnavailable, err)
	}

	identity := identityOf(account)
	b.mu.Lock()
	b.current = identity
	b.mu.Unlock()
	return identity, nil
}

func (b *PasswordBackend) Reload(ctx context.Context) (*model.Identity, error) {
	b.mu.Lock()
	current := b.current
	b.mu.Unlock()
	if current == nil {
		return nil, model.ErrNotAuthenticated
	}

	account, err := b.accounts.GetByID(ctx, current.ID)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, model.NewAuthError(model.AuthInvalidCredentials, err)
		}
		return nil, model.NewAuthError(model.AuthUnavailable, err)
	}
	return identityOf(account), nil
}

func (b *PasswordBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()

	if err := b.store.Delete(sessionTokenKey); err != nil {
		return fmt.Errorf("forget session token: %w", err)
	}
	return nil
}

func (b *PasswordBackend) startSession(account *model.Account) *model.Identity {
	identity := identityOf(account)

	token, err := b.generateToken(account.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", account.ID).Msg("Failed to sign session token")
	} else if err := b.store.Set(sessionTokenKey, token); err != nil {
		log.Warn().Err(err).Str("user_id", account.ID).Msg("Session token not persisted, session ends with the process")
	}

	b.mu.Lock()
	b.current = identity
	b.mu.Unlock()
	return identity
}

func (b *PasswordBackend) generateToken(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": accountID,
		"exp":     now.Add(b.maxAge).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(b.secret)
}

func (b *PasswordBackend) parseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return b.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	accountID, ok := claims["user_id"].(string)
	if !ok || accountID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return accountID, nil
}

func (b *PasswordBackend) forgetToken() {
	if err := b.store.Delete(sessionTokenKey); err != nil {
		log.Warn().Err(err).Msg("Failed to drop stale session token")
	}
}

func identityOf(a *model.Account) *model.Identity {
	return &model.Identity{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
