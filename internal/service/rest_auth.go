package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"ddpcore/internal/httputil"
	"ddpcore/internal/model"
	"ddpcore/internal/prefs"
)

// userRefKey holds the signed-in user reference in the ephemeral store.
const userRefKey = "@ddp_user_logged_in"

// RESTBackend talks to an Identity Toolkit compatible REST API. The ID token
// is kept in memory only, so a restart always begins unauthenticated.
type RESTBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
	store   prefs.Store

	mu       sync.Mutex
	idToken  string
	identity *model.Identity
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"users"`
}

// NewRESTBackend creates the backend. store should not outlive the process.
func NewRESTBackend(baseURL, apiKey string, client *http.Client, store prefs.Store) *RESTBackend {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if store == nil {
		store = prefs.NewMemoryStore()
	}
	return &RESTBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		store:   store,
	}
}

func (b *RESTBackend) Name() string { return "rest" }

func (b *RESTBackend) Available(ctx context.Context) error {
	if b.baseURL == "" || b.apiKey == "" {
		return model.NewAuthError(model.AuthUnavailable, errors.New("rest backend not configured"))
	}
	return nil
}

func (b *RESTBackend) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	var resp authResponse
	err := httputil.PostJSON(ctx, b.client, b.endpoint("signInWithPassword"), map[string]interface{}{
		"email":             strings.TrimSpace(email),
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, restAuthError(err)
	}

	return b.startSession(&resp, false), nil
}

func (b *RESTBackend) SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error) {
	var resp authResponse
	err := httputil.PostJSON(ctx, b.client, b.endpoint("signUp"), map[string]interface{}{
		"email":             strings.TrimSpace(email),
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, restAuthError(err)
	}

	if displayName != "" {
		err := httputil.PostJSON(ctx, b.client, b.endpoint("update"), map[string]interface{}{
			"idToken":           resp.IDToken,
			"displayName":       displayName,
			"returnSecureToken": false,
		}, nil)
		if err != nil {
			// The account exists at this point; only the name is missing.
			log.Warn().Err(err).Str("user_id", resp.LocalID).Msg("Failed to set display name")
		} else {
			resp.DisplayName = displayName
		}
	}

	return b.startSession(&resp, false), nil
}

func (b *RESTBackend) SignInAnonymously(ctx context.Context) (*model.Identity, error) {
	var resp authResponse
	err := httputil.PostJSON(ctx, b.client, b.endpoint("signUp"), map[string]interface{}{
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, restAuthError(err)
	}

	return b.startSession(&resp, true), nil
}

// Restore returns the in-memory session if its token has not expired.
func (b *RESTBackend) Restore(ctx context.Context) (*model.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.identity == nil || b.idToken == "" {
		return nil, nil
	}
	if tokenExpired(b.idToken, time.Now()) {
		b.clearLocked()
		return nil, nil
	}
	identity := *b.identity
	return &identity, nil
}

func (b *RESTBackend) Reload(ctx context.Context) (*model.Identity, error) {
	b.mu.Lock()
	token := b.idToken
	current := b.identity
	b.mu.Unlock()
	if token == "" || current == nil {
		return nil, model.ErrNotAuthenticated
	}

	var resp lookupResponse
	err := httputil.PostJSON(ctx, b.client, b.endpoint("lookup"), map[string]interface{}{
		"idToken": token,
	}, &resp)
	if err != nil {
		return nil, restAuthError(err)
	}
	if len(resp.Users) == 0 {
		return nil, model.NewAuthError(model.AuthInvalidCredentials, errors.New("account no longer exists"))
	}

	u := resp.Users[0]
	identity := &model.Identity{
		ID:          u.LocalID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Anonymous:   current.Anonymous,
	}

	b.mu.Lock()
	b.identity = identity
	b.mu.Unlock()

	reloaded := *identity
	return &reloaded, nil
}

func (b *RESTBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
	return nil
}

func (b *RESTBackend) startSession(resp *authResponse, anonymous bool) *model.Identity {
	identity := &model.Identity{
		ID:          resp.LocalID,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		Anonymous:   anonymous,
	}

	b.mu.Lock()
	b.idToken = resp.IDToken
	b.identity = identity
	b.mu.Unlock()

	if ref, err := json.Marshal(identity); err == nil {
		if err := b.store.Set(userRefKey, string(ref)); err != nil {
			log.Warn().Err(err).Msg("Failed to record signed-in user")
		}
	}

	out := *identity
	return &out
}

func (b *RESTBackend) clearLocked() {
	b.idToken = ""
	b.identity = nil
	if err := b.store.Delete(userRefKey); err != nil {
		log.Warn().Err(err).Msg("Failed to clear signed-in user")
	}
}

func (b *RESTBackend) endpoint(method string) string {
	return fmt.Sprintf("%s/accounts:%s?key=%s", b.baseURL, method, url.QueryEscape(b.apiKey))
}

// tokenExpired reads the exp claim without verifying the signature; the
// provider verifies tokens, the client only avoids reusing stale ones.
// Tokens that are not JWTs never expire locally.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func restAuthError(err error) error {
	var apiErr *httputil.APIError
	if errors.As(err, &apiErr) {
		return model.NewAuthError(authCodeFor(apiErr.Reason), err)
	}
	return model.NewAuthError(model.AuthUnavailable, err)
}
