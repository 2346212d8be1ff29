package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ddpcore/internal/model"
	"ddpcore/internal/observable"
	"ddpcore/internal/repository"
)

// SessionSource exposes the current session to the other services.
type SessionSource interface {
	// Current returns the authenticated session, or nil.
	Current() *model.Session
}

// SessionManager owns the session state machine. The state is published
// through an observable; every transition goes through model.CanTransition.
type SessionManager struct {
	backend SessionBackend
	users   repository.UserRepository

	mu    sync.Mutex // serializes transitions
	state *observable.Value[model.SessionState]

	ready     chan struct{}
	readyOnce sync.Once
}

func NewSessionManager(backend SessionBackend, users repository.UserRepository) *SessionManager {
	return &SessionManager{
		backend: backend,
		users:   users,
		state:   observable.New(model.SessionState{Status: model.SessionLoading}),
		ready:   make(chan struct{}),
	}
}

// Start restores a persisted session, if any, and leaves loading.
func (m *SessionManager) Start(ctx context.Context) error {
	defer m.readyOnce.Do(func() { close(m.ready) })

	identity, err := m.backend.Restore(ctx)
	if err != nil {
		log.Warn().Err(err).Str("backend", m.backend.Name()).Msg("Session restore failed")
		m.publish(model.SessionUnauthenticated, nil)
		return nil
	}
	if identity == nil {
		m.publish(model.SessionUnauthenticated, nil)
		return nil
	}

	m.publish(model.SessionAuthenticated, m.sessionFor(ctx, identity))
	log.Info().Str("user_id", identity.ID).Msg("Session restored")
	return nil
}

// Wait blocks until Start has left the loading state.
func (m *SessionManager) Wait(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SessionManager) State() model.SessionState {
	return m.state.Get()
}

func (m *SessionManager) Current() *model.Session {
	st := m.state.Get()
	if st.Status != model.SessionAuthenticated {
		return nil
	}
	return st.Session
}

// Subscribe registers fn for state changes and returns the unsubscribe func.
// fn runs synchronously inside the transition and must not call Login,
// Logout or any other transition itself.
func (m *SessionManager) Subscribe(fn func(model.SessionState)) func() {
	return m.state.Subscribe(fn)
}

func (m *SessionManager) LoginWithEmail(ctx context.Context, email, password string) (*model.Session, error) {
	if strings.TrimSpace(email) == "" {
		return nil, &model.ValidationError{Field: "email", Message: "email is required"}
	}
	if password == "" {
		return nil, &model.ValidationError{Field: "password", Message: "password is required"}
	}

	identity, err := m.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	session := m.sessionFor(ctx, identity)
	m.publish(model.SessionAuthenticated, session)
	log.Info().Str("user_id", identity.ID).Msg("User logged in")
	return session, nil
}

// RegisterWithEmail creates the identity, then the profile document keyed by
// the identity id with empty follow sets.
func (m *SessionManager) RegisterWithEmail(ctx context.Context, req model.RegisterRequest) (*model.Session, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, &model.ValidationError{Field: "email", Message: "email is required"}
	}
	if req.Password == "" {
		return nil, &model.ValidationError{Field: "password", Message: "password is required"}
	}
	if err := validateBirthday(req.Birthday); err != nil {
		return nil, err
	}

	identity, err := m.backend.SignUp(ctx, req.Email, req.Password, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, err
	}

	profile := &model.User{
		ID:        identity.ID,
		Email:     identity.Email,
		Username:  strings.TrimSpace(req.Username),
		Birthday:  req.Birthday,
		Gender:    req.Gender,
		Followers: []string{},
		Following: []string{},
	}
	if err := m.users.Create(ctx, profile); err != nil {
		// The identity exists and is signed in; the session continues
		// without a profile until it is created.
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to create profile document")
		profile = nil
	}

	session := &model.Session{User: *identity, Profile: profile}
	m.publish(model.SessionAuthenticated, session)
	log.Info().Str("user_id", identity.ID).Msg("User registered")
	return session, nil
}

func (m *SessionManager) LoginAnonymously(ctx context.Context) (*model.Session, error) {
	identity, err := m.backend.SignInAnonymously(ctx)
	if err != nil {
		return nil, err
	}

	session := m.sessionFor(ctx, identity)
	m.publish(model.SessionAuthenticated, session)
	return session, nil
}

// Logout is idempotent. Local state is cleared even when the backend fails.
func (m *SessionManager) Logout(ctx context.Context) error {
	if err := m.backend.SignOut(ctx); err != nil {
		log.Warn().Err(err).Msg("Backend sign-out failed")
	}
	if m.state.Get().Status == model.SessionUnauthenticated {
		return nil
	}
	m.publish(model.SessionUnauthenticated, nil)
	log.Info().Msg("User logged out")
	return nil
}

// RefreshUser re-reads the identity and profile and republishes the session.
func (m *SessionManager) RefreshUser(ctx context.Context) error {
	if m.Current() == nil {
		return model.ErrNotAuthenticated
	}

	identity, err := m.backend.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload identity: %w", err)
	}

	m.publish(model.SessionAuthenticated, m.sessionFor(ctx, identity))
	return nil
}

// UpdateProfile writes the editable profile fields and refreshes the session.
func (m *SessionManager) UpdateProfile(ctx context.Context, update model.ProfileUpdate) error {
	current := m.Current()
	if current == nil {
		return model.ErrNotAuthenticated
	}
	if err := validateBirthday(update.Birthday); err != nil {
		return err
	}
	update.Username = strings.TrimSpace(update.Username)

	if err := m.users.UpdateProfile(ctx, current.User.ID, update); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	m.publish(model.SessionAuthenticated, m.sessionFor(ctx, &current.User))
	return nil
}

func (m *SessionManager) sessionFor(ctx context.Context, identity *model.Identity) *model.Session {
	return &model.Session{User: *identity, Profile: m.loadProfile(ctx, identity.ID)}
}

// loadProfile returns nil when the profile document is missing or unreadable.
func (m *SessionManager) loadProfile(ctx context.Context, userID string) *model.User {
	profile, err := m.users.Get(ctx, userID)
	if err == nil {
		return profile
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		warn := &model.ConsistencyWarning{Entity: "user", ID: userID, Err: err}
		log.Warn().Err(warn).Msg("Profile unreadable, continuing without it")
	}
	return nil
}

func (m *SessionManager) publish(status model.SessionStatus, session *model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.Get().Status
	if !model.CanTransition(from, status) {
		log.Debug().Str("from", string(from)).Str("to", string(status)).Msg("Session transition ignored")
		return
	}
	m.state.Set(model.SessionState{Status: status, Session: session})
}

func validateBirthday(birthday string) error {
	if birthday == "" {
		return nil
	}
	if _, err := time.Parse(model.BirthdayLayout, birthday); err != nil {
		return &model.ValidationError{Field: "birthday", Message: "expected YYYY-MM-DD"}
	}
	return nil
}
