package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ddpcore/internal/model"
)

// =============================================================================
// SESSION
// =============================================================================

type fakeSession struct {
	mu      sync.Mutex
	session *model.Session
}

func sessionFor(id, email, displayName string) *fakeSession {
	return &fakeSession{session: &model.Session{
		User: model.Identity{ID: id, Email: email, DisplayName: displayName},
	}}
}

func (f *fakeSession) Current() *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// =============================================================================
// USER REPOSITORY
// =============================================================================
//
// memUserRepository keeps profiles in a map and applies the follow writes
// with set semantics, so tests can assert on post-state.

type memUserRepository struct {
	mu    sync.Mutex
	users map[string]*model.User

	getFn         func(ctx context.Context, id string) (*model.User, error)
	addFollowerFn func(ctx context.Context, userID, followerID string) error
	createFn      func(ctx context.Context, user *model.User) error

	createCalls []model.User
	writes      int
}

func newMemUserRepository(users ...*model.User) *memUserRepository {
	r := &memUserRepository{users: make(map[string]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	if r.getFn != nil {
		return r.getFn(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *u
	cp.Followers = append([]string{}, u.Followers...)
	cp.Following = append([]string{}, u.Following...)
	return &cp, nil
}

func (r *memUserRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	r.createCalls = append(r.createCalls, *user)
	r.mu.Unlock()
	if r.createFn != nil {
		return r.createFn(ctx, user)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepository) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	if update.Username != "" {
		u.Username = update.Username
	}
	if update.Birthday != "" {
		u.Birthday = update.Birthday
	}
	if update.Gender != "" {
		u.Gender = update.Gender
	}
	return nil
}

func (r *memUserRepository) AddFollowing(ctx context.Context, userID, targetID string) error {
	return r.mutate(userID, func(u *model.User) { u.Following = addID(u.Following, targetID) })
}

func (r *memUserRepository) RemoveFollowing(ctx context.Context, userID, targetID string) error {
	return r.mutate(userID, func(u *model.User) { u.Following = removeID(u.Following, targetID) })
}

func (r *memUserRepository) AddFollower(ctx context.Context, userID, followerID string) error {
	if r.addFollowerFn != nil {
		if err := r.addFollowerFn(ctx, userID, followerID); err != nil {
			return err
		}
	}
	return r.mutate(userID, func(u *model.User) { u.Followers = addID(u.Followers, followerID) })
}

func (r *memUserRepository) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return r.mutate(userID, func(u *model.User) { u.Followers = removeID(u.Followers, followerID) })
}

func (r *memUserRepository) mutate(id string, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	u, ok := r.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (r *memUserRepository) user(id string) model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

func addID(ids []string, id string) []string {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// =============================================================================
// ACCOUNT REPOSITORY
// =============================================================================

type mockAccountRepository struct {
	mu       sync.Mutex
	byEmail  map[string]*model.Account
	nextID   int
	createFn func(ctx context.Context, account *model.Account) error
	pingFn   func(ctx context.Context) error
}

func newMockAccountRepository() *mockAccountRepository {
	return &mockAccountRepository{byEmail: make(map[string]*model.Account)}
}

func (m *mockAccountRepository) Create(ctx context.Context, account *model.Account) error {
	if m.createFn != nil {
		return m.createFn(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[account.Email]; ok {
		return model.ErrEmailExists
	}
	m.nextID++
	account.ID = fmt.Sprintf("acc-%d", m.nextID)
	account.CreatedAt = time.Now()
	cp := *account
	m.byEmail[account.Email] = &cp
	return nil
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byEmail {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, model.ErrAccountNotFound
}

func (m *mockAccountRepository) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

// =============================================================================
// PHOTO REPOSITORY
// =============================================================================

type mockPhotoRepository struct {
	mu sync.Mutex

	createFn      func(ctx context.Context, photo *model.Photo) error
	getByIDFn     func(ctx context.Context, id string) (*model.Photo, error)
	listByUserFn  func(ctx context.Context, userID string) ([]model.Photo, error)
	incrementFn   func(ctx context.Context, id string) error
	deleteCalls   []string
	incrementsFor map[string]int
	created       []model.Photo

	// watchAll receives the callback passed to WatchAll.
	watchAll chan func([]model.Photo)
}

func newMockPhotoRepository() *mockPhotoRepository {
	return &mockPhotoRepository{
		incrementsFor: make(map[string]int),
		watchAll:      make(chan func([]model.Photo), 1),
	}
}

func (m *mockPhotoRepository) Create(ctx context.Context, photo *model.Photo) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, photo); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if photo.ID == "" {
		photo.ID = fmt.Sprintf("photo-%d", len(m.created)+1)
	}
	photo.CreatedAt = time.Now()
	m.created = append(m.created, *photo)
	return nil
}

func (m *mockPhotoRepository) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrPhotoNotFound
}

func (m *mockPhotoRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, id)
	return nil
}

func (m *mockPhotoRepository) IncrementViewCount(ctx context.Context, id string) error {
	m.mu.Lock()
	m.incrementsFor[id]++
	m.mu.Unlock()
	if m.incrementFn != nil {
		return m.incrementFn(ctx, id)
	}
	return nil
}

func (m *mockPhotoRepository) ListByUser(ctx context.Context, userID string) ([]model.Photo, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return []model.Photo{}, nil
}

func (m *mockPhotoRepository) WatchAll(ctx context.Context, fn func([]model.Photo)) error {
	m.watchAll <- fn
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockPhotoRepository) WatchByUser(ctx context.Context, userID string, fn func([]model.Photo)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockPhotoRepository) increments(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementsFor[id]
}

// =============================================================================
// NOTIFICATION REPOSITORY
// =============================================================================

type mockNotificationRepository struct {
	mu sync.Mutex

	createFn  func(ctx context.Context, n *model.Notification) error
	getByIDFn func(ctx context.Context, id string) (*model.Notification, error)
	created   []model.Notification
	setRead   []setReadCall
	deleted   []string

	// watch receives the callback passed to WatchForRecipient.
	watch chan func([]model.Notification)
}

type setReadCall struct {
	ID   string
	Read bool
}

func newMockNotificationRepository() *mockNotificationRepository {
	return &mockNotificationRepository{watch: make(chan func([]model.Notification), 1)}
}

func (m *mockNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = fmt.Sprintf("n-%d", len(m.created)+1)
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrNotificationNotFound
}

func (m *mockNotificationRepository) SetRead(ctx context.Context, id string, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setRead = append(m.setRead, setReadCall{ID: id, Read: read})
	return nil
}

func (m *mockNotificationRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockNotificationRepository) WatchForRecipient(ctx context.Context, recipientID string, fn func([]model.Notification)) error {
	m.watch <- fn
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockNotificationRepository) createdNotifications() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Notification{}, m.created...)
}

// =============================================================================
// MEDIA STORE AND VIEW LEDGER
// =============================================================================

type fakeMediaStore struct {
	mu      sync.Mutex
	putErr  error
	objects map[string][]byte
	deleted []string
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{objects: make(map[string][]byte)}
}

func (s *fakeMediaStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return nil
}

func (s *fakeMediaStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

type fakeViewLedger struct {
	mu        sync.Mutex
	seen      map[string]bool
	forgotten []string
	err       error
}

func newFakeViewLedger() *fakeViewLedger {
	return &fakeViewLedger{seen: make(map[string]bool)}
}

func (l *fakeViewLedger) MarkViewed(ctx context.Context, viewerID, photoID string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := photoID + ":" + viewerID
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

func (l *fakeViewLedger) Forget(ctx context.Context, photoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forgotten = append(l.forgotten, photoID)
	return nil
}

// =============================================================================
// SESSION BACKEND
// =============================================================================

type mockBackend struct {
	name        string
	availableFn func(ctx context.Context) error
	restoreFn   func(ctx context.Context) (*model.Identity, error)
	signInFn    func(ctx context.Context, email, password string) (*model.Identity, error)
	signUpFn    func(ctx context.Context, email, password, displayName string) (*model.Identity, error)
	reloadFn    func(ctx context.Context) (*model.Identity, error)
	signOutFn   func(ctx context.Context) error

	signInCalls  int
	signOutCalls int
}

func (m *mockBackend) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockBackend) Available(ctx context.Context) error {
	if m.availableFn != nil {
		return m.availableFn(ctx)
	}
	return nil
}

func (m *mockBackend) Restore(ctx context.Context) (*model.Identity, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx)
	}
	return nil, nil
}

func (m *mockBackend) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	m.signInCalls++
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, model.NewAuthError(model.AuthInvalidCredentials, nil)
}

func (m *mockBackend) SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, displayName)
	}
	return nil, model.NewAuthError(model.AuthUnavailable, nil)
}

func (m *mockBackend) SignInAnonymously(ctx context.Context) (*model.Identity, error) {
	return nil, model.NewAuthError(model.AuthOperationNotAllowed, nil)
}

func (m *mockBackend) Reload(ctx context.Context) (*model.Identity, error) {
	if m.reloadFn != nil {
		return m.reloadFn(ctx)
	}
	return nil, errors.New("reload not configured")
}

func (m *mockBackend) SignOut(ctx context.Context) error {
	m.signOutCalls++
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}
