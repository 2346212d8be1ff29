package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ddpcore/internal/model"
	"ddpcore/internal/observable"
	"ddpcore/internal/repository"
)

// ViewLedger deduplicates view counting across sessions.
type ViewLedger interface {
	// MarkViewed returns true the first time viewerID views photoID.
	MarkViewed(ctx context.Context, viewerID, photoID string) (bool, error)
	// Forget drops the records of a deleted photo.
	Forget(ctx context.Context, photoID string) error
}

// FeedView is what the home screen renders.
type FeedView struct {
	Photo *model.Photo
	URI   string
	Owner *model.User
	// Placeholder is set when the owner's profile could not be read.
	Placeholder bool
	// FromLatest is set when no photo is loaded and URI is the latest
	// locally captured photo.
	FromLatest bool
	Empty      bool
}

// FeedProvider shows one "photo of the moment" picked uniformly at random from
// all photos, and counts a view the first time each photo is shown.
type FeedProvider struct {
	photos       repository.PhotoRepository
	users        repository.UserRepository
	session      SessionSource
	latest       *observable.Value[string]
	ledger       ViewLedger
	refreshDelay time.Duration

	mu          sync.Mutex
	rng         *rand.Rand
	loaded      []model.Photo
	current     *model.Photo
	owner       *model.User
	placeholder bool
	visited     map[string]struct{}
	latestURI   string

	view *observable.Value[FeedView]

	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	unsubscribeLast func()
}

type FeedOption func(*FeedProvider)

// WithRand sets the source used to pick the photo of the moment.
func WithRand(r *rand.Rand) FeedOption {
	return func(p *FeedProvider) { p.rng = r }
}

// WithViewLedger enables cross-session view deduplication.
func WithViewLedger(l ViewLedger) FeedOption {
	return func(p *FeedProvider) { p.ledger = l }
}

// WithRefreshDelay sets how long Refresh waits before returning.
func WithRefreshDelay(d time.Duration) FeedOption {
	return func(p *FeedProvider) { p.refreshDelay = d }
}

func NewFeedProvider(photos repository.PhotoRepository, users repository.UserRepository, session SessionSource, latest *observable.Value[string], opts ...FeedOption) *FeedProvider {
	p := &FeedProvider{
		photos:       photos,
		users:        users,
		session:      session,
		latest:       latest,
		refreshDelay: 500 * time.Millisecond,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		visited:      make(map[string]struct{}),
		view:         observable.New(FeedView{Empty: true}),
		ctx:          context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes to all photos. The subscription runs until Close or ctx
// is done.
func (p *FeedProvider) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	watchCtx := p.ctx
	p.latestURI = p.latest.Get()
	p.mu.Unlock()

	p.unsubscribeLast = p.latest.Subscribe(p.onLatest)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.photos.WatchAll(watchCtx, p.onSnapshot); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Photo feed subscription ended")
		}
	}()
}

// Close tears down the subscription. The visited set goes with the provider.
func (p *FeedProvider) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	if p.unsubscribeLast != nil {
		p.unsubscribeLast()
	}
}

// Current returns the photo of the moment.
func (p *FeedProvider) Current() FeedView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

// Subscribe registers fn for view changes.
func (p *FeedProvider) Subscribe(fn func(FeedView)) func() {
	return p.view.Subscribe(fn)
}

// Refresh picks again from the loaded photos without querying the backend,
// then waits for the refresh delay.
func (p *FeedProvider) Refresh(ctx context.Context) (FeedView, error) {
	p.mu.Lock()
	pick := p.pickLocked()
	p.mu.Unlock()

	p.show(pick)

	if p.refreshDelay > 0 {
		timer := time.NewTimer(p.refreshDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return p.Current(), ctx.Err()
		}
	}
	return p.Current(), nil
}

// OwnerIsViewer reports whether the current photo belongs to the signed-in user.
func (p *FeedProvider) OwnerIsViewer() bool {
	session := p.session.Current()
	if session == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.UserID == session.User.ID
}

func (p *FeedProvider) onSnapshot(photos []model.Photo) {
	p.mu.Lock()
	p.loaded = photos
	pick := p.pickLocked()
	p.mu.Unlock()

	log.Debug().Int("count", len(photos)).Msg("Photo feed updated")
	p.show(pick)
}

func (p *FeedProvider) onLatest(uri string) {
	p.mu.Lock()
	p.latestURI = uri
	v := p.viewLocked()
	p.mu.Unlock()
	p.view.Set(v)
}

func (p *FeedProvider) pickLocked() *model.Photo {
	if len(p.loaded) == 0 {
		return nil
	}
	photo := p.loaded[p.rng.IntN(len(p.loaded))]
	return &photo
}

// show makes pick the current photo. The owner lookup and the view count
// only happen when the selected photo id changed.
func (p *FeedProvider) show(pick *model.Photo) {
	p.mu.Lock()
	changed := pick == nil || p.current == nil || p.current.ID != pick.ID
	p.current = pick
	if changed {
		p.owner = nil
		p.placeholder = false
	}
	v := p.viewLocked()
	p.mu.Unlock()
	p.view.Set(v)

	if pick == nil || !changed {
		return
	}

	p.resolveOwner(pick)
	p.countView(pick)
}

func (p *FeedProvider) resolveOwner(photo *model.Photo) {
	owner, err := p.users.Get(p.ctx, photo.UserID)
	placeholder := false
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			warn := &model.ConsistencyWarning{Entity: "user", ID: photo.UserID, Err: err}
			log.Warn().Err(warn).Str("photo_id", photo.ID).Msg("Photo owner unreadable")
		}
		owner = model.PlaceholderUser(photo.UserID)
		placeholder = true
	}

	p.mu.Lock()
	if p.current == nil || p.current.ID != photo.ID {
		p.mu.Unlock()
		return
	}
	p.owner = owner
	p.placeholder = placeholder
	v := p.viewLocked()
	p.mu.Unlock()
	p.view.Set(v)
}

func (p *FeedProvider) countView(photo *model.Photo) {
	p.mu.Lock()
	if _, seen := p.visited[photo.ID]; seen {
		p.mu.Unlock()
		return
	}
	p.visited[photo.ID] = struct{}{}
	p.mu.Unlock()

	ctx := context.WithoutCancel(p.ctx)

	if p.ledger != nil {
		if session := p.session.Current(); session != nil {
			first, err := p.ledger.MarkViewed(ctx, session.User.ID, photo.ID)
			if err != nil {
				log.Warn().Err(err).Str("photo_id", photo.ID).Msg("View ledger unavailable")
			} else if !first {
				return
			}
		}
	}

	if err := p.photos.IncrementViewCount(ctx, photo.ID); err != nil {
		log.Error().Err(err).Str("photo_id", photo.ID).Msg("Failed to increment view count")
	}
}

func (p *FeedProvider) viewLocked() FeedView {
	if p.current != nil {
		photo := *p.current
		return FeedView{
			Photo:       &photo,
			URI:         photo.URI(),
			Owner:       p.owner,
			Placeholder: p.placeholder,
		}
	}
	if p.latestURI != "" {
		return FeedView{URI: p.latestURI, FromLatest: true}
	}
	return FeedView{Empty: true}
}
