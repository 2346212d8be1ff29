package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"ddpcore/internal/model"
	"ddpcore/internal/observable"
	"ddpcore/internal/repository"
)

// NotificationFeed is the live, newest-first list of the current user's
// notifications.
type NotificationFeed struct {
	repo    repository.NotificationRepository
	session SessionSource
	items   *observable.Value[[]model.Notification]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotificationFeed(repo repository.NotificationRepository, session SessionSource) *NotificationFeed {
	return &NotificationFeed{
		repo:    repo,
		session: session,
		items:   observable.New([]model.Notification{}),
	}
}

// Start subscribes to the current user's notifications.
func (f *NotificationFeed) Start(ctx context.Context) error {
	me := f.session.Current()
	if me == nil {
		return model.ErrNotAuthenticated
	}

	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return nil
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	recipientID := me.User.ID
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.repo.WatchForRecipient(ctx, recipientID, f.onSnapshot); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("recipient_id", recipientID).Msg("Notification subscription ended")
		}
	}()
	return nil
}

func (f *NotificationFeed) Close() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	f.wg.Wait()
}

// Items returns the current list, newest first.
func (f *NotificationFeed) Items() []model.Notification {
	return slices.Clone(f.items.Get())
}

// UnreadCount is derived from the same snapshot as Items.
func (f *NotificationFeed) UnreadCount() int {
	count := 0
	for _, n := range f.items.Get() {
		if !n.Read {
			count++
		}
	}
	return count
}

func (f *NotificationFeed) Subscribe(fn func([]model.Notification)) func() {
	return f.items.Subscribe(fn)
}

func (f *NotificationFeed) MarkRead(ctx context.Context, id string) error {
	return f.repo.SetRead(ctx, id, true)
}

func (f *NotificationFeed) MarkUnread(ctx context.Context, id string) error {
	return f.repo.SetRead(ctx, id, false)
}

func (f *NotificationFeed) Delete(ctx context.Context, id string) error {
	return f.repo.Delete(ctx, id)
}

// Open marks the notification read if needed and returns where to navigate:
// the sender's profile for follows, the related photo for likes and comments.
func (f *NotificationFeed) Open(ctx context.Context, id string) (model.Route, error) {
	n, err := f.find(ctx, id)
	if err != nil {
		return model.Route{}, err
	}

	if !n.Read {
		if err := f.MarkRead(ctx, id); err != nil {
			return model.Route{}, fmt.Errorf("mark notification read: %w", err)
		}
	}

	switch n.Type {
	case model.NotificationTypeLike, model.NotificationTypeComment:
		if n.RelatedID != nil && *n.RelatedID != "" {
			return model.Route{Kind: model.RoutePhoto, ID: *n.RelatedID}, nil
		}
	}
	return model.Route{Kind: model.RouteProfile, ID: n.SenderID}, nil
}

func (f *NotificationFeed) find(ctx context.Context, id string) (*model.Notification, error) {
	for _, n := range f.items.Get() {
		if n.ID == id {
			return &n, nil
		}
	}
	return f.repo.GetByID(ctx, id)
}

func (f *NotificationFeed) onSnapshot(items []model.Notification) {
	f.items.Set(sortNewestFirst(items))
}

// sortNewestFirst orders by creation time descending; notifications whose
// server timestamp is not yet set sort last.
func sortNewestFirst(items []model.Notification) []model.Notification {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b model.Notification) int {
		switch {
		case a.CreatedAt.IsZero() && b.CreatedAt.IsZero():
			return 0
		case a.CreatedAt.IsZero():
			return 1
		case b.CreatedAt.IsZero():
			return -1
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sorted
}
