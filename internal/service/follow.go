package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"ddpcore/internal/model"
	"ddpcore/internal/repository"
)

// FollowGraph maintains the followers/following arrays on profile documents.
// A follow edge is two independent writes; there is no transaction.
type FollowGraph struct {
	users         repository.UserRepository
	photos        repository.PhotoRepository
	notifications repository.NotificationRepository
	session       SessionSource
}

func NewFollowGraph(
	users repository.UserRepository,
	photos repository.PhotoRepository,
	notifications repository.NotificationRepository,
	session SessionSource,
) *FollowGraph {
	return &FollowGraph{
		users:         users,
		photos:        photos,
		notifications: notifications,
		session:       session,
	}
}

// Follow adds targetID to the current user's following set and the current
// user to the target's followers set, then notifies the target. Following
// someone already followed repeats the writes without a new notification.
func (g *FollowGraph) Follow(ctx context.Context, targetID string) error {
	me, err := g.viewer(targetID)
	if err != nil {
		return err
	}

	alreadyFollowing := g.profileOrNil(ctx, me.User.ID).IsFollowing(targetID)

	if err := g.users.AddFollowing(ctx, me.User.ID, targetID); err != nil {
		return fmt.Errorf("add %s to following: %w", targetID, err)
	}
	if err := g.users.AddFollower(ctx, targetID, me.User.ID); err != nil {
		return fmt.Errorf("add %s to followers of %s: %w", me.User.ID, targetID, err)
	}

	if alreadyFollowing {
		return nil
	}

	n := &model.Notification{
		RecipientID: targetID,
		SenderID:    me.User.ID,
		SenderName:  me.User.SenderName(),
		Message:     model.FollowMessage,
		Type:        model.NotificationTypeFollow,
	}
	if err := g.notifications.Create(ctx, n); err != nil {
		log.Error().Err(err).Str("sender_id", me.User.ID).Str("recipient_id", targetID).Msg("Failed to create follow notification")
	}
	return nil
}

// Unfollow removes both sides of the edge. No notification is sent.
func (g *FollowGraph) Unfollow(ctx context.Context, targetID string) error {
	me, err := g.viewer(targetID)
	if err != nil {
		return err
	}

	if err := g.users.RemoveFollowing(ctx, me.User.ID, targetID); err != nil {
		return fmt.Errorf("remove %s from following: %w", targetID, err)
	}
	if err := g.users.RemoveFollower(ctx, targetID, me.User.ID); err != nil {
		return fmt.Errorf("remove %s from followers of %s: %w", me.User.ID, targetID, err)
	}
	return nil
}

// Toggle follows or unfollows depending on the current following set and
// returns whether the user now follows targetID.
func (g *FollowGraph) Toggle(ctx context.Context, targetID string) (bool, error) {
	following, err := g.IsFollowing(ctx, targetID)
	if err != nil {
		return false, err
	}
	if following {
		return false, g.Unfollow(ctx, targetID)
	}
	return true, g.Follow(ctx, targetID)
}

func (g *FollowGraph) IsFollowing(ctx context.Context, targetID string) (bool, error) {
	me := g.session.Current()
	if me == nil {
		return false, model.ErrNotAuthenticated
	}
	return g.profileOrNil(ctx, me.User.ID).IsFollowing(targetID), nil
}

// Counts returns the follow counts of userID. A missing profile counts zero.
func (g *FollowGraph) Counts(ctx context.Context, userID string) model.FollowCounts {
	return model.CountsOf(g.profileOrNil(ctx, userID))
}

// Followers resolves the profiles in userID's followers set.
func (g *FollowGraph) Followers(ctx context.Context, userID string) []model.User {
	profile := g.profileOrNil(ctx, userID)
	if profile == nil {
		return []model.User{}
	}
	return g.resolve(ctx, userID, profile.Followers)
}

// Following resolves the profiles in userID's following set.
func (g *FollowGraph) Following(ctx context.Context, userID string) []model.User {
	profile := g.profileOrNil(ctx, userID)
	if profile == nil {
		return []model.User{}
	}
	return g.resolve(ctx, userID, profile.Following)
}

// Profile assembles a profile screen for userID as seen by the current user.
func (g *FollowGraph) Profile(ctx context.Context, userID string) *model.ProfileView {
	view := &model.ProfileView{Photos: []model.Photo{}}

	user, placeholder := g.userOrPlaceholder(ctx, userID)
	view.User = user
	view.Placeholder = placeholder
	if !placeholder {
		view.Counts = model.CountsOf(user)
	}

	if me := g.session.Current(); me != nil {
		view.IsSelf = me.User.ID == userID
		view.IsFollowing = !view.IsSelf && user.HasFollower(me.User.ID)
	}

	photos, err := g.photos.ListByUser(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to list profile photos")
	} else {
		view.Photos = photos
	}
	return view
}

// resolve reads each id's profile, substituting the placeholder for missing
// ones. The owner's own id never appears in the result.
func (g *FollowGraph) resolve(ctx context.Context, ownerID string, ids []string) []model.User {
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if id == ownerID || id == "" {
			continue
		}
		u, _ := g.userOrPlaceholder(ctx, id)
		users = append(users, *u)
	}
	return users
}

func (g *FollowGraph) userOrPlaceholder(ctx context.Context, id string) (*model.User, bool) {
	u, err := g.users.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			warn := &model.ConsistencyWarning{Entity: "user", ID: id, Err: err}
			log.Warn().Err(warn).Msg("Profile unreadable, using placeholder")
		}
		return model.PlaceholderUser(id), true
	}
	return u, false
}

func (g *FollowGraph) profileOrNil(ctx context.Context, id string) *model.User {
	u, placeholder := g.userOrPlaceholder(ctx, id)
	if placeholder {
		return nil
	}
	return u
}

func (g *FollowGraph) viewer(targetID string) (*model.Session, error) {
	me := g.session.Current()
	if me == nil {
		return nil, model.ErrNotAuthenticated
	}
	if strings.TrimSpace(targetID) == "" {
		return nil, &model.ValidationError{Field: "target", Message: "target user is required"}
	}
	if targetID == me.User.ID {
		return nil, &model.ValidationError{Field: "target", Message: model.ErrCannotFollowSelf.Error()}
	}
	return me, nil
}
