package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"ddpcore/internal/model"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

// NewFirestoreUserRepository stores profiles in the users collection.
func NewFirestoreUserRepository(client *firestore.Client) UserRepository {
	return &firestoreUserRepository{client: client}
}

func (r *firestoreUserRepository) doc(id string) *firestore.DocumentRef {
	return r.client.Collection(CollectionUsers).Doc(id)
}

func (r *firestoreUserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	snap, err := r.doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var u model.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

func (r *firestoreUserRepository) Create(ctx context.Context, u *model.User) error {
	wr, err := r.doc(u.ID).Create(ctx, map[string]interface{}{
		"mail":      u.Email,
		"username":  u.Username,
		"birthday":  u.Birthday,
		"gender":    u.Gender,
		"followers": []string{},
		"following": []string{},
		"createdAt": firestore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.Followers = []string{}
	u.Following = []string{}
	u.CreatedAt = wr.UpdateTime
	return nil
}

func (r *firestoreUserRepository) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error {
	var updates []firestore.Update
	if update.Username != "" {
		updates = append(updates, firestore.Update{Path: "username", Value: update.Username})
	}
	if update.Birthday != "" {
		updates = append(updates, firestore.Update{Path: "birthday", Value: update.Birthday})
	}
	if update.Gender != "" {
		updates = append(updates, firestore.Update{Path: "gender", Value: update.Gender})
	}
	if len(updates) == 0 {
		return nil
	}
	return r.update(ctx, id, updates)
}

func (r *firestoreUserRepository) AddFollowing(ctx context.Context, userID, targetID string) error {
	return r.update(ctx, userID, []firestore.Update{{Path: "following", Value: firestore.ArrayUnion(targetID)}})
}

func (r *firestoreUserRepository) RemoveFollowing(ctx context.Context, userID, targetID string) error {
	return r.update(ctx, userID, []firestore.Update{{Path: "following", Value: firestore.ArrayRemove(targetID)}})
}

func (r *firestoreUserRepository) AddFollower(ctx context.Context, userID, followerID string) error {
	return r.update(ctx, userID, []firestore.Update{{Path: "followers", Value: firestore.ArrayUnion(followerID)}})
}

func (r *firestoreUserRepository) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return r.update(ctx, userID, []firestore.Update{{Path: "followers", Value: firestore.ArrayRemove(followerID)}})
}

func (r *firestoreUserRepository) update(ctx context.Context, id string, updates []firestore.Update) error {
	if _, err := r.doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return model.ErrUserNotFound
		}
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return nil
}
