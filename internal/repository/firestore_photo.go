package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"ddpcore/internal/model"
)

type firestorePhotoRepository struct {
	client *firestore.Client
}

// NewFirestorePhotoRepository stores photos in the photos collection.
func NewFirestorePhotoRepository(client *firestore.Client) PhotoRepository {
	return &firestorePhotoRepository{client: client}
}

func setPhotoID(p *model.Photo, id string) { p.ID = id }

func (r *firestorePhotoRepository) col() *firestore.CollectionRef {
	return r.client.Collection(CollectionPhotos)
}

func (r *firestorePhotoRepository) Create(ctx context.Context, p *model.Photo) error {
	if p.Format == "" {
		p.Format = model.DefaultFormat
	}
	data := map[string]interface{}{
		"userId":    p.UserID,
		"base64":    p.Base64,
		"format":    p.Format,
		"viewCount": 0,
		"createdAt": firestore.ServerTimestamp,
	}
	if p.StorageKey != "" {
		data["storageKey"] = p.StorageKey
	}

	ref := r.col().NewDoc()
	wr, err := ref.Create(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	p.ID = ref.ID
	p.ViewCount = 0
	p.CreatedAt = wr.UpdateTime
	return nil
}

func (r *firestorePhotoRepository) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, model.ErrPhotoNotFound
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	var p model.Photo
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode photo %s: %w", id, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (r *firestorePhotoRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.col().Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return model.ErrPhotoNotFound
		}
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return nil
}

func (r *firestorePhotoRepository) IncrementViewCount(ctx context.Context, id string) error {
	_, err := r.col().Doc(id).Update(ctx, []firestore.Update{{Path: "viewCount", Value: firestore.Increment(1)}})
	if err != nil {
		if isNotFound(err) {
			return model.ErrPhotoNotFound
		}
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return nil
}

func (r *firestorePhotoRepository) byUser(userID string) firestore.Query {
	return r.col().Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
}

func (r *firestorePhotoRepository) ListByUser(ctx context.Context, userID string) ([]model.Photo, error) {
	photos, err := decodeAll(r.byUser(userID).Documents(ctx), setPhotoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

func (r *firestorePhotoRepository) WatchAll(ctx context.Context, fn func([]model.Photo)) error {
	return watchSnapshots(ctx, r.col().OrderBy("createdAt", firestore.Desc), setPhotoID, fn)
}

func (r *firestorePhotoRepository) WatchByUser(ctx context.Context, userID string, fn func([]model.Photo)) error {
	return watchSnapshots(ctx, r.byUser(userID), setPhotoID, fn)
}
