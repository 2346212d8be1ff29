package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ddpcore/internal/model"
	"ddpcore/internal/realtime"
)

type photoRepository struct {
	db  *sqlx.DB
	bus realtime.Bus
}

func NewPhotoRepository(db *sqlx.DB, bus realtime.Bus) PhotoRepository {
	return &photoRepository{db: db, bus: bus}
}

const photoColumns = `id, user_id, base64, format, storage_key, view_count, created_at`

func (r *photoRepository) Create(ctx context.Context, p *model.Photo) error {
	p.ID = uuid.NewString()
	if p.Format == "" {
		p.Format = model.DefaultFormat
	}
	query := `
		INSERT INTO photos (id, user_id, base64, format, storage_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING view_count, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, p.ID, p.UserID, p.Base64, p.Format, p.StorageKey).
		Scan(&p.ViewCount, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}

	r.announce(ctx, p.UserID, realtime.KindCreated, p.ID)
	return nil
}

func (r *photoRepository) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`
	var p model.Photo
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPhotoNotFound
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return &p, nil
}

func (r *photoRepository) Delete(ctx context.Context, id string) error {
	var ownerID string
	err := r.db.QueryRowxContext(ctx, `DELETE FROM photos WHERE id = $1 RETURNING user_id`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrPhotoNotFound
		}
		return fmt.Errorf("failed to delete photo: %w", err)
	}

	r.announce(ctx, ownerID, realtime.KindDeleted, id)
	return nil
}

func (r *photoRepository) IncrementViewCount(ctx context.Context, id string) error {
	var ownerID string
	query := `UPDATE photos SET view_count = view_count + 1 WHERE id = $1 RETURNING user_id`
	if err := r.db.QueryRowxContext(ctx, query, id).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrPhotoNotFound
		}
		return fmt.Errorf("failed to increment view count: %w", err)
	}

	r.announce(ctx, ownerID, realtime.KindUpdated, id)
	return nil
}

func (r *photoRepository) ListByUser(ctx context.Context, userID string) ([]model.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE user_id = $1 ORDER BY created_at DESC`
	photos := []model.Photo{}
	if err := r.db.SelectContext(ctx, &photos, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

func (r *photoRepository) listAll(ctx context.Context) ([]model.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos ORDER BY created_at DESC`
	photos := []model.Photo{}
	if err := r.db.SelectContext(ctx, &photos, query); err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

func (r *photoRepository) WatchAll(ctx context.Context, fn func([]model.Photo)) error {
	return watchQuery(ctx, r.bus, realtime.TopicPhotos, r.listAll, fn)
}

func (r *photoRepository) WatchByUser(ctx context.Context, userID string, fn func([]model.Photo)) error {
	load := func(ctx context.Context) ([]model.Photo, error) {
		return r.ListByUser(ctx, userID)
	}
	return watchQuery(ctx, r.bus, realtime.PhotosByUserTopic(userID), load, fn)
}

// announce notifies both the global photo listeners and the owner's listeners.
func (r *photoRepository) announce(ctx context.Context, ownerID, kind, photoID string) {
	publish(ctx, r.bus, realtime.TopicPhotos, kind, photoID)
	publish(ctx, r.bus, realtime.PhotosByUserTopic(ownerID), kind, photoID)
}
