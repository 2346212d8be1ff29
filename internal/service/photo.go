package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"ddpcore/internal/model"
	"ddpcore/internal/observable"
	"ddpcore/internal/repository"
)

// PhotoService backs the photo detail screen.
type PhotoService struct {
	photos  repository.PhotoRepository
	media   MediaStore
	ledger  ViewLedger
	session SessionSource
	latest  *observable.Value[string]
}

// NewPhotoService creates the service. media and ledger may be nil.
func NewPhotoService(photos repository.PhotoRepository, media MediaStore, ledger ViewLedger, session SessionSource, latest *observable.Value[string]) *PhotoService {
	return &PhotoService{
		photos:  photos,
		media:   media,
		ledger:  ledger,
		session: session,
		latest:  latest,
	}
}

func (s *PhotoService) Get(ctx context.Context, id string) (*model.Photo, error) {
	return s.photos.GetByID(ctx, id)
}

// CanDelete reports whether the signed-in user owns photo.
func (s *PhotoService) CanDelete(photo *model.Photo) bool {
	me := s.session.Current()
	return me != nil && photo != nil && photo.UserID == me.User.ID
}

// Delete removes the photo document and its archived copy. Only the owner may
// delete. The latest-photo slot is cleared when it shows this photo.
func (s *PhotoService) Delete(ctx context.Context, photoID string) error {
	if s.session.Current() == nil {
		return model.ErrNotAuthenticated
	}

	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return err
	}
	if !s.CanDelete(photo) {
		return model.ErrNotPhotoOwner
	}

	if err := s.photos.Delete(ctx, photoID); err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}

	if s.media != nil && photo.StorageKey != "" {
		if err := s.media.Delete(ctx, photo.StorageKey); err != nil {
			log.Warn().Err(err).Str("photo_id", photoID).Str("key", photo.StorageKey).Msg("Archived photo not removed")
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Forget(ctx, photoID); err != nil {
			log.Warn().Err(err).Str("photo_id", photoID).Msg("View records not removed")
		}
	}
	if s.latest != nil && s.latest.Get() == photo.URI() {
		s.latest.Set("")
	}

	log.Info().Str("photo_id", photoID).Msg("Photo deleted")
	return nil
}

// ListByUser returns userID's photos, newest first.
func (s *PhotoService) ListByUser(ctx context.Context, userID string) ([]model.Photo, error) {
	return s.photos.ListByUser(ctx, userID)
}

// WatchByUser blocks, delivering userID's photos on every change.
func (s *PhotoService) WatchByUser(ctx context.Context, userID string, fn func([]model.Photo)) error {
	return s.photos.WatchByUser(ctx, userID, fn)
}
