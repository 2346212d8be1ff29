package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ddpcore/internal/model"
	"ddpcore/internal/observable"
	"ddpcore/internal/repository"
)

// Facing selects the camera.
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// ReviewDecision is the user's answer on the preview screen.
type ReviewDecision int

const (
	ReviewAccept ReviewDecision = iota
	ReviewRetake
	ReviewCancel
)

// DefaultMaxRetakes bounds the capture/review loop.
const DefaultMaxRetakes = 5

var ErrTooManyRetakes = errors.New("too many retakes")

// Camera is the capture device.
type Camera interface {
	// RequestPermission returns false when the user denies camera access.
	RequestPermission(ctx context.Context) (bool, error)
	// Capture returns an encoded still image; quality is in [0,1].
	Capture(ctx context.Context, facing Facing, quality float64) ([]byte, error)
}

// Reviewer shows the preview and waits for the user's decision.
type Reviewer interface {
	Review(ctx context.Context, previewURI string) (ReviewDecision, error)
}

// CaptureResult is the outcome of an accepted capture. Photo is nil when the
// upload failed; the preview stays published in that case.
type CaptureResult struct {
	PreviewURI string
	Photo      *model.Photo
	Err        error
}

// CaptureFlow takes a photo, publishes it to the latest-photo slot right away
// and uploads it.
type CaptureFlow struct {
	camera     Camera
	reviewer   Reviewer
	photos     repository.PhotoRepository
	media      MediaStore
	session    SessionSource
	latest     *observable.Value[string]
	maxRetakes int
}

// NewCaptureFlow creates the flow. media may be nil to skip archiving.
func NewCaptureFlow(camera Camera, reviewer Reviewer, photos repository.PhotoRepository, media MediaStore, session SessionSource, latest *observable.Value[string]) *CaptureFlow {
	return &CaptureFlow{
		camera:     camera,
		reviewer:   reviewer,
		photos:     photos,
		media:      media,
		session:    session,
		latest:     latest,
		maxRetakes: DefaultMaxRetakes,
	}
}

// Run drives permission, capture, review and upload. It returns (nil, nil)
// when permission is denied or the user cancels.
//
// Once the user accepts, the preview is published before the upload starts.
// An upload failure does not roll the preview back; it is logged and
// reported in CaptureResult.Err.
func (f *CaptureFlow) Run(ctx context.Context, facing Facing) (*CaptureResult, error) {
	session := f.session.Current()
	if session == nil {
		return nil, model.ErrNotAuthenticated
	}

	granted, err := f.camera.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("camera permission: %w", err)
	}
	if !granted {
		log.Info().Msg("Camera permission denied")
		return nil, nil
	}

	img, previewURI, err := f.captureAccepted(ctx, facing)
	if err != nil || img == nil {
		return nil, err
	}

	f.latest.Set(previewURI)
	result := &CaptureResult{PreviewURI: previewURI}

	photo, err := f.Publish(ctx, session.User.ID, img)
	if err != nil {
		log.Error().Err(err).Str("user_id", session.User.ID).Msg("Photo upload failed, preview kept")
		result.Err = err
		return result, nil
	}

	f.latest.Set(photo.URI())
	result.Photo = photo
	return result, nil
}

// captureAccepted loops capture and review until the user accepts or cancels.
// A nil image means cancel.
func (f *CaptureFlow) captureAccepted(ctx context.Context, facing Facing) (image.Image, string, error) {
	for attempt := 0; attempt <= f.maxRetakes; attempt++ {
		raw, err := f.camera.Capture(ctx, facing, model.CaptureQuality)
		if err != nil {
			return nil, "", fmt.Errorf("capture: %w", err)
		}

		img, err := decodeFrame(raw, facing == FacingFront)
		if err != nil {
			return nil, "", err
		}
		preview, err := encodeJPEG(img, int(model.CaptureQuality*100))
		if err != nil {
			return nil, "", err
		}
		previewURI := model.DataURI(model.DefaultFormat, base64.StdEncoding.EncodeToString(preview))

		decision, err := f.reviewer.Review(ctx, previewURI)
		if err != nil {
			return nil, "", fmt.Errorf("review: %w", err)
		}
		switch decision {
		case ReviewAccept:
			return img, previewURI, nil
		case ReviewCancel:
			return nil, "", nil
		}
	}
	return nil, "", ErrTooManyRetakes
}

// Publish resizes, encodes and stores img as a photo owned by userID. The
// writes are detached from ctx cancellation so a started upload completes.
func (f *CaptureFlow) Publish(ctx context.Context, userID string, img image.Image) (*model.Photo, error) {
	ctx = context.WithoutCancel(ctx)

	data, encoded, err := prepareUpload(img)
	if err != nil {
		return nil, err
	}

	var key string
	if f.media != nil {
		key = fmt.Sprintf("%s/%s/%s%s", model.PhotoFolder, userID, uuid.NewString(), model.PhotoExt)
		if err := f.media.Put(ctx, key, data, model.ContentTypeJPEG); err != nil {
			archiveErr := &model.UploadFailure{Stage: model.StageArchive, Err: err}
			log.Warn().Err(archiveErr).Str("user_id", userID).Msg("Photo not archived")
			key = ""
		}
	}

	photo := &model.Photo{
		UserID:     userID,
		Base64:     encoded,
		Format:     model.DefaultFormat,
		StorageKey: key,
	}
	if err := f.photos.Create(ctx, photo); err != nil {
		if key != "" {
			if delErr := f.media.Delete(ctx, key); delErr != nil {
				log.Warn().Err(delErr).Str("key", key).Msg("Failed to remove orphaned archive object")
			}
		}
		return nil, &model.UploadFailure{Stage: model.StageWrite, Err: err}
	}

	log.Info().Str("photo_id", photo.ID).Str("user_id", userID).Int("bytes", len(data)).Msg("Photo uploaded")
	return photo, nil
}
