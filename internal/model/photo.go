package model

import (
	"errors"
	"strings"
	"time"
)

// Capture and encoding parameters.
const (
	CaptureQuality  = 0.8
	UploadWidth     = 800
	UploadQuality   = 70
	DefaultFormat   = "jpeg"
	ContentTypeJPEG = "image/jpeg"
	PhotoFolder     = "photos"
	PhotoExt        = ".jpg"
	PhotoCacheCtl   = "public, max-age=31536000, immutable"
)

// Photo is a single document in the photos collection. The image payload is
// stored inline as base64 text; StorageKey is set when an archived copy exists
// in object storage.
type Photo struct {
	ID         string    `db:"id" firestore:"-" json:"id"`
	UserID     string    `db:"user_id" firestore:"userId" json:"user_id"`
	Base64     string    `db:"base64" firestore:"base64" json:"base64"`
	Format     string    `db:"format" firestore:"format" json:"format"`
	StorageKey string    `db:"storage_key" firestore:"storageKey,omitempty" json:"storage_key,omitempty"`
	ViewCount  int64     `db:"view_count" firestore:"viewCount" json:"view_count"`
	CreatedAt  time.Time `db:"created_at" firestore:"createdAt" json:"created_at"`
}

// URI returns the displayable data URI of the photo.
func (p *Photo) URI() string {
	if p == nil || p.Base64 == "" {
		return ""
	}
	return DataURI(p.Format, p.Base64)
}

// DataURI prefixes a base64 payload with its declared image format.
func DataURI(format, payload string) string {
	if strings.HasPrefix(payload, "data:") {
		return payload
	}
	if format == "" {
		format = DefaultFormat
	}
	return "data:image/" + format + ";base64," + payload
}

var (
	// ErrPhotoNotFound is returned when a photo cannot be found
	ErrPhotoNotFound = errors.New("photo not found")

	// ErrNotPhotoOwner is returned when a non-owner tries to delete a photo
	ErrNotPhotoOwner = errors.New("not the owner of this photo")
)
