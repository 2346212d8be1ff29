package repository

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection names
const (
	CollectionUsers         = "users"
	CollectionPhotos        = "photos"
	CollectionNotifications = "notifications"
)

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// decodeAll reads every document of iter into T, setting the id with setID.
func decodeAll[T any](iter *firestore.DocumentIterator, setID func(*T, string)) ([]T, error) {
	defer iter.Stop()

	out := []T{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var v T
		if err := doc.DataTo(&v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Ref.ID, err)
		}
		setID(&v, doc.Ref.ID)
		out = append(out, v)
	}
}

// decodeSnapshot decodes the documents of one listener snapshot. Documents
// that do not fit T are logged and left out of the result.
func decodeSnapshot[T any](iter *firestore.DocumentIterator, setID func(*T, string)) ([]T, error) {
	docs, err := iter.GetAll()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.DataTo(&v); err != nil {
			log.Warn().Err(err).Str("doc_id", doc.Ref.ID).Msg("Skipping undecodable document")
			continue
		}
		setID(&v, doc.Ref.ID)
		out = append(out, v)
	}
	return out, nil
}

// watchSnapshots delivers every snapshot of q until ctx is cancelled. A
// snapshot that cannot be read is logged and skipped.
func watchSnapshots[T any](ctx context.Context, q firestore.Query, setID func(*T, string), fn func([]T)) error {
	it := q.Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
				return nil
			}
			return fmt.Errorf("snapshot listener: %w", err)
		}
		items, err := decodeSnapshot(snap.Documents, setID)
		if err != nil {
			log.Error().Err(err).Msg("Listener snapshot unreadable")
			continue
		}
		fn(items)
	}
}
