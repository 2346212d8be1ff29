package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"ddpcore/internal/model"
	"ddpcore/internal/observable"
)

type fakeCamera struct {
	granted  bool
	frame    []byte
	captures int
	facings  []Facing
}

func (c *fakeCamera) RequestPermission(ctx context.Context) (bool, error) {
	return c.granted, nil
}

func (c *fakeCamera) Capture(ctx context.Context, facing Facing, quality float64) ([]byte, error) {
	c.captures++
	c.facings = append(c.facings, facing)
	return c.frame, nil
}

type scriptedReviewer struct {
	decisions []ReviewDecision
	previews  []string
}

func (r *scriptedReviewer) Review(ctx context.Context, previewURI string) (ReviewDecision, error) {
	r.previews = append(r.previews, previewURI)
	d := r.decisions[0]
	if len(r.decisions) > 1 {
		r.decisions = r.decisions[1:]
	}
	return d, nil
}

// testFrame is a 1600x1200 JPEG, red on the left half and blue on the right.
func testFrame(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(1600, 1200, color.NRGBA{B: 255, A: 255})
	img = imaging.Paste(img, imaging.New(800, 1200, color.NRGBA{R: 255, A: 255}), image.Pt(0, 0))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return buf.Bytes()
}

func decodeURI(t *testing.T, uri string) image.Image {
	t.Helper()
	_, payload, ok := strings.Cut(uri, ";base64,")
	if !ok {
		t.Fatalf("not a base64 data uri: %.40s", uri)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	return img
}

type latestRecorder struct {
	mu     sync.Mutex
	values []string
}

func (r *latestRecorder) record(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func newCaptureFixture(t *testing.T, decisions ...ReviewDecision) (*CaptureFlow, *fakeCamera, *scriptedReviewer, *mockPhotoRepository, *fakeMediaStore, *observable.Value[string], *latestRecorder) {
	t.Helper()
	camera := &fakeCamera{granted: true, frame: testFrame(t)}
	reviewer := &scriptedReviewer{decisions: decisions}
	photos := newMockPhotoRepository()
	media := newFakeMediaStore()
	latest := observable.New("")
	rec := &latestRecorder{}
	latest.Subscribe(rec.record)

	flow := NewCaptureFlow(camera, reviewer, photos, media, sessionFor("u1", "a@b.co", ""), latest)
	return flow, camera, reviewer, photos, media, latest, rec
}

func TestCaptureFlow_AcceptUploads(t *testing.T) {
	// ARRANGE
	flow, _, _, photos, media, latest, rec := newCaptureFixture(t, ReviewAccept)

	// ACT
	result, err := flow.Run(context.Background(), FacingBack)

	// ASSERT
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result == nil || result.Photo == nil {
		t.Fatalf("result = %+v, want uploaded photo", result)
	}
	if result.Err != nil {
		t.Errorf("result.Err = %v", result.Err)
	}

	if len(photos.created) != 1 {
		t.Fatalf("Create called %d times, want 1", len(photos.created))
	}
	stored := photos.created[0]
	if stored.UserID != "u1" || stored.Format != model.DefaultFormat || stored.ViewCount != 0 {
		t.Errorf("stored photo = %+v", stored)
	}

	uploaded := decodeURI(t, stored.URI())
	if b := uploaded.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("uploaded size = %dx%d, want 800x600", b.Dx(), b.Dy())
	}

	if stored.StorageKey == "" || !strings.HasPrefix(stored.StorageKey, "photos/u1/") {
		t.Errorf("storage key = %q", stored.StorageKey)
	}
	if _, ok := media.objects[stored.StorageKey]; !ok {
		t.Error("expected archived object")
	}

	if len(rec.values) != 2 {
		t.Fatalf("latest published %d times, want preview then upload", len(rec.values))
	}
	if rec.values[0] != result.PreviewURI {
		t.Error("first publish should be the preview")
	}
	if latest.Get() != stored.URI() {
		t.Error("latest slot should end on the uploaded photo")
	}
}

func TestCaptureFlow_FrontCameraIsMirrored(t *testing.T) {
	flow, camera, _, _, _, _, _ := newCaptureFixture(t, ReviewAccept)

	result, err := flow.Run(context.Background(), FacingFront)
	if err != nil || result == nil {
		t.Fatalf("Run: %v, %+v", err, result)
	}

	if camera.facings[0] != FacingFront {
		t.Errorf("facing = %s, want front", camera.facings[0])
	}

	preview := decodeURI(t, result.PreviewURI)
	r, _, b, _ := preview.At(10, 600).RGBA()
	if b <= r {
		t.Errorf("left edge should be blue after mirroring, got r=%d b=%d", r>>8, b>>8)
	}
}

func TestCaptureFlow_PermissionDenied(t *testing.T) {
	flow, camera, _, photos, _, latest, _ := newCaptureFixture(t, ReviewAccept)
	camera.granted = false

	result, err := flow.Run(context.Background(), FacingBack)

	if err != nil || result != nil {
		t.Errorf("Run = %+v, %v; want nil, nil", result, err)
	}
	if camera.captures != 0 {
		t.Errorf("Capture called %d times, want 0", camera.captures)
	}
	if len(photos.created) != 0 || latest.Get() != "" {
		t.Error("denied permission must not publish anything")
	}
}

func TestCaptureFlow_RetakeThenCancel(t *testing.T) {
	flow, camera, reviewer, photos, _, latest, _ := newCaptureFixture(t, ReviewRetake, ReviewCancel)

	result, err := flow.Run(context.Background(), FacingBack)

	if err != nil || result != nil {
		t.Errorf("Run = %+v, %v; want nil, nil", result, err)
	}
	if camera.captures != 2 || len(reviewer.previews) != 2 {
		t.Errorf("captures = %d, reviews = %d; want 2, 2", camera.captures, len(reviewer.previews))
	}
	if len(photos.created) != 0 || latest.Get() != "" {
		t.Error("cancel must not publish anything")
	}
}

func TestCaptureFlow_TooManyRetakes(t *testing.T) {
	flow, camera, _, _, _, _, _ := newCaptureFixture(t, ReviewRetake)

	_, err := flow.Run(context.Background(), FacingBack)

	if !errors.Is(err, ErrTooManyRetakes) {
		t.Errorf("err = %v, want ErrTooManyRetakes", err)
	}
	if camera.captures != DefaultMaxRetakes+1 {
		t.Errorf("captures = %d, want %d", camera.captures, DefaultMaxRetakes+1)
	}
}

func TestCaptureFlow_WriteFailureKeepsPreview(t *testing.T) {
	flow, _, _, photos, media, latest, _ := newCaptureFixture(t, ReviewAccept)
	photos.createFn = func(ctx context.Context, photo *model.Photo) error {
		return errors.New("permission denied")
	}

	result, err := flow.Run(context.Background(), FacingBack)

	if err != nil {
		t.Fatalf("Run returned %v; upload failures are reported in the result", err)
	}
	var failure *model.UploadFailure
	if !errors.As(result.Err, &failure) || failure.Stage != model.StageWrite {
		t.Errorf("result.Err = %v, want write UploadFailure", result.Err)
	}
	if result.Photo != nil {
		t.Error("expected no photo")
	}
	if latest.Get() != result.PreviewURI {
		t.Error("preview should stay in the latest slot")
	}
	if len(media.objects) != 0 || len(media.deleted) != 1 {
		t.Errorf("archive objects = %d, deleted = %d; want orphan removed", len(media.objects), len(media.deleted))
	}
}

func TestCaptureFlow_ArchiveFailureStillStores(t *testing.T) {
	flow, _, _, photos, media, _, _ := newCaptureFixture(t, ReviewAccept)
	media.putErr = errors.New("bucket unreachable")

	result, err := flow.Run(context.Background(), FacingBack)

	if err != nil || result.Photo == nil {
		t.Fatalf("Run = %+v, %v; want stored photo", result, err)
	}
	if photos.created[0].StorageKey != "" {
		t.Errorf("storage key = %q, want empty", photos.created[0].StorageKey)
	}
}

func TestCaptureFlow_RequiresSession(t *testing.T) {
	camera := &fakeCamera{granted: true}
	flow := NewCaptureFlow(camera, &scriptedReviewer{}, newMockPhotoRepository(), nil, &fakeSession{}, observable.New(""))

	_, err := flow.Run(context.Background(), FacingBack)

	if !errors.Is(err, model.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestCaptureFlow_UndecodableFrame(t *testing.T) {
	flow, camera, _, _, _, _, _ := newCaptureFixture(t, ReviewAccept)
	camera.frame = []byte("not an image")

	_, err := flow.Run(context.Background(), FacingBack)

	var failure *model.UploadFailure
	if !errors.As(err, &failure) || failure.Stage != model.StageDecode {
		t.Errorf("err = %v, want decode failure", err)
	}
}
