package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"

	"ddpcore/internal/config"
	"ddpcore/internal/model"
)

// MediaStore keeps an archived copy of processed photos in object storage.
type MediaStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// S3MediaStore is a MediaStore on any S3-compatible bucket.
type S3MediaStore struct {
	s3Client *s3.Client
	bucket   string
}

// NewS3MediaStore constructs the client. A custom endpoint (R2, MinIO) is
// addressed path-style.
func NewS3MediaStore(ctx context.Context, cfg *config.Config) (*S3MediaStore, error) {
	if !cfg.ArchiveEnabled() {
		return nil, fmt.Errorf("missing object storage configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3MediaStore{s3Client: s3Client, bucket: cfg.S3Bucket}, nil
}

func (s *S3MediaStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(model.PhotoCacheCtl),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to object storage: %w", err)
	}
	return nil
}

func (s *S3MediaStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from object storage: %w", err)
	}
	return nil
}

// decodeFrame decodes a captured frame, mirrored horizontally when it came
// from the front camera.
func decodeFrame(data []byte, mirror bool) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &model.UploadFailure{Stage: model.StageDecode, Err: err}
	}
	if mirror {
		img = imaging.FlipH(img)
	}
	return img, nil
}

// encodeJPEG encodes img at the given quality (1-100).
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, &model.UploadFailure{Stage: model.StageEncode, Err: err}
	}
	return buf.Bytes(), nil
}

// prepareUpload resizes img to the upload width, height following the aspect
// ratio, and returns the JPEG bytes and their base64 form.
func prepareUpload(img image.Image) ([]byte, string, error) {
	resized := imaging.Resize(img, model.UploadWidth, 0, imaging.Lanczos)
	if resized.Bounds().Empty() {
		return nil, "", &model.UploadFailure{Stage: model.StageResize, Err: fmt.Errorf("empty image %v", img.Bounds())}
	}

	data, err := encodeJPEG(resized, model.UploadQuality)
	if err != nil {
		return nil, "", err
	}
	return data, base64.StdEncoding.EncodeToString(data), nil
}
