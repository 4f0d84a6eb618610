// Package storage archives meeting recordings in an S3 bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/services"
)

const (
	uploadPartSize        = 5 * 1024 * 1024
	defaultPresignExpire  = 15 * time.Minute
	defaultRecordingsPath = "recordings"
)

// UploadResult describes an archived recording object.
type UploadResult struct {
	Key       string
	ViewURL   string
	SizeBytes int64
}

// Archive stores recordings in the configured bucket and issues view links.
type Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      config.Storage
	logger   *slog.Logger
}

// NewArchive builds the S3-backed recording archive. Static credentials from
// configuration win; otherwise the default AWS credential chain applies.
func NewArchive(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	} else {
		logger.Warn("storage using default AWS credential chain",
			logging.String(logging.FieldComponent, "storage"))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "load aws config", err)
	}

	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})

	return &Archive{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// RecordingKey returns the object key for a meeting's recording.
func (a *Archive) RecordingKey(publicID, contentType string) string {
	return RecordingKey(a.cfg.KeyPrefix, publicID, contentType)
}

// RecordingKey builds the bucket key {prefix}/{public_id}{ext} with the
// extension inferred from the content type.
func RecordingKey(prefix, publicID, contentType string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultRecordingsPath
	}
	return path.Join(prefix, publicID+extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "video/webm":
		return ".webm"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	default:
		return ".mp4"
	}
}

// UploadRecording streams a recording into the bucket and returns the stored
// object plus a presigned view link. The caller supplies the content length
// when the source reports one; zero means unknown and the uploader chunks
// without it.
func (a *Archive) UploadRecording(ctx context.Context, key, contentType string, size int64, body io.Reader) (*UploadResult, error) {
	if strings.TrimSpace(key) == "" {
		return nil, services.Wrap(services.ErrValidation, "storage", "upload", "object key is required", nil)
	}
	if body == nil {
		return nil, services.Wrap(services.ErrValidation, "storage", "upload", "recording body is required", nil)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := a.uploader.Upload(ctx, input); err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "upload", "stream recording to bucket", err)
	}

	viewURL, err := a.PresignView(ctx, key)
	if err != nil {
		return nil, err
	}

	a.logger.Info("recording archived",
		logging.String(logging.FieldComponent, "storage"),
		logging.String("bucket", a.cfg.Bucket),
		logging.String("key", key),
		logging.Int64("size_bytes", size),
	)

	return &UploadResult{Key: key, ViewURL: viewURL, SizeBytes: size}, nil
}

// PresignView issues a time-limited GET link for an archived recording.
func (a *Archive) PresignView(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(a.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = a.presignExpire()
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "presign", "presign view link", err)
	}
	return req.URL, nil
}

// DeleteRecording removes an archived object.
func (a *Archive) DeleteRecording(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "storage", "delete", "delete recording object", err)
	}
	return nil
}

// ObjectURL returns the unsigned public URL for an object.
func (a *Archive) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.cfg.Bucket, a.cfg.Region, key)
}

func (a *Archive) presignExpire() time.Duration {
	if a.cfg.PresignExpireMinutes <= 0 {
		return defaultPresignExpire
	}
	return time.Duration(a.cfg.PresignExpireMinutes) * time.Minute
}
