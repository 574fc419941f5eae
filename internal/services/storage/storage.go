// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package storage keeps uploaded report files in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

const (
	// UploadTimeout bounds a single upload.
	UploadTimeout = 60 * time.Second
	// DownloadURLTTL is how long a presigned download link stays valid.
	DownloadURLTTL = 15 * time.Minute
)

var (
	ErrNotConfigured = apperr.New(apperr.DependencyUnavailable, "report storage is not configured")
	ErrUnavailable   = apperr.New(apperr.DependencyUnavailable, "report storage is unavailable")
)

// Store is the object storage used for report files.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	PresignGet(ctx context.Context, key, fileName string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// New returns an S3 store, or a Disabled store when no bucket is configured.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled() {
		return Disabled{}, nil
	}
	return NewS3(ctx, cfg)
}

// ReportKey returns a fresh object key for a report of userID.
func ReportKey(userID int64, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("reports/%d/%s%s", userID, uuid.NewString(), ext)
}

type S3Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string
}

// NewS3 creates a store for the configured bucket. Static credentials are
// used when an access key is set, the default AWS chain otherwise.
func NewS3(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// Check verifies that the bucket exists and is reachable.
func (s *S3Store) Check(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return fmt.Errorf("bucket '%s' does not exist", s.bucket)
		}
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	return nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperr.Wrap(ErrUnavailable, fmt.Errorf("upload %s: %w", key, err))
	}
	return nil
}

func (s *S3Store) PresignGet(ctx context.Context, key, fileName string, ttl time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if fileName != "" {
		input.ResponseContentDisposition = aws.String(
			mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	}

	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperr.Wrap(ErrUnavailable, fmt.Errorf("presign %s: %w", key, err))
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperr.Wrap(ErrUnavailable, fmt.Errorf("delete %s: %w", key, err))
	}
	return nil
}

// Disabled is the store used when no bucket is configured.
type Disabled struct{}

func (Disabled) Put(context.Context, string, io.Reader, string) error {
	return ErrNotConfigured
}

func (Disabled) PresignGet(context.Context, string, string, time.Duration) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Delete(context.Context, string) error {
	return ErrNotConfigured
}
