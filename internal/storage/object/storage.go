// Package object uploads exported archives to S3-compatible storage.
package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// Config describes the target bucket
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	// Region skips the bucket location lookup when set
	Region string
}

// Storage provides an S3-compatible upload target using MinIO.
// The bucket is created on the first Save if it does not exist.
type Storage struct {
	client *minio.Client
	bucket string
	prefix string

	mu          sync.Mutex
	bucketReady bool
}

// NewStorage creates a client for cfg. It does not contact the server.
func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	return &Storage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info().Str("bucket", s.bucket).Msg("Created storage bucket")
	}

	s.bucketReady = true
	return nil
}

// Save uploads r under prefix/name and returns the object name.
// size may be -1 when unknown.
func (s *Storage) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	objectName := name
	if s.prefix != "" {
		objectName = path.Join(s.prefix, name)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	log.Debug().
		Str("bucket", s.bucket).
		Str("object", objectName).
		Int64("size", info.Size).
		Msg("Uploaded object")

	return objectName, nil
}
