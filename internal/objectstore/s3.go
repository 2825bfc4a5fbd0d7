package objectstore

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether an endpoint was configured.
func (c S3Config) Enabled() bool {
	return c.Endpoint != ""
}

// S3Fetcher reads objects from an S3-compatible store through MinIO.
type S3Fetcher struct {
	client   *minio.Client
	maxBytes int64
}

func NewS3Fetcher(cfg S3Config, maxBytes int64) (*S3Fetcher, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client for %s: %w", cfg.Endpoint, err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &S3Fetcher{client: cli, maxBytes: maxBytes}, nil
}

func (s *S3Fetcher) Fetch(ctx context.Context, loc Location) (*Object, error) {
	obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", loc, err)
	}
	defer obj.Close()

	// Stat surfaces missing objects before any bytes are read.
	info, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", loc, err)
	}
	if info.Size > s.maxBytes {
		return nil, fmt.Errorf("failed to read %s: %w: %d bytes", loc, ErrObjectTooLarge, info.Size)
	}

	data, err := readLimited(obj, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc, err)
	}
	return &Object{
		Location:    loc,
		ContentType: resolveContentType(info.ContentType, data),
		Data:        data,
	}, nil
}
