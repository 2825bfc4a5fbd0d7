package objectstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSFetcher reads objects from Cloud Storage.
type GCSFetcher struct {
	client   *storage.Client
	maxBytes int64
}

func NewGCSFetcher(client *storage.Client, maxBytes int64) *GCSFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &GCSFetcher{client: client, maxBytes: maxBytes}
}

func (g *GCSFetcher) Fetch(ctx context.Context, loc Location) (*Object, error) {
	reader, err := g.client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", loc, err)
	}
	defer reader.Close()

	data, err := readLimited(reader, g.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc, err)
	}
	return &Object{
		Location:    loc,
		ContentType: resolveContentType(reader.Attrs.ContentType, data),
		Data:        data,
	}, nil
}
