// Package objectstore resolves document storage locations and fetches their bytes.
package objectstore

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	SchemeGCS = "gs"
	SchemeS3  = "s3"
)

var (
	ErrInvalidLocation   = errors.New("invalid storage location")
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	ErrObjectTooLarge    = errors.New("object exceeds size limit")
)

// Location is a parsed scheme://bucket/key URI.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation splits a storage URI positionally: segment 0 is the scheme,
// segment 2 the bucket and everything after it the key.
func ParseLocation(uri string) (Location, error) {
	parts := strings.Split(uri, "/")
	if len(parts) < 4 || parts[1] != "" || !strings.HasSuffix(parts[0], ":") {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, uri)
	}

	loc := Location{
		Scheme: strings.ToLower(strings.TrimSuffix(parts[0], ":")),
		Bucket: parts[2],
		Key:    strings.Join(parts[3:], "/"),
	}
	if loc.Bucket == "" || loc.Key == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, uri)
	}
	switch loc.Scheme {
	case SchemeGCS, SchemeS3:
	default:
		return Location{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, loc.Scheme)
	}
	return loc, nil
}

func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// Ext returns the lower-cased file extension of the key, including the dot.
func (l Location) Ext() string {
	return strings.ToLower(path.Ext(l.Key))
}
