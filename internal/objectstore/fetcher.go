package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxBytes bounds a fetched document; it matches the inline request
// limit of the document-analysis model.
const DefaultMaxBytes = 20 << 20

// Object is a fetched document.
type Object struct {
	Location    Location
	ContentType string
	Data        []byte
}

// IsPDF reports whether the object is a PDF by content type or extension.
func (o *Object) IsPDF() bool {
	return o.ContentType == "application/pdf" || o.Location.Ext() == ".pdf"
}

// Fetcher reads whole objects from one storage backend.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) (*Object, error)
}

// Router dispatches fetches by URI scheme.
type Router struct {
	fetchers map[string]Fetcher
}

func NewRouter() *Router {
	return &Router{fetchers: make(map[string]Fetcher)}
}

// Register installs f for scheme, replacing any previous fetcher.
func (r *Router) Register(scheme string, f Fetcher) {
	r.fetchers[strings.ToLower(scheme)] = f
}

func (r *Router) Fetch(ctx context.Context, loc Location) (*Object, error) {
	f, ok := r.fetchers[loc.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no backend configured for %s://", ErrUnsupportedScheme, loc.Scheme)
	}
	return f.Fetch(ctx, loc)
}

// readLimited reads at most max bytes and fails if the source holds more.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrObjectTooLarge, max)
	}
	return data, nil
}

// resolveContentType prefers the stored content type and sniffs the bytes
// when the store only knows it as a generic binary.
func resolveContentType(stored string, data []byte) string {
	ct := strings.TrimSpace(strings.Split(stored, ";")[0])
	if ct != "" && ct != "application/octet-stream" && ct != "binary/octet-stream" {
		return ct
	}
	return strings.Split(http.DetectContentType(data), ";")[0]
}
