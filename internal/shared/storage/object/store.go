// Package object stores uploaded documents and reads them back from an
// ordered list of locations.
package object

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key does not exist in a store.
var ErrNotFound = errors.New("object not found")

// ObjectStore saves and opens binary objects.
type ObjectStore interface {
	// Name identifies the location, e.g. "local", "s3", "gcs".
	Name() string
	Save(ctx context.Context, ownerID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
