// Package gcs stores documents in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"creditdocs-backend/internal/shared/storage/object"
)

// Store implements ObjectStore on a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New opens a client with application default credentials.
func New(ctx context.Context, bucket, prefix string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(strings.TrimSpace(prefix), "/")}, nil
}

func (s *Store) Name() string { return "gcs" }

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

// Save uploads the reader under the owner's namespace. Objects are never
// overwritten.
func (s *Store) Save(ctx context.Context, ownerID string, fileName string, r io.Reader) (string, int64, string, error) {
	storageKey, err := object.NewKey(ownerID, fileName)
	if err != nil {
		return "", 0, "", fmt.Errorf("storage key: %w", err)
	}
	objectName := objectPath(s.prefix, storageKey)

	mimeType, body, err := object.Sniff(r)
	if err != nil {
		return "", 0, "", err
	}

	w := s.client.Bucket(s.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = mimeType
	written, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return "", 0, "", fmt.Errorf("gcs write bucket=%s object=%s: %w", s.bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", 0, "", fmt.Errorf("gcs close bucket=%s object=%s: %w", s.bucket, objectName, err)
	}
	return storageKey, written, mimeType, nil
}

// Open reads an object.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	objectName := objectPath(s.prefix, storageKey)
	rc, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%w: gcs bucket=%s object=%s", object.ErrNotFound, s.bucket, objectName)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read bucket=%s object=%s: %w", s.bucket, objectName, err)
	}
	return rc, nil
}

func objectPath(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

var _ object.ObjectStore = (*Store)(nil)
