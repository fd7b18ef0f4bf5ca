package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"biomrk-backend/internal/shared/storage/object"
)

// Store implements ObjectStore using Google Cloud Storage.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// Credentials selects how the client authenticates. An access token takes
// precedence over a service account key file; with neither, Application
// Default Credentials are used.
type Credentials struct {
	KeyFile     string
	AccessToken string
}

// New creates a GCS-backed object store.
func New(ctx context.Context, bucket, prefix string, creds Credentials) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	opts, err := clientOptions(creds)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

func clientOptions(creds Credentials) ([]option.ClientOption, error) {
	if token := strings.TrimSpace(creds.AccessToken); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		return []option.ClientOption{option.WithTokenSource(ts)}, nil
	}
	if path := strings.TrimSpace(creds.KeyFile); path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", path)
		}
		return []option.ClientOption{option.WithCredentialsFile(path)}, nil
	}
	return nil, nil
}

// List iterates bucket objects under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]object.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	listPrefix := object.ApplyPrefix(s.prefix, prefix)
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: listPrefix})

	var out []object.Info
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list objects bucket=%s prefix=%s: %w", s.bucket, listPrefix, err)
		}
		if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, object.Info{Key: object.StripPrefix(s.prefix, attrs.Name), Size: attrs.Size})
	}
	object.SortInfos(out)
	return out, nil
}

// Open streams an object from the bucket.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	objectKey := object.ApplyPrefix(s.prefix, storageKey)
	r, err := s.client.Bucket(s.bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return r, nil
}

// SaveWithKey uploads data to a specific storage key.
func (s *Store) SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	objectKey := object.ApplyPrefix(s.prefix, storageKey)
	w := s.client.Bucket(s.bucket).Object(objectKey).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"

	written, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("gcs write object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("gcs close writer bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return written, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ object.ObjectStore = (*Store)(nil)
