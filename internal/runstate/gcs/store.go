// Package gcs implements a state store backed by Google Cloud Storage, one
// object per slot key. Useful when the controller runs on ephemeral hosts and
// the run record must survive them.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to slot object names.
	Prefix string
}

// Store keeps slot values as small JSON objects in a configured bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed state store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Get downloads the slot object. A missing object is not an error.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("open slot object: %w", err)
	}
	data, err := io.ReadAll(reader)
	closeErr := reader.Close()
	if err != nil {
		return "", false, fmt.Errorf("read slot object: %w", err)
	}
	if closeErr != nil {
		return "", false, fmt.Errorf("close slot reader: %w", closeErr)
	}
	return string(data), true, nil
}

// Set overwrites the slot object.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	writer := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.WriteString(writer, value); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write slot object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write slot object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close slot writer: %w", err)
	}
	return nil
}

// Remove deletes the slot object. Removing a missing object is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete slot object: %w", err)
	}
	return nil
}

func (s *Store) objectName(key string) string {
	name := strings.NewReplacer("/", "_", ":", "_").Replace(key) + ".json"
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}
