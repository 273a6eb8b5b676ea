package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Writer persists generated media payloads into Cloud Storage.
type Writer struct {
	client *gcs.Client
}

// NewWriter constructs a Writer backed by the provided Cloud Storage client.
func NewWriter(client *gcs.Client) (*Writer, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &Writer{client: client}, nil
}

// Write stores the payload under bucket/object and returns its gs:// URI.
func (w *Writer) Write(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error) {
	if w == nil || w.client == nil {
		return "", errors.New("storage writer: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.Trim(strings.TrimSpace(object), "/")
	if bucket == "" || object == "" {
		return "", errors.New("storage writer: bucket and object are required")
	}
	if len(data) == 0 {
		return "", errors.New("storage writer: payload is empty")
	}

	writer := w.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage writer: write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage writer: close object %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
