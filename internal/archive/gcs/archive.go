// Package gcs provides the document archive backed by Google Cloud
// Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Archive uploads finished capture documents to a GCS bucket.
type Archive struct {
	client *storage.Client
	bucket string
}

// New wires an Archive to an existing storage client.
func New(client *storage.Client, bucket string) (*Archive, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Archive{
		client: client,
		bucket: bucket,
	}, nil
}

// Connect creates a storage client with Application Default Credentials
// and verifies the bucket is reachable, failing fast on bad
// configuration.
func Connect(ctx context.Context, bucket string, logger *zap.Logger) (*Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close storage client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("bucket %s attributes: %w", bucket, err)
	}
	return New(client, bucket)
}

// PutObject uploads data to the configured bucket and returns a gs://
// URI.
func (a *Archive) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := a.client.Bucket(a.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
}

// Close releases the underlying client.
func (a *Archive) Close() error {
	return a.client.Close()
}
