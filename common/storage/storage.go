package storage

import (
	"context"
	"io"
)

// StorageService stores objects in a bucket.
type StorageService interface {
	// Upload stores content and returns the object name.
	Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error)

	StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error)
}
