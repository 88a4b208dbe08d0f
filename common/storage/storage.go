package storage

import (
	"context"
	"io"
)

// StorageService defines the interface for archive storage operations
type StorageService interface {
	// Download downloads an object from storage
	Download(ctx context.Context, bucket, objectName string) ([]byte, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, bucket, objectName string) error

	// GetSignedURL gets a time-limited URL for an object
	GetSignedURL(ctx context.Context, bucket, objectName string, expires int64) (string, error)

	// StreamUpload uploads an object from a reader
	StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error)
}
