package storage

import (
	"context"
	"io"
)

// Storage is the backend for menu images.
type Storage interface {
	// Put stores the object under key, overwriting any existing object.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// GetURL returns the public URL for key.
	GetURL(key string) string
}

// Config selects and configures a backend
type Config struct {
	S3Endpoint  string // empty for AWS, set for MinIO / R2
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PublicURL string
}
