// Package storage defines where downloaded files (translated documents,
// file content) are written.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/docsweb/docs-client/internal/config"
	"github.com/docsweb/docs-client/internal/storage/local"
	s3backend "github.com/docsweb/docs-client/internal/storage/s3"
)

// Backend is a destination for downloaded objects.
type Backend interface {
	// PutObject stores body under key. size may be -1 when unknown.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Location returns a human readable location of key.
	Location(key string) string

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// New creates the download backend selected by cfg.DownloadBackend.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.DownloadBackend {
	case "local", "":
		return local.New(local.Config{RootPath: cfg.DownloadDir, CreateDirs: true})
	case "s3":
		return s3backend.NewBackend(ctx, s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown download backend: %s", cfg.DownloadBackend)
	}
}
