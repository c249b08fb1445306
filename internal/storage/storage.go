// Package storage persists task attachment blobs. The backend is chosen by
// configuration: the local filesystem, S3 (or any S3 compatible endpoint), or
// Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/pkg/config"
)

// Store writes and removes attachment blobs by key.
type Store interface {
	// Put stores r under key and returns the public URL of the object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// New builds the Store selected by cfg.Driver.
func New(ctx context.Context, cfg *config.StorageConfig, serverURL string) (Store, error) {
	switch cfg.Driver {
	case "local", "":
		return NewLocalStore(cfg.LocalDir, localBaseURL(cfg, serverURL))
	case "s3":
		return NewS3Store(ctx, cfg)
	case "gcs":
		return NewGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func localBaseURL(cfg *config.StorageConfig, serverURL string) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	return strings.TrimRight(serverURL, "/") + "/images"
}

// NewKey returns a fresh object key for a file uploaded to a project. The
// original extension is kept so served files get a sensible content type.
func NewKey(projectID uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return path.Join("projects", projectID.String(), uuid.NewString()+ext)
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
