// Package oss stores uploaded source images and processed results.
//
// Providers implement Interface; New selects one from configuration:
// "filesystem" for local development and "s3" for AWS S3 or any
// S3-compatible service.
package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/studio233/batchd/config"
)

// ErrInvalidPath is returned for empty or escaping object paths.
var ErrInvalidPath = errors.New("oss: invalid object path")

// Interface defines object storage operations.
type Interface interface {
	// Put uploads reader to path and returns the object metadata.
	Put(ctx context.Context, path string, reader io.Reader, contentType string) (*Object, error)
	// GetURL returns a URL the object can be downloaded from.
	GetURL(ctx context.Context, path string) (string, error)
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, path string) error
	// Exists checks if an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// Object represents metadata about a stored object.
type Object struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
	URL          string
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageExtension maps an accepted image content type to its file extension.
func ImageExtension(contentType string) (string, bool) {
	ext, ok := imageExtensions[contentType]
	return ext, ok
}

// New returns the provider named by cfg.Provider.
func New(cfg *config.Storage) (Interface, error) {
	if cfg == nil {
		return nil, errors.New("oss: storage config is nil")
	}
	var (
		store Interface
		err   error
	)
	switch cfg.Provider {
	case "filesystem", "local", "":
		store, err = NewFilesystem(cfg.Path, cfg.PublicURL)
	case "s3", "aws", "aws-s3", "minio":
		store, err = NewS3(cfg)
	default:
		return nil, fmt.Errorf("oss: unsupported storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// CleanPath normalizes an object path and rejects traversal outside the root.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", ErrInvalidPath
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(p, "../") || strings.Contains(p, "/../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
