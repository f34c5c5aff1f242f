package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem stores objects under a local directory. baseURL is the public
// prefix under which the directory is served.
type Filesystem struct {
	root    string
	baseURL string
}

// NewFilesystem creates the root directory if needed.
func NewFilesystem(root, baseURL string) (*Filesystem, error) {
	if root == "" {
		root = "./uploads"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("oss: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("oss: create root: %w", err)
	}
	if baseURL == "" {
		baseURL = "file://" + filepath.ToSlash(abs)
	}
	return &Filesystem{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the absolute storage directory.
func (f *Filesystem) Root() string { return f.root }

func (f *Filesystem) full(p string) (string, string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", "", err
	}
	return clean, filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

// Put writes to a temp file and renames it into place.
func (f *Filesystem) Put(ctx context.Context, p string, reader io.Reader, contentType string) (*Object, error) {
	clean, full, err := f.full(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("oss: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("oss: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: reader})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("oss: write %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return nil, fmt.Errorf("oss: rename %s: %w", clean, err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("oss: stat %s: %w", clean, err)
	}
	return &Object{
		Path:         clean,
		Size:         n,
		ContentType:  contentType,
		LastModified: info.ModTime(),
		URL:          f.url(clean),
	}, nil
}

func (f *Filesystem) url(clean string) string {
	segs := strings.Split(clean, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return f.baseURL + "/" + strings.Join(segs, "/")
}

// GetURL returns the public URL for the object.
func (f *Filesystem) GetURL(_ context.Context, p string) (string, error) {
	clean, _, err := f.full(p)
	if err != nil {
		return "", err
	}
	return f.url(clean), nil
}

// Delete removes the file at p.
func (f *Filesystem) Delete(_ context.Context, p string) error {
	_, full, err := f.full(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("oss: delete: %w", err)
	}
	return nil
}

// Exists checks if a file exists at p.
func (f *Filesystem) Exists(_ context.Context, p string) (bool, error) {
	_, full, err := f.full(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
