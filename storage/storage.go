// Package storage uploads rendered creatives to blob storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ByLCY/adsmith/config"
)

// BlobStorage stores a blob under container/name and returns its public URL.
// Containers are created on first use; creating an existing one is not an error.
type BlobStorage interface {
	Upload(ctx context.Context, container, name string, data []byte, contentType string) (string, error)
}

var (
	ErrInvalidContainer = errors.New("invalid container name")
	ErrInvalidName      = errors.New("invalid blob name")
)

// S3 bucket rules are the strictest of the backends, so every backend uses them.
var containerPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func checkContainer(container string) error {
	if !containerPattern.MatchString(container) {
		return fmt.Errorf("%w: %q", ErrInvalidContainer, container)
	}
	return nil
}

func checkName(name string) error {
	clean := path.Clean("/" + name)
	if name == "" || strings.HasSuffix(name, "/") || clean != "/"+name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// joinURL appends escaped path segments to base.
func joinURL(base string, segments ...string) string {
	out := strings.TrimRight(base, "/")
	for _, s := range segments {
		for _, part := range strings.Split(s, "/") {
			out += "/" + url.PathEscape(part)
		}
	}
	return out
}

// New builds the backend selected by cfg.Driver.
func New(cfg config.StorageConfig, logger *zap.Logger) (BlobStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(cfg, WithLogger(logger))
	case "filesystem", "":
		return NewFileStorage(cfg.LocalPath, cfg.PublicBaseURL, logger)
	case "memory":
		return NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
