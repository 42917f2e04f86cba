package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var _ BlobStorage = (*FileStorage)(nil)

// FileStorage writes blobs to root/container/name and serves them from baseURL.
type FileStorage struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

func NewFileStorage(root, baseURL string, logger *zap.Logger) (*FileStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("file storage root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStorage{root: root, baseURL: baseURL, logger: logger}, nil
}

// Root is the directory blobs are written under.
func (s *FileStorage) Root() string { return s.root }

func (s *FileStorage) Upload(ctx context.Context, container, name string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkContainer(container); err != nil {
		return "", err
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, container, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create container %s: %w", container, err)
	}
	// 先写临时文件再改名，避免读到半个文件
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("write %s/%s: %w", container, name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s/%s: %w", container, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s/%s: %w", container, name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s/%s: %w", container, name, err)
	}
	s.logger.Debug("blob stored", zap.String("path", target), zap.Int("bytes", len(data)))
	return joinURL(s.baseURL, container, name), nil
}
