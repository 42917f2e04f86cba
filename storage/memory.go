package storage

import (
	"context"
	"sync"
)

var _ BlobStorage = (*MemoryStorage)(nil)

// Blob is an object held by MemoryStorage.
type Blob struct {
	Data        []byte
	ContentType string
}

// MemoryStorage keeps blobs in process memory. URLs use the memory:// scheme.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string]map[string]Blob
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: map[string]map[string]Blob{}}
}

func (s *MemoryStorage) Upload(ctx context.Context, container, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkContainer(container); err != nil {
		return "", err
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.blobs[container]
	if !ok {
		c = map[string]Blob{}
		s.blobs[container] = c
	}
	c[name] = Blob{Data: append([]byte(nil), data...), ContentType: contentType}
	return joinURL("memory://"+container, name), nil
}

// Get returns a stored blob.
func (s *MemoryStorage) Get(container, name string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[container][name]
	return b, ok
}

// Len counts blobs in container.
func (s *MemoryStorage) Len(container string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs[container])
}
