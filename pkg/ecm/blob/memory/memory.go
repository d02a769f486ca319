package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/simple-ecm/pkg/ecm"
)

// Backend is an in-memory implementation of the ecm.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	mimeTypes map[string]string
}

// New creates a new in-memory payload backend
func New() *Backend {
	return &Backend{
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
	}
}

// Upload stores a copy of the reader's content under key
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, mimeType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = data
	b.mimeTypes[key] = mimeType
	return nil
}

// Download returns a reader over the payload stored under key
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, ecm.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the payload stored under key
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return ecm.ErrBlobNotFound
	}
	delete(b.objects, key)
	delete(b.mimeTypes, key)
	return nil
}

// MimeType returns the mime type recorded for key
func (b *Backend) MimeType(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mt, ok := b.mimeTypes[key]
	return mt, ok
}

// Len returns the number of stored payloads
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.objects)
}
