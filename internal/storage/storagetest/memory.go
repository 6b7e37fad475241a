// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/model-registry/model-registry/internal/storage"
)

// Memory is a thread-safe in-memory Storage. URLs have the form
// memory://<path>?ttl=<seconds>.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// URLErr, when set, is returned by GetURL for every path
	URLErr error
	// ExistsErr, when set, is returned by Exists for every path
	ExistsErr error
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores data at path
func (m *Memory) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), data...)
}

// Get returns the bytes at path
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[path]
	return b, ok
}

func (m *Memory) Upload(_ context.Context, path string, reader io.Reader, _ int64) (*storage.UploadResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	m.Put(path, data)
	sum := sha256.Sum256(data)
	return &storage.UploadResult{Path: path, Size: int64(len(data)), Checksum: hex.EncodeToString(sum[:])}, nil
}

func (m *Memory) Download(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := m.Get(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if m.URLErr != nil {
		return "", m.URLErr
	}
	ok, err := m.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrObjectNotFound, path)
	}
	return fmt.Sprintf("memory://%s?ttl=%d", url.PathEscape(path), int64(ttl/time.Second)), nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	_, ok := m.Get(path)
	return ok, nil
}
