package blobstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Driver implementation for testing.
// It stores blobs in memory without any filesystem dependency.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
	now   func() time.Time
}

type memoryBlob struct {
	data    []byte
	modTime time.Time
}

// memoryHandle pins the content that was current when the blob was opened.
type memoryHandle struct {
	name string
	data []byte
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]memoryBlob),
		now:   time.Now,
	}
}

// Put writes a blob atomically and advances its modification time.
func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to prevent external mutation
	copied := make([]byte, len(data))
	copy(copied, data)

	modTime := m.now()
	if prev, ok := m.blobs[name]; ok && !modTime.After(prev.modTime) {
		modTime = prev.modTime.Add(time.Millisecond)
	}
	m.blobs[name] = memoryBlob{data: copied, modTime: modTime}
	return nil
}

// Delete removes a blob.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, name)
	return nil
}

// List returns all blob names matching the prefix, sorted.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open opens a blob for reading.
func (m *MemoryStore) Open(_ context.Context, name string) (Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryHandle{name: name, data: b.data}, nil
}

// Stat returns the size and modification time of a blob.
func (m *MemoryStore) Stat(_ context.Context, name string) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[name]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return Metadata{Size: int64(len(b.data)), ModTime: b.modTime}, nil
}

// Close is a no-op for in-memory handles.
func (m *MemoryStore) Close(_ context.Context, h Handle) error {
	if _, ok := h.(*memoryHandle); !ok {
		return fmt.Errorf("blobstore: unexpected handle type %T", h)
	}
	return nil
}

// ReadAt copies blob content into p.
func (m *MemoryStore) ReadAt(_ context.Context, h Handle, p []byte, off int64) (int, error) {
	mh, ok := h.(*memoryHandle)
	if !ok {
		return 0, fmt.Errorf("blobstore: unexpected handle type %T", h)
	}
	if off < 0 || off >= int64(len(mh.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, mh.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
