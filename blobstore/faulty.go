package blobstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Fault defines the errors injected for blobs matching a rule.
// A nil error leaves the corresponding call untouched.
type Fault struct {
	OpenErr  error
	StatErr  error
	CloseErr error
	ReadErr  error
}

// FaultyStore is a Driver wrapper that can inject errors and counts calls.
type FaultyStore struct {
	Driver Driver

	// BeforeOpen, when set, runs before every Open reaches the wrapped driver.
	BeforeOpen func(ctx context.Context, path string)

	// BeforeRead, when set, runs before every ReadAt reaches the wrapped driver.
	BeforeRead func(ctx context.Context, path string, off int64, n int)

	mu      sync.Mutex
	rules   map[string]Fault // path pattern -> fault
	Default Fault            // Fallback

	opens  atomic.Int64
	stats  atomic.Int64
	closes atomic.Int64
	reads  atomic.Int64
}

// faultyHandle remembers the path so read and close faults can be matched.
type faultyHandle struct {
	inner Handle
	path  string
}

// NewFaultyStore creates a new FaultyStore wrapping d (or a fresh MemoryStore if nil).
func NewFaultyStore(d Driver) *FaultyStore {
	if d == nil {
		d = NewMemoryStore()
	}
	return &FaultyStore{
		Driver: d,
		rules:  make(map[string]Fault),
	}
}

// AddRule adds a fault injection rule for paths containing pattern.
func (f *FaultyStore) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes all rules, leaving Default in place.
func (f *FaultyStore) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]Fault)
}

func (f *FaultyStore) fault(path string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	fault := f.Default
	// Match pattern (last winning match)
	for pattern, rule := range f.rules {
		if strings.Contains(path, pattern) {
			fault = rule
		}
	}
	return fault
}

// Opens returns the number of Open calls observed.
func (f *FaultyStore) Opens() int64 { return f.opens.Load() }

// Stats returns the number of Stat calls observed.
func (f *FaultyStore) Stats() int64 { return f.stats.Load() }

// Closes returns the number of Close calls observed.
func (f *FaultyStore) Closes() int64 { return f.closes.Load() }

// Reads returns the number of ReadAt calls observed.
func (f *FaultyStore) Reads() int64 { return f.reads.Load() }

// Open counts the call, runs BeforeOpen and injects OpenErr before
// delegating to the wrapped driver.
func (f *FaultyStore) Open(ctx context.Context, path string) (Handle, error) {
	f.opens.Add(1)
	if f.BeforeOpen != nil {
		f.BeforeOpen(ctx, path)
	}
	if err := f.fault(path).OpenErr; err != nil {
		return nil, err
	}
	h, err := f.Driver.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &faultyHandle{inner: h, path: path}, nil
}

// Stat counts the call and injects StatErr before delegating.
func (f *FaultyStore) Stat(ctx context.Context, path string) (Metadata, error) {
	f.stats.Add(1)
	if err := f.fault(path).StatErr; err != nil {
		return Metadata{}, err
	}
	return f.Driver.Stat(ctx, path)
}

// Close counts the call and injects CloseErr before closing the wrapped handle.
func (f *FaultyStore) Close(ctx context.Context, h Handle) error {
	f.closes.Add(1)
	fh, ok := h.(*faultyHandle)
	if !ok {
		return fmt.Errorf("blobstore: unexpected handle type %T", h)
	}
	if err := f.fault(fh.path).CloseErr; err != nil {
		return err
	}
	return f.Driver.Close(ctx, fh.inner)
}

// ReadAt counts the call, runs BeforeRead and injects ReadErr before
// delegating.
func (f *FaultyStore) ReadAt(ctx context.Context, h Handle, p []byte, off int64) (int, error) {
	f.reads.Add(1)
	fh, ok := h.(*faultyHandle)
	if !ok {
		return 0, fmt.Errorf("blobstore: unexpected handle type %T", h)
	}
	if f.BeforeRead != nil {
		f.BeforeRead(ctx, fh.path, off, len(p))
	}
	if err := f.fault(fh.path).ReadErr; err != nil {
		return 0, err
	}
	return f.Driver.ReadAt(ctx, fh.inner, p, off)
}
