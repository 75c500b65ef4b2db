package rangecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/rangecache/blobstore"
	"github.com/hupe1980/rangecache/cache"
	"github.com/hupe1980/rangecache/internal/lazy"
	"github.com/hupe1980/rangecache/resource"
	"golang.org/x/sync/errgroup"
)

const (
	stateConnected uint32 = iota
	stateDisconnecting
	stateDisconnected
)

// Manager owns the shared block cache and the storage driver, creates Files,
// and tracks every File whose backend handle is open.
type Manager struct {
	driver           blobstore.Driver
	cache            cache.BlockStore
	prefix           string
	blockSize        int64
	logger           *Logger
	metrics          MetricsCollector
	rc               *resource.Controller
	closeConcurrency int

	state      atomic.Uint32
	mu         sync.Mutex
	tracked    map[*File]struct{}
	disconnect *lazy.Value[struct{}]
}

// New creates a Manager reading through driver.
//
// Without WithCache, a cache.LRU of WithCacheSize bytes (default 10 MiB) is
// created for this Manager alone.
func New(driver blobstore.Driver, optFns ...Option) (*Manager, error) {
	if driver == nil {
		return nil, newError(KindInvalidArgument, "new", "", errors.New("driver is required"))
	}

	o := applyOptions(optFns)
	if o.blockSize <= 0 {
		return nil, newError(KindInvalidArgument, "new", "", errors.New("block size must be positive"))
	}

	c := o.cache
	if c == nil {
		if o.cacheSize < 0 {
			return nil, newError(KindInvalidArgument, "new", "", errors.New("cache size must not be negative"))
		}
		c = cache.NewLRU(o.cacheSize, cache.WithResourceController(o.rc))
	}

	m := &Manager{
		driver:           driver,
		cache:            c,
		prefix:           o.prefix,
		blockSize:        o.blockSize,
		logger:           o.logger,
		metrics:          o.metricsCollector,
		rc:               o.rc,
		closeConcurrency: o.closeConcurrency,
		tracked:          make(map[*File]struct{}),
	}
	m.disconnect = lazy.New(m.sweep)

	return m, nil
}

// Cache returns the block store shared by the Manager's files.
func (m *Manager) Cache() cache.BlockStore { return m.cache }

// Tracked returns the number of files whose backend handle is open.
func (m *Manager) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

func (m *Manager) isDisconnected() bool {
	return m.state.Load() != stateConnected
}

// track registers f once its backend handle is open. It returns false once
// Disconnect has begun; the caller must then close the handle itself.
func (m *Manager) track(f *File) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Load() != stateConnected {
		return false
	}
	m.tracked[f] = struct{}{}
	return true
}

func (m *Manager) untrack(f *File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, f)
}

// Open returns a File for path without contacting the backend.
// The backend handle and metadata are resolved on first use.
func (m *Manager) Open(path string, optFns ...OpenOption) (*File, error) {
	if m.isDisconnected() {
		return nil, newError(KindDisconnected, "open", path, nil)
	}
	if path == "" {
		return nil, newError(KindInvalidArgument, "open", path, errors.New("path is required"))
	}

	o := openOptions{blockSize: m.blockSize}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.blockSize <= 0 {
		return nil, newError(KindInvalidArgument, "open", path, errors.New("block size must be positive"))
	}

	return newFile(m, path, o.blockSize), nil
}

// OpenContext is like Open but resolves the metadata and the backend handle
// before returning. Driver errors are returned unchanged.
func (m *Manager) OpenContext(ctx context.Context, path string, optFns ...OpenOption) (*File, error) {
	f, err := m.Open(path, optFns...)
	if err != nil {
		return nil, err
	}

	if err := f.acquire("open", nil); err != nil {
		return nil, err
	}
	_, err = f.meta.Get(ctx)
	if err == nil {
		_, _, err = f.open(ctx)
	}
	f.release()

	if err != nil {
		// No backend handle was produced, so this cannot fail.
		_ = f.close(ctx)
		return nil, err
	}
	return f, nil
}

// Close closes f. See File.Close.
func (m *Manager) Close(ctx context.Context, f *File) error {
	if err := m.owns("close", f); err != nil {
		return err
	}
	return f.Close(ctx)
}

// Read reads from f. See File.Read.
func (m *Manager) Read(ctx context.Context, f *File, optFns ...ReadOption) ([]byte, error) {
	if err := m.owns("read", f); err != nil {
		return nil, err
	}
	return f.Read(ctx, optFns...)
}

func (m *Manager) owns(op string, f *File) error {
	if f == nil {
		return newError(KindInvalidArgument, op, "", errors.New("file is required"))
	}
	if f.m != m {
		return newError(KindInvalidArgument, op, f.path, errors.New("file belongs to another manager"))
	}
	return nil
}

// CreateReadStream opens path and streams [StreamStart, StreamEnd) of it.
// The file is closed when the stream ends, fails, or is closed.
func (m *Manager) CreateReadStream(ctx context.Context, path string, optFns ...StreamOption) (*Stream, error) {
	f, err := m.Open(path)
	if err != nil {
		return nil, err
	}

	s, err := f.Stream(ctx, optFns...)
	if err != nil {
		return nil, err
	}
	s.onDone = f.Close
	return s, nil
}

// Disconnect closes every tracked file and fails all later operations on the
// Manager and its files with ErrDisconnected.
//
// It runs once; every call returns the same outcome. Close failures do not
// stop the sweep. They are collected into a *DisconnectError.
func (m *Manager) Disconnect(ctx context.Context) error {
	_, err := m.disconnect.Get(ctx)
	return err
}

func (m *Manager) sweep(ctx context.Context) (struct{}, error) {
	start := time.Now()

	m.mu.Lock()
	m.state.Store(stateDisconnecting)
	files := make([]*File, 0, len(m.tracked))
	for f := range m.tracked {
		files = append(files, f)
	}
	m.mu.Unlock()

	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(m.closeConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if err := f.close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.state.Store(stateDisconnected)
	m.metrics.RecordDisconnect(len(files), len(errs), time.Since(start))
	m.logger.LogDisconnect(ctx, len(files), len(errs))

	if len(errs) > 0 {
		return struct{}{}, &DisconnectError{Errs: errs}
	}
	return struct{}{}, nil
}
