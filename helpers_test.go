package rangecache_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/rangecache"
	"github.com/hupe1980/rangecache/blobstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newFixture returns a manager over an in-memory store holding files,
// wrapped in a FaultyStore that counts backend calls.
func newFixture(t *testing.T, files map[string]string, opts ...rangecache.Option) (*rangecache.Manager, *blobstore.FaultyStore) {
	t.Helper()

	mem := blobstore.NewMemoryStore()
	for name, content := range files {
		require.NoError(t, mem.Put(context.Background(), name, []byte(content)))
	}

	fs := blobstore.NewFaultyStore(mem)
	m, err := rangecache.New(fs, opts...)
	require.NoError(t, err)
	return m, fs
}

// gate blocks driver calls until released and reports when they arrive.
type gate struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{
		arrived: make(chan struct{}, 64),
		release: make(chan struct{}),
	}
}

func (g *gate) wait() {
	g.arrived <- struct{}{}
	<-g.release
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

func (g *gate) awaitArrivals(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-g.arrived:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a driver call")
		}
	}
}

// randomDriver serves a file whose every read returns fresh random bytes.
type randomDriver struct {
	size    int64
	modTime time.Time
}

func (d *randomDriver) Open(context.Context, string) (blobstore.Handle, error) {
	return struct{}{}, nil
}

func (d *randomDriver) Stat(context.Context, string) (blobstore.Metadata, error) {
	return blobstore.Metadata{Size: d.size, ModTime: d.modTime}, nil
}

func (d *randomDriver) Close(context.Context, blobstore.Handle) error { return nil }

func (d *randomDriver) ReadAt(_ context.Context, _ blobstore.Handle, p []byte, _ int64) (int, error) {
	return rand.Read(p)
}

// MockDriver is a testify mock of blobstore.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Open(ctx context.Context, path string) (blobstore.Handle, error) {
	args := m.Called(ctx, path)
	return args.Get(0), args.Error(1)
}

func (m *MockDriver) Stat(ctx context.Context, path string) (blobstore.Metadata, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(blobstore.Metadata), args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context, h blobstore.Handle) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockDriver) ReadAt(ctx context.Context, h blobstore.Handle, p []byte, off int64) (int, error) {
	args := m.Called(ctx, h, p, off)
	if fill, ok := args.Get(2).([]byte); ok {
		copy(p, fill)
	}
	return args.Int(0), args.Error(1)
}
