package rangecache_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/rangecache"
	"github.com/hupe1980/rangecache/blobstore"
	"github.com/hupe1980/rangecache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFile_Read(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		opts func() []rangecache.ReadOption
		want string
	}{
		{
			name: "whole file",
			opts: func() []rangecache.ReadOption { return nil },
			want: "world",
		},
		{
			name: "into larger buffer",
			opts: func() []rangecache.ReadOption {
				return []rangecache.ReadOption{rangecache.ReadInto([]byte("xxxxxx"))}
			},
			want: "worldx",
		},
		{
			name: "into buffer at offset truncates",
			opts: func() []rangecache.ReadOption {
				return []rangecache.ReadOption{rangecache.ReadInto([]byte("xxx")), rangecache.ReadBufferOffset(1)}
			},
			want: "xwo",
		},
		{
			name: "bounded into prefilled buffer",
			opts: func() []rangecache.ReadOption {
				return []rangecache.ReadOption{
					rangecache.ReadInto([]byte("abcdef")),
					rangecache.ReadBufferOffset(0),
					rangecache.ReadLength(3),
					rangecache.ReadPosition(0),
				}
			},
			want: "wordef",
		},
		{
			name: "bounded into prefilled buffer at offset",
			opts: func() []rangecache.ReadOption {
				return []rangecache.ReadOption{
					rangecache.ReadInto([]byte("abcdef")),
					rangecache.ReadBufferOffset(2),
					rangecache.ReadLength(3),
					rangecache.ReadPosition(0),
				}
			},
			want: "abworf",
		},
		{
			name: "into buffer at last offset",
			opts: func() []rangecache.ReadOption {
				return []rangecache.ReadOption{rangecache.ReadInto([]byte("abc")), rangecache.ReadBufferOffset(2)}
			},
			want: "abw",
		},
		{
			name: "unbounded from position",
			opts: func() []rangecache.ReadOption {
				return []rangecache.ReadOption{rangecache.ReadPosition(1)}
			},
			want: "orld",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newFixture(t, map[string]string{"/world": "world"})
			f, err := m.Open("/world")
			require.NoError(t, err)

			got, err := f.Read(ctx, tt.opts()...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFile_ReadArgumentErrors(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/world": "world"})
	f, err := m.Open("/world")
	require.NoError(t, err)

	_, err = f.Read(ctx, rangecache.ReadInto([]byte("abc")), rangecache.ReadBufferOffset(-1))
	assert.ErrorIs(t, err, rangecache.ErrInvalidArgument)

	_, err = f.Read(ctx, rangecache.ReadInto([]byte("abc")), rangecache.ReadBufferOffset(3))
	assert.ErrorIs(t, err, rangecache.ErrInvalidArgument)

	_, err = f.Read(ctx, rangecache.ReadInto([]byte{}), rangecache.ReadLength(2), rangecache.ReadPosition(0))
	assert.ErrorIs(t, err, rangecache.ErrRange)

	_, err = f.Read(ctx, rangecache.ReadInto([]byte("abc")), rangecache.ReadBufferOffset(2), rangecache.ReadLength(2))
	assert.ErrorIs(t, err, rangecache.ErrRange)

	_, err = f.Read(ctx, rangecache.ReadLength(-1))
	assert.ErrorIs(t, err, rangecache.ErrRange)

	_, err = f.Read(ctx, rangecache.ReadPosition(-1))
	assert.ErrorIs(t, err, rangecache.ErrRange)

	assert.Zero(t, fs.Stats())
	assert.Zero(t, fs.Opens())
	assert.Zero(t, fs.Reads())
	assert.Zero(t, f.Position())
}

func TestFile_BlockBoundaries(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		content   string
		blockSize int64
		position  int64
		length    int64
		want      string
	}{
		{"world", 2, 2, 2, "rl"},
		{"worlds", 3, 4, 2, "ds"},
		{"worlds", 3, 2, 3, "rld"},
		{"worlds", 3, 0, 3, "wor"},
		{"itstheendoftheworldasweknowit", 5, 2, 21, "stheendoftheworldaswe"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			m, _ := newFixture(t, map[string]string{"/f": tt.content})
			f, err := m.Open("/f", rangecache.WithFileBlockSize(tt.blockSize))
			require.NoError(t, err)

			got, err := f.Read(ctx, rangecache.ReadLength(tt.length), rangecache.ReadPosition(tt.position))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFile_Cursor(t *testing.T) {
	ctx := context.Background()
	m, _ := newFixture(t, map[string]string{"/world": "world"})
	f, err := m.Open("/world")
	require.NoError(t, err)

	got, err := f.Read(ctx, rangecache.ReadLength(3))
	require.NoError(t, err)
	assert.Equal(t, "wor", string(got))
	assert.Equal(t, int64(3), f.Position())

	got, err = f.Read(ctx, rangecache.ReadLength(2))
	require.NoError(t, err)
	assert.Equal(t, "ld", string(got))
	assert.Equal(t, int64(5), f.Position())

	// An unbounded read resets the cursor to 0.
	got, err = f.Read(ctx, rangecache.ReadPosition(1))
	require.NoError(t, err)
	assert.Equal(t, "orld", string(got))
	assert.Zero(t, f.Position())

	got, err = f.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
	assert.Zero(t, f.Position())
}

func TestFile_IdempotentReRead(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/f": "itstheendoftheworldasweknowit"}, rangecache.WithBlockSize(4))
	f, err := m.Open("/f")
	require.NoError(t, err)

	first, err := f.ReadRange(ctx, 3, 17)
	require.NoError(t, err)
	reads := fs.Reads()
	assert.Equal(t, int64(5), reads)

	second, err := f.ReadRange(ctx, 3, 17)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, reads, fs.Reads(), "second read must be served from the cache")

	// A sub-range of cached blocks needs no backend call either.
	sub, err := f.ReadRange(ctx, 5, 9)
	require.NoError(t, err)
	assert.Equal(t, "eend", string(sub))
	assert.Equal(t, reads, fs.Reads())

	assert.Equal(t, int64(1), fs.Opens())
	assert.Equal(t, int64(1), fs.Stats())
}

func TestFile_DisjointRanges(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/f": "helloworld"}, rangecache.WithBlockSize(5))
	f, err := m.Open("/f")
	require.NoError(t, err)

	a, err := f.ReadRange(ctx, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fs.Reads())

	b, err := f.ReadRange(ctx, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fs.Reads())

	assert.NotEqual(t, a, b)
}

func TestFile_RangeValidation(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/world": "world"})
	f, err := m.Open("/world")
	require.NoError(t, err)

	for _, r := range [][2]int64{{3, 2}, {0, 6}, {6, 6}, {-1, 2}} {
		_, err := f.ReadRange(ctx, r[0], r[1])
		assert.ErrorIs(t, err, rangecache.ErrRange, "range %v", r)

		var rerr *rangecache.Error
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, rangecache.KindRange, rerr.Kind)
		assert.Equal(t, "/world", rerr.Path)
	}

	_, err = f.Read(ctx, rangecache.ReadPosition(4), rangecache.ReadLength(2))
	assert.ErrorIs(t, err, rangecache.ErrRange)

	_, err = f.Read(ctx, rangecache.ReadPosition(6))
	assert.ErrorIs(t, err, rangecache.ErrRange)

	assert.Zero(t, fs.Opens())
	assert.Zero(t, fs.Reads())
}

func TestFile_RangeValidationBeforeStat(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/world": "world"})
	f, err := m.Open("/world")
	require.NoError(t, err)

	_, err = f.ReadRange(ctx, 3, 2)
	assert.ErrorIs(t, err, rangecache.ErrRange)
	_, err = f.ReadRange(ctx, -1, 2)
	assert.ErrorIs(t, err, rangecache.ErrRange)

	assert.Zero(t, fs.Stats())
}

func TestFile_EmptyRange(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/world": "world", "/empty": ""})

	f, err := m.Open("/world")
	require.NoError(t, err)

	got, err := f.ReadRange(ctx, 2, 2)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.Read(ctx, rangecache.ReadPosition(5))
	require.NoError(t, err)
	assert.Empty(t, got)

	e, err := m.Open("/empty")
	require.NoError(t, err)

	got, err = e.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.ReadRange(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Zero(t, fs.Opens())
	assert.Zero(t, fs.Reads())
}

func TestFile_ReadAt(t *testing.T) {
	m, _ := newFixture(t, map[string]string{"/world": "world"}, rangecache.WithBlockSize(2))
	f, err := m.Open("/world")
	require.NoError(t, err)

	var _ io.ReaderAt = f

	p := make([]byte, 3)
	n, err := f.ReadAt(p, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "orl", string(p))

	n, err = f.ReadAt(p, 3)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ld", string(p[:n]))

	n, err = f.ReadAt(p, 5)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)

	_, err = f.ReadAt(p, -1)
	assert.ErrorIs(t, err, rangecache.ErrRange)

	got, err := io.ReadAll(io.NewSectionReader(f, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
	assert.Zero(t, f.Position())
}

func TestFile_StatGeometry(t *testing.T) {
	ctx := context.Background()

	t.Run("derived size", func(t *testing.T) {
		d := new(MockDriver)
		d.On("Stat", mock.Anything, "/blocks").
			Return(blobstore.Metadata{Size: blobstore.UnknownSize, BlockSize: 3, Blocks: 2}, nil).Once()

		m, err := rangecache.New(d)
		require.NoError(t, err)
		f, err := m.Open("/blocks")
		require.NoError(t, err)

		size, err := f.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(6), size)

		meta, err := f.Stat(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), meta.BlockSize)

		d.AssertExpectations(t)
	})

	t.Run("zero block size", func(t *testing.T) {
		d := new(MockDriver)
		d.On("Stat", mock.Anything, "/zero").
			Return(blobstore.Metadata{Size: blobstore.UnknownSize, BlockSize: 0, Blocks: 2}, nil).Once()

		m, err := rangecache.New(d)
		require.NoError(t, err)
		f, err := m.Open("/zero")
		require.NoError(t, err)

		got, err := f.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)

		d.AssertExpectations(t)
		d.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
		d.AssertNotCalled(t, "ReadAt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFile_ShortRead(t *testing.T) {
	ctx := context.Background()
	d := new(MockDriver)
	d.On("Stat", mock.Anything, "/short").Return(blobstore.Metadata{Size: 8}, nil)
	d.On("Open", mock.Anything, "/short").Return("h", nil)
	d.On("ReadAt", mock.Anything, "h", mock.Anything, int64(0)).Return(4, io.EOF, []byte("shor"))

	m, err := rangecache.New(d)
	require.NoError(t, err)
	f, err := m.Open("/short")
	require.NoError(t, err)

	_, err = f.Read(ctx)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFile_UpstreamErrorsUnchanged(t *testing.T) {
	ctx := context.Background()
	statErr := errors.New("stat failed")
	openErr := errors.New("open failed")
	readErr := errors.New("read failed")

	m, fs := newFixture(t, map[string]string{"/stat": "a", "/open": "b", "/read": "c"})
	fs.AddRule("/stat", blobstore.Fault{StatErr: statErr})
	fs.AddRule("/open", blobstore.Fault{OpenErr: openErr})
	fs.AddRule("/read", blobstore.Fault{ReadErr: readErr})

	for path, want := range map[string]error{"/stat": statErr, "/open": openErr, "/read": readErr} {
		f, err := m.Open(path)
		require.NoError(t, err)

		_, err = f.Read(ctx)
		assert.Same(t, want, err, path)
	}

	f, err := m.Open("/missing")
	require.NoError(t, err)
	_, err = f.Read(ctx)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFile_MemoizedResolution(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/f": "itstheendoftheworld"}, rangecache.WithBlockSize(4))
	f, err := m.Open("/f")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := int64(i % 10)
			got, err := f.ReadRange(ctx, start, start+5)
			assert.NoError(t, err)
			assert.Equal(t, "itstheendoftheworld"[start:start+5], string(got))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), fs.Stats())
	assert.Equal(t, int64(1), fs.Opens())
}

func TestFile_MemoizedStatError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	m, fs := newFixture(t, map[string]string{"/f": "x"})
	fs.AddRule("/f", blobstore.Fault{StatErr: boom})

	f, err := m.Open("/f")
	require.NoError(t, err)

	_, err = f.Stat(ctx)
	assert.Same(t, boom, err)

	fs.ClearRules()
	_, err = f.Size(ctx)
	assert.Same(t, boom, err, "a failed resolution is memoized")
	assert.Equal(t, int64(1), fs.Stats())
}

func TestFile_ConcurrentMissesNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	m, fs := newFixture(t, map[string]string{"/f": "world"})
	g := newGate()
	fs.BeforeRead = func(context.Context, string, int64, int) { g.wait() }

	f, err := m.Open("/f")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.ReadRange(ctx, 0, 5)
			assert.NoError(t, err)
			assert.Equal(t, "world", string(got))
		}()
	}

	g.awaitArrivals(t, 2)
	g.open()
	wg.Wait()

	assert.Equal(t, int64(2), fs.Reads())
}

func TestFile_EvictionUnderPressure(t *testing.T) {
	ctx := context.Background()
	d := &randomDriver{size: 45, modTime: time.Unix(1700000000, 0)}

	m, err := rangecache.New(d, rangecache.WithCacheSize(30), rangecache.WithBlockSize(15))
	require.NoError(t, err)
	f, err := m.Open("/random")
	require.NoError(t, err)

	read := func(start int64) []byte {
		b, err := f.ReadRange(ctx, start, start+15)
		require.NoError(t, err)
		return b
	}

	x, y, z := read(0), read(15), read(30)

	assert.NotEqual(t, x, read(0), "x must have been evicted")
	assert.Equal(t, z, read(30), "z must still be cached")
	assert.NotEqual(t, y, read(15), "y must have been evicted")
}

func TestFile_ModTimeInvalidates(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "/f", []byte("hello")))

	m, err := rangecache.New(mem)
	require.NoError(t, err)

	f1, err := m.Open("/f")
	require.NoError(t, err)
	got, err := f1.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	require.NoError(t, f1.Close(ctx))

	require.NoError(t, mem.Put(ctx, "/f", []byte("HELLO")))

	f2, err := m.Open("/f")
	require.NoError(t, err)
	got, err = f2.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(got))
}

func TestFile_CacheKeys(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "/world", []byte("world")))
	meta, err := mem.Stat(ctx, "/world")
	require.NoError(t, err)

	lru := cache.NewLRU(1024)
	m, err := rangecache.New(mem, rangecache.WithCache(lru), rangecache.WithPrefix("y"), rangecache.WithBlockSize(3))
	require.NoError(t, err)
	assert.Same(t, lru, m.Cache())

	f, err := m.Open("/world")
	require.NoError(t, err)
	_, err = f.Read(ctx)
	require.NoError(t, err)

	fp := "y/world:" + strconv.FormatInt(meta.ModTime.UnixNano(), 36)
	b, ok := lru.Get(ctx, fp+":0:3")
	require.True(t, ok)
	assert.Equal(t, "wor", string(b))

	b, ok = lru.Get(ctx, fp+":3:5")
	require.True(t, ok)
	assert.Equal(t, "ld", string(b))
	assert.Equal(t, 2, lru.Len())
}

func TestFile_SharedCacheAcrossManagers(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewShardedLRU(1 << 20)

	m1, fs1 := newFixture(t, map[string]string{"/f": "first"}, rangecache.WithCache(shared), rangecache.WithPrefix("a/"))
	m2, fs2 := newFixture(t, map[string]string{"/f": "other"}, rangecache.WithCache(shared), rangecache.WithPrefix("b/"))

	f1, err := m1.Open("/f")
	require.NoError(t, err)
	f2, err := m2.Open("/f")
	require.NoError(t, err)

	got, err := f1.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	got, err = f2.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "other", string(got))

	assert.Equal(t, int64(1), fs1.Reads())
	assert.Equal(t, int64(1), fs2.Reads())
	assert.Equal(t, 2, shared.Stats().Entries)
}

func TestFile_CompressedCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewCompressed(cache.NewLRU(1<<20), cache.ZstdCodec{})
	m, fs := newFixture(t, map[string]string{"/f": "itstheendoftheworldasweknowit"},
		rangecache.WithCache(store), rangecache.WithBlockSize(8))

	f, err := m.Open("/f")
	require.NoError(t, err)

	for range 2 {
		got, err := f.ReadRange(ctx, 2, 23)
		require.NoError(t, err)
		assert.Equal(t, "stheendoftheworldaswe", string(got))
	}
	assert.Equal(t, int64(3), fs.Reads())
}
