package rangecache

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/hupe1980/rangecache/blobstore"
	"github.com/hupe1980/rangecache/internal/blockrange"
	"github.com/hupe1980/rangecache/internal/lazy"
)

type fileState uint8

const (
	stateOpen fileState = iota
	stateClosing
	stateClosed
)

// File is one path opened through a Manager.
//
// The backend handle, metadata, and cache-key prefix are resolved lazily on
// first use and memoized. A File is safe for concurrent use, but reads that
// rely on the cursor race on it; serialize them if their order matters.
type File struct {
	m         *Manager
	path      string
	blockSize int64

	meta   *lazy.Value[blobstore.Metadata]
	prefix *lazy.Value[string]
	handle *lazy.Value[blobstore.Handle]

	mu       sync.Mutex
	state    fileState
	inFlight int
	position int64
	closeCtx context.Context

	done     chan struct{} // closed once the backend handle is disposed
	closeErr error
}

func newFile(m *Manager, path string, blockSize int64) *File {
	f := &File{
		m:         m,
		path:      path,
		blockSize: blockSize,
		done:      make(chan struct{}),
	}
	f.meta = lazy.New(f.resolveStat)
	f.prefix = lazy.New(f.resolvePrefix)
	f.handle = lazy.New(f.resolveOpen)
	return f
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// BlockSize returns the block size used to fetch and cache the file.
func (f *File) BlockSize() int64 { return f.blockSize }

// Position returns the cursor used by reads without ReadPosition.
func (f *File) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *File) resolveStat(ctx context.Context) (blobstore.Metadata, error) {
	return f.m.driver.Stat(ctx, f.path)
}

// resolvePrefix fingerprints the file version, so blocks cached for an older
// version are never hit again.
func (f *File) resolvePrefix(ctx context.Context) (string, error) {
	meta, err := f.meta.Get(ctx)
	if err != nil {
		return "", err
	}
	return f.m.prefix + f.path + ":" + strconv.FormatInt(meta.ModTime.UnixNano(), 36), nil
}

func (f *File) resolveOpen(ctx context.Context) (blobstore.Handle, error) {
	start := time.Now()
	h, err := f.m.driver.Open(ctx, f.path)
	if err == nil && !f.m.track(f) {
		// Disconnect began while the backend was opening.
		cerr := f.m.driver.Close(ctx, h)
		h, err = nil, newError(KindDisconnected, "open", f.path, cerr)
	}
	f.m.metrics.RecordOpen(time.Since(start), err)
	f.m.logger.LogOpen(ctx, f.path, err)
	return h, err
}

// check fails if the manager has disconnected or the file is closing.
func (f *File) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkLocked(op)
}

// checkLocked reads the manager state under f.mu, so a file closed by a
// disconnect sweep reports ErrDisconnected rather than ErrClosed.
func (f *File) checkLocked(op string) error {
	if f.m.isDisconnected() {
		return newError(KindDisconnected, op, f.path, nil)
	}
	if f.state != stateOpen {
		return newError(KindClosed, op, f.path, nil)
	}
	return nil
}

// acquire takes an in-flight slot. fn, if set, runs under the file lock once
// the slot is granted. Every successful acquire must be paired with release.
func (f *File) acquire(op string, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(op); err != nil {
		return err
	}
	f.inFlight++
	if fn != nil {
		fn()
	}
	return nil
}

// release returns an in-flight slot; the last reader of a closing file disposes it.
func (f *File) release() {
	f.mu.Lock()
	f.inFlight--
	dispose := f.inFlight == 0 && f.state == stateClosing
	f.mu.Unlock()

	if dispose {
		f.dispose()
	}
}

// Stat returns the memoized backend metadata.
func (f *File) Stat(ctx context.Context) (blobstore.Metadata, error) {
	if err := f.acquire("stat", nil); err != nil {
		return blobstore.Metadata{}, err
	}
	defer f.release()

	return f.meta.Get(ctx)
}

// Size returns the memoized file size in bytes.
func (f *File) Size(ctx context.Context) (int64, error) {
	if err := f.acquire("size", nil); err != nil {
		return 0, err
	}
	defer f.release()

	return f.size(ctx)
}

func (f *File) size(ctx context.Context) (int64, error) {
	meta, err := f.meta.Get(ctx)
	if err != nil {
		return 0, err
	}
	return meta.EffectiveSize(), nil
}

// Read reads from the file. With no options it reads from the cursor to the
// end of the file and resets the cursor to 0. With ReadLength it reads that
// many bytes and leaves the cursor just past them. The cursor is updated when
// the read is accepted, before any I/O.
//
// With ReadInto the data is copied into the caller's buffer and the whole
// buffer is returned; otherwise a new slice is returned.
func (f *File) Read(ctx context.Context, optFns ...ReadOption) ([]byte, error) {
	o := applyReadOptions(optFns)
	if err := o.validate(f.path); err != nil {
		return nil, err
	}

	var pos int64
	err := f.acquire("read", func() {
		pos = f.position
		if o.hasPosition {
			pos = o.position
		}
		if o.hasLength {
			f.position = pos + o.length
		} else {
			f.position = 0
		}
	})
	if err != nil {
		return nil, err
	}
	defer f.release()

	size, err := f.size(ctx)
	if err != nil {
		return nil, err
	}

	r := blockrange.Range{Start: pos, End: size}
	if o.hasLength {
		r.End = pos + o.length
	}
	if err := blockrange.Validate(r, size); err != nil {
		return nil, newRangeError("read", f.path, r.Start, r.End, err)
	}
	if o.hasBuf && !o.hasLength {
		// Only what fits in the buffer is read.
		r.End = min(r.End, r.Start+int64(len(o.buf)-o.bufOffset))
	}

	data, err := f.read(ctx, r, size)
	if err != nil {
		return nil, err
	}
	if o.hasBuf {
		copy(o.buf[o.bufOffset:], data)
		return o.buf, nil
	}
	return data, nil
}

// ReadRange reads the bytes [start, end). It does not touch the cursor.
func (f *File) ReadRange(ctx context.Context, start, end int64) ([]byte, error) {
	r := blockrange.Range{Start: start, End: end}
	if err := blockrange.ValidateBounds(r); err != nil {
		return nil, newRangeError("read", f.path, start, end, err)
	}

	if err := f.acquire("read", nil); err != nil {
		return nil, err
	}
	defer f.release()

	size, err := f.size(ctx)
	if err != nil {
		return nil, err
	}
	if err := blockrange.Validate(r, size); err != nil {
		return nil, newRangeError("read", f.path, start, end, err)
	}
	return f.read(ctx, r, size)
}

// ReadAt implements io.ReaderAt. It does not touch the cursor.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	ctx := context.Background()

	if off < 0 {
		return 0, newRangeError("readat", f.path, off, off+int64(len(p)), blockrange.ErrInvalid)
	}
	if err := f.acquire("readat", nil); err != nil {
		return 0, err
	}
	defer f.release()

	size, err := f.size(ctx)
	if err != nil {
		return 0, err
	}
	if off >= size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	data, err := f.read(ctx, blockrange.Range{Start: off, End: min(size, off+int64(len(p)))}, size)
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// read assembles a validated range. The caller holds an in-flight slot.
func (f *File) read(ctx context.Context, r blockrange.Range, size int64) ([]byte, error) {
	start := time.Now()
	data, err := f.readBlocks(ctx, r, size)
	f.m.metrics.RecordRead(len(data), time.Since(start), err)
	f.m.logger.LogRead(ctx, f.path, r.Start, r.End, err)
	return data, err
}

func (f *File) readBlocks(ctx context.Context, r blockrange.Range, size int64) ([]byte, error) {
	if r.Empty() || size == 0 {
		return []byte{}, nil
	}

	h, prefix, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	return blockrange.Read(ctx, r, f.blockSize, size, func(ctx context.Context, b blockrange.Block) ([]byte, error) {
		return f.fetchBlock(ctx, h, prefix, b)
	})
}

// open resolves the backend handle and the cache-key prefix.
func (f *File) open(ctx context.Context) (blobstore.Handle, string, error) {
	h, err := f.handle.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	prefix, err := f.prefix.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	return h, prefix, nil
}

// fetchBlock returns one whole block, from the cache or from the backend.
// Concurrent misses on the same block each read the backend.
func (f *File) fetchBlock(ctx context.Context, h blobstore.Handle, prefix string, b blockrange.Block) ([]byte, error) {
	key := blockKey(prefix, b)
	if data, ok := f.m.cache.Get(ctx, key); ok {
		f.m.metrics.RecordBlockFetch(true, len(data), 0, nil)
		return data, nil
	}

	start := time.Now()
	data, err := f.readBlock(ctx, h, b)
	f.m.metrics.RecordBlockFetch(false, len(data), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	f.m.cache.Set(ctx, key, data)
	return data, nil
}

func (f *File) readBlock(ctx context.Context, h blobstore.Handle, b blockrange.Block) ([]byte, error) {
	if err := f.m.rc.AcquireRead(ctx, b.Len()); err != nil {
		return nil, err
	}

	buf := make([]byte, b.Len())
	n, err := f.m.driver.ReadAt(ctx, h, buf, b.Start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n < len(buf) {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}

func blockKey(prefix string, b blockrange.Block) string {
	return prefix + ":" + strconv.FormatInt(b.Start, 10) + ":" + strconv.FormatInt(b.End, 10)
}

// Close closes the file. It is idempotent and every caller observes the same
// outcome.
//
// Reads accepted before Close run to completion; reads requested afterwards
// fail with ErrClosed. The backend handle is closed once the last accepted
// read finishes. A file that was never read is closed without contacting the
// backend.
func (f *File) Close(ctx context.Context) error {
	if f.m.isDisconnected() {
		return newError(KindDisconnected, "close", f.path, nil)
	}
	return f.close(ctx)
}

func (f *File) close(ctx context.Context) error {
	f.mu.Lock()
	dispose := false
	if f.state == stateOpen {
		f.state = stateClosing
		f.closeCtx = context.WithoutCancel(ctx)
		dispose = f.inFlight == 0
	}
	f.mu.Unlock()

	if dispose {
		f.dispose()
	}

	select {
	case <-f.done:
		return f.closeErr
	default:
	}

	select {
	case <-f.done:
		return f.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispose runs exactly once: either from close with no reads in flight, or
// from the release of the last in-flight read.
func (f *File) dispose() {
	ctx := f.closeCtx

	o, resolved := f.handle.Peek()
	opened := resolved && o.Err == nil

	var err error
	if opened {
		start := time.Now()
		err = f.m.driver.Close(ctx, o.Val)
		f.m.metrics.RecordClose(time.Since(start), err)
	}
	f.m.untrack(f)
	f.m.logger.LogClose(ctx, f.path, opened, err)

	f.mu.Lock()
	f.state = stateClosed
	f.mu.Unlock()

	f.closeErr = err
	close(f.done)
}
