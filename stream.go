package rangecache

import (
	"bytes"
	"context"
	"io"
	"iter"
	"time"

	"github.com/hupe1980/rangecache/blobstore"
	"github.com/hupe1980/rangecache/internal/blockrange"
)

// Stream yields a byte range of a File block by block, in ascending order.
//
// A Stream makes a single pass and cannot be restarted. Errors terminate it:
// Next returns the error, and every later call returns the same error.
// A Stream is not safe for concurrent use.
//
// Each block holds an in-flight slot of the File only while it is fetched,
// so closing the File ends the stream at the next block with ErrClosed.
type Stream struct {
	f    *File
	ctx  context.Context
	opts streamOptions

	started bool
	r       blockrange.Range
	size    int64
	h       blobstore.Handle
	prefix  string
	next    int64
	last    int64

	began   time.Time
	bytes   int
	done    bool
	err     error
	pending []byte

	onDone func(ctx context.Context) error
}

// Stream returns a stream over [StreamStart, StreamEnd). It fails at once if
// the file is closed or its manager disconnected; range errors surface from
// the first Next.
func (f *File) Stream(ctx context.Context, optFns ...StreamOption) (*Stream, error) {
	if err := f.check("stream"); err != nil {
		return nil, err
	}
	return &Stream{
		f:     f,
		ctx:   ctx,
		opts:  applyStreamOptions(optFns),
		began: time.Now(),
	}, nil
}

// Next returns the next chunk. At the end of the range it returns io.EOF.
// The chunk is owned by the caller.
func (s *Stream) Next() ([]byte, error) {
	if s.done {
		return nil, s.terminal()
	}

	chunk, more, err := s.step()
	if err != nil {
		s.finish(err)
		return nil, s.terminal()
	}
	if !more {
		s.finish(nil)
		return nil, s.terminal()
	}

	s.bytes += len(chunk)
	if s.next > s.last {
		s.finish(nil)
	}
	return chunk, nil
}

func (s *Stream) step() ([]byte, bool, error) {
	if err := s.f.acquire("stream", nil); err != nil {
		return nil, false, err
	}
	defer s.f.release()

	if !s.started {
		if err := s.start(); err != nil {
			return nil, false, err
		}
	}
	if s.next > s.last {
		return nil, false, nil
	}

	b := blockrange.At(s.r, s.f.blockSize, s.size, s.next)
	data, err := s.f.fetchBlock(s.ctx, s.h, s.prefix, b)
	if err != nil {
		return nil, false, err
	}
	chunk, err := b.Trim(data)
	if err != nil {
		return nil, false, err
	}
	s.next++
	// data is owned by the block store.
	return bytes.Clone(chunk), true, nil
}

// start resolves the plan. The caller holds an in-flight slot.
func (s *Stream) start() error {
	s.started = true

	if s.opts.hasStart || s.opts.hasEnd {
		r := blockrange.Range{Start: s.opts.start, End: s.opts.end}
		if !s.opts.hasEnd {
			r.End = max(r.Start, 0)
		}
		if err := blockrange.ValidateBounds(r); err != nil {
			return newRangeError("stream", s.f.path, r.Start, r.End, err)
		}
	}

	size, err := s.f.size(s.ctx)
	if err != nil {
		return err
	}
	r := blockrange.Normalize(s.opts.start, s.opts.hasStart, s.opts.end, s.opts.hasEnd, size)
	if err := blockrange.Validate(r, size); err != nil {
		return newRangeError("stream", s.f.path, r.Start, r.End, err)
	}
	s.r, s.size = r, size

	if r.Empty() || size == 0 {
		s.next, s.last = 1, 0
		return nil
	}

	s.h, s.prefix, err = s.f.open(s.ctx)
	if err != nil {
		return err
	}
	s.next, s.last = blockrange.Span(r, s.f.blockSize)
	return nil
}

func (s *Stream) finish(err error) {
	s.done = true
	s.err = err
	s.f.m.metrics.RecordRead(s.bytes, time.Since(s.began), err)
	s.f.m.logger.LogRead(s.ctx, s.f.path, s.r.Start, s.r.End, err)

	if s.onDone != nil {
		if cerr := s.onDone(s.ctx); cerr != nil && s.err == nil {
			s.err = cerr
		}
	}
}

func (s *Stream) terminal() error {
	if s.err != nil {
		return s.err
	}
	return io.EOF
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		chunk, err := s.Next()
		if err != nil {
			return 0, err
		}
		s.pending = chunk
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// All returns the remaining chunks as an iterator. A terminating error is
// yielded once as the final element. Breaking out of the loop closes the stream.
func (s *Stream) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			chunk, err := s.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				_ = s.Close()
				return
			}
		}
	}
}

// Close ends the stream early. It is a no-op on a finished stream and
// otherwise returns the error of the stream's cleanup, if any.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.finish(nil)
	return s.err
}
