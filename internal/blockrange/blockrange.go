// Package blockrange decomposes byte ranges into block-aligned fetches and
// reassembles the fetched blocks into the requested bytes.
package blockrange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
)

// ErrInvalid reports a range that does not fit the file.
var ErrInvalid = errors.New("invalid range")

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 { return r.End - r.Start }

// Empty reports whether the range holds no bytes.
func (r Range) Empty() bool { return r.End == r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Normalize resolves unspecified bounds: a missing start becomes 0, a missing
// end becomes size.
func Normalize(start int64, hasStart bool, end int64, hasEnd bool, size int64) Range {
	r := Range{Start: start, End: end}
	if !hasStart {
		r.Start = 0
	}
	if !hasEnd {
		r.End = size
	}
	return r
}

// Validate checks 0 <= Start <= End <= size.
func Validate(r Range, size int64) error {
	if r.Start >= 0 && r.End > size {
		return fmt.Errorf("%w: end %d exceeds size %d", ErrInvalid, r.End, size)
	}
	return ValidateBounds(r)
}

// ValidateBounds checks 0 <= Start <= End, which needs no file size.
func ValidateBounds(r Range) error {
	switch {
	case r.Start < 0:
		return fmt.Errorf("%w: start %d is negative", ErrInvalid, r.Start)
	case r.End < r.Start:
		return fmt.Errorf("%w: end %d before start %d", ErrInvalid, r.End, r.Start)
	}
	return nil
}

// Block is one aligned block of a plan.
type Block struct {
	Index int64
	// Start and End are the block's byte bounds in the file, End clipped to size.
	Start int64
	End   int64
	// Lo and Hi select the bytes of the fetched block that belong to the range.
	Lo int
	Hi int
}

// Len returns the block's byte length.
func (b Block) Len() int { return int(b.End - b.Start) }

// Trim returns the part of a fetched block that belongs to the range.
func (b Block) Trim(data []byte) ([]byte, error) {
	if len(data) < b.Hi {
		return nil, io.ErrUnexpectedEOF
	}
	return data[b.Lo:b.Hi], nil
}

// Span returns the first and last block index covering a non-empty range.
func Span(r Range, blockSize int64) (first, last int64) {
	return r.Start / blockSize, (r.End - 1) / blockSize
}

// At returns block i of the plan for r. i must lie within Span.
func At(r Range, blockSize, size, i int64) Block {
	first, last := Span(r, blockSize)
	b := Block{
		Index: i,
		Start: i * blockSize,
		End:   min((i+1)*blockSize, size),
	}
	b.Hi = b.Len()
	if i == first {
		b.Lo = int(r.Start - b.Start)
	}
	if i == last {
		b.Hi = int(r.End - b.Start)
	}
	return b
}

// Plan yields the blocks covering r in ascending index order.
// It yields nothing for an empty range or a zero-size file.
// r must have passed Validate and blockSize must be positive.
func Plan(r Range, blockSize, size int64) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		if r.Empty() || size == 0 {
			return
		}

		first, last := Span(r, blockSize)
		for i := first; i <= last; i++ {
			if !yield(At(r, blockSize, size, i)) {
				return
			}
		}
	}
}

// FetchFunc returns the full contents of one block.
type FetchFunc func(ctx context.Context, b Block) ([]byte, error)

// Walk fetches every block of the plan in order and passes each trimmed chunk
// to sink. The first fetch, trim, or sink error stops the walk.
func Walk(ctx context.Context, r Range, blockSize, size int64, fetch FetchFunc, sink func([]byte) error) error {
	for b := range Plan(r, blockSize, size) {
		data, err := fetch(ctx, b)
		if err != nil {
			return err
		}
		chunk, err := b.Trim(data)
		if err != nil {
			return err
		}
		if err := sink(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Read walks the plan and materializes the range into a single buffer.
func Read(ctx context.Context, r Range, blockSize, size int64, fetch FetchFunc) ([]byte, error) {
	if r.Empty() || size == 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, r.Len())
	err := Walk(ctx, r, blockSize, size, fetch, func(chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
