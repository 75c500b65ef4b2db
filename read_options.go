package rangecache

import "fmt"

type readOptions struct {
	buf          []byte
	hasBuf       bool
	bufOffset    int
	hasBufOffset bool
	length       int64
	hasLength    bool
	position     int64
	hasPosition  bool
}

// ReadOption configures File.Read. Every option may be omitted.
type ReadOption func(*readOptions)

// ReadInto copies the data into buf, and Read returns buf.
// Without ReadLength the copy stops when buf is full.
func ReadInto(buf []byte) ReadOption {
	return func(o *readOptions) {
		o.buf = buf
		o.hasBuf = true
	}
}

// ReadBufferOffset sets where in the ReadInto buffer the copy starts.
// An explicit offset must lie within the buffer.
func ReadBufferOffset(off int) ReadOption {
	return func(o *readOptions) {
		o.bufOffset = off
		o.hasBufOffset = true
	}
}

// ReadLength bounds the read to n bytes. A bounded read leaves the cursor just
// past the bytes read. Without ReadLength the read runs to the end of the file
// and resets the cursor to 0.
func ReadLength(n int64) ReadOption {
	return func(o *readOptions) {
		o.length = n
		o.hasLength = true
	}
}

// ReadPosition starts the read at file offset p instead of the cursor.
func ReadPosition(p int64) ReadOption {
	return func(o *readOptions) {
		o.position = p
		o.hasPosition = true
	}
}

func applyReadOptions(optFns []ReadOption) readOptions {
	var o readOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// validate checks the arguments that need no backend call.
func (o readOptions) validate(path string) error {
	if o.hasBuf && o.hasBufOffset && (o.bufOffset < 0 || o.bufOffset >= len(o.buf)) {
		return newError(KindInvalidArgument, "read", path,
			fmt.Errorf("buffer offset %d out of bounds for buffer of %d bytes", o.bufOffset, len(o.buf)))
	}
	if o.hasLength && o.length < 0 {
		return newError(KindRange, "read", path, fmt.Errorf("negative length %d", o.length))
	}
	if o.hasPosition && o.position < 0 {
		return newError(KindRange, "read", path, fmt.Errorf("negative position %d", o.position))
	}
	if o.hasBuf && o.hasLength && int64(o.bufOffset)+o.length > int64(len(o.buf)) {
		return newError(KindRange, "read", path,
			fmt.Errorf("length %d at buffer offset %d exceeds buffer of %d bytes", o.length, o.bufOffset, len(o.buf)))
	}
	return nil
}

type streamOptions struct {
	start    int64
	hasStart bool
	end      int64
	hasEnd   bool
}

// StreamOption configures a Stream.
type StreamOption func(*streamOptions)

// StreamStart sets the first byte of the stream. Defaults to 0.
func StreamStart(n int64) StreamOption {
	return func(o *streamOptions) {
		o.start = n
		o.hasStart = true
	}
}

// StreamEnd sets the exclusive end of the stream. Defaults to the file size.
func StreamEnd(n int64) StreamOption {
	return func(o *streamOptions) {
		o.end = n
		o.hasEnd = true
	}
}

func applyStreamOptions(optFns []StreamOption) streamOptions {
	var o streamOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
