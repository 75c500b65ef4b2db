package rangecache

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies errors raised by rangecache itself.
// Driver errors are not classified; they are returned unchanged.
type Kind uint8

const (
	// KindInvalidArgument: missing driver or path, bad option, bad buffer offset.
	KindInvalidArgument Kind = iota + 1
	// KindRange: a range outside the file or a read that does not fit the buffer.
	KindRange
	// KindClosed: an operation on a File that is closing or closed.
	KindClosed
	// KindDisconnected: an operation through a Manager that has disconnected.
	KindDisconnected
)

var (
	// ErrInvalidArgument matches every *Error of KindInvalidArgument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRange matches every *Error of KindRange.
	ErrRange = errors.New("range error")

	// ErrClosed matches every *Error of KindClosed.
	ErrClosed = errors.New("file closed")

	// ErrDisconnected matches every *Error of KindDisconnected.
	ErrDisconnected = errors.New("manager disconnected")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindRange:
		return ErrRange
	case KindClosed:
		return ErrClosed
	case KindDisconnected:
		return ErrDisconnected
	default:
		return nil
	}
}

func (k Kind) String() string {
	if err := k.sentinel(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the structured error returned for every failure rangecache
// detects itself. Use errors.Is with the Err* sentinels to test the kind.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "read" or "open".
	Op string
	// Path is the file path, if any.
	Path string
	// Start and End bound the requested byte range when HasRange is set.
	Start    int64
	End      int64
	HasRange bool
	// Err is the detail, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("rangecache: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.HasRange {
		fmt.Fprintf(&b, " [%d,%d)", e.Start, e.End)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func newRangeError(op, path string, start, end int64, err error) *Error {
	return &Error{Kind: KindRange, Op: op, Path: path, Start: start, End: end, HasRange: true, Err: err}
}

// DisconnectError aggregates the close failures of a Disconnect sweep.
// The order of Errs is not significant.
type DisconnectError struct {
	Errs []error
}

func (e *DisconnectError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("rangecache: disconnect: %d close error(s): %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *DisconnectError) Unwrap() []error { return e.Errs }
