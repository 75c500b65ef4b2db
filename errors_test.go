package rangecache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("end 9 exceeds size 5")
	err := newRangeError("read", "/world", 2, 9, cause)

	assert.Equal(t, "rangecache: read /world [2,9): range error: end 9 exceeds size 5", err.Error())
	assert.ErrorIs(t, err, ErrRange)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrClosed)

	err = newError(KindClosed, "stream", "/world", nil)
	assert.Equal(t, "rangecache: stream /world: file closed", err.Error())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, err.Unwrap())

	err = newError(KindInvalidArgument, "new", "", nil)
	assert.Equal(t, "rangecache: new: invalid argument", err.Error())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "manager disconnected", KindDisconnected.String())
	assert.Equal(t, "kind(0)", Kind(0).String())
}

func TestDisconnectError(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	err := &DisconnectError{Errs: []error{a, b}}

	assert.Equal(t, "rangecache: disconnect: 2 close error(s): a; b", err.Error())
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
	assert.NotErrorIs(t, err, ErrDisconnected)
}
