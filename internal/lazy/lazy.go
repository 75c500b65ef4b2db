// Package lazy provides a memoized, single-assignment value.
package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Outcome is the memoized result of a Value.
type Outcome[T any] struct {
	Val T
	Err error
}

// Value resolves fn at most once. Concurrent first callers share the single
// call; every caller, concurrent or later, observes the same value or error.
// Errors are memoized like values.
type Value[T any] struct {
	fn    func(ctx context.Context) (T, error)
	group singleflight.Group

	mu       sync.Mutex
	resolved bool
	outcome  Outcome[T]
}

// New returns a Value that resolves with fn.
func New[T any](fn func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{fn: fn}
}

// Get returns the memoized outcome, resolving it on first use.
// fn runs with the first caller's context stripped of cancellation, so one
// caller giving up cannot poison the value for everyone else.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	if o, ok := v.Peek(); ok {
		return o.Val, o.Err
	}

	res, _, _ := v.group.Do("", func() (any, error) {
		// Another caller may have resolved the value between Peek and Do.
		if o, ok := v.Peek(); ok {
			return o, nil
		}

		val, err := v.fn(context.WithoutCancel(ctx))
		o := Outcome[T]{Val: val, Err: err}

		v.mu.Lock()
		v.resolved = true
		v.outcome = o
		v.mu.Unlock()

		return o, nil
	})

	o := res.(Outcome[T])
	return o.Val, o.Err
}

// Peek returns the outcome without resolving it. ok is false until the first
// resolution has finished.
func (v *Value[T]) Peek() (o Outcome[T], ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.outcome, v.resolved
}
