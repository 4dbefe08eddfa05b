// internal/wizard/task/task.go
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrCancelled = errors.New("TASK_CANCELLED")
	ErrPanicked  = errors.New("TASK_PANICKED")
)

// Func is the unit of work run by a Task.
type Func[T any] func(ctx context.Context) (T, error)

// Task is a started asynchronous computation with explicit cancel and completion.
type Task[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result T
	err    error
}

// Start runs fn on its own goroutine under a context derived from parent.
func Start[T any](parent context.Context, fn Func[T]) *Task[T] {
	ctx, cancel := context.WithCancel(parent)
	t := &Task[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()

		res, err := run(ctx, fn)
		if err == nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}

		t.mu.Lock()
		t.result, t.err = res, err
		t.mu.Unlock()
	}()

	return t
}

// Completed returns an already finished Task carrying res and err.
func Completed[T any](res T, err error) *Task[T] {
	t := &Task[T]{
		cancel: func() {},
		done:   make(chan struct{}),
		result: res,
		err:    err,
	}
	close(t.done)
	return t
}

func run[T any](ctx context.Context, fn Func[T]) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn(ctx)
}

// Cancel asks the task to stop. It is safe to call more than once.
func (t *Task[T]) Cancel() {
	t.cancel()
}

// Done is closed once the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Finished reports whether the task has completed without blocking.
func (t *Task[T]) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome. ok is false while the task is still running.
func (t *Task[T]) Result() (res T, err error, ok bool) {
	if !t.Finished() {
		return res, nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err, true
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		res, err, _ := t.Result()
		return res, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
