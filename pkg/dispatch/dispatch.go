// Copyright © 2018 One Concern

// Package dispatch runs blocking calls on a bounded worker pool.
//
// Callers see a plain context-aware function call: the blocking work is
// submitted to an ants pool and the caller waits for its result, or for the
// context to be done, whichever comes first.
package dispatch

import (
	"context"
	"fmt"
	"runtime"

	"github.com/oneconcern/repobuf/pkg/errors"
	"github.com/panjf2000/ants/v2"
)

// ErrPanic is returned when the dispatched function panicked
var ErrPanic = errors.New("dispatched call panicked")

// Pool of workers running blocking calls.
//
// A Pool is safe for concurrent use.
type Pool struct {
	pool *ants.Pool
}

// NewPool builds a worker pool. A size lower than 1 defaults to the number of CPUs.
func NewPool(size int) (*Pool, error) {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

// Release the workers. The pool should not be used after calling Release.
func (p *Pool) Release() {
	if p != nil && p.pool != nil {
		p.pool.Release()
	}
}

// Running tells how many workers are currently busy
func (p *Pool) Running() int {
	return p.pool.Running()
}

type result[T any] struct {
	value T
	err   error
}

// Do runs fn on the pool and waits for its outcome.
//
// When ctx is done first, Do returns the context error while fn keeps running to completion
// in the background: blocking calls cannot be interrupted.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: ErrPanic.Wrap(fmt.Errorf("%v", r))}
			}
		}()
		v, err := fn()
		done <- result[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Run is Do for functions without result
func Run(ctx context.Context, p *Pool, fn func() error) error {
	_, err := Do(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
