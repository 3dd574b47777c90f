// Package gate serializes construction of the root node list and reveal walks.
package gate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate holds two independent, non-reentrant locks: one around root list
// construction and one around reveal walks. Holding one never blocks the other.
type Gate struct {
	rebuild *semaphore.Weighted
	reveal  *semaphore.Weighted
}

func New() *Gate {
	return &Gate{
		rebuild: semaphore.NewWeighted(1),
		reveal:  semaphore.NewWeighted(1),
	}
}

// LockRebuild acquires the rebuild lock. The returned func releases it.
func (g *Gate) LockRebuild(ctx context.Context) (func(), error) {
	return acquire(ctx, g.rebuild)
}

// LockReveal acquires the reveal lock. The returned func releases it.
func (g *Gate) LockReveal(ctx context.Context) (func(), error) {
	return acquire(ctx, g.reveal)
}

func acquire(ctx context.Context, s *semaphore.Weighted) (func(), error) {
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.Release(1) }, nil
}

// Rebuild returns the current value if one is available, otherwise builds it
// under the rebuild lock. current is consulted again after the lock is taken,
// so concurrent callers share a single build.
func Rebuild[T any](ctx context.Context, g *Gate, current func() (T, bool), build func(context.Context) (T, error)) (T, error) {
	if v, ok := current(); ok {
		return v, nil
	}
	release, err := g.LockRebuild(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	if v, ok := current(); ok {
		return v, nil
	}
	return build(ctx)
}
