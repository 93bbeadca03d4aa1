// Package fanout runs independent operations concurrently and joins them
// without letting one failure cancel the rest.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one item of a fan-out.
type Result[T any] struct {
	// Index is the position of the item in the input slice.
	Index int
	Value T
	Err   error
}

// OK reports whether the item succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Map calls fn for every item with at most limit calls in flight (limit <= 0
// means unbounded) and returns one Result per item in input order. Map
// always waits for every call; it never stops early on failure.
func Map[In, Out any](ctx context.Context, items []In, limit int, fn func(context.Context, In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(items))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, item := range items {
		g.Go(func() error {
			v, err := fn(ctx, item)
			results[i] = Result[Out]{Index: i, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Successes returns the values of the successful results, keeping their order.
func Successes[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Value)
		}
	}
	return out
}

// Failures returns the failed results, keeping their order.
func Failures[T any](results []Result[T]) []Result[T] {
	var out []Result[T]
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
