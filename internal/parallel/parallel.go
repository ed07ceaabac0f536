// Package parallel runs per-unit analysis work over a bounded pool and
// hands results back in input order.
package parallel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"smefit/domain/core"
)

// MapOrdered applies fn to every index in [0, n) using at most workers
// goroutines. out[i] always holds fn's result for index i regardless of
// completion order. The first failure cancels the remaining work and the
// whole call returns an ErrWorkerFailure; there are no partial results. A
// panicking fn is recovered and reported the same way, since inputs are
// read-only and a rerun is safe.
func MapOrdered[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("parallel: negative unit count %d", n)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	out := make([]T, n)
	for i := 0; i < n; i++ {
		i := i // per-iteration copy; required for correctness under go <1.22 loop scoping
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = core.NewWorkerError(i, fmt.Errorf("panic: %v", r))
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := fn(ctx, i)
			if err != nil {
				return core.NewWorkerError(i, err)
			}
			out[i] = v
			return nil
		})
	}

	// closures return either a context error or an ErrWorkerFailure wrap
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
