package tle

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ValidateBatch validates every text with up to workers goroutines. Results
// keep the input order. Cancelling ctx stops scheduling further records;
// records already scheduled still complete.
func ValidateBatch(ctx context.Context, texts []string, opts Options, workers int) ([]ValidationResult, error) {
	out := make([]ValidationResult, len(texts))
	err := parallel(ctx, len(texts), workers, func(i int) {
		out[i] = Validate(texts[i], opts)
	})
	return out, err
}

// RecoverBatch is ValidateBatch for ParseWithRecovery.
func RecoverBatch(ctx context.Context, texts []string, opts Options, workers int) ([]RecoveryResult, error) {
	out := make([]RecoveryResult, len(texts))
	err := parallel(ctx, len(texts), workers, func(i int) {
		out[i] = ParseWithRecovery(texts[i], opts)
	})
	return out, err
}

func parallel(ctx context.Context, n, workers int, fn func(int)) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
