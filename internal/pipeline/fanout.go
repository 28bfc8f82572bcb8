package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// FanOut runs fn for pages 0..n-1 concurrently and concatenates the results
// in page order. A page that errors or panics contributes nothing; the
// others continue. limit <= 0 runs every page at once.
func FanOut[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, page int) ([]T, error)) []T {
	results := make([][]T, n)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		page := i
		g.Go(func() error {
			out, err := runPage(gctx, page, fn)
			if err != nil {
				zerolog.Ctx(gctx).Error().Err(err).Int("page", page+1).Msg("page failed, continuing with other pages")
				return nil
			}
			results[page] = out
			return nil
		})
	}
	_ = g.Wait()

	var all []T
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func runPage[T any](ctx context.Context, page int, fn func(context.Context, int) ([]T, error)) (out []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic on page %d: %v", page+1, r)
		}
	}()
	return fn(ctx, page)
}
