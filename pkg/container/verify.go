package container

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Verify 并发读取并校验容器里的每一个 block
// workers <= 0 时使用 CPU 核数
func Verify(ctx context.Context, uri string, workers int) (int, error) {
	f, err := Open(ctx, uri)
	if err != nil {
		return 0, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < f.NumBlocks(); i++ {
		g.Go(func() error {
			if _, err := f.ReadBlock(gctx, i); err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	slog.Info("container verified", slog.String("uri", f.URI()), slog.Int("blocks", f.NumBlocks()))
	return f.NumBlocks(), nil
}
