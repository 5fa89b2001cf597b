package borrow

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"borrowck/internal/oplog"
)

// CheckAll checks independent logs concurrently with at most jobs workers
// (GOMAXPROCS when jobs <= 0). Results keep the order of logs. The only
// error is the context's.
func CheckAll(ctx context.Context, logs [][]oplog.Op, opts Options, jobs int) ([]*Result, error) {
	results := make([]*Result, len(logs))
	if len(logs) == 0 {
		return results, nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i := range logs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Check(logs[i], opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
