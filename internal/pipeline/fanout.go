// Package pipeline runs bounded, ordered fan-out over a fixed set of tasks.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/deltashare/pkg/logger"
)

// DefaultConcurrency bounds a fan-out when no limit is configured
const DefaultConcurrency = 8

// Task produces the result for position index
type Task[T any] func(ctx context.Context, index int) (T, error)

// Config configures a fan-out
type Config struct {
	// Name labels log lines
	Name string
	// MaxConcurrency bounds the tasks in flight (<= 0 means DefaultConcurrency)
	MaxConcurrency int
	Logger         *zap.Logger
}

// Stats summarizes one fan-out
type Stats struct {
	Tasks     int
	Started   int64
	Completed int64
	Failed    int64
	Duration  time.Duration
}

// Ordered runs task for every index in [0, n) with at most
// cfg.MaxConcurrency in flight and returns the results in index order.
//
// The first failure cancels the context handed to the remaining tasks, and
// tasks not yet started are skipped. Ordered returns only after every
// started task has returned, so no goroutine outlives the call. On error the
// results are discarded.
func Ordered[T any](ctx context.Context, cfg Config, n int, task Task[T]) ([]T, Stats, error) {
	stats := Stats{Tasks: n}
	if n == 0 {
		return make([]T, 0), stats, nil
	}

	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	log := logger.OrNop(cfg.Logger).With(zap.String("fanout", cfg.Name))

	start := time.Now()
	results := make([]T, n)
	var started, completed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started.Add(1)
			v, err := task(gctx, i)
			if err != nil {
				failed.Add(1)
				return err
			}
			results[i] = v
			completed.Add(1)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		// every task may have been skipped by a cancelled parent
		err = ctx.Err()
	}

	stats.Started = started.Load()
	stats.Completed = completed.Load()
	stats.Failed = failed.Load()
	stats.Duration = time.Since(start)

	log.Debug("fan-out finished",
		zap.Int("tasks", n),
		zap.Int("limit", limit),
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
		zap.Error(err))

	if err != nil {
		return nil, stats, err
	}
	return results, stats, nil
}
