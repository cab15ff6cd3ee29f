// Package dispatch implements the parallel dispatcher (C4): it runs one
// sub-query per routing-plan entry concurrently against a bounded worker
// pool, using golang.org/x/sync/errgroup.SetLimit to cap concurrency, and
// collects every partial before returning.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mishard/core/pkg/backend"
	"github.com/mishard/core/pkg/mishard"
	"github.com/mishard/core/pkg/tracing"
)

// Pool is the subset of pool.Pool the dispatcher needs, kept narrow so
// tests can supply a fake.
type Pool interface {
	Get(ctx context.Context, addr string) (backend.Client, error)
	Release(addr string, c backend.Client)
}

// Dispatcher fans a search out across a routing plan's addresses.
type Dispatcher struct {
	pool       Pool
	tracer     tracing.Tracer
	maxWorkers int
	logger     *zap.Logger
}

// New creates a Dispatcher. maxWorkers bounds concurrency; zero means
// unbounded (errgroup.SetLimit(-1)). tracer may be tracing.Noop.
func New(pool Pool, tracer tracing.Tracer, maxWorkers int, logger *zap.Logger) *Dispatcher {
	if tracer == nil {
		tracer = tracing.Noop
	}
	return &Dispatcher{pool: pool, tracer: tracer, maxWorkers: maxWorkers, logger: logger}
}

// Dispatch runs one search-in-files sub-query per plan entry in parallel
// and returns every partial, in no particular order — the merger restores
// order. If ctx is canceled before all tasks finish, Dispatch returns
// promptly with a Canceled status and no partials; the ones collected so
// far are discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, plan mishard.RoutingPlan, vectors [][]float32, topK, nprobe int) ([]mishard.Partial, *mishard.Status) {
	if len(plan) == 0 {
		return nil, mishard.StatusOK
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := d.maxWorkers
	if limit <= 0 {
		limit = -1
	}
	g.SetLimit(limit)

	var mu sync.Mutex
	partials := make([]mishard.Partial, 0, len(plan))

	spanCtx, rootSpan := d.tracer.StartSpan(ctx, "do_search")
	defer rootSpan.Finish()

	for addr, sq := range plan {
		addr, sq := addr, sq
		g.Go(func() error {
			start := time.Now()
			_, span := d.tracer.StartSpan(spanCtx, "search_"+addr)
			defer span.Finish()

			p := d.runOne(gctx, addr, sq, vectors, topK, nprobe)
			p.Addr = addr

			mu.Lock()
			partials = append(partials, p)
			mu.Unlock()

			if d.logger != nil {
				d.logger.Info("search_in_files",
					zap.String("addr", addr),
					zap.Int("files", len(sq.FileIDs)),
					zap.Int("nq", len(vectors)),
					zap.Int("topk", topK),
					zap.Int("nprobe", nprobe),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(p.Err))
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case <-done:
	case <-ctx.Done():
		<-done // workers observe gctx cancellation and return promptly
		return nil, &mishard.Status{Code: mishard.Canceled, Reason: ctx.Err().Error()}
	}

	return partials, mishard.StatusOK
}

// runOne never returns a Go error: a failure becomes an error-bearing
// Partial instead, per spec §4.4 ("a task failure produces a partial of
// shape (status=Error, empty); the dispatcher does not cancel peers").
func (d *Dispatcher) runOne(ctx context.Context, addr string, sq mishard.SubQuery, vectors [][]float32, topK, nprobe int) mishard.Partial {
	client, err := d.pool.Get(ctx, addr)
	if err != nil {
		return mishard.Partial{Err: err}
	}
	defer d.pool.Release(addr, client)

	blocks, err := client.SearchInFiles(ctx, backend.SearchParams{
		Table:   sq.Table,
		FileIDs: sq.FileIDs,
		Vectors: vectors,
		TopK:    topK,
		NProbe:  nprobe,
	})
	if err != nil {
		return mishard.Partial{Err: err}
	}
	return mishard.Partial{Blocks: blocks}
}
