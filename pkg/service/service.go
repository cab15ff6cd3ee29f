// Package service implements the request handler (C6): validates incoming
// search parameters, resolves and caches table descriptors, drives the
// planner/dispatcher/merger pipeline for Search, and forwards the
// remaining RPC surface (table and index administration) to an arbitrary
// live backend, matching the pass-through behavior of the original
// service_handler.DBHandler.
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mishard/core/pkg/backend"
	"github.com/mishard/core/pkg/dispatch"
	"github.com/mishard/core/pkg/merge"
	"github.com/mishard/core/pkg/metadata"
	"github.com/mishard/core/pkg/mishard"
	"github.com/mishard/core/pkg/planner"
)

// MaxTopK and MaxNProbe are the hard ceilings the original service enforced
// (mishards.settings.MAX_TOPK / MAX_NPROBE in original_source): requests
// above either are rejected before any shard is touched.
const (
	MaxTopK   = 2048
	MaxNProbe = 2048
)

// Pool is the subset of pool.Pool the service needs for admin pass-through
// calls, kept narrow so tests can supply a fake.
type Pool interface {
	Get(ctx context.Context, addr string) (backend.Client, error)
	Release(addr string, c backend.Client)
}

// AddressBook hands the service a live backend address to forward
// table/index administration calls to — in the original, any node behind
// the load balancer serves these equivalently, since they mutate the
// shared catalog rather than shard-local state.
type AddressBook interface {
	Any() (string, error)
}

// Service is the request handler (C6).
type Service struct {
	store  metadata.Store
	plan   *planner.Planner
	disp   *dispatch.Dispatcher
	pool   Pool
	addrs  AddressBook
	logger *zap.Logger

	descMu    sync.RWMutex
	descCache map[string]*mishard.TableDescriptor
}

// New creates a Service wiring together the planner, dispatcher, and
// metadata store already constructed by the caller (see cmd/mishard).
func New(store metadata.Store, plan *planner.Planner, disp *dispatch.Dispatcher, pool Pool, addrs AddressBook, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		plan:      plan,
		disp:      disp,
		pool:      pool,
		addrs:     addrs,
		logger:    logger,
		descCache: make(map[string]*mishard.TableDescriptor),
	}
}

// SearchRequest is the validated input to Search.
type SearchRequest struct {
	Table   string
	Vectors [][]float32
	TopK    int
	NProbe  int
	Ranges  []mishard.TimeRange
}

// Search is the core query path (C3 -> C4 -> C5). It never touches a
// backend itself: it plans, dispatches, and merges.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]mishard.Block, *mishard.Status) {
	if req.TopK <= 0 || req.TopK > MaxTopK {
		return nil, mishard.NewStatus(mishard.InvalidArgument, "topk must be in (0, %d], got %d", MaxTopK, req.TopK)
	}
	if req.NProbe <= 0 || req.NProbe > MaxNProbe {
		return nil, mishard.NewStatus(mishard.InvalidArgument, "nprobe must be in (0, %d], got %d", MaxNProbe, req.NProbe)
	}
	if len(req.Vectors) == 0 {
		return []mishard.Block{}, mishard.StatusOK
	}

	desc, st := s.Describe(ctx, req.Table)
	if !st.OK() {
		return nil, st
	}

	routingPlan, err := s.plan.Plan(ctx, req.Table, req.Ranges)
	if err != nil {
		if st, ok := err.(*mishard.Status); ok {
			return nil, st
		}
		return nil, mishard.NewStatus(mishard.Internal, "%v", err)
	}
	if len(routingPlan) == 0 {
		return emptyBlocks(len(req.Vectors)), mishard.StatusOK
	}

	start := time.Now()
	partials, st := s.disp.Dispatch(ctx, routingPlan, req.Vectors, req.TopK, req.NProbe)
	if !st.OK() {
		return nil, st
	}

	blocks, st := merge.Merge(partials, len(req.Vectors), req.TopK, desc.Metric)
	if s.logger != nil {
		s.logger.Debug("search merged",
			zap.String("table", req.Table),
			zap.Int("shards", len(routingPlan)),
			zap.Int("nq", len(req.Vectors)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("ok", st.OK()))
	}
	return blocks, st
}

// SearchInFiles is part of the original wire contract but intentionally
// unimplemented (spec: listed Non-goal) — it always reports Unimplemented
// rather than silently degrading to Search.
func (s *Service) SearchInFiles(ctx context.Context, req SearchRequest, fileIDs []string) ([]mishard.Block, *mishard.Status) {
	return nil, mishard.NewStatus(mishard.Unimplemented, "search_in_files is not implemented")
}

// Describe returns a table's descriptor, memoized after the first lookup.
// A table's shape cannot change without dropping and recreating it, so the
// only invalidation is DropTable's; CreateTable and DescribeTable overwrite
// the cached entry. A change made by any other path is not observed
// (known limitation, see DESIGN.md).
func (s *Service) Describe(ctx context.Context, table string) (*mishard.TableDescriptor, *mishard.Status) {
	s.descMu.RLock()
	d, ok := s.descCache[table]
	s.descMu.RUnlock()
	if ok {
		return d, mishard.StatusOK
	}

	d, err := s.store.Describe(ctx, table)
	if err != nil {
		if _, ok := err.(*metadata.ErrNotFound); ok {
			return nil, mishard.NewStatus(mishard.NotFound, "table not found: %s", table)
		}
		if _, ok := err.(*metadata.ErrUnavailable); ok {
			return nil, mishard.NewStatus(mishard.Unavailable, "%v", err)
		}
		return nil, mishard.NewStatus(mishard.Internal, "%v", err)
	}

	s.descMu.Lock()
	s.descCache[table] = d
	s.descMu.Unlock()
	return d, mishard.StatusOK
}

// DescribeTable is the external pass-through RPC: it always asks a live
// backend for the table's schema rather than serving the internal search
// path's cache, so a client can see an out-of-band schema change the
// cache wouldn't reflect. It refreshes the cache as a side effect.
func (s *Service) DescribeTable(ctx context.Context, table string) (*mishard.TableDescriptor, *mishard.Status) {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return nil, st
	}
	defer s.pool.Release(addr, c)

	d, err := c.DescribeTable(ctx, table)
	if err != nil {
		return nil, mishard.NewStatus(mishard.Internal, "%v", err)
	}

	s.descMu.Lock()
	s.descCache[table] = d
	s.descMu.Unlock()
	return d, mishard.StatusOK
}

func (s *Service) invalidate(table string) {
	s.descMu.Lock()
	delete(s.descCache, table)
	s.descMu.Unlock()
}

// admin acquires a client against an arbitrary live backend, for the
// pass-through operations below that mutate or read shared catalog state
// rather than shard-local data.
func (s *Service) admin(ctx context.Context) (backend.Client, string, *mishard.Status) {
	addr, err := s.addrs.Any()
	if err != nil {
		return nil, "", mishard.NewStatus(mishard.Unavailable, "%v", err)
	}
	c, err := s.pool.Get(ctx, addr)
	if err != nil {
		if st, ok := err.(*mishard.Status); ok {
			return nil, "", st
		}
		return nil, "", mishard.NewStatus(mishard.Unavailable, "%v", err)
	}
	return c, addr, mishard.StatusOK
}

// CreateTable forwards table creation to a live backend and primes the
// descriptor cache with the definition the caller supplied, avoiding an
// immediate round trip back through Describe.
func (s *Service) CreateTable(ctx context.Context, d mishard.TableDescriptor) *mishard.Status {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return st
	}
	defer s.pool.Release(addr, c)

	if err := c.CreateTable(ctx, d); err != nil {
		return mishard.NewStatus(mishard.Internal, "%v", err)
	}
	s.descMu.Lock()
	cp := d
	s.descCache[d.Name] = &cp
	s.descMu.Unlock()
	return mishard.StatusOK
}

func (s *Service) HasTable(ctx context.Context, table string) (bool, *mishard.Status) {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return false, st
	}
	defer s.pool.Release(addr, c)

	ok, err := c.HasTable(ctx, table)
	if err != nil {
		return false, mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return ok, mishard.StatusOK
}

func (s *Service) DropTable(ctx context.Context, table string) *mishard.Status {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return st
	}
	defer s.pool.Release(addr, c)

	if err := c.DropTable(ctx, table); err != nil {
		return mishard.NewStatus(mishard.Internal, "%v", err)
	}
	s.invalidate(table)
	return mishard.StatusOK
}

func (s *Service) CreateIndex(ctx context.Context, table string, p backend.IndexParams) *mishard.Status {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return st
	}
	defer s.pool.Release(addr, c)

	if err := c.CreateIndex(ctx, table, p); err != nil {
		return mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return mishard.StatusOK
}

func (s *Service) DescribeIndex(ctx context.Context, table string) (*backend.IndexParams, *mishard.Status) {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return nil, st
	}
	defer s.pool.Release(addr, c)

	p, err := c.DescribeIndex(ctx, table)
	if err != nil {
		return nil, mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return p, mishard.StatusOK
}

func (s *Service) DropIndex(ctx context.Context, table string) *mishard.Status {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return st
	}
	defer s.pool.Release(addr, c)

	if err := c.DropIndex(ctx, table); err != nil {
		return mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return mishard.StatusOK
}

func (s *Service) Insert(ctx context.Context, table string, vectors [][]float32) ([]int64, *mishard.Status) {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return nil, st
	}
	defer s.pool.Release(addr, c)

	ids, err := c.Insert(ctx, table, vectors)
	if err != nil {
		return nil, mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return ids, mishard.StatusOK
}

func (s *Service) CountTable(ctx context.Context, table string) (int64, *mishard.Status) {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return 0, st
	}
	defer s.pool.Release(addr, c)

	n, err := c.CountTable(ctx, table)
	if err != nil {
		return 0, mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return n, mishard.StatusOK
}

func (s *Service) ShowTables(ctx context.Context) ([]string, *mishard.Status) {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return nil, st
	}
	defer s.pool.Release(addr, c)

	names, err := c.ShowTables(ctx)
	if err != nil {
		return nil, mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return names, mishard.StatusOK
}

func (s *Service) DeleteByRange(ctx context.Context, table string, r mishard.TimeRange) *mishard.Status {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return st
	}
	defer s.pool.Release(addr, c)

	if err := c.DeleteByRange(ctx, table, r.Start, r.End); err != nil {
		return mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return mishard.StatusOK
}

func (s *Service) PreloadTable(ctx context.Context, table string) *mishard.Status {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return st
	}
	defer s.pool.Release(addr, c)

	if err := c.PreloadTable(ctx, table); err != nil {
		return mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return mishard.StatusOK
}

// Cmd answers the original's free-form administrative command channel:
// "version" forwards to ServerVersion, and every other command string
// (including "status") forwards to ServerStatus, matching the original's
// if/else split in service_handler.py rather than rejecting anything
// that isn't a recognized literal.
func (s *Service) Cmd(ctx context.Context, cmd string) (string, *mishard.Status) {
	c, addr, st := s.admin(ctx)
	if !st.OK() {
		return "", st
	}
	defer s.pool.Release(addr, c)

	if cmd == "version" {
		v, err := c.ServerVersion(ctx)
		if err != nil {
			return "", mishard.NewStatus(mishard.Internal, "%v", err)
		}
		return v, mishard.StatusOK
	}

	v, err := c.ServerStatus(ctx)
	if err != nil {
		return "", mishard.NewStatus(mishard.Internal, "%v", err)
	}
	return v, mishard.StatusOK
}

func emptyBlocks(nq int) []mishard.Block {
	out := make([]mishard.Block, nq)
	for i := range out {
		out[i] = mishard.Block{}
	}
	return out
}
