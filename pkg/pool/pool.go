// Package pool implements the connection pool (C2): one lazily-created,
// long-lived set of clients per backend address, pre-pinged on
// acquisition and recycled after an idle window, keyed per address
// instead of serving a single destination.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mishard/core/pkg/backend"
	"github.com/mishard/core/pkg/mishard"
)

// Config controls pool sizing and lifecycle. Field names and defaults
// mirror the options table in the configuration surface:
// pool_size -> MaxSize, pool_recycle -> MaxIdleTime, pool_timeout ->
// AcquireTimeout.
type Config struct {
	MaxSize        int
	MaxIdleTime    time.Duration
	AcquireTimeout time.Duration
}

// DefaultConfig returns conservative defaults: 100 connections per
// address, a 5s idle recycle window, and a 30s acquisition timeout.
func DefaultConfig() Config {
	return Config{
		MaxSize:        100,
		MaxIdleTime:    5 * time.Second,
		AcquireTimeout: 30 * time.Second,
	}
}

// Pool owns one client pool per backend address.
type Pool struct {
	config  Config
	factory backend.Factory
	logger  *zap.Logger

	mu    sync.RWMutex
	addrs map[string]*addrPool
}

// New creates a Pool. factory dials a fresh client for a given address;
// it is called lazily, the first time that address is requested.
func New(config Config, factory backend.Factory, logger *zap.Logger) *Pool {
	if config.MaxSize <= 0 {
		config.MaxSize = 100
	}
	return &Pool{
		config:  config,
		factory: factory,
		logger:  logger,
		addrs:   make(map[string]*addrPool),
	}
}

// Get acquires a client for addr, creating the per-address sub-pool on
// first use. Acquisition failures surface as Unavailable to the caller
// (spec §4.2).
func (p *Pool) Get(ctx context.Context, addr string) (backend.Client, error) {
	ap := p.getOrCreate(addr)
	c, err := ap.acquire(ctx)
	if err != nil {
		return nil, &mishard.Status{Code: mishard.Unavailable, Reason: err.Error()}
	}
	return c, nil
}

// Release returns a client to addr's pool.
func (p *Pool) Release(addr string, c backend.Client) {
	p.mu.RLock()
	ap, ok := p.addrs[addr]
	p.mu.RUnlock()
	if !ok {
		_ = c.Close()
		return
	}
	ap.release(c)
}

// Maintain recycles idle-expired connections and is meant to run
// periodically (see pkg/cron); it does not block acquisition.
func (p *Pool) Maintain() {
	p.mu.RLock()
	pools := make([]*addrPool, 0, len(p.addrs))
	for _, ap := range p.addrs {
		pools = append(pools, ap)
	}
	p.mu.RUnlock()

	for _, ap := range pools {
		ap.recycleIdle()
	}
}

// Close closes every address's sub-pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ap := range p.addrs {
		ap.closeAll()
	}
	p.addrs = make(map[string]*addrPool)
	return nil
}

func (p *Pool) getOrCreate(addr string) *addrPool {
	p.mu.RLock()
	ap, ok := p.addrs[addr]
	p.mu.RUnlock()
	if ok {
		return ap
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ap, ok = p.addrs[addr]; ok {
		return ap
	}
	ap = newAddrPool(addr, p.config, p.factory, p.logger)
	p.addrs[addr] = ap
	return ap
}

// pooledClient wraps a client with the bookkeeping needed to recycle it.
type pooledClient struct {
	client   backend.Client
	lastUsed time.Time
}

// addrPool is a bounded pool of clients to a single address, using a
// LIFO-acquire / waiting-channel pattern.
type addrPool struct {
	addr    string
	config  Config
	factory backend.Factory
	logger  *zap.Logger

	mu      sync.Mutex
	idle    []*pooledClient
	waiting []chan *pooledClient
	size    int32
}

func newAddrPool(addr string, config Config, factory backend.Factory, logger *zap.Logger) *addrPool {
	return &addrPool{addr: addr, config: config, factory: factory, logger: logger}
}

// acquire pops the most recently released idle client and pre-pings it
// before handing it back; a client that fails the ping is closed and
// discarded rather than returned to a caller, and acquisition falls
// through to the next idle client or a fresh dial.
func (ap *addrPool) acquire(ctx context.Context) (backend.Client, error) {
	for {
		ap.mu.Lock()
		if len(ap.idle) == 0 {
			ap.mu.Unlock()
			break
		}
		pc := ap.idle[len(ap.idle)-1]
		ap.idle = ap.idle[:len(ap.idle)-1]
		ap.mu.Unlock()

		if err := pc.client.Ping(ctx); err != nil {
			_ = pc.client.Close()
			atomic.AddInt32(&ap.size, -1)
			if ap.logger != nil {
				ap.logger.Warn("pre-ping failed, discarding idle connection",
					zap.String("addr", ap.addr), zap.Error(err))
			}
			continue
		}
		return pc.client, nil
	}

	ap.mu.Lock()
	if int(atomic.LoadInt32(&ap.size)) < ap.config.MaxSize {
		atomic.AddInt32(&ap.size, 1)
		ap.mu.Unlock()

		c, err := ap.factory(ctx, ap.addr)
		if err != nil {
			atomic.AddInt32(&ap.size, -1)
			return nil, err
		}
		return c, nil
	}

	waitCh := make(chan *pooledClient, 1)
	ap.waiting = append(ap.waiting, waitCh)
	ap.mu.Unlock()

	timeout := ap.config.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case pc := <-waitCh:
		if pc == nil {
			return nil, context.Canceled
		}
		return pc.client, nil
	case <-timer.C:
		ap.removeWaiter(waitCh)
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		ap.removeWaiter(waitCh)
		return nil, ctx.Err()
	}
}

func (ap *addrPool) removeWaiter(ch chan *pooledClient) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	for i, w := range ap.waiting {
		if w == ch {
			ap.waiting = append(ap.waiting[:i], ap.waiting[i+1:]...)
			break
		}
	}
}

func (ap *addrPool) release(c backend.Client) {
	pc := &pooledClient{client: c, lastUsed: time.Now()}

	ap.mu.Lock()
	defer ap.mu.Unlock()

	if len(ap.waiting) > 0 {
		w := ap.waiting[0]
		ap.waiting = ap.waiting[1:]
		w <- pc
		return
	}
	ap.idle = append(ap.idle, pc)
}

func (ap *addrPool) recycleIdle() {
	ap.mu.Lock()
	cutoff := time.Now().Add(-ap.config.MaxIdleTime)
	fresh := ap.idle[:0]
	var stale []*pooledClient
	for _, pc := range ap.idle {
		if ap.config.MaxIdleTime > 0 && pc.lastUsed.Before(cutoff) {
			stale = append(stale, pc)
			continue
		}
		fresh = append(fresh, pc)
	}
	ap.idle = fresh
	atomic.AddInt32(&ap.size, -int32(len(stale)))
	ap.mu.Unlock()

	for _, pc := range stale {
		if err := pc.client.Close(); err != nil && ap.logger != nil {
			ap.logger.Warn("recycle: close failed", zap.String("addr", ap.addr), zap.Error(err))
		}
	}
}

func (ap *addrPool) closeAll() {
	ap.mu.Lock()
	idle := ap.idle
	ap.idle = nil
	waiting := ap.waiting
	ap.waiting = nil
	ap.mu.Unlock()

	for _, pc := range idle {
		_ = pc.client.Close()
	}
	for _, w := range waiting {
		close(w)
	}
}
