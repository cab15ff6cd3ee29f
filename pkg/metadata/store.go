// Package metadata defines the catalog the router consults to turn a table
// name into file-shard ownership. The core only requires that a single
// Lookup call is read-consistent (no file appears under two addresses in
// one returned plan); it is agnostic to what backs the store — a database,
// a control-plane RPC, or (for tests) memory.
package metadata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mishard/core/pkg/mishard"
)

// Store is the metadata catalog client (C1). Implementers may back it with
// a database or a control-plane RPC.
type Store interface {
	// Lookup returns, for the given table restricted to the optional time
	// ranges, the file-ids owned by each backend address. An empty,
	// non-error result means the table currently has no matching shards.
	Lookup(ctx context.Context, table string, ranges []mishard.TimeRange) (map[string][]string, error)

	// Describe returns a table's descriptor, or an *ErrNotFound if the
	// table is unknown.
	Describe(ctx context.Context, table string) (*mishard.TableDescriptor, error)
}

// ErrUnavailable is returned by Store implementations when the backing
// store is transiently unreachable; the core surfaces this to the caller
// without retrying.
type ErrUnavailable struct{ Cause error }

func (e *ErrUnavailable) Error() string { return fmt.Sprintf("metadata store unavailable: %v", e.Cause) }
func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound is returned when a table is unknown to the store.
type ErrNotFound struct{ Table string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("table not found: %s", e.Table) }

// shardFile is a file owned by one address, optionally dated for range
// filtering.
type shardFile struct {
	id   string
	addr string
	day  string // "YYYY-MM-DD", empty if undated
}

// InMemoryStore is a read-consistent, process-local Store backed by a
// plain map. It is the reference implementation used by tests and by
// single-node deployments that colocate the catalog with the router; a
// production deployment backs Store with a real database or control-plane
// RPC instead (C1's contract does not care which).
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[string][]shardFile // table -> files
	descs map[string]*mishard.TableDescriptor
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		files: make(map[string][]shardFile),
		descs: make(map[string]*mishard.TableDescriptor),
	}
}

// PutDescriptor registers a table's descriptor.
func (s *InMemoryStore) PutDescriptor(d mishard.TableDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descs[d.Name] = &d
}

// PutFile assigns a file-id to an address, optionally dated "YYYY-MM-DD"
// for range-restricted lookups. Assigning a file that already has an
// owner moves it — the invariant that a file belongs to exactly one
// address at a time is maintained by construction.
func (s *InMemoryStore) PutFile(table, fileID, addr, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.files[table]
	for i, f := range files {
		if f.id == fileID {
			files[i] = shardFile{id: fileID, addr: addr, day: day}
			s.files[table] = files
			return
		}
	}
	s.files[table] = append(files, shardFile{id: fileID, addr: addr, day: day})
}

// Lookup implements Store.
func (s *InMemoryStore) Lookup(ctx context.Context, table string, ranges []mishard.TimeRange) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string)
	for _, f := range s.files[table] {
		if len(ranges) > 0 && !dayInRanges(f.day, ranges) {
			continue
		}
		out[f.addr] = append(out[f.addr], f.id)
	}
	for addr := range out {
		sort.Strings(out[addr])
	}
	return out, nil
}

// Describe implements Store.
func (s *InMemoryStore) Describe(ctx context.Context, table string) (*mishard.TableDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descs[table]
	if !ok {
		return nil, &ErrNotFound{Table: table}
	}
	cp := *d
	return &cp, nil
}

func dayInRanges(day string, ranges []mishard.TimeRange) bool {
	if day == "" {
		return true
	}
	for _, r := range ranges {
		start := r.Start.Format("2006-01-02")
		end := r.End.Format("2006-01-02")
		if day >= start && day < end {
			return true
		}
	}
	return false
}
