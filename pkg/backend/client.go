// Package backend defines the duck-typed backend connection as a proper Go
// interface (Design Note 9: "re-architect as an interface exposing exactly
// the operations the core uses"), plus one concrete implementation wired
// over TCP with a msgpack wire codec.
package backend

import (
	"context"
	"time"

	"github.com/mishard/core/pkg/mishard"
)

// SearchParams is the request shape of a search-in-files sub-query.
type SearchParams struct {
	Table   string
	FileIDs []string
	Vectors [][]float32
	TopK    int
	NProbe  int
}

// IndexParams describes an index creation request.
type IndexParams struct {
	Type  string
	NList int
}

// Client is the set of operations the core needs from a backend
// connection: the one used by the dispatcher (SearchInFiles) and the
// admin pass-throughs the request handler forwards verbatim to an
// arbitrary live backend. Mocks for tests implement this same interface.
type Client interface {
	// Ping validates that the connection is still usable, for the pool to
	// call before handing a reused idle client back to a caller.
	Ping(ctx context.Context) error

	SearchInFiles(ctx context.Context, p SearchParams) ([]mishard.Block, error)
	DescribeTable(ctx context.Context, table string) (*mishard.TableDescriptor, error)

	CreateTable(ctx context.Context, d mishard.TableDescriptor) error
	HasTable(ctx context.Context, table string) (bool, error)
	DropTable(ctx context.Context, table string) error
	CreateIndex(ctx context.Context, table string, p IndexParams) error
	DescribeIndex(ctx context.Context, table string) (*IndexParams, error)
	DropIndex(ctx context.Context, table string) error
	Insert(ctx context.Context, table string, vectors [][]float32) ([]int64, error)
	CountTable(ctx context.Context, table string) (int64, error)
	ShowTables(ctx context.Context) ([]string, error)
	DeleteByRange(ctx context.Context, table string, start, end time.Time) error
	PreloadTable(ctx context.Context, table string) error
	ServerVersion(ctx context.Context) (string, error)
	ServerStatus(ctx context.Context) (string, error)

	Close() error
}

// Factory dials a new Client for the given backend address. It is the
// collaborator the connection pool calls, lazily, each time it needs
// another client for an address (up to the pool's per-address size).
type Factory func(ctx context.Context, addr string) (Client, error)
