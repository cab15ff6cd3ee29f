// Package mishard holds the domain types shared by the router, dispatcher,
// merger, and request handler: the vocabulary the rest of the module is
// built from.
package mishard

import "time"

// Metric is a table's distance metric. It determines sort direction when
// merging partial results.
type Metric int

const (
	// L2 is Euclidean distance: smaller is better.
	L2 Metric = iota
	// IP is inner product: larger is better.
	IP
)

func (m Metric) String() string {
	if m == IP {
		return "IP"
	}
	return "L2"
}

// TableDescriptor is a table's metadata as needed by the router: its
// dimension, index file size hint, and metric kind. Descriptors are
// cached by table name after first lookup (see Service.descCache); only
// DropTable removes a cached entry.
type TableDescriptor struct {
	Name          string
	Dimension     int
	IndexFileSize int64
	Metric        Metric
}

// TimeRange restricts which file shards are considered for a query. It is
// inclusive of Start and exclusive of End; multiple ranges union.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SubQuery is the per-address parameter record of a RoutingPlan: the table
// to search and the ordered file-ids that address owns.
type SubQuery struct {
	Table   string
	FileIDs []string
}

// RoutingPlan maps backend address to the sub-query it should run. Every
// file needed for the request appears under exactly one address.
type RoutingPlan map[string]SubQuery

// ResultRow is a single (vector-id, distance) pair.
type ResultRow struct {
	ID       int64
	Distance float32
}

// Block is an ordered top-K result for one input query vector. Length is
// at most K; invariants on sort order are enforced by the merger.
type Block []ResultRow

// Partial is one backend's result for its assigned files: nq blocks
// aligned with the input query order. A Partial with Err set carries no
// rows and signals that its sub-query failed.
type Partial struct {
	Addr   string
	Blocks []Block
	Err    error
}
