// Package planner implements the routing planner (C3): turning a table and
// an optional set of time ranges into a RoutingPlan by consulting the
// metadata store, resolving a whole table to the full address -> file-ids
// mapping the metadata store already partitions correctly.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/mishard/core/pkg/metadata"
	"github.com/mishard/core/pkg/mishard"
)

// Planner builds routing plans against a Store.
type Planner struct {
	store metadata.Store
}

// New creates a Planner backed by store.
func New(store metadata.Store) *Planner {
	return &Planner{store: store}
}

// Plan converts (table, ranges) into a RoutingPlan. If ranges is empty the
// plan covers the entire table. If the store returns zero shards for a
// non-empty table, Plan returns an empty plan rather than an error — the
// dispatcher short-circuits to an empty result in that case (spec §4.3).
func (p *Planner) Plan(ctx context.Context, table string, ranges []mishard.TimeRange) (mishard.RoutingPlan, error) {
	owned, err := p.store.Lookup(ctx, table, ranges)
	if err != nil {
		if _, ok := err.(*metadata.ErrUnavailable); ok {
			return nil, &mishard.Status{Code: mishard.Unavailable, Reason: err.Error()}
		}
		return nil, &mishard.Status{Code: mishard.Internal, Reason: err.Error()}
	}

	plan := make(mishard.RoutingPlan, len(owned))
	for addr, fileIDs := range owned {
		plan[addr] = mishard.SubQuery{Table: table, FileIDs: fileIDs}
	}
	return plan, nil
}

// NormalizeRange parses a "YYYY-MM-DD" start/end pair into a TimeRange,
// the shape C1's day-bucketed file ownership expects. Grounded on the
// original's utilities.range_to_date, which rejected malformed dates
// before they ever reached the metadata lookup rather than letting a
// parse error surface as an opaque shard-lookup failure.
func NormalizeRange(startDate, endDate string) (mishard.TimeRange, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return mishard.TimeRange{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return mishard.TimeRange{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	if !end.After(start) {
		return mishard.TimeRange{}, fmt.Errorf("end date %q must be after start date %q", endDate, startDate)
	}
	return mishard.TimeRange{Start: start, End: end}, nil
}
