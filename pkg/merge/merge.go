// Package merge implements the result merger (C5): combining per-shard
// partial top-K blocks into one globally-correct answer per query
// position, honoring the table's metric and a deterministic tie-break.
//
// Each query position's rows are concatenated across partials and sorted
// by distance. Partials are merged in address order first, so Go's
// stable sort preserves (partial-index, intra-partial-position) order on
// ties without a separate comparator key.
package merge

import (
	"math"
	"sort"

	"github.com/mishard/core/pkg/mishard"
)

// Merge combines partials into nq output blocks of length <= topK.
//
// Edge cases (spec §4.5): nq == 0 returns an empty, successful result.
// Any partial shorter than nq blocks (and not itself error-bearing) is
// malformed and surfaces Internal. A partial with Err set contributes no
// rows and makes the overall status the first observed error, with an
// empty result list. NaN distances always sort last.
func Merge(partials []mishard.Partial, nq, topK int, metric mishard.Metric) ([]mishard.Block, *mishard.Status) {
	if nq == 0 {
		return []mishard.Block{}, mishard.StatusOK
	}

	for _, p := range partials {
		if p.Err != nil {
			code := mishard.Unavailable
			if st, ok := p.Err.(*mishard.Status); ok {
				code = st.Code
			}
			return nil, &mishard.Status{Code: code, Reason: p.Err.Error()}
		}
		if len(p.Blocks) != nq {
			return nil, &mishard.Status{
				Code:   mishard.Internal,
				Reason: "malformed partial: expected nq blocks, got different count",
			}
		}
	}

	ordered := make([]mishard.Partial, len(partials))
	copy(ordered, partials)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Addr < ordered[j].Addr })

	out := make([]mishard.Block, nq)
	for pos := 0; pos < nq; pos++ {
		rows := make([]mishard.ResultRow, 0, topK)
		for _, p := range ordered {
			rows = append(rows, p.Blocks[pos]...)
		}

		sort.SliceStable(rows, func(i, j int) bool {
			return less(rows[i].Distance, rows[j].Distance, metric)
		})

		if len(rows) > topK {
			rows = rows[:topK]
		}
		out[pos] = rows
	}

	return out, mishard.StatusOK
}

// less orders a before b for the given metric, with NaN distances always
// sorting last regardless of metric direction.
func less(a, b float32, metric mishard.Metric) bool {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	if aNaN || bNaN {
		if aNaN && bNaN {
			return false
		}
		return bNaN // a is "less" (sorts first) only if b is the NaN one
	}
	if metric == mishard.IP {
		return a > b
	}
	return a < b
}
