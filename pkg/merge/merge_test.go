package merge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishard/core/pkg/mishard"
)

func row(id int64, d float32) mishard.ResultRow { return mishard.ResultRow{ID: id, Distance: d} }

func TestMerge_SingleShard(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "a", Blocks: []mishard.Block{{row(1, 0.5), row(2, 0.1), row(3, 0.9), row(4, 0.3)}}},
	}
	blocks, status := Merge(partials, 1, 3, mishard.L2)
	require.True(t, status.OK())
	require.Len(t, blocks, 1)
	assert.Equal(t, mishard.Block{row(2, 0.1), row(4, 0.3), row(1, 0.5)}, blocks[0])
}

func TestMerge_TwoShardsL2(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "b", Blocks: []mishard.Block{{row(10, 0.4), row(11, 0.2)}}},
		{Addr: "a", Blocks: []mishard.Block{{row(20, 0.1), row(21, 0.3)}}},
	}
	blocks, status := Merge(partials, 1, 2, mishard.L2)
	require.True(t, status.OK())
	require.Len(t, blocks, 1)
	assert.Equal(t, mishard.Block{row(20, 0.1), row(11, 0.2)}, blocks[0])
}

func TestMerge_TwoShardsIP(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "a", Blocks: []mishard.Block{{row(1, 0.4), row(2, 0.9)}}},
		{Addr: "b", Blocks: []mishard.Block{{row(3, 0.8), row(4, 0.1)}}},
	}
	blocks, status := Merge(partials, 1, 2, mishard.IP)
	require.True(t, status.OK())
	require.Len(t, blocks, 1)
	assert.Equal(t, mishard.Block{row(2, 0.9), row(3, 0.8)}, blocks[0])
}

func TestMerge_BatchTwoQueries(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "a", Blocks: []mishard.Block{{row(1, 0.5)}, {row(2, 0.2)}}},
		{Addr: "b", Blocks: []mishard.Block{{row(3, 0.1)}, {row(4, 0.9)}}},
	}
	blocks, status := Merge(partials, 2, 1, mishard.L2)
	require.True(t, status.OK())
	require.Len(t, blocks, 2)
	assert.Equal(t, mishard.Block{row(3, 0.1)}, blocks[0])
	assert.Equal(t, mishard.Block{row(2, 0.2)}, blocks[1])
}

func TestMerge_PartialFailurePropagates(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "a", Blocks: []mishard.Block{{row(1, 0.1)}}},
		{Addr: "b", Err: &mishard.Status{Code: mishard.Unavailable, Reason: "dial tcp: refused"}},
	}
	blocks, status := Merge(partials, 1, 1, mishard.L2)
	assert.Nil(t, blocks)
	require.False(t, status.OK())
	assert.Equal(t, mishard.Unavailable, status.Code)
}

func TestMerge_MismatchedBlockCountIsInternal(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "a", Blocks: []mishard.Block{{row(1, 0.1)}, {row(2, 0.2)}}},
		{Addr: "b", Blocks: []mishard.Block{{row(3, 0.3)}}},
	}
	blocks, status := Merge(partials, 2, 1, mishard.L2)
	assert.Nil(t, blocks)
	require.False(t, status.OK())
	assert.Equal(t, mishard.Internal, status.Code)
}

func TestMerge_EmptyQueryIsSuccess(t *testing.T) {
	blocks, status := Merge(nil, 0, 10, mishard.L2)
	require.True(t, status.OK())
	assert.Empty(t, blocks)
}

func TestMerge_NoShardsOwnTable(t *testing.T) {
	blocks, status := Merge(nil, 2, 10, mishard.L2)
	require.True(t, status.OK())
	require.Len(t, blocks, 2)
	assert.Empty(t, blocks[0])
	assert.Empty(t, blocks[1])
}

func TestMerge_NaNSortsLast(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "a", Blocks: []mishard.Block{{row(1, float32(math.NaN())), row(2, 0.5)}}},
	}
	blocks, status := Merge(partials, 1, 2, mishard.L2)
	require.True(t, status.OK())
	require.Len(t, blocks[0], 2)
	assert.Equal(t, int64(2), blocks[0][0].ID)
	assert.Equal(t, int64(1), blocks[0][1].ID)
}

func TestMerge_TieBreakIsStableByAddressThenPosition(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "b", Blocks: []mishard.Block{{row(100, 0.5), row(101, 0.5)}}},
		{Addr: "a", Blocks: []mishard.Block{{row(200, 0.5), row(201, 0.5)}}},
	}
	blocks, status := Merge(partials, 1, 4, mishard.L2)
	require.True(t, status.OK())
	ids := []int64{blocks[0][0].ID, blocks[0][1].ID, blocks[0][2].ID, blocks[0][3].ID}
	assert.Equal(t, []int64{200, 201, 100, 101}, ids)
}

func TestMerge_IdempotentAcrossCalls(t *testing.T) {
	partials := []mishard.Partial{
		{Addr: "a", Blocks: []mishard.Block{{row(1, 0.3), row(2, 0.1)}}},
		{Addr: "b", Blocks: []mishard.Block{{row(3, 0.2)}}},
	}
	first, _ := Merge(partials, 1, 3, mishard.L2)
	second, _ := Merge(partials, 1, 3, mishard.L2)
	assert.Equal(t, first, second)
}
