package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishard/core/pkg/mishard"
)

func TestLookup_FiltersByTimeRange(t *testing.T) {
	s := NewInMemoryStore()
	s.PutFile("t1", "f1", "addr-a", "2026-01-01")
	s.PutFile("t1", "f2", "addr-a", "2026-02-01")

	out, err := s.Lookup(context.Background(), "t1", []mishard.TimeRange{
		{Start: mustParse("2026-01-01"), End: mustParse("2026-01-31")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, out["addr-a"])
}

func TestLookup_NoRangesReturnsEverything(t *testing.T) {
	s := NewInMemoryStore()
	s.PutFile("t1", "f1", "addr-a", "2026-01-01")
	s.PutFile("t1", "f2", "addr-b", "")

	out, err := s.Lookup(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, out["addr-a"])
	assert.Equal(t, []string{"f2"}, out["addr-b"])
}

func TestPutFile_MovesOwnershipRatherThanDuplicating(t *testing.T) {
	s := NewInMemoryStore()
	s.PutFile("t1", "f1", "addr-a", "")
	s.PutFile("t1", "f1", "addr-b", "")

	out, err := s.Lookup(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Empty(t, out["addr-a"])
	assert.Equal(t, []string{"f1"}, out["addr-b"])
}

func TestDescribe_UnknownTableIsNotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Describe(context.Background(), "missing")
	require.Error(t, err)
	_, ok := err.(*ErrNotFound)
	assert.True(t, ok)
}

func TestDescribe_ReturnsACopy(t *testing.T) {
	s := NewInMemoryStore()
	s.PutDescriptor(mishard.TableDescriptor{Name: "t1", Dimension: 8})

	d1, err := s.Describe(context.Background(), "t1")
	require.NoError(t, err)
	d1.Dimension = 999

	d2, err := s.Describe(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 8, d2.Dimension)
}

func mustParse(s string) time.Time {
	tm, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return tm
}
