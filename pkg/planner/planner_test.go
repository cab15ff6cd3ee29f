package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishard/core/pkg/metadata"
	"github.com/mishard/core/pkg/mishard"
)

func TestPlan_BuildsOneSubQueryPerAddress(t *testing.T) {
	store := metadata.NewInMemoryStore()
	store.PutFile("t1", "f1", "addr-a", "")
	store.PutFile("t1", "f2", "addr-a", "")
	store.PutFile("t1", "f3", "addr-b", "")

	p := New(store)
	plan, err := p.Plan(context.Background(), "t1", nil)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.ElementsMatch(t, []string{"f1", "f2"}, plan["addr-a"].FileIDs)
	assert.ElementsMatch(t, []string{"f3"}, plan["addr-b"].FileIDs)
}

func TestPlan_EmptyTableReturnsEmptyPlan(t *testing.T) {
	store := metadata.NewInMemoryStore()
	p := New(store)
	plan, err := p.Plan(context.Background(), "nonexistent", nil)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

type failingStore struct{ err error }

func (f failingStore) Lookup(ctx context.Context, table string, ranges []mishard.TimeRange) (map[string][]string, error) {
	return nil, f.err
}
func (f failingStore) Describe(ctx context.Context, table string) (*mishard.TableDescriptor, error) {
	return nil, f.err
}

func TestPlan_StoreUnavailableSurfacesAsUnavailable(t *testing.T) {
	p := New(failingStore{err: &metadata.ErrUnavailable{}})
	_, err := p.Plan(context.Background(), "t1", nil)
	require.Error(t, err)
	st, ok := err.(*mishard.Status)
	require.True(t, ok)
	assert.Equal(t, mishard.Unavailable, st.Code)
}

func TestNormalizeRange_Valid(t *testing.T) {
	r, err := NormalizeRange("2026-01-01", "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, r.Start.Year())
	assert.True(t, r.End.After(r.Start))
}

func TestNormalizeRange_MalformedDateIsRejected(t *testing.T) {
	_, err := NormalizeRange("not-a-date", "2026-02-01")
	assert.Error(t, err)
}

func TestNormalizeRange_EndNotAfterStartIsRejected(t *testing.T) {
	_, err := NormalizeRange("2026-02-01", "2026-01-01")
	assert.Error(t, err)
}
