package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishard/core/pkg/backend"
	"github.com/mishard/core/pkg/mishard"
	"github.com/mishard/core/pkg/tracing"
)

type fakeClient struct {
	backend.Client
	blocks []mishard.Block
	err    error
	delay  time.Duration
}

func (f *fakeClient) SearchInFiles(ctx context.Context, p backend.SearchParams) ([]mishard.Block, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.blocks, nil
}

type fakePool struct {
	clients map[string]*fakeClient
}

func (p *fakePool) Get(ctx context.Context, addr string) (backend.Client, error) {
	c, ok := p.clients[addr]
	if !ok {
		return nil, errors.New("no client for " + addr)
	}
	return c, nil
}
func (p *fakePool) Release(addr string, c backend.Client) {}

func TestDispatch_CollectsOnePartialPerAddress(t *testing.T) {
	pool := &fakePool{clients: map[string]*fakeClient{
		"a": {blocks: []mishard.Block{{{ID: 1, Distance: 0.1}}}},
		"b": {blocks: []mishard.Block{{{ID: 2, Distance: 0.2}}}},
	}}
	d := New(pool, tracing.Noop, 4, nil)

	plan := mishard.RoutingPlan{
		"a": {Table: "t1", FileIDs: []string{"f1"}},
		"b": {Table: "t1", FileIDs: []string{"f2"}},
	}
	partials, st := d.Dispatch(context.Background(), plan, [][]float32{{1, 2}}, 5, 8)
	require.True(t, st.OK())
	require.Len(t, partials, 2)
}

func TestDispatch_EmptyPlanReturnsNoPartials(t *testing.T) {
	d := New(&fakePool{}, tracing.Noop, 4, nil)
	partials, st := d.Dispatch(context.Background(), mishard.RoutingPlan{}, [][]float32{{1}}, 5, 8)
	require.True(t, st.OK())
	assert.Nil(t, partials)
}

func TestDispatch_OneAddressFailureBecomesErrorPartial(t *testing.T) {
	pool := &fakePool{clients: map[string]*fakeClient{
		"a": {blocks: []mishard.Block{{{ID: 1, Distance: 0.1}}}},
		"b": {err: errors.New("connection refused")},
	}}
	d := New(pool, tracing.Noop, 4, nil)

	plan := mishard.RoutingPlan{
		"a": {Table: "t1", FileIDs: []string{"f1"}},
		"b": {Table: "t1", FileIDs: []string{"f2"}},
	}
	partials, st := d.Dispatch(context.Background(), plan, [][]float32{{1, 2}}, 5, 8)
	require.True(t, st.OK())
	require.Len(t, partials, 2)

	var sawErr bool
	for _, p := range partials {
		if p.Err != nil {
			sawErr = true
		}
	}
	assert.True(t, sawErr)
}

func TestDispatch_ContextCancellationReturnsCanceled(t *testing.T) {
	pool := &fakePool{clients: map[string]*fakeClient{
		"a": {delay: 200 * time.Millisecond},
	}}
	d := New(pool, tracing.Noop, 4, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	plan := mishard.RoutingPlan{"a": {Table: "t1", FileIDs: []string{"f1"}}}
	_, st := d.Dispatch(ctx, plan, [][]float32{{1}}, 5, 8)
	require.False(t, st.OK())
	assert.Equal(t, mishard.Canceled, st.Code)
}

func TestDispatch_RespectsMaxWorkers(t *testing.T) {
	pool := &fakePool{clients: map[string]*fakeClient{
		"a": {delay: 10 * time.Millisecond},
		"b": {delay: 10 * time.Millisecond},
		"c": {delay: 10 * time.Millisecond},
	}}
	d := New(pool, tracing.Noop, 1, nil)
	plan := mishard.RoutingPlan{
		"a": {Table: "t1", FileIDs: []string{"f1"}},
		"b": {Table: "t1", FileIDs: []string{"f2"}},
		"c": {Table: "t1", FileIDs: []string{"f3"}},
	}
	start := time.Now()
	partials, st := d.Dispatch(context.Background(), plan, [][]float32{{1}}, 5, 8)
	require.True(t, st.OK())
	require.Len(t, partials, 3)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}
