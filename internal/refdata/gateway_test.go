package refdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/worklog-cli/internal/model"
)

type fakeSource struct {
	fieldCalls atomic.Int32
	fields     []model.Field
	fieldErr   error
	block      chan struct{}

	crops     []model.Crop
	materials []model.Material
}

func (f *fakeSource) ListFields(_ context.Context) ([]model.Field, error) {
	f.fieldCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.fieldErr != nil {
		return nil, f.fieldErr
	}
	return f.fields, nil
}

func (f *fakeSource) ListCrops(_ context.Context) ([]model.Crop, error) {
	return f.crops, nil
}

func (f *fakeSource) ListMaterials(_ context.Context) ([]model.Material, error) {
	return f.materials, nil
}

// newClock returns an injectable clock and a function that advances it.
func newClock(start time.Time) (advance func(time.Duration), now func() time.Time) {
	var mu sync.Mutex
	cur := start
	advance = func(d time.Duration) {
		mu.Lock()
		cur = cur.Add(d)
		mu.Unlock()
	}
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return cur
	}
	return advance, now
}

func TestCachedGateway_FiltersInactiveAndTrimsIDs(t *testing.T) {
	src := &fakeSource{
		fields: []model.Field{
			{ID: " f1 ", Name: "Greenhouse 1", Status: "active"},
			{ID: "f2", Name: "Greenhouse 2", Status: "inactive"},
			{ID: "f3", Name: "Riverside Field"},
		},
		crops:     []model.Crop{{ID: "c1", Name: "Tomato"}, {ID: "c2", Name: "Gone", Status: "deleted"}},
		materials: []model.Material{{ID: "m1", Name: "Fungicide-X", Status: "active"}},
	}
	g := NewCachedGateway(src, time.Minute)
	ctx := context.Background()

	fields, err := g.Fields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "f1", fields[0].RefID())
	assert.Equal(t, "f3", fields[1].RefID())

	crops, err := g.Crops(ctx)
	require.NoError(t, err)
	require.Len(t, crops, 1)
	assert.Equal(t, model.KindCrop, crops[0].Kind())

	materials, err := g.Materials(ctx)
	require.NoError(t, err)
	require.Len(t, materials, 1)
}

func TestCachedGateway_CachesWithinTTL(t *testing.T) {
	src := &fakeSource{fields: []model.Field{{ID: "f1", Name: "A"}}}
	g := NewCachedGateway(src, time.Minute)
	advance, clock := newClock(time.Now())
	g.nowFunc = clock

	for i := 0; i < 5; i++ {
		_, err := g.Fields(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.fieldCalls.Load())

	advance(2 * time.Minute)
	_, err := g.Fields(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return src.fieldCalls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCachedGateway_StaleServedWhileRefreshing(t *testing.T) {
	src := &fakeSource{fields: []model.Field{{ID: "f1", Name: "Old"}}}
	g := NewCachedGateway(src, time.Minute)
	advance, clock := newClock(time.Now())
	g.nowFunc = clock

	_, err := g.Fields(context.Background())
	require.NoError(t, err)

	// Expire and make the next load hang.
	src.block = make(chan struct{})
	src.fields = []model.Field{{ID: "f1", Name: "New"}}
	advance(2 * time.Minute)

	done := make(chan []model.Reference)
	go func() {
		refs, _ := g.Fields(context.Background())
		done <- refs
	}()

	select {
	case refs := <-done:
		require.Len(t, refs, 1)
		assert.Equal(t, "Old", refs[0].DisplayName())
	case <-time.After(time.Second):
		t.Fatal("stale snapshot was not served while refresh was in flight")
	}

	close(src.block)
	assert.Eventually(t, func() bool {
		refs, err := g.Fields(context.Background())
		return err == nil && refs[0].DisplayName() == "New"
	}, time.Second, 5*time.Millisecond)
}

func TestCachedGateway_ConcurrentColdLoadSingleFlight(t *testing.T) {
	src := &fakeSource{fields: []model.Field{{ID: "f1", Name: "A"}}, block: make(chan struct{})}
	g := NewCachedGateway(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs, err := g.Fields(context.Background())
			assert.NoError(t, err)
			assert.Len(t, refs, 1)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.Equal(t, int32(1), src.fieldCalls.Load())
}

func TestCachedGateway_StorageFailure(t *testing.T) {
	src := &fakeSource{fieldErr: errors.New("disk gone")}
	g := NewCachedGateway(src, time.Minute)

	refs, err := g.Fields(context.Background())
	require.Error(t, err)
	assert.Nil(t, refs)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCachedGateway_ExpiredSnapshotAfterFailedRefresh(t *testing.T) {
	src := &fakeSource{fields: []model.Field{{ID: "f1", Name: "Old"}}}
	g := NewCachedGateway(src, time.Minute)
	advance, clock := newClock(time.Now())
	g.nowFunc = clock

	_, err := g.Fields(context.Background())
	require.NoError(t, err)

	src.fieldErr = errors.New("storage down")
	advance(10 * time.Hour)

	// The first caller after expiry may still be handed the old snapshot
	// while the refresh runs; once it has failed, calls report the outage.
	assert.Eventually(t, func() bool {
		_, err := g.Fields(context.Background())
		return errors.Is(err, ErrUnavailable)
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		refs, err := g.Fields(context.Background())
		assert.Nil(t, refs)
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	// Recovery restores a fresh snapshot.
	src.fieldErr = nil
	refs, err := g.Fields(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestCachedGateway_ColdLoadRespectsCancel(t *testing.T) {
	src := &fakeSource{block: make(chan struct{})}
	defer close(src.block)
	g := NewCachedGateway(src, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Fields(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedGateway_Invalidate(t *testing.T) {
	src := &fakeSource{fields: []model.Field{{ID: "f1", Name: "A"}}}
	g := NewCachedGateway(src, time.Hour)

	_, err := g.Fields(context.Background())
	require.NoError(t, err)
	g.Invalidate()
	_, err = g.Fields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.fieldCalls.Load())
}

func TestNewCachedGateway_DefaultTTL(t *testing.T) {
	g := NewCachedGateway(&fakeSource{}, 0)
	assert.Equal(t, DefaultTTL, g.ttl)
}
