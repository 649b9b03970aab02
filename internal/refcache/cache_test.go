package refcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/metrics"
)

type fakeLoader struct {
	categoryCalls atomic.Int32
	farmCalls     atomic.Int32
	categoriesErr error
	categories    []marketapi.Category
	farms         []marketapi.Farm
}

func (f *fakeLoader) Categories(context.Context) ([]marketapi.Category, error) {
	f.categoryCalls.Add(1)
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return f.categories, nil
}

func (f *fakeLoader) Farms(context.Context) ([]marketapi.Farm, error) {
	f.farmCalls.Add(1)
	return f.farms, nil
}

func TestCache_MemoizesAfterSuccess(t *testing.T) {
	loader := &fakeLoader{
		categories: []marketapi.Category{{ID: 1, Name: "Dairy"}},
		farms:      []marketapi.Farm{{ID: 2, Name: "Hill"}},
	}
	m := metrics.New(nil)
	cache := New(loader, m, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Len(t, cache.Categories(ctx), 1)
		assert.Len(t, cache.Suppliers(ctx), 1)
	}
	assert.EqualValues(t, 1, loader.categoryCalls.Load())
	assert.EqualValues(t, 1, loader.farmCalls.Load())
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("categories", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("categories", "miss")))
}

func TestCache_ConcurrentFirstReadsFetchOnce(t *testing.T) {
	loader := &fakeLoader{categories: []marketapi.Category{{ID: 1}}}
	cache := New(loader, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Categories(context.Background())
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, loader.categoryCalls.Load())
}

func TestCache_ResetForcesRefetch(t *testing.T) {
	loader := &fakeLoader{categories: []marketapi.Category{{ID: 1}}, farms: []marketapi.Farm{{ID: 1}}}
	cache := New(loader, nil, nil)
	ctx := context.Background()

	cache.Categories(ctx)
	cache.Suppliers(ctx)
	loader.categories = append(loader.categories, marketapi.Category{ID: 2})

	cache.ResetCategories()
	assert.Len(t, cache.Categories(ctx), 2)
	assert.EqualValues(t, 2, loader.categoryCalls.Load())

	cache.Suppliers(ctx)
	assert.EqualValues(t, 1, loader.farmCalls.Load(), "resetting categories leaves suppliers cached")

	cache.Reset()
	cache.Suppliers(ctx)
	assert.EqualValues(t, 2, loader.farmCalls.Load())
}

func TestCache_FailureIsNotSticky(t *testing.T) {
	loader := &fakeLoader{categoriesErr: errors.New("boom")}
	cache := New(loader, nil, nil)
	ctx := context.Background()

	got := cache.Categories(ctx)
	require.NotNil(t, got)
	assert.Empty(t, got)

	loader.categoriesErr = nil
	loader.categories = []marketapi.Category{{ID: 3}}
	assert.Len(t, cache.Categories(ctx), 1)
	assert.EqualValues(t, 2, loader.categoryCalls.Load())
}
