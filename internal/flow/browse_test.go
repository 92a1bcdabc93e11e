package flow

import (
	"sync"
	"testing"
	"time"

	"github.com/prodcat/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchRecorder struct {
	mu    sync.Mutex
	calls []types.ProductFilter
}

func (r *fetchRecorder) fetch(f types.ProductFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, f)
}

func (r *fetchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fetchRecorder) last() types.ProductFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func TestBrowseDefaults(t *testing.T) {
	b := NewBrowse(time.Hour, (&fetchRecorder{}).fetch)

	f := b.Filter()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPageLimit, f.Limit)
	assert.Equal(t, types.SortLatest, f.Sort)
	assert.False(t, f.IsDeleted)
}

func TestBrowseFilterChangesResetPage(t *testing.T) {
	inStock := true
	min := 10.0
	tests := []struct {
		name   string
		change func(*Browse)
	}{
		{"category", func(b *Browse) { b.SetCategory("books") }},
		{"sort", func(b *Browse) { b.SetSort(types.SortPriceAsc) }},
		{"price range", func(b *Browse) { b.SetPriceRange(&min, nil) }},
		{"stock", func(b *Browse) { b.SetInStock(&inStock) }},
		{"search", func(b *Browse) { b.SetSearch("lamp") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fetchRecorder{}
			b := NewBrowse(time.Hour, rec.fetch)
			b.SetPage(4)
			require.Equal(t, 4, b.Page())

			tt.change(b)

			assert.Equal(t, 1, b.Page(), "any filter change snaps back to page 1")
		})
	}
}

func TestBrowseTrashMapsToDeletedFilter(t *testing.T) {
	rec := &fetchRecorder{}
	b := NewBrowse(time.Hour, rec.fetch)

	b.SetCategory(CategoryTrash)

	require.Equal(t, 1, rec.count())
	f := rec.last()
	assert.True(t, f.IsDeleted)
	assert.Empty(t, f.Category, "trash is a view, not a backend category")

	b.SetCategory("books")
	f = rec.last()
	assert.False(t, f.IsDeleted)
	assert.Equal(t, types.Category("books"), f.Category)
}

func TestBrowseSearchIsDebounced(t *testing.T) {
	rec := &fetchRecorder{}
	b := NewBrowse(40*time.Millisecond, rec.fetch)

	b.SetSearch("l")
	b.SetSearch("la")
	b.SetSearch("lam")
	b.SetSearch("lamp")
	assert.Zero(t, rec.count(), "no fetch while typing")

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "lamp", rec.last().Search, "only the settled term is fetched")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "one burst, one fetch")
}

func TestBrowseImmediateChangeCancelsPendingSearch(t *testing.T) {
	rec := &fetchRecorder{}
	b := NewBrowse(40*time.Millisecond, rec.fetch)

	b.SetSearch("lamp")
	b.SetCategory("home")

	require.Equal(t, 1, rec.count())
	f := rec.last()
	assert.Equal(t, "lamp", f.Search, "the immediate fetch carries the latest search text")
	assert.Equal(t, types.Category("home"), f.Category)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "the stale debounced fetch never fires")
}

func TestBrowseClearFilters(t *testing.T) {
	rec := &fetchRecorder{}
	b := NewBrowse(time.Hour, rec.fetch)
	min, max := 5.0, 50.0
	inStock := true

	b.SetCategory(CategoryTrash)
	b.SetSort(types.SortPriceDesc)
	b.SetPriceRange(&min, &max)
	b.SetInStock(&inStock)
	b.SetPage(3)

	b.ClearFilters()

	f := rec.last()
	assert.Equal(t, types.ProductFilter{
		Sort:  types.SortLatest,
		Page:  1,
		Limit: DefaultPageLimit,
	}, f)
}

func TestBrowsePageFloor(t *testing.T) {
	rec := &fetchRecorder{}
	b := NewBrowse(time.Hour, rec.fetch)

	b.SetPage(0)

	assert.Equal(t, 1, b.Page())
}
