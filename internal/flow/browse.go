package flow

import (
	"sync"
	"time"

	"github.com/prodcat/apiserver/types"
)

// CategoryTrash is the pseudo-category that switches the listing to
// soft-deleted products. It is a view concept only; the backend filter
// it maps to is IsDeleted=true with no category constraint.
const CategoryTrash = "trash"

// DefaultPageLimit is the page size the browse view requests.
const DefaultPageLimit = 12

// Browse tracks the product listing's filter state and dispatches
// fetches. Search edits are debounced; every other filter change
// dispatches immediately. Any filter, sort, or search change snaps the
// page back to 1 so the result set is never viewed from a stale offset.
type Browse struct {
	mu       sync.Mutex
	search   string
	category string
	sort     string
	minPrice *float64
	maxPrice *float64
	inStock  *bool
	page     int

	debouncer *Debouncer
	fetch     func(types.ProductFilter)
}

// NewBrowse constructs a Browse that dispatches filters to fetch.
// Search input settles for delay before dispatching.
func NewBrowse(delay time.Duration, fetch func(types.ProductFilter)) *Browse {
	b := &Browse{
		sort:  types.SortLatest,
		page:  1,
		fetch: fetch,
	}
	b.debouncer = NewDebouncer(delay, b.dispatch)
	return b
}

// SetSearch updates the search term. The page resets immediately; the
// fetch itself waits for typing to settle.
func (b *Browse) SetSearch(term string) {
	b.mu.Lock()
	b.search = term
	b.page = 1
	b.mu.Unlock()
	b.debouncer.Trigger()
}

// SetCategory selects a category (or CategoryTrash, or "" for all) and
// refetches from page 1.
func (b *Browse) SetCategory(category string) {
	b.mu.Lock()
	b.category = category
	b.page = 1
	b.mu.Unlock()
	b.dispatchNow()
}

// SetSort changes the sort order and refetches from page 1.
func (b *Browse) SetSort(sort string) {
	b.mu.Lock()
	b.sort = sort
	b.page = 1
	b.mu.Unlock()
	b.dispatchNow()
}

// SetPriceRange constrains the price band and refetches from page 1.
// Either bound may be nil.
func (b *Browse) SetPriceRange(min, max *float64) {
	b.mu.Lock()
	b.minPrice, b.maxPrice = min, max
	b.page = 1
	b.mu.Unlock()
	b.dispatchNow()
}

// SetInStock constrains stock availability and refetches from page 1.
func (b *Browse) SetInStock(inStock *bool) {
	b.mu.Lock()
	b.inStock = inStock
	b.page = 1
	b.mu.Unlock()
	b.dispatchNow()
}

// SetPage moves to the given page without touching the filters.
func (b *Browse) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	b.mu.Lock()
	b.page = page
	b.mu.Unlock()
	b.dispatchNow()
}

// ClearFilters resets every filter to its default and refetches.
func (b *Browse) ClearFilters() {
	b.mu.Lock()
	b.search = ""
	b.category = ""
	b.sort = types.SortLatest
	b.minPrice, b.maxPrice = nil, nil
	b.inStock = nil
	b.page = 1
	b.mu.Unlock()
	b.dispatchNow()
}

// FlushSearch dispatches a pending debounced search immediately.
func (b *Browse) FlushSearch() {
	b.debouncer.Flush()
}

// Page reports the current page number.
func (b *Browse) Page() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

// Filter materializes the current state as a backend query.
func (b *Browse) Filter() types.ProductFilter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filterLocked()
}

func (b *Browse) filterLocked() types.ProductFilter {
	f := types.ProductFilter{
		Search:   b.search,
		Sort:     b.sort,
		MinPrice: b.minPrice,
		MaxPrice: b.maxPrice,
		InStock:  b.inStock,
		Page:     b.page,
		Limit:    DefaultPageLimit,
	}
	if b.category == CategoryTrash {
		f.IsDeleted = true
	} else {
		f.Category = types.Category(b.category)
	}
	return f
}

// dispatchNow cancels any pending debounced fetch so a stale search
// snapshot cannot overwrite this one, then fetches immediately.
func (b *Browse) dispatchNow() {
	b.debouncer.Cancel()
	b.dispatch()
}

func (b *Browse) dispatch() {
	b.mu.Lock()
	f := b.filterLocked()
	b.mu.Unlock()
	b.fetch(f)
}
