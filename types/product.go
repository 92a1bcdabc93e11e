package types

import "time"

// Category is the fixed set of product categories accepted by the catalog.
type Category string

// Supported product categories.
const (
	CategoryElectronics Category = "electronics"
	CategoryFashion     Category = "fashion"
	CategoryBooks       Category = "books"
	CategoryHome        Category = "home"
	CategorySports      Category = "sports"
	CategoryToys        Category = "toys"
	CategoryOther       Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryElectronics,
	CategoryFashion,
	CategoryBooks,
	CategoryHome,
	CategorySports,
	CategoryToys,
	CategoryOther,
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Product represents a catalog entry owned by a single account.
type Product struct {
	// ID is the unique identifier of the product.
	ID int `json:"id" db:"id"`

	// Name is the human-readable product name.
	Name string `json:"name" db:"name"`

	// Description contains the full product description shown on
	// the detail view.
	Description string `json:"description" db:"description"`

	// Price is the product price in the catalog currency. It is
	// always non-negative.
	Price float64 `json:"price" db:"price"`

	// Category is one of the fixed set of catalog categories.
	Category Category `json:"category" db:"category"`

	// InStock indicates whether the product is currently available.
	InStock bool `json:"in_stock" db:"in_stock"`

	// Image is the stored image reference. It is either a bare object
	// key (resolved against the server's static image path) or an
	// absolute URL; clients must accept both forms.
	Image string `json:"image" db:"image"`

	// CreatedBy is the ID of the account that created the product.
	// Only that account may edit, trash, restore, or purge it.
	CreatedBy int `json:"created_by" db:"created_by"`

	// IsDeleted marks the product as trashed (soft-deleted). Trashed
	// products are only returned when the caller asks for them
	// explicitly, and may be restored or permanently removed.
	IsDeleted bool `json:"is_deleted" db:"is_deleted"`

	// CreatedAt is the timestamp at which the product was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProductFilter captures every server-side listing knob: free-text
// search, category, trash visibility, price range, stock flag, sort
// key, and page-based pagination.
type ProductFilter struct {
	// Search is matched case-insensitively against name and description.
	Search string

	// Category restricts results to a single category when set.
	Category Category

	// IsDeleted selects between active (false) and trashed (true) rows.
	IsDeleted bool

	// MinPrice and MaxPrice bound the price range when non-nil.
	MinPrice *float64
	MaxPrice *float64

	// InStock restricts to in-stock (true) or out-of-stock (false)
	// rows when non-nil.
	InStock *bool

	// Sort is one of: latest, oldest, price_asc, price_desc, name.
	Sort string

	// Page is 1-based; Limit is the page size.
	Page  int
	Limit int
}

// Sort keys accepted by ProductFilter.Sort.
const (
	SortLatest    = "latest"
	SortOldest    = "oldest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

// ValidSort reports whether s is a supported sort key.
func ValidSort(s string) bool {
	switch s {
	case SortLatest, SortOldest, SortPriceAsc, SortPriceDesc, SortName:
		return true
	}
	return false
}
