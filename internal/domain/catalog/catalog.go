// Package catalog defines the read-only product catalog collaborator used
// during checkout. Catalog management itself (CRUD, images) lives in a
// separate system; order processing only needs current price and stock.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a snapshot of a catalog item at lookup time. Price is in minor
// currency units (cents).
type Product struct {
	ID       string
	Name     string
	Price    int64
	Category string
	Sizes    []string
	Stock    int
}

// HasSize reports whether the product is offered in the given size. An empty
// size is accepted for products without size variants.
func (p *Product) HasSize(size string) bool {
	if size == "" {
		return len(p.Sizes) == 0
	}
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// Repository defines read operations against the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
