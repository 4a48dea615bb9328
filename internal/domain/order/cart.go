package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/weftline/orderdesk/internal/domain/catalog"
)

// CartItem is one entry of a proposed purchase before validation.
type CartItem struct {
	ProductID string
	Quantity  int
	Size      string
}

// Aggregator validates a proposed cart against current catalog state and
// snapshots prices into line items. It performs no writes; stock is only
// checked here and enforced again inside the create transaction.
type Aggregator struct {
	catalog catalog.Repository
}

// NewAggregator creates an Aggregator over the given catalog.
func NewAggregator(c catalog.Repository) *Aggregator {
	return &Aggregator{catalog: c}
}

// BuildLineItems resolves every cart entry against the catalog in a single
// batch fetch and returns priced line items. The unit price on each line is
// a copy taken now; later catalog price changes do not reach it.
func (a *Aggregator) BuildLineItems(ctx context.Context, items []CartItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := a.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]*catalog.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	lines := make([]LineItem, 0, len(items))
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.HasSize(item.Size) {
			return nil, &UnknownSizeError{ProductID: item.ProductID, Size: item.Size}
		}
		if item.Quantity > p.Stock {
			return nil, &InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}

		lines = append(lines, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Size:      item.Size,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
		})
	}

	return lines, nil
}
