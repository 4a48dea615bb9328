package order

import "github.com/shopspring/decimal"

// PricingConfig holds the flat shipping fee (cents) and the tax rate applied
// to every order.
type PricingConfig struct {
	ShippingFee int64
	// TaxRate is a fraction, e.g. 0.10 for 10%.
	TaxRate decimal.Decimal
}

// Quote is the priced breakdown of a set of line items. All amounts are
// cents and Total always equals Subtotal + ShippingFee + Tax.
type Quote struct {
	Subtotal    int64
	ShippingFee int64
	Tax         int64
	Total       int64
}

// Price computes the quote for the given line items. It is pure: the same
// inputs always produce the same quote, and no I/O happens here.
//
// Tax is computed once on the aggregate subtotal, rounded half-up, rather
// than per line; per-line rounding accumulates drift.
func Price(items []LineItem, cfg PricingConfig) Quote {
	var subtotal int64
	for _, li := range items {
		subtotal += li.LineTotal()
	}

	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative amounts used here.
	tax := decimal.NewFromInt(subtotal).Mul(cfg.TaxRate).Round(0).IntPart()

	return Quote{
		Subtotal:    subtotal,
		ShippingFee: cfg.ShippingFee,
		Tax:         tax,
		Total:       subtotal + cfg.ShippingFee + tax,
	}
}
