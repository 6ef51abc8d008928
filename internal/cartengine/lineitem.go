package cartengine

import "github.com/shopspring/decimal"

// LineItem is one product-and-quantity entry in a cart. Line items are
// exclusively owned by the engine that created them.
type LineItem struct {
	ProductRef string
	Quantity   decimal.Decimal
	// Notice carries an informational message attached during cleanup,
	// e.g. when a stale quantity was lowered to the current stock.
	Notice string

	prices map[priceKey]decimal.Decimal
}

type priceKey struct {
	singleUnit bool
	mode       PriceMode
}

// Price returns the item's price in the given mode, optionally for a
// single unit. Lookups are cached per (singleUnit, mode) until the owning
// engine invalidates.
func (li *LineItem) Price(catalog Catalog, singleUnit bool, mode PriceMode) (decimal.Decimal, bool) {
	key := priceKey{singleUnit: singleUnit, mode: mode}
	if cached, ok := li.prices[key]; ok {
		return cached, true
	}
	unit, ok := catalog.UnitPrice(li.ProductRef, mode)
	if !ok {
		return decimal.Zero, false
	}
	price := unit
	if !singleUnit {
		price = unit.Mul(li.Quantity)
	}
	if li.prices == nil {
		li.prices = make(map[priceKey]decimal.Decimal)
	}
	li.prices[key] = price
	return price, true
}

func (li *LineItem) resetPriceCache() {
	li.prices = nil
}
