package cartengine

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceMode selects whether monetary amounts are expressed gross or net.
type PriceMode int

const (
	// PriceModeDefault resolves to the engine's configured display mode.
	PriceModeDefault PriceMode = iota
	// PriceModeGross includes VAT in amounts.
	PriceModeGross
	// PriceModeNet excludes VAT from amounts.
	PriceModeNet
)

// Catalog resolves product data for the engine. Implementations are
// expected to be fast in-memory lookups; the cart service prefetches a
// snapshot before running aggregate computations so the engine never
// blocks mid-calculation.
type Catalog interface {
	// Exists reports whether the product reference still resolves.
	Exists(ref string) bool
	// UnitPrice returns the price of a single unit in the given mode.
	UnitPrice(ref string, mode PriceMode) (decimal.Decimal, bool)
	// TaxRate returns the product's tax rate as a percentage. When
	// original is true the rate before any display-time override is
	// returned.
	TaxRate(ref string, original bool) (decimal.Decimal, bool)
	// Weight returns the per-unit weight in grams.
	Weight(ref string) (int64, bool)
	// StockQuantity returns the quantity currently in stock.
	StockQuantity(ref string) (decimal.Decimal, bool)
	// IsOverbookable reports whether the product may exceed stock.
	IsOverbookable(ref string) bool
	// IsFreeOfCharge reports whether a zero price is expected.
	IsFreeOfCharge(ref string) bool
	// ReleaseDate returns a future availability date if one is set.
	ReleaseDate(ref string) (time.Time, bool)
	// PurchaseLead returns the restocking window in days for products
	// that are out of stock.
	PurchaseLead(ref string) (min, max int, ok bool)
}

// ShippingQuote is a fee quote for a chosen shipping method and weight.
type ShippingQuote struct {
	Amount       decimal.Decimal
	TaxRate      decimal.Decimal
	HasTaxRate   bool
	DeliveryMin  int
	DeliveryMax  int
	DeliveryText string
}

// PaymentQuote is the handling fee quote for a payment method.
type PaymentQuote struct {
	Amount     decimal.Decimal
	TaxRate    decimal.Decimal
	HasTaxRate bool
}

// ShippingMethodInfo describes a shipping method offered for a country.
type ShippingMethodInfo struct {
	Ref    string
	Pickup bool
}

// FeeProvider quotes shipping and payment fees. Quote amounts are gross.
type FeeProvider interface {
	ShippingFee(method string, weightGrams int64) (ShippingQuote, bool)
	PaymentFee(method string) (PaymentQuote, bool)
	MethodsForCountry(country string) []ShippingMethodInfo
}

// PseudoLineItem is a virtual position contributed by a registered module,
// e.g. a voucher or gift wrapping.
type PseudoLineItem struct {
	Label   string
	Module  string
	Gross   decimal.Decimal
	Net     decimal.Decimal
	TaxRate decimal.Decimal
}

// Amount returns the item's value in the requested mode.
func (p PseudoLineItem) Amount(mode PriceMode) decimal.Decimal {
	if mode == PriceModeNet {
		return p.Net
	}
	return p.Gross
}

// ChargeImpact classifies what a charge or discount applies to.
type ChargeImpact int

const (
	// ImpactProductValue applies the charge to the taxable product value.
	ImpactProductValue ChargeImpact = iota
	// ImpactTotal applies the charge to the cart grand total.
	ImpactTotal
)

// ChargeOrDiscount is a signed adjustment contributed by a payment method
// or promotion. A negative amount is a discount. When HasTaxRate is false
// the charge is classified under the cart's most valuable tax rate.
type ChargeOrDiscount struct {
	Label      string
	Amount     decimal.Decimal
	Impact     ChargeImpact
	TaxRate    decimal.Decimal
	HasTaxRate bool
}

// Module is a registered cart extension. Modules additionally implement
// any of the contributor interfaces below; absent capabilities are
// skipped.
type Module interface {
	ModuleName() string
}

// TaxableContributor adds taxable pseudo line items to the cart.
type TaxableContributor interface {
	TaxableLineItems(c *Engine, exclude Exclude) []PseudoLineItem
}

// NonTaxableContributor adds non-taxable pseudo line items (vouchers and
// similar value adjustments carrying no VAT of their own).
type NonTaxableContributor interface {
	NonTaxableLineItems(c *Engine, exclude Exclude) []PseudoLineItem
}

// ChargeContributor adds charges or discounts derived from cart state.
// The engine requests charge amounts in gross and converts them to the
// display mode itself.
type ChargeContributor interface {
	ChargesForProductValue(c *Engine, mode PriceMode) (ChargeOrDiscount, bool)
	ChargesForTotal(c *Engine, mode PriceMode) (ChargeOrDiscount, bool)
}

// Exclude narrows an aggregate computation.
type Exclude struct {
	// Modules lists module names whose contributions are skipped.
	Modules []string
	// Items lists product references whose line items are skipped.
	Items []string
	// Charges skips charge/discount contributions entirely.
	Charges bool
}

func (e Exclude) module(name string) bool {
	for _, m := range e.Modules {
		if m == name {
			return true
		}
	}
	return false
}

func (e Exclude) item(ref string) bool {
	for _, it := range e.Items {
		if it == ref {
			return true
		}
	}
	return false
}
