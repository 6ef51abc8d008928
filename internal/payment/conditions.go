package payment

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
)

// ModuleName identifies the payment conditions hook on a cart.
const ModuleName = "payment-conditions"

var tenThousand = decimal.NewFromInt(10000)

// Conditions applies per-method surcharges and threshold discounts to a cart.
// A surcharge scales with the product value; a discount kicks in once the
// product value reaches the method's configured threshold.
type Conditions struct {
	Provider *Provider
}

// ModuleName implements cartengine.Module.
func (c *Conditions) ModuleName() string { return ModuleName }

// ChargesForProductValue returns the method surcharge, when one is configured.
func (c *Conditions) ChargesForProductValue(e *cartengine.Engine, mode cartengine.PriceMode) (cartengine.ChargeOrDiscount, bool) {
	m, ok := c.Provider.Method(e.PaymentMethod())
	if !ok || m.SurchargeBps == 0 {
		return cartengine.ChargeOrDiscount{}, false
	}
	// The base is read without charges so the surcharge does not feed
	// back into itself.
	base := e.TaxableAmount(mode, cartengine.Exclude{Charges: true})
	amount := cartengine.RoundMoney(base.Mul(decimal.NewFromInt(int64(m.SurchargeBps))).Div(tenThousand))
	if amount.IsZero() {
		return cartengine.ChargeOrDiscount{}, false
	}
	return cartengine.ChargeOrDiscount{
		Label:  m.Title + " surcharge",
		Amount: amount,
		Impact: cartengine.ImpactProductValue,
	}, true
}

// ChargesForTotal returns the threshold discount, when the cart qualifies.
func (c *Conditions) ChargesForTotal(e *cartengine.Engine, mode cartengine.PriceMode) (cartengine.ChargeOrDiscount, bool) {
	m, ok := c.Provider.Method(e.PaymentMethod())
	if !ok || m.DiscountThreshold == nil || m.DiscountAmount.IsZero() {
		return cartengine.ChargeOrDiscount{}, false
	}
	base := e.TaxableAmount(mode, cartengine.Exclude{Charges: true})
	if base.LessThan(*m.DiscountThreshold) {
		return cartengine.ChargeOrDiscount{}, false
	}
	return cartengine.ChargeOrDiscount{
		Label:  m.Title + " discount",
		Amount: m.DiscountAmount.Neg(),
		Impact: cartengine.ImpactTotal,
	}, true
}
