package voucher

import (
	"github.com/noah-isme/backend-storefront/internal/cartengine"
)

// ModuleName identifies the voucher hook on a cart.
const ModuleName = "voucher"

// Module contributes an applied voucher as a negative non-taxable position.
// The discount carries no VAT of its own; it reduces the payable total only.
type Module struct {
	rule    *Rule
	applied bool
}

// NewModule returns a voucher hook with no voucher applied.
func NewModule() *Module { return &Module{} }

// ModuleName implements cartengine.Module.
func (m *Module) ModuleName() string { return ModuleName }

// Apply attaches a validated voucher rule to the cart.
func (m *Module) Apply(rule Rule) {
	m.rule = &rule
	m.applied = true
}

// Remove detaches the applied voucher, if any.
func (m *Module) Remove() {
	m.rule = nil
	m.applied = false
}

// Applied returns the currently attached rule.
func (m *Module) Applied() (Rule, bool) {
	if !m.applied || m.rule == nil {
		return Rule{}, false
	}
	return *m.rule, true
}

// NonTaxableLineItems implements cartengine.NonTaxableContributor. The
// voucher re-checks the minimum spend against the current product value so
// removing items degrades gracefully instead of leaving a stale discount.
func (m *Module) NonTaxableLineItems(c *cartengine.Engine, exclude cartengine.Exclude) []cartengine.PseudoLineItem {
	if !m.applied || m.rule == nil {
		return nil
	}
	eligible := c.TaxableAmount(cartengine.PriceModeGross, exclude)
	if eligible.LessThan(m.rule.MinSpend) {
		return nil
	}
	discount := Compute(eligible, *m.rule)
	if discount.IsZero() {
		return nil
	}
	return []cartengine.PseudoLineItem{{
		Label:  "Voucher " + m.rule.Code,
		Module: ModuleName,
		Gross:  discount.Neg(),
		Net:    discount.Neg(),
	}}
}
