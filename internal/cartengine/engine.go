package cartengine

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidQuantity is returned when a non-positive quantity is supplied
	// where a positive one is required.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInsufficientStock is returned when an operation would exceed the
	// available stock of a non-overbookable product.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnresolvedProduct is returned when a product reference cannot be
	// resolved against the catalog.
	ErrUnresolvedProduct = errors.New("product not found in catalog")
)

// Config carries the engine's construction-time settings. Modules and
// configuration live here instead of package-level registries so carts in
// the same process never interfere.
type Config struct {
	// Mode is the display price mode used when callers pass
	// PriceModeDefault. Zero value resolves to gross.
	Mode PriceMode
	// DefaultCountry is the shipping country assumed until one is chosen.
	DefaultCountry string
}

// Engine owns a cart's line items and chosen shipping/payment methods and
// computes totals, tax buckets and shipping recommendations. An engine is
// confined to a single request; it performs no locking.
type Engine struct {
	cfg     Config
	catalog Catalog
	fees    FeeProvider
	modules []Module

	items           []*LineItem
	shippingMethod  string
	paymentMethod   string
	shippingCountry string

	memo     map[memoKey]any
	cleaned  bool
	cleaning bool
}

type memoKey struct {
	op      string
	mode    PriceMode
	modules string
	items   string
	charges bool
}

// New constructs an engine over the given collaborators. The module list
// is ordered; contributions are collected in this order.
func New(cfg Config, catalog Catalog, fees FeeProvider, modules []Module) *Engine {
	return &Engine{
		cfg:     cfg,
		catalog: catalog,
		fees:    fees,
		modules: modules,
		memo:    make(map[memoKey]any),
	}
}

// Catalog exposes the engine's catalog to contributors and the delivery
// estimator.
func (e *Engine) Catalog() Catalog { return e.catalog }

// Items returns the current line items. Callers must not mutate them.
func (e *Engine) Items() []*LineItem { return e.items }

// ShippingMethod returns the chosen shipping method reference, if any.
func (e *Engine) ShippingMethod() string { return e.shippingMethod }

// PaymentMethod returns the chosen payment method reference, if any.
func (e *Engine) PaymentMethod() string { return e.paymentMethod }

// ShippingCountry returns the chosen country, falling back to the default.
func (e *Engine) ShippingCountry() string {
	if e.shippingCountry != "" {
		return e.shippingCountry
	}
	return e.cfg.DefaultCountry
}

// FindLineItem returns the line item for the product reference, if present.
func (e *Engine) FindLineItem(ref string) (*LineItem, bool) {
	for _, li := range e.items {
		if li.ProductRef == ref {
			return li, true
		}
	}
	return nil, false
}

func (e *Engine) resolveMode(mode PriceMode) PriceMode {
	if mode != PriceModeDefault {
		return mode
	}
	if e.cfg.Mode == PriceModeNet {
		return PriceModeNet
	}
	return PriceModeGross
}

// invalidate drops every memoized aggregate and per-item price cache.
// Coarse whole-cart invalidation keeps the dependency tracking trivial at
// the cost of some recomputation.
func (e *Engine) invalidate() {
	e.memo = make(map[memoKey]any)
	for _, li := range e.items {
		li.resetPriceCache()
	}
}

// Invalidate drops every memoized aggregate. Callers use this after
// changing module state that the engine cannot observe, such as applying
// a voucher.
func (e *Engine) Invalidate() {
	e.invalidate()
}

func (e *Engine) key(op string, mode PriceMode, ex Exclude) memoKey {
	return memoKey{
		op:      op,
		mode:    mode,
		modules: sortedJoin(ex.Modules),
		items:   sortedJoin(ex.Items),
		charges: ex.Charges,
	}
}

func sortedJoin(values []string) string {
	if len(values) == 0 {
		return ""
	}
	cp := make([]string, len(values))
	copy(cp, values)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// AddLineItem adds quantity of a product, merging into an existing line
// item for the same product. The quantity must be positive even for
// free-of-charge products.
func (e *Engine) AddLineItem(ref string, qty decimal.Decimal) (*LineItem, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	if !e.catalog.Exists(ref) {
		return nil, ErrUnresolvedProduct
	}
	if li, ok := e.FindLineItem(ref); ok {
		if !e.IsQuantityIncrementableBy(ref, qty) {
			return nil, ErrInsufficientStock
		}
		li.Quantity = li.Quantity.Add(qty)
		e.invalidate()
		return li, nil
	}
	if !e.stockAllows(ref, qty) {
		return nil, ErrInsufficientStock
	}
	li := &LineItem{ProductRef: ref, Quantity: qty}
	e.items = append(e.items, li)
	e.invalidate()
	return li, nil
}

// RestoreLineItem re-attaches a persisted line item without stock or
// resolution checks; CleanUp reconciles stale state on the next load.
func (e *Engine) RestoreLineItem(ref string, qty decimal.Decimal, notice string) {
	e.items = append(e.items, &LineItem{ProductRef: ref, Quantity: qty, Notice: notice})
	e.cleaned = false
	e.invalidate()
}

// RemoveLineItem deletes the line item for the product; no-op when absent.
func (e *Engine) RemoveLineItem(ref string) {
	for i, li := range e.items {
		if li.ProductRef == ref {
			e.items = append(e.items[:i], e.items[i+1:]...)
			e.invalidate()
			return
		}
	}
}

// IncrementQuantity raises the line item's quantity by delta, refusing
// rather than overbooking. A missing line item behaves like AddLineItem.
func (e *Engine) IncrementQuantity(ref string, delta decimal.Decimal) error {
	if delta.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidQuantity
	}
	li, ok := e.FindLineItem(ref)
	if !ok {
		_, err := e.AddLineItem(ref, delta)
		return err
	}
	if !e.IsQuantityIncrementableBy(ref, delta) {
		return ErrInsufficientStock
	}
	li.Quantity = li.Quantity.Add(delta)
	e.invalidate()
	return nil
}

// DecrementQuantity lowers the quantity by delta; reaching zero removes
// the line item.
func (e *Engine) DecrementQuantity(ref string, delta decimal.Decimal) error {
	if delta.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidQuantity
	}
	li, ok := e.FindLineItem(ref)
	if !ok {
		return nil
	}
	next := li.Quantity.Sub(delta)
	if next.LessThanOrEqual(decimal.Zero) {
		e.RemoveLineItem(ref)
		return nil
	}
	li.Quantity = next
	e.invalidate()
	return nil
}

// SetQuantity sets an absolute quantity; zero or less removes the item.
func (e *Engine) SetQuantity(ref string, qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		e.RemoveLineItem(ref)
		return nil
	}
	li, ok := e.FindLineItem(ref)
	if !ok {
		_, err := e.AddLineItem(ref, qty)
		return err
	}
	if !e.stockAllows(ref, qty) {
		return ErrInsufficientStock
	}
	li.Quantity = qty
	e.invalidate()
	return nil
}

// IsQuantityIncrementableBy reports whether the line item's quantity can
// grow by delta without exceeding stock.
func (e *Engine) IsQuantityIncrementableBy(ref string, delta decimal.Decimal) bool {
	current := decimal.Zero
	if li, ok := e.FindLineItem(ref); ok {
		current = li.Quantity
	}
	return e.stockAllows(ref, current.Add(delta))
}

func (e *Engine) stockAllows(ref string, qty decimal.Decimal) bool {
	if e.catalog.IsOverbookable(ref) {
		return true
	}
	stock, ok := e.catalog.StockQuantity(ref)
	if !ok {
		return false
	}
	return qty.LessThanOrEqual(stock)
}

// SetShippingMethod chooses a shipping method and invalidates aggregates.
func (e *Engine) SetShippingMethod(ref string) {
	e.shippingMethod = ref
	e.invalidate()
}

// SetPaymentMethod chooses a payment method and invalidates aggregates.
func (e *Engine) SetPaymentMethod(ref string) {
	e.paymentMethod = ref
	e.invalidate()
}

// SetShippingCountry chooses the shipping country and invalidates
// aggregates.
func (e *Engine) SetShippingCountry(country string) {
	e.shippingCountry = country
	e.invalidate()
}

// Clear empties the cart, typically after an order was finalised from it.
func (e *Engine) Clear() {
	e.items = nil
	e.shippingMethod = ""
	e.paymentMethod = ""
	e.cleaned = false
	e.invalidate()
}

// CleanUp purges line items with zero quantity or unresolvable product
// references and silently lowers stale quantities to the current stock.
// It runs once per cart load and guards against re-entrancy. It reports
// whether anything changed.
func (e *Engine) CleanUp() bool {
	if e.cleaning || e.cleaned {
		return false
	}
	e.cleaning = true
	defer func() {
		e.cleaning = false
		e.cleaned = true
	}()

	changed := false
	kept := e.items[:0]
	for _, li := range e.items {
		if li.Quantity.LessThanOrEqual(decimal.Zero) || !e.catalog.Exists(li.ProductRef) {
			changed = true
			continue
		}
		if !e.catalog.IsOverbookable(li.ProductRef) {
			stock, ok := e.catalog.StockQuantity(li.ProductRef)
			if ok && li.Quantity.GreaterThan(stock) {
				if stock.LessThanOrEqual(decimal.Zero) {
					changed = true
					continue
				}
				li.Quantity = stock
				li.Notice = "quantity lowered to available stock"
				changed = true
			}
		}
		kept = append(kept, li)
	}
	e.items = kept
	if changed {
		e.invalidate()
	}
	return changed
}

// TaxableAmount sums line items, taxable module contributions and,
// unless excluded, product-value charges.
func (e *Engine) TaxableAmount(mode PriceMode, ex Exclude) decimal.Decimal {
	mode = e.resolveMode(mode)
	key := e.key("taxable", mode, ex)
	if v, ok := e.memo[key]; ok {
		return v.(decimal.Decimal)
	}
	total := decimal.Zero
	for _, li := range e.items {
		if ex.item(li.ProductRef) {
			continue
		}
		// Unresolvable products contribute zero instead of aborting the
		// whole computation.
		if price, ok := li.Price(e.catalog, false, mode); ok {
			total = total.Add(price)
		}
	}
	for _, p := range e.taxableContributions(ex) {
		total = total.Add(p.Amount(mode))
	}
	if !ex.Charges {
		for _, charge := range e.chargesForProductValue(ex) {
			total = total.Add(e.chargeAmount(charge, mode, ex))
		}
	}
	v := RoundMoney(total)
	e.memo[key] = v
	return v
}

// TaxableAmountWithFees adds the chosen shipping and payment handling
// fees; each is optional when no method is chosen.
func (e *Engine) TaxableAmountWithFees(mode PriceMode, ex Exclude) decimal.Decimal {
	mode = e.resolveMode(mode)
	key := e.key("taxable_fees", mode, ex)
	if v, ok := e.memo[key]; ok {
		return v.(decimal.Decimal)
	}
	total := e.TaxableAmount(mode, ex)
	if quote, ok := e.shippingQuote(); ok {
		total = total.Add(e.feeAmount(quote.Amount, quote.TaxRate, quote.HasTaxRate, mode, ex))
	}
	if quote, ok := e.paymentQuote(); ok {
		total = total.Add(e.feeAmount(quote.Amount, quote.TaxRate, quote.HasTaxRate, mode, ex))
	}
	v := RoundMoney(total)
	e.memo[key] = v
	return v
}

// AmountTotal is the grand total: taxable amount with fees plus
// non-taxable module contributions plus total-level charges, clamped so a
// discount can never produce a negative total.
func (e *Engine) AmountTotal(mode PriceMode, ex Exclude) decimal.Decimal {
	mode = e.resolveMode(mode)
	key := e.key("total", mode, ex)
	if v, ok := e.memo[key]; ok {
		return v.(decimal.Decimal)
	}
	total := e.TaxableAmountWithFees(mode, ex)
	for _, p := range e.nonTaxableContributions(ex) {
		total = total.Add(p.Amount(mode))
	}
	if !ex.Charges {
		for _, charge := range e.chargesForTotal(ex) {
			total = total.Add(e.chargeAmount(charge, mode, ex))
		}
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	v := RoundMoney(total)
	e.memo[key] = v
	return v
}

// TaxRatesWithoutFeesAndCharges buckets every line item's tax amount and
// every taxable module contribution by rate.
func (e *Engine) TaxRatesWithoutFeesAndCharges(ex Exclude) *BucketList {
	key := e.key("rates_base", 0, ex)
	if v, ok := e.memo[key]; ok {
		return v.(*BucketList)
	}
	list := &BucketList{}
	for _, li := range e.items {
		if ex.item(li.ProductRef) {
			continue
		}
		gross, ok := li.Price(e.catalog, false, PriceModeGross)
		if !ok {
			continue
		}
		rate, ok := e.catalog.TaxRate(li.ProductRef, false)
		if !ok {
			continue
		}
		original, _ := e.catalog.TaxRate(li.ProductRef, true)
		list.Add(rate, original, taxFromGross(gross, rate))
	}
	for _, p := range e.taxableContributions(ex) {
		list.Add(p.TaxRate, p.TaxRate, taxFromGross(p.Gross, p.TaxRate))
	}
	e.memo[key] = list
	return list
}

// TaxRatesWithoutFees adds product-level charge/discount taxes on top of
// the base buckets.
func (e *Engine) TaxRatesWithoutFees(ex Exclude) *BucketList {
	key := e.key("rates_nofees", 0, ex)
	if v, ok := e.memo[key]; ok {
		return v.(*BucketList)
	}
	list := e.TaxRatesWithoutFeesAndCharges(ex).clone()
	if !ex.Charges {
		for _, charge := range e.chargesForProductValue(ex) {
			rate := e.classifyRate(charge.TaxRate, charge.HasTaxRate, list)
			list.Add(rate, rate, taxFromGross(charge.Amount, rate))
		}
	}
	e.memo[key] = list
	return list
}

// TaxRatesWithFees adds fee taxes and total-level charge taxes. Fee taxes
// lacking an explicit rate fold into the most valuable bucket.
func (e *Engine) TaxRatesWithFees(ex Exclude) *BucketList {
	key := e.key("rates_fees", 0, ex)
	if v, ok := e.memo[key]; ok {
		return v.(*BucketList)
	}
	list := e.TaxRatesWithoutFees(ex).clone()
	e.addFeeTaxes(list, list, ex)
	if !ex.Charges {
		for _, charge := range e.chargesForTotal(ex) {
			rate := e.classifyRate(charge.TaxRate, charge.HasTaxRate, list)
			list.Add(rate, rate, taxFromGross(charge.Amount, rate))
		}
	}
	e.memo[key] = list
	return list
}

// TaxRatesForFees buckets only the chosen fees' tax contributions.
func (e *Engine) TaxRatesForFees(ex Exclude) *BucketList {
	key := e.key("rates_feesonly", 0, ex)
	if v, ok := e.memo[key]; ok {
		return v.(*BucketList)
	}
	list := &BucketList{}
	e.addFeeTaxes(list, e.TaxRatesWithoutFees(ex), ex)
	e.memo[key] = list
	return list
}

// addFeeTaxes accumulates shipping and payment fee taxes into dst.
// classify supplies the bucket context for fees without an explicit rate.
func (e *Engine) addFeeTaxes(dst, classify *BucketList, ex Exclude) {
	if quote, ok := e.shippingQuote(); ok {
		rate := e.classifyRate(quote.TaxRate, quote.HasTaxRate, classify)
		dst.Add(rate, rate, taxFromGross(quote.Amount, rate))
	}
	if quote, ok := e.paymentQuote(); ok {
		rate := e.classifyRate(quote.TaxRate, quote.HasTaxRate, classify)
		dst.Add(rate, rate, taxFromGross(quote.Amount, rate))
	}
}

// classifyRate resolves the tax rate for an amount that may not declare
// one, falling back to the most valuable rate of the given buckets.
func (e *Engine) classifyRate(rate decimal.Decimal, has bool, list *BucketList) decimal.Decimal {
	if has {
		return rate
	}
	if mv, ok := mostValuable(list); ok {
		return mv
	}
	return decimal.Zero
}

// MostValuableTaxRate returns the rate carrying the largest accumulated
// tax amount. Buckets are scanned in insertion order and ties keep the
// first bucket seen. When list is nil the cart's full buckets including
// fees are used.
func (e *Engine) MostValuableTaxRate(list *BucketList) (decimal.Decimal, bool) {
	if list == nil {
		list = e.TaxRatesWithFees(Exclude{})
	}
	return mostValuable(list)
}

func mostValuable(list *BucketList) (decimal.Decimal, bool) {
	var best *TaxBucket
	for _, b := range list.Buckets() {
		if best == nil || b.amount.GreaterThan(best.amount) {
			best = b
		}
	}
	if best == nil {
		return decimal.Zero, false
	}
	return best.Rate, true
}

// WeightTotal sums product weights in grams. The second return value is
// false for an empty cart so callers can distinguish "no weight" from a
// weightless cart when quoting shipping.
func (e *Engine) WeightTotal() (int64, bool) {
	if len(e.items) == 0 {
		return 0, false
	}
	total := decimal.Zero
	for _, li := range e.items {
		w, ok := e.catalog.Weight(li.ProductRef)
		if !ok {
			continue
		}
		total = total.Add(decimal.NewFromInt(w).Mul(li.Quantity))
	}
	return total.Round(0).IntPart(), true
}

// IsAvailableInStock reports whether every line item is coverable by
// current stock. An empty cart fails closed.
func (e *Engine) IsAvailableInStock() bool {
	if len(e.items) == 0 {
		return false
	}
	for _, li := range e.items {
		stock, ok := e.catalog.StockQuantity(li.ProductRef)
		if !ok {
			return false
		}
		if li.Quantity.GreaterThan(stock) {
			return false
		}
	}
	return true
}

// CheapestShippingMethod evaluates every method allowed for the country
// and cart weight and returns the cheapest. Pickup methods are only
// considered when no other method is allowed. The second return value is
// false when no method can be quoted yet.
func (e *Engine) CheapestShippingMethod(country string) (string, bool) {
	if country == "" {
		country = e.ShippingCountry()
	}
	weight, ok := e.WeightTotal()
	if !ok {
		return "", false
	}
	type candidate struct {
		info  ShippingMethodInfo
		quote ShippingQuote
	}
	var allowed []candidate
	nonPickup := false
	for _, info := range e.fees.MethodsForCountry(country) {
		quote, ok := e.fees.ShippingFee(info.Ref, weight)
		if !ok {
			continue
		}
		allowed = append(allowed, candidate{info: info, quote: quote})
		if !info.Pickup {
			nonPickup = true
		}
	}
	var best *candidate
	for i := range allowed {
		c := &allowed[i]
		if nonPickup && c.info.Pickup {
			continue
		}
		if best == nil || c.quote.Amount.LessThan(best.quote.Amount) {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	return best.info.Ref, true
}

func (e *Engine) shippingQuote() (ShippingQuote, bool) {
	if e.shippingMethod == "" || e.fees == nil {
		return ShippingQuote{}, false
	}
	weight, _ := e.WeightTotal()
	return e.fees.ShippingFee(e.shippingMethod, weight)
}

func (e *Engine) paymentQuote() (PaymentQuote, bool) {
	if e.paymentMethod == "" || e.fees == nil {
		return PaymentQuote{}, false
	}
	return e.fees.PaymentFee(e.paymentMethod)
}

// feeAmount converts a gross fee amount into the requested mode using the
// fee's own rate or the most valuable cart rate when it has none.
func (e *Engine) feeAmount(gross, rate decimal.Decimal, hasRate bool, mode PriceMode, ex Exclude) decimal.Decimal {
	if mode != PriceModeNet {
		return gross
	}
	r := e.classifyRate(rate, hasRate, e.TaxRatesWithoutFeesAndCharges(ex))
	return netFromGross(gross, r)
}

// chargeAmount converts a charge's gross amount into the requested mode.
func (e *Engine) chargeAmount(charge ChargeOrDiscount, mode PriceMode, ex Exclude) decimal.Decimal {
	if mode != PriceModeNet {
		return charge.Amount
	}
	r := e.classifyRate(charge.TaxRate, charge.HasTaxRate, e.TaxRatesWithoutFeesAndCharges(ex))
	return netFromGross(charge.Amount, r)
}

func (e *Engine) taxableContributions(ex Exclude) []PseudoLineItem {
	var out []PseudoLineItem
	for _, m := range e.modules {
		if ex.module(m.ModuleName()) {
			continue
		}
		if c, ok := m.(TaxableContributor); ok {
			out = append(out, c.TaxableLineItems(e, ex)...)
		}
	}
	return out
}

func (e *Engine) nonTaxableContributions(ex Exclude) []PseudoLineItem {
	var out []PseudoLineItem
	for _, m := range e.modules {
		if ex.module(m.ModuleName()) {
			continue
		}
		if c, ok := m.(NonTaxableContributor); ok {
			out = append(out, c.NonTaxableLineItems(e, ex)...)
		}
	}
	return out
}

// Charges are always collected gross; chargeAmount converts to the
// requested display mode and the tax derivation stays gross-based.
func (e *Engine) chargesForProductValue(ex Exclude) []ChargeOrDiscount {
	var out []ChargeOrDiscount
	for _, m := range e.modules {
		if ex.module(m.ModuleName()) {
			continue
		}
		if c, ok := m.(ChargeContributor); ok {
			if charge, ok := c.ChargesForProductValue(e, PriceModeGross); ok {
				out = append(out, charge)
			}
		}
	}
	return out
}

func (e *Engine) chargesForTotal(ex Exclude) []ChargeOrDiscount {
	var out []ChargeOrDiscount
	for _, m := range e.modules {
		if ex.module(m.ModuleName()) {
			continue
		}
		if c, ok := m.(ChargeContributor); ok {
			if charge, ok := c.ChargesForTotal(e, PriceModeGross); ok {
				out = append(out, charge)
			}
		}
	}
	return out
}
