// Package delivery derives delivery-time estimates from a cart's chosen
// shipping method and the stock situation of its line items.
package delivery

import (
	"fmt"
	"time"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
)

// Window is a delivery-day range. Min and Max are business days from now;
// a Max of zero means the upper bound is unknown.
type Window struct {
	Min  int    `json:"min"`
	Max  int    `json:"max"`
	Text string `json:"text"`
}

// Estimator computes delivery windows for one cart. Results are memoized
// per (method, forceDays) for the estimator's lifetime, which matches the
// lifetime of a cart request.
type Estimator struct {
	Engine *cartengine.Engine
	Fees   cartengine.FeeProvider
	// CountSaturdays includes Saturdays when counting business days.
	CountSaturdays bool
	Now            func() time.Time

	memo map[memoKey]Window
}

type memoKey struct {
	method    string
	forceDays bool
}

func (e *Estimator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// TimeData returns the delivery window for the chosen (or overridden)
// shipping method, widened for out-of-stock products and future release
// dates. Widening never produces an inverted range: when the minimum is
// pushed above the original maximum, that maximum is discarded.
func (e *Estimator) TimeData(methodRef string, forceDays bool) (Window, bool) {
	if methodRef == "" {
		methodRef = e.Engine.ShippingMethod()
	}
	if methodRef == "" {
		return Window{}, false
	}
	key := memoKey{method: methodRef, forceDays: forceDays}
	if w, ok := e.memo[key]; ok {
		return w, true
	}

	weight, _ := e.Engine.WeightTotal()
	quote, ok := e.Fees.ShippingFee(methodRef, weight)
	if !ok {
		return Window{}, false
	}
	w := Window{Min: quote.DeliveryMin, Max: quote.DeliveryMax, Text: quote.DeliveryText}
	widened := false

	catalog := e.Engine.Catalog()
	for _, li := range e.Engine.Items() {
		stock, ok := catalog.StockQuantity(li.ProductRef)
		if ok && stock.Sign() <= 0 {
			if lmin, lmax, ok := catalog.PurchaseLead(li.ProductRef); ok {
				widened = widen(&w, lmin, lmax) || widened
			}
		}
		if release, ok := catalog.ReleaseDate(li.ProductRef); ok {
			days := businessDaysUntil(e.now(), release, e.CountSaturdays)
			if days > 0 {
				widened = widen(&w, days, days) || widened
			}
		}
	}
	if w.Max != 0 && w.Max < w.Min {
		w.Max = 0
	}
	if widened || forceDays || w.Text == "" {
		w.Text = formatWindow(w)
	}
	if e.memo == nil {
		e.memo = make(map[memoKey]Window)
	}
	e.memo[key] = w
	return w, true
}

// DateMin converts the window minimum into an absolute calendar date.
func (e *Estimator) DateMin(methodRef string) (time.Time, bool) {
	w, ok := e.TimeData(methodRef, false)
	if !ok {
		return time.Time{}, false
	}
	return addBusinessDays(e.now(), w.Min, e.CountSaturdays), true
}

// DateMax converts the window maximum into an absolute calendar date.
// The second return value is false when the upper bound is unknown.
func (e *Estimator) DateMax(methodRef string) (time.Time, bool) {
	w, ok := e.TimeData(methodRef, false)
	if !ok || w.Max == 0 {
		return time.Time{}, false
	}
	return addBusinessDays(e.now(), w.Max, e.CountSaturdays), true
}

// widen grows the window toward later delivery; it never narrows.
func widen(w *Window, min, max int) bool {
	changed := false
	if min > w.Min {
		w.Min = min
		changed = true
	}
	if max > w.Max {
		w.Max = max
		changed = true
	}
	return changed
}

func formatWindow(w Window) string {
	switch {
	case w.Max == 0 || w.Max == w.Min:
		return fmt.Sprintf("%d business days", w.Min)
	default:
		return fmt.Sprintf("%d-%d business days", w.Min, w.Max)
	}
}

func isBusinessDay(t time.Time, countSaturdays bool) bool {
	switch t.Weekday() {
	case time.Sunday:
		return false
	case time.Saturday:
		return countSaturdays
	default:
		return true
	}
}

// startOfDay normalizes to midnight of t's calendar day in its own
// location. Truncating against the UTC epoch would shift the day for
// non-UTC times.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// businessDaysUntil counts business days strictly after from up to and
// including until.
func businessDaysUntil(from, until time.Time, countSaturdays bool) int {
	from = startOfDay(from)
	until = startOfDay(until.In(from.Location()))
	days := 0
	for d := from.AddDate(0, 0, 1); !d.After(until); d = d.AddDate(0, 0, 1) {
		if isBusinessDay(d, countSaturdays) {
			days++
		}
	}
	return days
}

// addBusinessDays returns the date n business days after from.
func addBusinessDays(from time.Time, n int, countSaturdays bool) time.Time {
	d := from
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if isBusinessDay(d, countSaturdays) {
			n--
		}
	}
	return d
}
