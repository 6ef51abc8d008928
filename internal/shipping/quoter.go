package shipping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/repo"
)

type methodSource interface {
	ListAll(ctx context.Context) ([]repo.ShippingMethod, error)
	ListTiers(ctx context.Context) ([]repo.ShippingFeeTier, error)
}

// Quoter answers shipping fee and availability questions from an in-memory
// view of methods and weight tiers. It is built once per request and holds
// no connections.
type Quoter struct {
	methods map[string]repo.ShippingMethod
	tiers   map[string][]repo.ShippingFeeTier
}

// NewQuoter builds a quoter from method and tier rows. Tiers are ordered by
// ascending weight bound per method so the cheapest matching tier wins.
func NewQuoter(methods []repo.ShippingMethod, tiers []repo.ShippingFeeTier) *Quoter {
	q := &Quoter{
		methods: make(map[string]repo.ShippingMethod, len(methods)),
		tiers:   make(map[string][]repo.ShippingFeeTier, len(methods)),
	}
	for _, m := range methods {
		q.methods[m.Ref] = m
	}
	for _, t := range tiers {
		q.tiers[t.MethodRef] = append(q.tiers[t.MethodRef], t)
	}
	for ref := range q.tiers {
		list := q.tiers[ref]
		sort.Slice(list, func(i, j int) bool {
			// An unbounded tier (zero bound) must come after every
			// bounded tier so it only catches the overflow.
			if (list[i].MaxWeightGrams == 0) != (list[j].MaxWeightGrams == 0) {
				return list[j].MaxWeightGrams == 0
			}
			return list[i].MaxWeightGrams < list[j].MaxWeightGrams
		})
		q.tiers[ref] = list
	}
	return q
}

// LoadQuoter reads all shipping methods and fee tiers from the store.
func LoadQuoter(ctx context.Context, src methodSource) (*Quoter, error) {
	methods, err := src.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shipping methods: %w", err)
	}
	tiers, err := src.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shipping fee tiers: %w", err)
	}
	return NewQuoter(methods, tiers), nil
}

// ShippingFee returns the gross fee quote for the method at the given cart
// weight. It picks the smallest tier whose weight bound covers the cart.
// A zero weight bound means the tier is unbounded.
func (q *Quoter) ShippingFee(method string, weightGrams int64) (cartengine.ShippingQuote, bool) {
	if _, ok := q.methods[method]; !ok {
		return cartengine.ShippingQuote{}, false
	}
	for _, tier := range q.tiers[method] {
		if tier.MaxWeightGrams != 0 && weightGrams > tier.MaxWeightGrams {
			continue
		}
		quote := cartengine.ShippingQuote{
			Amount:       tier.Amount,
			DeliveryMin:  tier.DeliveryMin,
			DeliveryMax:  tier.DeliveryMax,
			DeliveryText: tier.DeliveryText,
		}
		if tier.TaxRate != nil {
			quote.TaxRate = *tier.TaxRate
			quote.HasTaxRate = true
		}
		return quote, true
	}
	return cartengine.ShippingQuote{}, false
}

// MethodsForCountry lists the methods allowed to ship to the country.
// A method with no country list ships everywhere.
func (q *Quoter) MethodsForCountry(country string) []cartengine.ShippingMethodInfo {
	country = strings.ToUpper(strings.TrimSpace(country))
	refs := make([]string, 0, len(q.methods))
	for ref := range q.methods {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	out := make([]cartengine.ShippingMethodInfo, 0, len(refs))
	for _, ref := range refs {
		m := q.methods[ref]
		if !shipsTo(m, country) {
			continue
		}
		out = append(out, cartengine.ShippingMethodInfo{Ref: m.Ref, Pickup: m.Pickup})
	}
	return out
}

// Method returns the stored method row for a ref.
func (q *Quoter) Method(ref string) (repo.ShippingMethod, bool) {
	m, ok := q.methods[ref]
	return m, ok
}

func shipsTo(m repo.ShippingMethod, country string) bool {
	if len(m.Countries) == 0 {
		return true
	}
	for _, c := range m.Countries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}
