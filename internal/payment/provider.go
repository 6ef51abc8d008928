package payment

import (
	"context"
	"fmt"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/repo"
)

type methodSource interface {
	ListAll(ctx context.Context) ([]repo.PaymentMethod, error)
}

// Provider answers payment fee questions from an in-memory view of payment
// methods. Like the shipping quoter it is built once per request.
type Provider struct {
	methods map[string]repo.PaymentMethod
}

// NewProvider builds a provider from payment method rows.
func NewProvider(methods []repo.PaymentMethod) *Provider {
	p := &Provider{methods: make(map[string]repo.PaymentMethod, len(methods))}
	for _, m := range methods {
		p.methods[m.Ref] = m
	}
	return p
}

// LoadProvider reads all payment methods from the store.
func LoadProvider(ctx context.Context, src methodSource) (*Provider, error) {
	methods, err := src.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payment methods: %w", err)
	}
	return NewProvider(methods), nil
}

// PaymentFee returns the gross fee quote for the method, if one is configured.
func (p *Provider) PaymentFee(method string) (cartengine.PaymentQuote, bool) {
	m, ok := p.methods[method]
	if !ok || m.FeeAmount.IsZero() {
		return cartengine.PaymentQuote{}, false
	}
	quote := cartengine.PaymentQuote{Amount: m.FeeAmount}
	if m.FeeTaxRate != nil {
		quote.TaxRate = *m.FeeTaxRate
		quote.HasTaxRate = true
	}
	return quote, true
}

// Method returns the stored method row for a ref.
func (p *Provider) Method(ref string) (repo.PaymentMethod, bool) {
	m, ok := p.methods[ref]
	return m, ok
}
