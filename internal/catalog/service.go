package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/repo"
)

type productSource interface {
	GetMany(ctx context.Context, refs []string) (map[string]repo.Product, error)
}

// Service loads product pricing data and assembles point-in-time snapshots
// for cart computation. Snapshots never touch the database again once built.
type Service struct {
	products productSource
	cache    *Cache
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Products productSource
	Cache    *Cache
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Products == nil {
		return nil, errors.New("catalog: product source is required")
	}
	return &Service{products: cfg.Products, cache: cfg.Cache}, nil
}

type entry struct {
	Ref          string          `json:"ref"`
	Title        string          `json:"title"`
	PriceGross   decimal.Decimal `json:"priceGross"`
	TaxRate      decimal.Decimal `json:"taxRate"`
	OriginalRate decimal.Decimal `json:"originalRate"`
	WeightGrams  int64           `json:"weightGrams"`
	Stock        decimal.Decimal `json:"stock"`
	Overbookable bool            `json:"overbookable"`
	FreeOfCharge bool            `json:"freeOfCharge"`
	ReleaseDate  *time.Time      `json:"releaseDate,omitempty"`
	LeadMinDays  int             `json:"leadMinDays"`
	LeadMaxDays  int             `json:"leadMaxDays"`
}

// Snapshot is an immutable view of catalog data for a set of product refs.
// Products missing from the underlying store are simply absent, so carts
// referencing them see an unresolved product.
type Snapshot struct {
	entries map[string]entry
}

// Snapshot fetches the given refs, consulting the cache per product before
// hitting the store, and returns a view the cart engine can read without I/O.
func (s *Service) Snapshot(ctx context.Context, refs []string) (*Snapshot, error) {
	snap := &Snapshot{entries: make(map[string]entry, len(refs))}
	missing := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		var cached entry
		ok, err := s.cache.GetJSON(ctx, productCacheKey(ref), &cached)
		if err == nil && ok {
			snap.entries[ref] = cached
			continue
		}
		missing = append(missing, ref)
	}
	if len(missing) == 0 {
		return snap, nil
	}
	rows, err := s.products.GetMany(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("catalog snapshot: %w", err)
	}
	for ref, p := range rows {
		e := entryFromProduct(p)
		snap.entries[ref] = e
		_ = s.cache.SetJSON(ctx, productCacheKey(ref), e)
	}
	return snap, nil
}

// InvalidateProduct drops the cached pricing view for a single ref.
func (s *Service) InvalidateProduct(ctx context.Context, ref string) error {
	return s.cache.Invalidate(ctx, productCacheKey(ref))
}

func entryFromProduct(p repo.Product) entry {
	return entry{
		Ref:          p.Ref,
		Title:        p.Title,
		PriceGross:   p.PriceGross,
		TaxRate:      p.TaxRate,
		OriginalRate: p.OriginalRate,
		WeightGrams:  p.WeightGrams,
		Stock:        p.Stock,
		Overbookable: p.Overbookable,
		FreeOfCharge: p.FreeOfCharge,
		ReleaseDate:  p.ReleaseDate,
		LeadMinDays:  p.LeadMinDays,
		LeadMaxDays:  p.LeadMaxDays,
	}
}

func productCacheKey(ref string) string {
	return "catalog:product:" + ref
}

var _ cartengine.Catalog = (*Snapshot)(nil)

// Exists reports whether the ref resolved when the snapshot was taken.
func (s *Snapshot) Exists(ref string) bool {
	_, ok := s.entries[ref]
	return ok
}

// UnitPrice returns the single-unit price in the requested mode. Net prices
// are derived from the stored gross price and the current tax rate.
func (s *Snapshot) UnitPrice(ref string, mode cartengine.PriceMode) (decimal.Decimal, bool) {
	e, ok := s.entries[ref]
	if !ok {
		return decimal.Zero, false
	}
	if e.FreeOfCharge {
		return decimal.Zero, true
	}
	if mode == cartengine.PriceModeNet {
		divisor := decimal.NewFromInt(1).Add(e.TaxRate.Div(decimal.NewFromInt(100)))
		return e.PriceGross.DivRound(divisor, 4), true
	}
	return e.PriceGross, true
}

// TaxRate returns the current rate, or the pre-reduction rate when original is set.
func (s *Snapshot) TaxRate(ref string, original bool) (decimal.Decimal, bool) {
	e, ok := s.entries[ref]
	if !ok {
		return decimal.Zero, false
	}
	if original {
		return e.OriginalRate, true
	}
	return e.TaxRate, true
}

func (s *Snapshot) Weight(ref string) (int64, bool) {
	e, ok := s.entries[ref]
	if !ok {
		return 0, false
	}
	return e.WeightGrams, true
}

func (s *Snapshot) StockQuantity(ref string) (decimal.Decimal, bool) {
	e, ok := s.entries[ref]
	if !ok {
		return decimal.Zero, false
	}
	return e.Stock, true
}

func (s *Snapshot) IsOverbookable(ref string) bool {
	e, ok := s.entries[ref]
	return ok && e.Overbookable
}

func (s *Snapshot) IsFreeOfCharge(ref string) bool {
	e, ok := s.entries[ref]
	return ok && e.FreeOfCharge
}

func (s *Snapshot) ReleaseDate(ref string) (time.Time, bool) {
	e, ok := s.entries[ref]
	if !ok || e.ReleaseDate == nil {
		return time.Time{}, false
	}
	return *e.ReleaseDate, true
}

func (s *Snapshot) PurchaseLead(ref string) (int, int, bool) {
	e, ok := s.entries[ref]
	if !ok || (e.LeadMinDays == 0 && e.LeadMaxDays == 0) {
		return 0, 0, false
	}
	return e.LeadMinDays, e.LeadMaxDays, true
}

// Title returns the display title for a resolved ref.
func (s *Snapshot) Title(ref string) string {
	return s.entries[ref].Title
}
