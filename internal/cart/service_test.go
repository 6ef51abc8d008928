package cart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-storefront/internal/cart"
	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/catalog"
	"github.com/noah-isme/backend-storefront/internal/repo"
	"github.com/noah-isme/backend-storefront/internal/voucher"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memCarts struct {
	carts        map[uuid.UUID]repo.Cart
	saves        int
	conflictNext bool
}

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[uuid.UUID]repo.Cart)}
}

func (m *memCarts) Load(_ context.Context, id uuid.UUID) (*repo.Cart, error) {
	stored, ok := m.carts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := stored
	cp.Items = append([]repo.CartItem(nil), stored.Items...)
	return &cp, nil
}

func (m *memCarts) FindActiveByUser(_ context.Context, userID uuid.UUID, now time.Time) (*repo.Cart, error) {
	for id, stored := range m.carts {
		if stored.UserID != nil && *stored.UserID == userID && stored.ExpiresAt.After(now) {
			return m.Load(context.Background(), id)
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memCarts) FindActiveByAnon(_ context.Context, anonID string, now time.Time) (*repo.Cart, error) {
	for id, stored := range m.carts {
		if stored.AnonID != nil && *stored.AnonID == anonID && stored.ExpiresAt.After(now) {
			return m.Load(context.Background(), id)
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memCarts) Create(_ context.Context, c *repo.Cart) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	m.carts[c.ID] = *c
	return nil
}

func (m *memCarts) Save(_ context.Context, c *repo.Cart) error {
	stored, ok := m.carts[c.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if m.conflictNext {
		m.conflictNext = false
		return repo.ErrVersionConflict
	}
	if stored.Version != c.Version {
		return repo.ErrVersionConflict
	}
	c.Version++
	cp := *c
	cp.Items = append([]repo.CartItem(nil), c.Items...)
	m.carts[c.ID] = cp
	m.saves++
	return nil
}

type memVouchers struct {
	vouchers map[string]repo.Voucher
	usage    map[string]int
}

func (m *memVouchers) GetByCode(_ context.Context, code string) (repo.Voucher, error) {
	v, ok := m.vouchers[code]
	if !ok {
		return repo.Voucher{}, repo.ErrNotFound
	}
	return v, nil
}

func (m *memVouchers) IncrementUsage(_ context.Context, code string) error {
	v, ok := m.vouchers[code]
	if !ok {
		return repo.ErrNotFound
	}
	v.UsedCount++
	m.vouchers[code] = v
	if m.usage == nil {
		m.usage = make(map[string]int)
	}
	m.usage[code]++
	return nil
}

type memProducts struct {
	rows map[string]repo.Product
}

func (m *memProducts) GetMany(_ context.Context, refs []string) (map[string]repo.Product, error) {
	out := make(map[string]repo.Product)
	for _, ref := range refs {
		if row, ok := m.rows[ref]; ok {
			out[ref] = row
		}
	}
	return out, nil
}

type memMethods struct {
	shipping []repo.ShippingMethod
	tiers    []repo.ShippingFeeTier
	payments []repo.PaymentMethod
}

func (m *memMethods) ListAll(_ context.Context) ([]repo.ShippingMethod, error) {
	return m.shipping, nil
}

func (m *memMethods) ListTiers(_ context.Context) ([]repo.ShippingFeeTier, error) {
	return m.tiers, nil
}

type memPayments struct {
	methods *memMethods
}

func (m memPayments) ListAll(_ context.Context) ([]repo.PaymentMethod, error) {
	return m.methods.payments, nil
}

type fixture struct {
	svc      *cart.Service
	carts    *memCarts
	products *memProducts
	vouchers *memVouchers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	products := &memProducts{rows: map[string]repo.Product{
		"sku-a": {Ref: "sku-a", Title: "Desk Lamp", PriceGross: dec("20.00"), TaxRate: dec("19"), OriginalRate: dec("19"), WeightGrams: 500, Stock: dec("10")},
		"sku-b": {Ref: "sku-b", Title: "Spare Bulb", PriceGross: dec("5.00"), TaxRate: dec("7"), OriginalRate: dec("7"), WeightGrams: 50, Stock: dec("3")},
	}}
	methods := &memMethods{
		shipping: []repo.ShippingMethod{
			{Ref: "dhl-standard", Title: "DHL Standard", Countries: []string{"DE"}},
			{Ref: "pickup-store", Title: "Store Pickup", Pickup: true},
		},
		tiers: []repo.ShippingFeeTier{
			{MethodRef: "dhl-standard", MaxWeightGrams: 0, Amount: dec("4.90"), DeliveryMin: 2, DeliveryMax: 4},
			{MethodRef: "pickup-store", MaxWeightGrams: 0, Amount: dec("0.00")},
		},
		payments: []repo.PaymentMethod{
			{Ref: "invoice", Title: "Invoice", FeeAmount: dec("1.00")},
		},
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{Products: products})
	require.NoError(t, err)
	carts := newMemCarts()
	lastCall := int32(1)
	vouchers := &memVouchers{vouchers: map[string]repo.Voucher{
		"SUMMER10": {Code: "SUMMER10", Kind: "fixed", Value: dec("10.00"), MinSpend: dec("30.00")},
		"LASTCALL": {Code: "LASTCALL", Kind: "fixed", Value: dec("5.00"), UsageLimit: &lastCall},
	}}
	svc := &cart.Service{
		Carts:    carts,
		Vouchers: vouchers,
		Catalog:  catalogSvc,
		Shipping: methods,
		Payments: memPayments{methods: methods},
		Cfg: cart.Config{
			Mode:           cartengine.PriceModeGross,
			DefaultCountry: "DE",
			TTL:            168 * time.Hour,
			Currency:       "EUR",
		},
	}
	return &fixture{svc: svc, carts: carts, products: products, vouchers: vouchers}
}

func (f *fixture) newCart(t *testing.T) *cart.Session {
	t.Helper()
	anon := uuid.NewString()
	sess, err := f.svc.EnsureCart(context.Background(), nil, &anon)
	require.NoError(t, err)
	return sess
}

func TestEnsureCartCreatesAndReuses(t *testing.T) {
	f := newFixture(t)
	anon := "guest-1"

	first, err := f.svc.EnsureCart(context.Background(), nil, &anon)
	require.NoError(t, err)
	second, err := f.svc.EnsureCart(context.Background(), nil, &anon)
	require.NoError(t, err)
	require.Equal(t, first.Cart.ID, second.Cart.ID)
	require.Equal(t, "DE", second.Cart.ShippingCountry)
}

func TestAddItemPersistsAndPrices(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	sess, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-a", dec("2"))
	require.NoError(t, err)
	sess, err = f.svc.AddItem(ctx, sess.Cart.ID, "sku-b", dec("1"))
	require.NoError(t, err)

	view := f.svc.BuildView(sess)
	require.Len(t, view.Items, 2)
	require.Equal(t, "45.00", view.Totals.Total)
	require.Equal(t, "Desk Lamp", view.Items[0].Title)

	// A fresh load sees the persisted items.
	reloaded, err := f.svc.Get(ctx, sess.Cart.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Engine.Items(), 2)
}

func TestAddItemRejectsUnknownAndOverbooked(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, sess.Cart.ID, "ghost", dec("1"))
	require.ErrorIs(t, err, cartengine.ErrUnresolvedProduct)

	_, err = f.svc.AddItem(ctx, sess.Cart.ID, "sku-b", dec("4"))
	require.ErrorIs(t, err, cartengine.ErrInsufficientStock)
}

func TestStaleQuantityClampedOnLoad(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-b", dec("3"))
	require.NoError(t, err)

	// Stock drops below the persisted quantity between requests.
	row := f.products.rows["sku-b"]
	row.Stock = dec("1")
	f.products.rows["sku-b"] = row

	reloaded, err := f.svc.Get(ctx, sess.Cart.ID)
	require.NoError(t, err)
	li, ok := reloaded.Engine.FindLineItem("sku-b")
	require.True(t, ok)
	require.True(t, li.Quantity.Equal(dec("1")))
	require.NotEmpty(t, li.Notice)

	// The clamped state is written back.
	stored, err := f.carts.Load(ctx, sess.Cart.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.True(t, stored.Items[0].Quantity.Equal(dec("1")))
}

func TestVoucherLifecycle(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-a", dec("2"))
	require.NoError(t, err)

	_, err = f.svc.ApplyVoucher(ctx, sess.Cart.ID, "NOPE")
	require.ErrorIs(t, err, cart.ErrVoucherNotFound)

	sess, err = f.svc.ApplyVoucher(ctx, sess.Cart.ID, "SUMMER10")
	require.NoError(t, err)
	view := f.svc.BuildView(sess)
	require.Equal(t, "30.00", view.Totals.Total)
	require.Equal(t, 1, f.vouchers.usage["SUMMER10"])

	// The applied code survives a reload.
	sess, err = f.svc.Get(ctx, sess.Cart.ID)
	require.NoError(t, err)
	_, applied := sess.Voucher.Applied()
	require.True(t, applied)

	sess, err = f.svc.RemoveVoucher(ctx, sess.Cart.ID)
	require.NoError(t, err)
	view = f.svc.BuildView(sess)
	require.Equal(t, "40.00", view.Totals.Total)
	require.Nil(t, sess.Cart.VoucherCode)
}

func TestVoucherUsageLimitKeepsRedeemingCart(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-a", dec("2"))
	require.NoError(t, err)

	// Redeeming consumes the last usage slot.
	sess, err = f.svc.ApplyVoucher(ctx, sess.Cart.ID, "LASTCALL")
	require.NoError(t, err)
	require.Equal(t, "35.00", f.svc.BuildView(sess).Totals.Total)

	// The cart that spent the slot keeps its discount on reload.
	sess, err = f.svc.Get(ctx, sess.Cart.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.Cart.VoucherCode)
	_, applied := sess.Voucher.Applied()
	require.True(t, applied)
	require.Equal(t, "35.00", f.svc.BuildView(sess).Totals.Total)

	// Other carts can no longer redeem the exhausted code.
	other := f.newCart(t)
	_, err = f.svc.AddItem(ctx, other.Cart.ID, "sku-a", dec("1"))
	require.NoError(t, err)
	_, err = f.svc.ApplyVoucher(ctx, other.Cart.ID, "LASTCALL")
	require.ErrorIs(t, err, voucher.ErrUsageLimitReached)
}

func TestVoucherBelowMinimumSpendRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-b", dec("1"))
	require.NoError(t, err)

	_, err = f.svc.ApplyVoucher(ctx, sess.Cart.ID, "SUMMER10")
	require.ErrorIs(t, err, voucher.ErrMinimumSpendUnmet)
}

func TestShippingMethodValidationAndCountryChange(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	_, err := f.svc.SetShippingMethod(ctx, sess.Cart.ID, "carrier-pigeon")
	require.ErrorIs(t, err, cart.ErrUnknownShippingMethod)

	sess, err = f.svc.SetShippingMethod(ctx, sess.Cart.ID, "dhl-standard")
	require.NoError(t, err)
	require.Equal(t, "dhl-standard", sess.Engine.ShippingMethod())

	// DHL does not ship to AT, so the method is dropped with the country
	// change instead of quoting a fee it cannot honour.
	sess, err = f.svc.SetShippingCountry(ctx, sess.Cart.ID, "at")
	require.NoError(t, err)
	require.Equal(t, "AT", sess.Engine.ShippingCountry())
	require.Empty(t, sess.Engine.ShippingMethod())

	_, err = f.svc.SetShippingCountry(ctx, sess.Cart.ID, "Germany")
	require.ErrorIs(t, err, cart.ErrInvalidCountry)
}

func TestShippingOptionsMarksCheapest(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	sess, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-a", dec("1"))
	require.NoError(t, err)

	options := f.svc.ShippingOptions(sess)
	require.Len(t, options, 2)
	for _, option := range options {
		require.True(t, option.Available)
		if option.Ref == "dhl-standard" {
			require.True(t, option.Cheapest)
			require.NotNil(t, option.Fee)
			require.Equal(t, "4.90", *option.Fee)
		}
		if option.Ref == "pickup-store" {
			require.True(t, option.Pickup)
			require.False(t, option.Cheapest)
		}
	}
}

func TestClearEmptiesCart(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-a", dec("1"))
	require.NoError(t, err)
	sess, err = f.svc.Clear(ctx, sess.Cart.ID)
	require.NoError(t, err)
	require.Empty(t, sess.Engine.Items())

	view := f.svc.BuildView(sess)
	require.Equal(t, "0.00", view.Totals.Total)
	require.Nil(t, view.WeightGrams)
	require.False(t, view.InStock)
}

func TestGetUnknownCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestExpiredCartNotServed(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)

	stored := f.carts.carts[sess.Cart.ID]
	stored.ExpiresAt = time.Now().Add(-time.Hour)
	f.carts.carts[sess.Cart.ID] = stored

	_, err := f.svc.Get(context.Background(), sess.Cart.ID)
	require.ErrorIs(t, err, cart.ErrCartExpired)
}

func TestVersionConflictSurfaces(t *testing.T) {
	f := newFixture(t)
	sess := f.newCart(t)
	ctx := context.Background()

	// Another writer bumps the version between load and save.
	f.carts.conflictNext = true

	_, err := f.svc.AddItem(ctx, sess.Cart.ID, "sku-a", dec("1"))
	require.Error(t, err)
	require.True(t, errors.Is(err, repo.ErrVersionConflict))
}
