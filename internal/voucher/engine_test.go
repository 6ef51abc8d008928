package voucher_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/voucher"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValidateWindowAndLimits(t *testing.T) {
	now := time.Date(2026, time.August, 10, 12, 0, 0, 0, time.UTC)
	from := now.Add(-time.Hour)
	to := now.Add(time.Hour)
	limit := int32(100)

	rule := voucher.Rule{
		Code:       "SUMMER10",
		Kind:       "fixed",
		Value:      dec("10.00"),
		MinSpend:   dec("50.00"),
		ValidFrom:  &from,
		ValidTo:    &to,
		UsageLimit: &limit,
		UsedCount:  99,
	}
	require.NoError(t, rule.Validate(now, dec("60.00")))

	require.ErrorIs(t, rule.Validate(now, dec("49.99")), voucher.ErrMinimumSpendUnmet)

	rule.UsedCount = 100
	require.ErrorIs(t, rule.Validate(now, dec("60.00")), voucher.ErrUsageLimitReached)
	rule.UsedCount = 0

	require.ErrorIs(t, rule.Validate(now.Add(-2*time.Hour), dec("60.00")), voucher.ErrVoucherInactive)
	require.ErrorIs(t, rule.Validate(now.Add(2*time.Hour), dec("60.00")), voucher.ErrVoucherExpired)
}

func TestValidateRedeemedIgnoresUsageQuota(t *testing.T) {
	now := time.Date(2026, time.August, 10, 12, 0, 0, 0, time.UTC)
	to := now.Add(time.Hour)
	limit := int32(1)

	rule := voucher.Rule{
		Code:       "LASTCALL",
		Kind:       "fixed",
		Value:      dec("5.00"),
		MinSpend:   dec("20.00"),
		ValidTo:    &to,
		UsageLimit: &limit,
		UsedCount:  1,
	}
	// The quota is exhausted, but a cart that already redeemed the code
	// must still pass the re-check.
	require.ErrorIs(t, rule.Validate(now, dec("30.00")), voucher.ErrUsageLimitReached)
	require.NoError(t, rule.ValidateRedeemed(now, dec("30.00")))

	// Spend and window checks still apply on reload.
	require.ErrorIs(t, rule.ValidateRedeemed(now, dec("19.99")), voucher.ErrMinimumSpendUnmet)
	require.ErrorIs(t, rule.ValidateRedeemed(now.Add(2*time.Hour), dec("30.00")), voucher.ErrVoucherExpired)
}

func TestComputeFixedAndPercent(t *testing.T) {
	fixed := voucher.Rule{Kind: "fixed", Value: dec("10.00")}
	require.True(t, voucher.Compute(dec("60.00"), fixed).Equal(dec("10.00")))

	// A fixed discount never exceeds the eligible value.
	require.True(t, voucher.Compute(dec("7.50"), fixed).Equal(dec("7.50")))
	require.True(t, voucher.Compute(decimal.Zero, fixed).IsZero())

	percent := voucher.Rule{Kind: "percent", PercentBps: 1500}
	require.True(t, voucher.Compute(dec("60.00"), percent).Equal(dec("9.00")))

	require.True(t, voucher.Compute(dec("60.00"), voucher.Rule{Kind: "percent"}).IsZero())
	require.True(t, voucher.Compute(dec("60.00"), voucher.Rule{Kind: "fixed", Value: dec("-5.00")}).IsZero())
}

type flatCatalog struct {
	price decimal.Decimal
}

func (c flatCatalog) Exists(string) bool { return true }
func (c flatCatalog) UnitPrice(string, cartengine.PriceMode) (decimal.Decimal, bool) {
	return c.price, true
}
func (c flatCatalog) TaxRate(string, bool) (decimal.Decimal, bool) { return dec("19"), true }
func (c flatCatalog) Weight(string) (int64, bool)                  { return 100, true }
func (c flatCatalog) StockQuantity(string) (decimal.Decimal, bool) { return dec("100"), true }
func (c flatCatalog) IsOverbookable(string) bool                   { return false }
func (c flatCatalog) IsFreeOfCharge(string) bool                   { return false }
func (c flatCatalog) ReleaseDate(string) (time.Time, bool)         { return time.Time{}, false }
func (c flatCatalog) PurchaseLead(string) (int, int, bool)         { return 0, 0, false }

type noFees struct{}

func (noFees) ShippingFee(string, int64) (cartengine.ShippingQuote, bool) {
	return cartengine.ShippingQuote{}, false
}
func (noFees) PaymentFee(string) (cartengine.PaymentQuote, bool) {
	return cartengine.PaymentQuote{}, false
}
func (noFees) MethodsForCountry(string) []cartengine.ShippingMethodInfo { return nil }

func TestModuleReducesTotal(t *testing.T) {
	mod := voucher.NewModule()
	cart := cartengine.New(
		cartengine.Config{Mode: cartengine.PriceModeGross, DefaultCountry: "DE"},
		flatCatalog{price: dec("30.00")},
		noFees{},
		[]cartengine.Module{mod},
	)
	_, err := cart.AddLineItem("sku-a", dec("2"))
	require.NoError(t, err)

	total := cart.AmountTotal(cartengine.PriceModeGross, cartengine.Exclude{})
	require.True(t, total.Equal(dec("60.00")))

	mod.Apply(voucher.Rule{Code: "SUMMER10", Kind: "fixed", Value: dec("10.00"), MinSpend: dec("50.00")})
	cart.Invalidate()
	total = cart.AmountTotal(cartengine.PriceModeGross, cartengine.Exclude{})
	require.True(t, total.Equal(dec("50.00")), "got %s", total)

	// Dropping below the minimum spend suspends the discount.
	require.NoError(t, cart.SetQuantity("sku-a", dec("1")))
	total = cart.AmountTotal(cartengine.PriceModeGross, cartengine.Exclude{})
	require.True(t, total.Equal(dec("30.00")), "got %s", total)

	mod.Remove()
	_, ok := mod.Applied()
	require.False(t, ok)
}
