package shipping_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-storefront/internal/repo"
	"github.com/noah-isme/backend-storefront/internal/shipping"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testQuoter() *shipping.Quoter {
	rate := dec("19")
	methods := []repo.ShippingMethod{
		{Ref: "dhl-standard", Title: "DHL Standard", Countries: []string{"DE", "AT"}},
		{Ref: "dhl-express", Title: "DHL Express", Countries: []string{"DE"}},
		{Ref: "pickup-store", Title: "Store Pickup", Pickup: true},
	}
	tiers := []repo.ShippingFeeTier{
		{MethodRef: "dhl-standard", MaxWeightGrams: 31500, Amount: dec("8.90"), DeliveryMin: 3, DeliveryMax: 5},
		{MethodRef: "dhl-standard", MaxWeightGrams: 2000, Amount: dec("4.50"), DeliveryMin: 2, DeliveryMax: 4},
		{MethodRef: "dhl-express", MaxWeightGrams: 0, Amount: dec("12.90"), TaxRate: &rate, DeliveryMin: 1, DeliveryMax: 1, DeliveryText: "next business day"},
		{MethodRef: "pickup-store", MaxWeightGrams: 0, Amount: dec("0.00")},
	}
	return shipping.NewQuoter(methods, tiers)
}

func TestShippingFeePicksSmallestCoveringTier(t *testing.T) {
	q := testQuoter()

	quote, ok := q.ShippingFee("dhl-standard", 1500)
	require.True(t, ok)
	require.True(t, quote.Amount.Equal(dec("4.50")))
	require.False(t, quote.HasTaxRate)
	require.Equal(t, 2, quote.DeliveryMin)
	require.Equal(t, 4, quote.DeliveryMax)

	quote, ok = q.ShippingFee("dhl-standard", 2500)
	require.True(t, ok)
	require.True(t, quote.Amount.Equal(dec("8.90")))
}

func TestShippingFeeUnboundedTier(t *testing.T) {
	q := testQuoter()

	quote, ok := q.ShippingFee("dhl-express", 90000)
	require.True(t, ok)
	require.True(t, quote.Amount.Equal(dec("12.90")))
	require.True(t, quote.HasTaxRate)
	require.True(t, quote.TaxRate.Equal(dec("19")))
	require.Equal(t, "next business day", quote.DeliveryText)
}

func TestShippingFeeUnboundedTierCatchesOverflowOnly(t *testing.T) {
	rate := dec("19")
	q := shipping.NewQuoter(
		[]repo.ShippingMethod{{Ref: "dhl-standard", Title: "DHL Standard"}},
		[]repo.ShippingFeeTier{
			{MethodRef: "dhl-standard", MaxWeightGrams: 0, Amount: dec("19.90"), TaxRate: &rate},
			{MethodRef: "dhl-standard", MaxWeightGrams: 2000, Amount: dec("4.50")},
		},
	)

	quote, ok := q.ShippingFee("dhl-standard", 500)
	require.True(t, ok)
	require.True(t, quote.Amount.Equal(dec("4.50")))

	quote, ok = q.ShippingFee("dhl-standard", 90000)
	require.True(t, ok)
	require.True(t, quote.Amount.Equal(dec("19.90")))
}

func TestShippingFeeOverweightAndUnknown(t *testing.T) {
	q := testQuoter()

	_, ok := q.ShippingFee("dhl-standard", 40000)
	require.False(t, ok)

	_, ok = q.ShippingFee("carrier-pigeon", 100)
	require.False(t, ok)
}

func TestMethodsForCountry(t *testing.T) {
	q := testQuoter()

	de := q.MethodsForCountry("de")
	require.Len(t, de, 3)

	at := q.MethodsForCountry("AT")
	require.Len(t, at, 2)
	refs := []string{at[0].Ref, at[1].Ref}
	require.Contains(t, refs, "dhl-standard")
	require.Contains(t, refs, "pickup-store")

	for _, info := range de {
		if info.Ref == "pickup-store" {
			require.True(t, info.Pickup)
		}
	}
}
