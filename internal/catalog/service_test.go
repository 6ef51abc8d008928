package catalog_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/catalog"
	"github.com/noah-isme/backend-storefront/internal/repo"
)

type productStore struct {
	rows  map[string]repo.Product
	calls int
}

func (p *productStore) GetMany(_ context.Context, refs []string) (map[string]repo.Product, error) {
	p.calls++
	out := make(map[string]repo.Product, len(refs))
	for _, ref := range refs {
		if row, ok := p.rows[ref]; ok {
			out[ref] = row
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSnapshotResolvesProducts(t *testing.T) {
	release := time.Date(2026, time.September, 14, 0, 0, 0, 0, time.UTC)
	store := &productStore{rows: map[string]repo.Product{
		"sku-a": {
			Ref:          "sku-a",
			Title:        "Standing Desk",
			PriceGross:   dec("238.00"),
			TaxRate:      dec("19"),
			OriginalRate: dec("19"),
			WeightGrams:  24000,
			Stock:        dec("5"),
			ReleaseDate:  &release,
			LeadMinDays:  2,
			LeadMaxDays:  4,
		},
	}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Products: store})
	require.NoError(t, err)

	snap, err := svc.Snapshot(context.Background(), []string{"sku-a", "sku-a", "ghost"})
	require.NoError(t, err)

	require.True(t, snap.Exists("sku-a"))
	require.False(t, snap.Exists("ghost"))

	gross, ok := snap.UnitPrice("sku-a", cartengine.PriceModeGross)
	require.True(t, ok)
	require.True(t, gross.Equal(dec("238.00")))

	net, ok := snap.UnitPrice("sku-a", cartengine.PriceModeNet)
	require.True(t, ok)
	require.True(t, net.Equal(dec("200.00")))

	rate, ok := snap.TaxRate("sku-a", false)
	require.True(t, ok)
	require.True(t, rate.Equal(dec("19")))

	weight, ok := snap.Weight("sku-a")
	require.True(t, ok)
	require.Equal(t, int64(24000), weight)

	got, ok := snap.ReleaseDate("sku-a")
	require.True(t, ok)
	require.True(t, got.Equal(release))

	min, max, ok := snap.PurchaseLead("sku-a")
	require.True(t, ok)
	require.Equal(t, 2, min)
	require.Equal(t, 4, max)

	_, ok = snap.UnitPrice("ghost", cartengine.PriceModeGross)
	require.False(t, ok)
}

func TestSnapshotUsesCache(t *testing.T) {
	store := &productStore{rows: map[string]repo.Product{
		"sku-a": {Ref: "sku-a", PriceGross: dec("10.00"), TaxRate: dec("19"), Stock: dec("3")},
	}}
	cache := catalog.NewCache(testRedis(t), time.Minute)
	svc, err := catalog.NewService(catalog.ServiceConfig{Products: store, Cache: cache})
	require.NoError(t, err)

	_, err = svc.Snapshot(context.Background(), []string{"sku-a"})
	require.NoError(t, err)
	require.Equal(t, 1, store.calls)

	snap, err := svc.Snapshot(context.Background(), []string{"sku-a"})
	require.NoError(t, err)
	require.Equal(t, 1, store.calls)

	price, ok := snap.UnitPrice("sku-a", cartengine.PriceModeGross)
	require.True(t, ok)
	require.True(t, price.Equal(dec("10.00")))
}

func TestSnapshotInvalidateProduct(t *testing.T) {
	store := &productStore{rows: map[string]repo.Product{
		"sku-a": {Ref: "sku-a", PriceGross: dec("10.00"), TaxRate: dec("19")},
	}}
	cache := catalog.NewCache(testRedis(t), time.Minute)
	svc, err := catalog.NewService(catalog.ServiceConfig{Products: store, Cache: cache})
	require.NoError(t, err)

	_, err = svc.Snapshot(context.Background(), []string{"sku-a"})
	require.NoError(t, err)
	require.NoError(t, svc.InvalidateProduct(context.Background(), "sku-a"))

	_, err = svc.Snapshot(context.Background(), []string{"sku-a"})
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}

func TestSnapshotFreeOfChargeIsZero(t *testing.T) {
	store := &productStore{rows: map[string]repo.Product{
		"gift": {Ref: "gift", PriceGross: dec("4.00"), TaxRate: dec("19"), FreeOfCharge: true},
	}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Products: store})
	require.NoError(t, err)

	snap, err := svc.Snapshot(context.Background(), []string{"gift"})
	require.NoError(t, err)

	price, ok := snap.UnitPrice("gift", cartengine.PriceModeGross)
	require.True(t, ok)
	require.True(t, price.IsZero())
	require.True(t, snap.IsFreeOfCharge("gift"))
}
