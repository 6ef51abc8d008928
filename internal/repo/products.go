package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Products reads catalog rows.
type Products struct {
	Pool *pgxpool.Pool
}

const productColumns = `ref, title, price_gross::text, tax_rate::text, original_tax_rate::text,
	weight_grams, stock::text, overbookable, free_of_charge, release_date,
	lead_min_days, lead_max_days`

// GetMany returns the products for the given references. Missing
// references are simply absent from the result; callers treat them as
// unresolved.
func (r Products) GetMany(ctx context.Context, refs []string) (map[string]Product, error) {
	if len(refs) == 0 {
		return map[string]Product{}, nil
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE ref = ANY($1)`, refs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Product, len(refs))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.Ref] = p
	}
	return out, rows.Err()
}

// Get returns a single product row.
func (r Products) Get(ctx context.Context, ref string) (Product, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE ref = $1`, ref)
	p, err := scanProduct(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("load product: %w", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var price, rate, orig, stock string
	err := row.Scan(&p.Ref, &p.Title, &price, &rate, &orig, &p.WeightGrams, &stock,
		&p.Overbookable, &p.FreeOfCharge, &p.ReleaseDate, &p.LeadMinDays, &p.LeadMaxDays)
	if err != nil {
		return Product{}, err
	}
	if p.PriceGross, err = decimal.NewFromString(price); err != nil {
		return Product{}, err
	}
	if p.TaxRate, err = decimal.NewFromString(rate); err != nil {
		return Product{}, err
	}
	if p.OriginalRate, err = decimal.NewFromString(orig); err != nil {
		return Product{}, err
	}
	if p.Stock, err = decimal.NewFromString(stock); err != nil {
		return Product{}, err
	}
	return p, nil
}
