package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ShippingMethods reads shipping method configuration.
type ShippingMethods struct {
	Pool *pgxpool.Pool
}

// ListAll returns every configured shipping method.
func (r ShippingMethods) ListAll(ctx context.Context) ([]ShippingMethod, error) {
	rows, err := r.Pool.Query(ctx, `SELECT ref, title, pickup, countries FROM shipping_methods ORDER BY ref`)
	if err != nil {
		return nil, fmt.Errorf("load shipping methods: %w", err)
	}
	defer rows.Close()

	var out []ShippingMethod
	for rows.Next() {
		var m ShippingMethod
		if err := rows.Scan(&m.Ref, &m.Title, &m.Pickup, &m.Countries); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListTiers returns every fee tier ordered by weight limit ascending.
func (r ShippingMethods) ListTiers(ctx context.Context) ([]ShippingFeeTier, error) {
	rows, err := r.Pool.Query(ctx, `SELECT method_ref, max_weight_grams, amount::text, tax_rate::text,
		delivery_min, delivery_max, delivery_text
		FROM shipping_fee_tiers ORDER BY method_ref, max_weight_grams`)
	if err != nil {
		return nil, fmt.Errorf("load shipping fee tiers: %w", err)
	}
	defer rows.Close()

	var out []ShippingFeeTier
	for rows.Next() {
		var t ShippingFeeTier
		var amount string
		var taxRate *string
		if err := rows.Scan(&t.MethodRef, &t.MaxWeightGrams, &amount, &taxRate,
			&t.DeliveryMin, &t.DeliveryMax, &t.DeliveryText); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if taxRate != nil {
			rate, err := decimal.NewFromString(*taxRate)
			if err != nil {
				return nil, err
			}
			t.TaxRate = &rate
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PaymentMethods reads payment method configuration.
type PaymentMethods struct {
	Pool *pgxpool.Pool
}

const paymentColumns = `ref, title, fee_amount::text, fee_tax_rate::text,
	surcharge_bps, discount_threshold::text, discount_amount::text`

// Get returns one payment method by reference.
func (r PaymentMethods) Get(ctx context.Context, ref string) (PaymentMethod, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_methods WHERE ref = $1`, ref)
	m, err := scanPaymentMethod(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return PaymentMethod{}, ErrNotFound
		}
		return PaymentMethod{}, fmt.Errorf("load payment method: %w", err)
	}
	return m, nil
}

// ListAll returns every configured payment method.
func (r PaymentMethods) ListAll(ctx context.Context) ([]PaymentMethod, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+paymentColumns+` FROM payment_methods ORDER BY ref`)
	if err != nil {
		return nil, fmt.Errorf("load payment methods: %w", err)
	}
	defer rows.Close()

	var out []PaymentMethod
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanPaymentMethod(row pgx.Row) (PaymentMethod, error) {
	var m PaymentMethod
	var fee, discountAmount string
	var feeTaxRate, discountThreshold *string
	err := row.Scan(&m.Ref, &m.Title, &fee, &feeTaxRate, &m.SurchargeBps, &discountThreshold, &discountAmount)
	if err != nil {
		return PaymentMethod{}, err
	}
	if m.FeeAmount, err = decimal.NewFromString(fee); err != nil {
		return PaymentMethod{}, err
	}
	if m.DiscountAmount, err = decimal.NewFromString(discountAmount); err != nil {
		return PaymentMethod{}, err
	}
	if feeTaxRate != nil {
		rate, err := decimal.NewFromString(*feeTaxRate)
		if err != nil {
			return PaymentMethod{}, err
		}
		m.FeeTaxRate = &rate
	}
	if discountThreshold != nil {
		threshold, err := decimal.NewFromString(*discountThreshold)
		if err != nil {
			return PaymentMethod{}, err
		}
		m.DiscountThreshold = &threshold
	}
	return m, nil
}
