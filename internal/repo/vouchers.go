package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Vouchers reads voucher rows.
type Vouchers struct {
	Pool *pgxpool.Pool
}

// GetByCode returns the voucher for the code.
func (r Vouchers) GetByCode(ctx context.Context, code string) (Voucher, error) {
	row := r.Pool.QueryRow(ctx, `SELECT code, kind, value::text, percent_bps, min_spend::text,
		valid_from, valid_to, usage_limit, used_count
		FROM vouchers WHERE code = $1`, code)
	var v Voucher
	var value, minSpend string
	err := row.Scan(&v.Code, &v.Kind, &value, &v.PercentBps, &minSpend,
		&v.ValidFrom, &v.ValidTo, &v.UsageLimit, &v.UsedCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, fmt.Errorf("load voucher: %w", err)
	}
	if v.Value, err = decimal.NewFromString(value); err != nil {
		return Voucher{}, err
	}
	if v.MinSpend, err = decimal.NewFromString(minSpend); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

// IncrementUsage bumps the voucher's global usage counter.
func (r Vouchers) IncrementUsage(ctx context.Context, code string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE vouchers SET used_count = used_count + 1 WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("increment voucher usage: %w", err)
	}
	return nil
}
