package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Carts persists cart aggregates.
type Carts struct {
	Pool *pgxpool.Pool
}

const cartColumns = `id, user_id, anon_id, shipping_method, payment_method, shipping_country,
	voucher_code, version, expires_at, created_at, updated_at`

// Load reads a cart aggregate including its items.
func (r Carts) Load(ctx context.Context, id uuid.UUID) (*Cart, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	cart, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if err := r.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// FindActiveByUser returns the user's newest unexpired cart.
func (r Carts) FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*Cart, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY updated_at DESC LIMIT 1`, userID, now)
	cart, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find cart by user: %w", err)
	}
	if err := r.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// FindActiveByAnon returns the guest cart for the anonymous id.
func (r Carts) FindActiveByAnon(ctx context.Context, anonID string, now time.Time) (*Cart, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts
		WHERE anon_id = $1 AND expires_at > $2
		ORDER BY updated_at DESC LIMIT 1`, anonID, now)
	cart, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find cart by anon: %w", err)
	}
	if err := r.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Create inserts a fresh cart.
func (r Carts) Create(ctx context.Context, cart *Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	_, err := r.Pool.Exec(ctx, `INSERT INTO carts
		(id, user_id, anon_id, shipping_method, payment_method, shipping_country, voucher_code, version, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)`,
		cart.ID, cart.UserID, cart.AnonID, cart.ShippingMethod, cart.PaymentMethod,
		cart.ShippingCountry, cart.VoucherCode, cart.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create cart: %w", err)
	}
	cart.Version = 1
	return nil
}

// Save writes the whole aggregate back. The version check rejects saves
// racing a concurrent mutation so quantity changes are never silently
// dropped.
func (r Carts) Save(ctx context.Context, cart *Cart) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `UPDATE carts SET
		shipping_method = $1, payment_method = $2, shipping_country = $3,
		voucher_code = $4, expires_at = $5, version = version + 1, updated_at = now()
		WHERE id = $6 AND version = $7`,
		cart.ShippingMethod, cart.PaymentMethod, cart.ShippingCountry,
		cart.VoucherCode, cart.ExpiresAt, cart.ID, cart.Version)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return fmt.Errorf("save cart items: %w", err)
	}
	for _, item := range cart.Items {
		if _, err := tx.Exec(ctx, `INSERT INTO cart_items (cart_id, product_ref, quantity, notice)
			VALUES ($1, $2, $3, $4)`,
			cart.ID, item.ProductRef, item.Quantity.String(), item.Notice); err != nil {
			return fmt.Errorf("save cart item %s: %w", item.ProductRef, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	cart.Version++
	return nil
}

// DeleteExpired removes carts whose TTL ran out, returning the count.
func (r Carts) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM carts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r Carts) loadItems(ctx context.Context, cart *Cart) error {
	rows, err := r.Pool.Query(ctx, `SELECT product_ref, quantity::text, notice
		FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, cart.ID)
	if err != nil {
		return fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item CartItem
			qty  string
		)
		if err := rows.Scan(&item.ProductRef, &qty, &item.Notice); err != nil {
			return err
		}
		item.Quantity, err = decimal.NewFromString(qty)
		if err != nil {
			return fmt.Errorf("parse quantity for %s: %w", item.ProductRef, err)
		}
		cart.Items = append(cart.Items, item)
	}
	return rows.Err()
}

func scanCart(row pgx.Row) (*Cart, error) {
	var cart Cart
	err := row.Scan(&cart.ID, &cart.UserID, &cart.AnonID, &cart.ShippingMethod,
		&cart.PaymentMethod, &cart.ShippingCountry, &cart.VoucherCode,
		&cart.Version, &cart.ExpiresAt, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}
