// Package repo provides the Postgres persistence layer. Queries are
// hand-written over pgx; the cart aggregate is read and written as a
// whole with an optimistic version check.
package repo

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the requested row could not be located.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict indicates a cart save lost an optimistic
	// concurrency race and must be retried on fresh state.
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

// Cart is the persisted cart aggregate.
type Cart struct {
	ID              uuid.UUID
	UserID          *uuid.UUID
	AnonID          *string
	ShippingMethod  string
	PaymentMethod   string
	ShippingCountry string
	VoucherCode     *string
	Items           []CartItem
	Version         int64
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CartItem is one persisted cart line.
type CartItem struct {
	ProductRef string
	Quantity   decimal.Decimal
	Notice     string
}

// Product is a catalog row.
type Product struct {
	Ref          string
	Title        string
	PriceGross   decimal.Decimal
	TaxRate      decimal.Decimal
	OriginalRate decimal.Decimal
	WeightGrams  int64
	Stock        decimal.Decimal
	Overbookable bool
	FreeOfCharge bool
	ReleaseDate  *time.Time
	LeadMinDays  int
	LeadMaxDays  int
}

// ShippingMethod is a configured carrier method.
type ShippingMethod struct {
	Ref       string
	Title     string
	Pickup    bool
	Countries []string
}

// ShippingFeeTier is one weight tier of a method's fee table.
type ShippingFeeTier struct {
	MethodRef      string
	MaxWeightGrams int64
	Amount         decimal.Decimal
	TaxRate        *decimal.Decimal
	DeliveryMin    int
	DeliveryMax    int
	DeliveryText   string
}

// PaymentMethod is a configured payment method with its handling fee and
// optional charge/discount rules.
type PaymentMethod struct {
	Ref               string
	Title             string
	FeeAmount         decimal.Decimal
	FeeTaxRate        *decimal.Decimal
	SurchargeBps      int32
	DiscountThreshold *decimal.Decimal
	DiscountAmount    decimal.Decimal
}

// Voucher is a promotion code redeemable against a cart.
type Voucher struct {
	Code       string
	Kind       string
	Value      decimal.Decimal
	PercentBps int32
	MinSpend   decimal.Decimal
	ValidFrom  *time.Time
	ValidTo    *time.Time
	UsageLimit *int32
	UsedCount  int32
}

// DomainEvent is a persisted cart event row.
type DomainEvent struct {
	ID          uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
	OccurredAt  time.Time
}
