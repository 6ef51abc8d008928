package voucher

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-storefront/internal/repo"
)

var (
	// ErrUsageLimitReached indicates the voucher has exhausted the global usage quota.
	ErrUsageLimitReached = errors.New("voucher usage limit reached")
	// ErrVoucherInactive is returned when attempting to use a voucher before its active window.
	ErrVoucherInactive = errors.New("voucher not active")
	// ErrVoucherExpired is returned when the voucher has already expired.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrMinimumSpendUnmet indicates the cart value did not meet the voucher requirement.
	ErrMinimumSpendUnmet = errors.New("voucher minimum spend not met")
)

var tenThousand = decimal.NewFromInt(10000)

// Rule captures the runtime constraints of a voucher.
type Rule struct {
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

// RuleFromRow maps a stored voucher onto its runtime rule.
func RuleFromRow(v repo.Voucher) Rule {
	return Rule{
		Code:       v.Code,
		Kind:       v.Kind,
		Value:      v.Value,
		PercentBps: v.PercentBps,
		MinSpend:   v.MinSpend,
		ValidFrom:  v.ValidFrom,
		ValidTo:    v.ValidTo,
		UsageLimit: v.UsageLimit,
		UsedCount:  v.UsedCount,
	}
}

// Validate ensures the rule can be redeemed at the provided instant and cart value.
func (r Rule) Validate(now time.Time, cartValue decimal.Decimal) error {
	if err := r.ValidateRedeemed(now, cartValue); err != nil {
		return err
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}

// ValidateRedeemed re-checks a voucher a cart has already redeemed. The
// usage quota is skipped here: the cart's own redemption counts against
// it, so a fully used code would otherwise evict itself from the cart
// that spent the last slot.
func (r Rule) ValidateRedeemed(now time.Time, cartValue decimal.Decimal) error {
	if cartValue.LessThan(r.MinSpend) {
		return ErrMinimumSpendUnmet
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrVoucherInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrVoucherExpired
	}
	return nil
}

// Compute determines the discount amount for the eligible cart value. The
// discount never exceeds the eligible value and is never negative.
func Compute(eligible decimal.Decimal, r Rule) decimal.Decimal {
	if eligible.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	discount := r.Value
	if strings.EqualFold(r.Kind, "percent") {
		if r.PercentBps <= 0 {
			return decimal.Zero
		}
		discount = eligible.Mul(decimal.NewFromInt(int64(r.PercentBps))).Div(tenThousand).Round(2)
	}
	if discount.GreaterThan(eligible) {
		discount = eligible
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}
