package cartengine

import "github.com/shopspring/decimal"

// TaxBucket aggregates tax amounts for one rate. Amounts accumulate at
// full precision; rounding happens at read time.
type TaxBucket struct {
	Rate         decimal.Decimal
	OriginalRate decimal.Decimal

	amount decimal.Decimal
}

// Amount returns the accumulated tax rounded to two decimal places.
func (b *TaxBucket) Amount() decimal.Decimal {
	return RoundMoney(b.amount)
}

// RawAmount returns the unrounded accumulated tax.
func (b *TaxBucket) RawAmount() decimal.Decimal {
	return b.amount
}

// BucketList keeps tax buckets in insertion order, which is the scan
// order used when resolving the most valuable tax rate.
type BucketList struct {
	buckets []*TaxBucket
}

// Add accumulates tax into the bucket for rate, creating it on first use.
func (l *BucketList) Add(rate, originalRate, tax decimal.Decimal) {
	for _, b := range l.buckets {
		if b.Rate.Equal(rate) {
			b.amount = b.amount.Add(tax)
			return
		}
	}
	l.buckets = append(l.buckets, &TaxBucket{Rate: rate, OriginalRate: originalRate, amount: tax})
}

// Buckets returns the buckets in insertion order.
func (l *BucketList) Buckets() []*TaxBucket {
	return l.buckets
}

// Find returns the bucket for the given rate if present.
func (l *BucketList) Find(rate decimal.Decimal) (*TaxBucket, bool) {
	for _, b := range l.buckets {
		if b.Rate.Equal(rate) {
			return b, true
		}
	}
	return nil, false
}

// Sum totals every bucket at full precision.
func (l *BucketList) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, b := range l.buckets {
		total = total.Add(b.amount)
	}
	return total
}

func (l *BucketList) clone() *BucketList {
	cp := &BucketList{buckets: make([]*TaxBucket, 0, len(l.buckets))}
	for _, b := range l.buckets {
		dup := *b
		cp.buckets = append(cp.buckets, &dup)
	}
	return cp
}
