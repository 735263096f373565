package ingest

import "math"

// DeriveDiscount returns round((old-new)/old*100) when old > 0 and
// 0 <= new <= old, otherwise nil.
func DeriveDiscount(oldPrice, newPrice *float64) *int {
	if oldPrice == nil || newPrice == nil {
		return nil
	}
	o, n := *oldPrice, *newPrice
	if !finite(o) || !finite(n) || o <= 0 || n < 0 || n > o {
		return nil
	}
	pct := int(math.Round((o - n) / o * 100))
	return &pct
}

// DeriveOldPrice recovers the original price from the sale price and a
// discount percentage. A discount of 100% or more has no finite answer.
func DeriveOldPrice(newPrice *float64, pct *int) *float64 {
	if newPrice == nil || pct == nil || !finite(*newPrice) || *pct < 0 || *pct >= 100 {
		return nil
	}
	v := math.Round(*newPrice / (1 - float64(*pct)/100))
	return &v
}

// DeriveNewPrice applies a discount percentage to the original price.
func DeriveNewPrice(oldPrice *float64, pct *int) *float64 {
	if oldPrice == nil || pct == nil || !finite(*oldPrice) || *pct < 0 || *pct > 100 {
		return nil
	}
	v := math.Round(*oldPrice * (1 - float64(*pct)/100))
	return &v
}

// Reconcile fills in whichever of the three values is missing when it can be
// derived. An explicit pct always wins over a computed one; a price is only
// derived when exactly one of the two is missing.
func Reconcile(oldPrice, newPrice *float64, pct *int) (*float64, *float64, *int) {
	if pct != nil {
		switch {
		case oldPrice == nil && newPrice != nil:
			oldPrice = DeriveOldPrice(newPrice, pct)
		case newPrice == nil && oldPrice != nil:
			newPrice = DeriveNewPrice(oldPrice, pct)
		}
		return oldPrice, newPrice, pct
	}
	return oldPrice, newPrice, DeriveDiscount(oldPrice, newPrice)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
