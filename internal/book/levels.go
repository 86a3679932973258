package book

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"
)

// priceLevels is one side of the book: an ordered map from price to quantity.
// Keys are compared with decimal.Cmp, so numerically equal prices that carry
// different exponents ("100" vs "100.00") collapse into a single level.
type priceLevels struct {
	m *treemap.Map
}

func newPriceLevels() *priceLevels {
	return &priceLevels{m: treemap.NewWith(decimalComparator)}
}

func decimalComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// set upserts the quantity at a price. A quantity <= 0 removes the level;
// a level is either present with positive quantity or absent.
func (pl *priceLevels) set(price, qty decimal.Decimal) {
	if qty.Sign() <= 0 {
		pl.m.Remove(price)
		return
	}
	pl.m.Put(price, qty)
}

func (pl *priceLevels) get(price decimal.Decimal) (decimal.Decimal, bool) {
	v, ok := pl.m.Get(price)
	if !ok {
		return decimal.Zero, false
	}
	return v.(decimal.Decimal), true
}

func (pl *priceLevels) min() (Level, bool) {
	k, v := pl.m.Min()
	if k == nil {
		return Level{}, false
	}
	return Level{Price: k.(decimal.Decimal), Qty: v.(decimal.Decimal)}, true
}

func (pl *priceLevels) max() (Level, bool) {
	k, v := pl.m.Max()
	if k == nil {
		return Level{}, false
	}
	return Level{Price: k.(decimal.Decimal), Qty: v.(decimal.Decimal)}, true
}

func (pl *priceLevels) size() int { return pl.m.Size() }
