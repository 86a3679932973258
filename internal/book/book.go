package book

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// OrderBook mirrors one symbol's price levels from the exchange stream.
// A single RWMutex guards it: each validate+apply runs as one exclusive
// critical section, queries take the read lock. Either every check passes and
// the whole update lands, or nothing changes.
type OrderBook struct {
	mu           sync.RWMutex
	symbol       string
	lastUpdateID uint64
	bids         *priceLevels
	asks         *priceLevels
}

// New creates an empty book for symbol. The caller is expected to pass the
// canonical upper-cased form; updates are matched against it exactly.
func New(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   newPriceLevels(),
		asks:   newPriceLevels(),
	}
}

func (ob *OrderBook) Symbol() string { return ob.symbol }

func (ob *OrderBook) LastUpdateID() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastUpdateID
}

// CheckSymbol succeeds iff candidate matches the tracked symbol exactly.
func (ob *OrderBook) CheckSymbol(candidate string) error {
	return ob.checkSymbol(candidate)
}

// CheckSequence succeeds iff id is strictly greater than the last applied id.
func (ob *OrderBook) CheckSequence(id uint64) error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.checkSequence(id)
}

func (ob *OrderBook) checkSymbol(candidate string) error {
	if candidate != ob.symbol {
		return &SymbolMismatchError{Book: ob.symbol, Update: candidate}
	}
	return nil
}

func (ob *OrderBook) checkSequence(id uint64) error {
	if id <= ob.lastUpdateID {
		return &StaleUpdateError{LastApplied: ob.lastUpdateID, Incoming: id}
	}
	return nil
}

// Apply routes an update to ApplyTicker or ApplyDepth.
func (ob *OrderBook) Apply(u Update) error {
	switch v := u.(type) {
	case TickerUpdate:
		return ob.ApplyTicker(v)
	case DepthUpdate:
		return ob.ApplyDepth(v)
	default:
		return fmt.Errorf("unknown update type %T", u)
	}
}

// ApplyTicker validates and applies a best bid/ask update. On any validation
// error the book is left untouched.
func (ob *OrderBook) ApplyTicker(u TickerUpdate) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if err := ob.checkSymbol(u.Symbol); err != nil {
		return err
	}
	if err := ob.checkSequence(u.ID); err != nil {
		return err
	}

	ob.bids.set(u.Bid.Price, u.Bid.Qty)
	ob.asks.set(u.Ask.Price, u.Ask.Qty)
	ob.lastUpdateID = u.ID
	return nil
}

// ApplyDepth validates and applies a batch of level writes. The depth stream
// carries no symbol field, so only the sequence gate applies.
func (ob *OrderBook) ApplyDepth(u DepthUpdate) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if err := ob.checkSequence(u.ID); err != nil {
		return err
	}

	for _, lvl := range u.Bids {
		ob.bids.set(lvl.Price, lvl.Qty)
	}
	for _, lvl := range u.Asks {
		ob.asks.set(lvl.Price, lvl.Qty)
	}
	ob.lastUpdateID = u.ID
	return nil
}

// BestBidAsk returns the highest bid and lowest ask. ok is false when either
// side is empty.
func (ob *OrderBook) BestBidAsk() (bid, ask Level, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	b, okBid := ob.bids.max()
	a, okAsk := ob.asks.min()
	if !okBid || !okAsk {
		return Level{}, Level{}, false
	}
	return b, a, true
}

// VolumeAtPrice returns the quantity resting at price, checking bids before
// asks, or zero if the level exists on neither side. Bid priority on a
// crossed book is deliberate: a healthy feed never produces one, and when it
// does the buy side is the more conservative answer.
func (ob *OrderBook) VolumeAtPrice(price decimal.Decimal) decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if qty, ok := ob.bids.get(price); ok {
		return qty
	}
	if qty, ok := ob.asks.get(price); ok {
		return qty
	}
	return decimal.Zero
}

// Depth returns the number of levels currently held on each side.
func (ob *OrderBook) Depth() (bids, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bids.size(), ob.asks.size()
}
