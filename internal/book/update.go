package book

import "github.com/shopspring/decimal"

// Level is one (price, quantity) pair on either side of the book.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// Update is either a TickerUpdate or a DepthUpdate; nothing else implements it.
// Dispatch with a type switch (see OrderBook.Apply).
type Update interface {
	UpdateID() uint64
}

// TickerUpdate carries the single best bid and best ask from the bookTicker
// stream. Applying it writes at most one level per side.
type TickerUpdate struct {
	ID     uint64
	Symbol string
	Bid    Level
	Ask    Level
}

func (u TickerUpdate) UpdateID() uint64 { return u.ID }

// DepthUpdate carries zero or more level writes per side. Entries are applied
// in order; a later entry for the same price overrides an earlier one.
type DepthUpdate struct {
	ID   uint64
	Bids []Level
	Asks []Level
}

func (u DepthUpdate) UpdateID() uint64 { return u.ID }
