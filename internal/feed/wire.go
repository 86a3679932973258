package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"bookmirror/internal/book"
)

// ErrMalformedMessage means a payload matched neither the bookTicker nor the
// depth wire shape. Acks, subscription replies and heartbeats land here.
var ErrMalformedMessage = errors.New("message matches neither bookTicker nor depth shape")

// ParseError reports a wire field that did not parse as a decimal number.
// The whole update carrying it is rejected; nothing is applied.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// tickerMsg is the raw @bookTicker payload. Prices and quantities arrive as
// decimal strings.
type tickerMsg struct {
	UpdateID uint64 `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (m tickerMsg) complete() bool {
	return m.Symbol != "" && m.BidPrice != "" && m.BidQty != "" && m.AskPrice != "" && m.AskQty != ""
}

// depthMsg is the raw @depth20 partial-book payload. Levels arrive as
// [priceStr, qtyStr] pairs.
type depthMsg struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func (m depthMsg) complete() bool {
	return m.LastUpdateID != 0 && (m.Bids != nil || m.Asks != nil)
}

// DecodeMessage demultiplexes a raw stream payload by shape: bookTicker is
// tried first, then depth, mirroring the stream's message mix (tickers are far
// more frequent). Both paths parse strictly; one bad numeric field rejects the
// whole update.
func DecodeMessage(raw []byte) (book.Update, error) {
	var t tickerMsg
	if err := json.Unmarshal(raw, &t); err == nil && t.complete() {
		return normalizeTicker(t)
	}
	var d depthMsg
	if err := json.Unmarshal(raw, &d); err == nil && d.complete() {
		return normalizeDepth(d)
	}
	return nil, ErrMalformedMessage
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Field: field, Value: value, Err: err}
	}
	return v, nil
}

func normalizeTicker(m tickerMsg) (book.Update, error) {
	bidPrice, err := parseDecimal("bidPrice", m.BidPrice)
	if err != nil {
		return nil, err
	}
	bidQty, err := parseDecimal("bidQty", m.BidQty)
	if err != nil {
		return nil, err
	}
	askPrice, err := parseDecimal("askPrice", m.AskPrice)
	if err != nil {
		return nil, err
	}
	askQty, err := parseDecimal("askQty", m.AskQty)
	if err != nil {
		return nil, err
	}
	return book.TickerUpdate{
		ID:     m.UpdateID,
		Symbol: m.Symbol,
		Bid:    book.Level{Price: bidPrice, Qty: bidQty},
		Ask:    book.Level{Price: askPrice, Qty: askQty},
	}, nil
}

func normalizeDepth(m depthMsg) (book.Update, error) {
	bids, err := normalizeLevels("bids", m.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := normalizeLevels("asks", m.Asks)
	if err != nil {
		return nil, err
	}
	return book.DepthUpdate{ID: m.LastUpdateID, Bids: bids, Asks: asks}, nil
}

func normalizeLevels(side string, pairs [][]string) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, &ParseError{
				Field: fmt.Sprintf("%s[%d]", side, i),
				Value: fmt.Sprintf("%v", pair),
				Err:   errors.New("expected [price, qty] pair"),
			}
		}
		price, err := parseDecimal(fmt.Sprintf("%s[%d].price", side, i), pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal(fmt.Sprintf("%s[%d].qty", side, i), pair[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, book.Level{Price: price, Qty: qty})
	}
	return levels, nil
}
