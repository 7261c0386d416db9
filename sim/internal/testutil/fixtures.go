// Package testutil provides shared test fixtures for the lobsim packages: decimal
// shorthand and market data record builders.
package testutil

import (
	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/marketdata"
)

// DefaultSymbol is the symbol fixtures use unless told otherwise.
const DefaultSymbol = "BTCUSDT"

// D parses a decimal literal and panics on bad input.
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Level builds a book level from literals.
func Level(price, qty string) book.Level {
	return book.Level{Price: D(price), Quantity: D(qty)}
}

// Depth builds a depth record for DefaultSymbol.
func Depth(ts int64, side book.Side, price, qty string, updateID uint64) marketdata.Update {
	return marketdata.Update{
		Symbol: DefaultSymbol, Timestamp: ts, Type: marketdata.Depth,
		Side: side, Price: D(price), Quantity: D(qty), UpdateID: updateID,
	}
}

// Trade builds a trade print for DefaultSymbol; aggressor is the taker side.
func Trade(ts int64, aggressor book.Side, price, qty string) marketdata.Update {
	return marketdata.Update{
		Symbol: DefaultSymbol, Timestamp: ts, Type: marketdata.Trade,
		Side: aggressor, Price: D(price), Quantity: D(qty),
	}
}

// Snapshot builds a snapshot record for DefaultSymbol.
func Snapshot(ts int64, updateID uint64, bids, asks []book.Level) marketdata.Update {
	return marketdata.Update{
		Symbol: DefaultSymbol, Timestamp: ts, Type: marketdata.Snapshot,
		UpdateID: updateID, Bids: bids, Asks: asks,
	}
}

// Ladder returns a two-sided snapshot of n levels around mid with a one-unit tick and
// qty per level: bids mid-1 .. mid-n, asks mid+1 .. mid+n.
func Ladder(ts int64, mid int64, n int, qty string) marketdata.Update {
	var bids, asks []book.Level
	for i := int64(1); i <= int64(n); i++ {
		bids = append(bids, book.Level{Price: decimal.NewFromInt(mid - i), Quantity: D(qty)})
		asks = append(asks, book.Level{Price: decimal.NewFromInt(mid + i), Quantity: D(qty)})
	}
	return Snapshot(ts, 1, bids, asks)
}
