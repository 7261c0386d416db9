package sim

import (
	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
)

// Intent is an action requested by a strategy: Submit or Cancel.
type Intent interface {
	isIntent()
}

// Submit asks for a new limit order. Tag is echoed back in every OrderView of the order.
type Submit struct {
	Symbol   string
	Side     book.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Tag      string
}

// Cancel asks for a working order to be cancelled.
type Cancel struct {
	OrderID string
}

func (Submit) isIntent() {}
func (Cancel) isIntent() {}

// Strategy is the trading logic under test. It sees only the local (delayed) book and
// its own order updates, never the exchange-side book or queue estimates of other orders.
// Implementations hold per-run state; use a StrategyFactory to get one per run.
type Strategy interface {
	// OnBook is called after every market data record reaches the local book.
	OnBook(now int64, snap book.Snapshot) []Intent
	// OnOrderUpdate is called after every state change or fill of one of its orders.
	OnOrderUpdate(now int64, o OrderView) []Intent
}

// StrategyFactory creates a fresh strategy instance for one run.
type StrategyFactory func() Strategy
