package sim

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/lobsim/lobsim/sim/book"
)

// Liquidity tells whether a fill added or removed liquidity.
type Liquidity string

const (
	Maker Liquidity = "maker"
	Taker Liquidity = "taker"
)

// Fill is one execution as reported to the strategy host.
type Fill struct {
	OrderID      string          `yaml:"order_id"`
	Symbol       string          `yaml:"symbol"`
	Side         book.Side       `yaml:"side"`
	Price        decimal.Decimal `yaml:"price"`
	Quantity     decimal.Decimal `yaml:"quantity"`
	Fee          decimal.Decimal `yaml:"fee"`
	Liquidity    Liquidity       `yaml:"liquidity"`
	ExchangeTime int64           `yaml:"exchange_time"` // when it executed
	Time         int64           `yaml:"time"`          // when the report arrived
	Orphan       bool            `yaml:"orphan,omitempty"`
}

// FeeSchedule is a proportional fee on notional. Negative rates are rebates.
type FeeSchedule struct {
	Maker decimal.Decimal `yaml:"maker"`
	Taker decimal.Decimal `yaml:"taker"`
}

// Fee returns the fee charged for qty at price.
func (f FeeSchedule) Fee(l Liquidity, price, qty decimal.Decimal) decimal.Decimal {
	rate := f.Taker
	if l == Maker {
		rate = f.Maker
	}
	return rate.Mul(price).Mul(qty)
}

// Portfolio is the authoritative account state of a run: positions, cash and fees.
// Every reported fill is applied, including fills for orders the client has already
// written off.
type Portfolio struct {
	fees      FeeSchedule
	positions map[string]decimal.Decimal
	lastPrice map[string]decimal.Decimal
	cash      decimal.Decimal
	paid      decimal.Decimal
	volume    decimal.Decimal
}

func NewPortfolio(fees FeeSchedule) *Portfolio {
	return &Portfolio{
		fees:      fees,
		positions: make(map[string]decimal.Decimal),
		lastPrice: make(map[string]decimal.Decimal),
	}
}

// Apply books a fill and returns it with the fee filled in.
func (p *Portfolio) Apply(f Fill) Fill {
	f.Fee = p.fees.Fee(f.Liquidity, f.Price, f.Quantity)
	signed := f.Quantity.Mul(f.Side.Sign())
	p.positions[f.Symbol] = p.positions[f.Symbol].Add(signed)
	p.cash = p.cash.Sub(signed.Mul(f.Price)).Sub(f.Fee)
	p.paid = p.paid.Add(f.Fee)
	p.volume = p.volume.Add(f.Quantity)
	p.lastPrice[f.Symbol] = f.Price
	return f
}

// Position returns the signed position in symbol.
func (p *Portfolio) Position(symbol string) decimal.Decimal { return p.positions[symbol] }

// Positions returns a copy of every non-flat position.
func (p *Portfolio) Positions() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(p.positions))
	for s, q := range p.positions {
		if !q.IsZero() {
			out[s] = q
		}
	}
	return out
}

func (p *Portfolio) Cash() decimal.Decimal   { return p.cash }
func (p *Portfolio) Fees() decimal.Decimal   { return p.paid }
func (p *Portfolio) Volume() decimal.Decimal { return p.volume }

// LastPrice returns the price of the most recent fill in symbol.
func (p *Portfolio) LastPrice(symbol string) (decimal.Decimal, bool) {
	v, ok := p.lastPrice[symbol]
	return v, ok
}

// MarkToMarket returns cash plus every position valued at mark(symbol).
// Positions without a mark are valued at their last fill price.
func (p *Portfolio) MarkToMarket(mark func(symbol string) (decimal.Decimal, bool)) decimal.Decimal {
	symbols := make([]string, 0, len(p.positions))
	for s := range p.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	pnl := p.cash
	for _, s := range symbols {
		px, ok := mark(s)
		if !ok {
			px = p.lastPrice[s]
		}
		pnl = pnl.Add(p.positions[s].Mul(px))
	}
	return pnl
}

// EquityPoint is the marked-to-market PnL at one instant.
type EquityPoint struct {
	Time   int64           `yaml:"time"`
	Equity decimal.Decimal `yaml:"equity"`
}

// EquityCurve is the PnL path of a run. Only changes are recorded, and the running peak
// and worst drawdown are kept as points arrive.
type EquityCurve struct {
	points []EquityPoint
	peak   decimal.Decimal
	maxDD  decimal.Decimal
}

// Record appends equity at t unless it equals the last recorded value.
func (c *EquityCurve) Record(t int64, equity decimal.Decimal) {
	n := len(c.points)
	if n > 0 && c.points[n-1].Equity.Equal(equity) {
		return
	}
	c.points = append(c.points, EquityPoint{Time: t, Equity: equity})
	if n == 0 || equity.GreaterThan(c.peak) {
		c.peak = equity
	}
	if dd := c.peak.Sub(equity); dd.GreaterThan(c.maxDD) {
		c.maxDD = dd
	}
}

// Points returns a copy of the curve.
func (c *EquityCurve) Points() []EquityPoint { return append([]EquityPoint(nil), c.points...) }

// MaxDrawdown is the largest fall from a running peak, in quote currency.
func (c *EquityCurve) MaxDrawdown() decimal.Decimal { return c.maxDD }

// Sharpe is the mean over the standard deviation of the PnL steps between recorded
// points. Not annualized; zero with fewer than two steps or no variation.
func (c *EquityCurve) Sharpe() float64 {
	if len(c.points) < 3 {
		return 0
	}
	steps := make([]float64, 0, len(c.points)-1)
	for i := 1; i < len(c.points); i++ {
		steps = append(steps, c.points[i].Equity.Sub(c.points[i-1].Equity).InexactFloat64())
	}
	mean, std := stat.MeanStdDev(steps, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}
