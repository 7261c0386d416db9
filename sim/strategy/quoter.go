package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/simerr"
)

// QuoterConfig parameterizes the Quoter. Prices are in quote currency, sizes in base.
type QuoterConfig struct {
	Symbol       string          `yaml:"symbol"` // "" quotes every symbol it sees
	HalfSpread   decimal.Decimal `yaml:"half_spread"`
	Size         decimal.Decimal `yaml:"size"`
	Skew         decimal.Decimal `yaml:"skew"`          // price shift per unit of inventory
	MaxInventory decimal.Decimal `yaml:"max_inventory"` // 0 = unlimited
	Requote      decimal.Decimal `yaml:"requote"`       // minimum target move before repricing
	TickSize     decimal.Decimal `yaml:"tick_size"`     // 0 = no rounding
}

// DefaultQuoterConfig suits the default synthetic market (tick 0.5 around 30000).
func DefaultQuoterConfig() QuoterConfig {
	return QuoterConfig{
		HalfSpread:   decimal.NewFromInt(1),
		Size:         decimal.RequireFromString("0.05"),
		Skew:         decimal.RequireFromString("0.5"),
		MaxInventory: decimal.NewFromInt(1),
		Requote:      decimal.RequireFromString("0.5"),
		TickSize:     decimal.RequireFromString("0.5"),
	}
}

// Validate returns a *simerr.ConfigurationError for the first invalid field.
func (c QuoterConfig) Validate() error {
	switch {
	case !c.Size.IsPositive():
		return simerr.Invalid("strategy.quoter.size", "must be positive, got %s", c.Size)
	case c.HalfSpread.IsNegative():
		return simerr.Invalid("strategy.quoter.half_spread", "must be >= 0, got %s", c.HalfSpread)
	case c.MaxInventory.IsNegative():
		return simerr.Invalid("strategy.quoter.max_inventory", "must be >= 0, got %s", c.MaxInventory)
	case c.Requote.IsNegative():
		return simerr.Invalid("strategy.quoter.requote", "must be >= 0, got %s", c.Requote)
	case c.TickSize.IsNegative():
		return simerr.Invalid("strategy.quoter.tick_size", "must be >= 0, got %s", c.TickSize)
	}
	return nil
}

type quote struct {
	id         string
	price      decimal.Decimal
	cancelling bool
}

// Quoter keeps one bid and one ask around a reservation price: mid shifted against
// inventory by Skew per unit held. A quote is cancelled and replaced once its target moves
// by Requote or more, and the side that would push |inventory| past MaxInventory is pulled.
type Quoter struct {
	cfg       QuoterConfig
	inventory decimal.Decimal
	quotes    map[book.Side]*quote
	filled    map[string]decimal.Decimal // order ID -> filled quantity already counted
}

func NewQuoter(cfg QuoterConfig) *Quoter {
	return &Quoter{
		cfg:    cfg,
		quotes: make(map[book.Side]*quote),
		filled: make(map[string]decimal.Decimal),
	}
}

// Inventory returns the position the quoter believes it holds.
func (q *Quoter) Inventory() decimal.Decimal { return q.inventory }

// Targets returns the bid and ask the quoter wants for mid.
func (q *Quoter) Targets(mid decimal.Decimal) (bid, ask decimal.Decimal) {
	reservation := mid.Sub(q.cfg.Skew.Mul(q.inventory))
	bid = q.round(reservation.Sub(q.cfg.HalfSpread), book.Bid)
	ask = q.round(reservation.Add(q.cfg.HalfSpread), book.Ask)
	if !bid.LessThan(ask) {
		tick := q.cfg.TickSize
		if !tick.IsPositive() {
			tick = decimal.New(1, -8)
		}
		ask = bid.Add(tick)
	}
	return bid, ask
}

// round moves a price to the tick grid, away from the market.
func (q *Quoter) round(p decimal.Decimal, side book.Side) decimal.Decimal {
	tick := q.cfg.TickSize
	if !tick.IsPositive() {
		return p
	}
	n := p.Div(tick)
	if side == book.Bid {
		return n.Floor().Mul(tick)
	}
	return n.Ceil().Mul(tick)
}

// allowed reports whether a full fill on side keeps |inventory| within MaxInventory.
func (q *Quoter) allowed(side book.Side) bool {
	if !q.cfg.MaxInventory.IsPositive() {
		return true
	}
	after := q.inventory.Add(q.cfg.Size.Mul(side.Sign()))
	return after.Abs().LessThanOrEqual(q.cfg.MaxInventory)
}

func (q *Quoter) OnBook(now int64, snap book.Snapshot) []sim.Intent {
	if q.cfg.Symbol != "" && snap.Symbol != q.cfg.Symbol {
		return nil
	}
	mid, ok := snap.Mid()
	if !ok {
		return nil
	}
	bid, ask := q.Targets(mid)
	var out []sim.Intent
	for _, t := range []struct {
		side  book.Side
		price decimal.Decimal
	}{{book.Bid, bid}, {book.Ask, ask}} {
		cur, live := q.quotes[t.side]
		switch {
		case !live:
			if q.allowed(t.side) && t.price.IsPositive() {
				q.quotes[t.side] = &quote{price: t.price}
				out = append(out, sim.Submit{Symbol: snap.Symbol, Side: t.side, Price: t.price, Quantity: q.cfg.Size, Tag: t.side.String()})
			}
		case cur.id != "" && !cur.cancelling:
			if !q.allowed(t.side) || cur.price.Sub(t.price).Abs().GreaterThanOrEqual(q.cfg.Requote) {
				cur.cancelling = true
				out = append(out, sim.Cancel{OrderID: cur.id})
			}
		}
	}
	return out
}

func (q *Quoter) OnOrderUpdate(now int64, o sim.OrderView) []sim.Intent {
	if prev, seen := q.filled[o.ID]; !seen || o.Filled.GreaterThan(prev) {
		q.inventory = q.inventory.Add(o.Filled.Sub(prev).Mul(o.Side.Sign()))
		q.filled[o.ID] = o.Filled
	}
	cur, ok := q.quotes[o.Side]
	if !ok || (cur.id != "" && cur.id != o.ID) {
		return nil
	}
	cur.id = o.ID
	if o.Terminal() {
		delete(q.quotes, o.Side)
		delete(q.filled, o.ID)
	}
	return nil
}
