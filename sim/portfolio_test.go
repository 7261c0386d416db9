package sim

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/internal/testutil"
)

func TestPortfolio_ApplyAndMark(t *testing.T) {
	d := testutil.D
	p := NewPortfolio(FeeSchedule{Maker: d("-0.0001"), Taker: d("0.001")})

	// GIVEN a maker buy of 2 @ 100 and a taker sell of 0.5 @ 110
	f := p.Apply(Fill{Symbol: "X", Side: book.Bid, Price: d("100"), Quantity: d("2"), Liquidity: Maker})
	assert.True(t, f.Fee.Equal(d("-0.02")), "maker rebate, got %s", f.Fee)
	f = p.Apply(Fill{Symbol: "X", Side: book.Ask, Price: d("110"), Quantity: d("0.5"), Liquidity: Taker})
	assert.True(t, f.Fee.Equal(d("0.055")))

	// THEN position, cash and fees add up
	assert.True(t, p.Position("X").Equal(d("1.5")))
	assert.True(t, p.Cash().Equal(d("-145.035")), "cash %s", p.Cash())
	assert.True(t, p.Fees().Equal(d("0.035")))
	assert.True(t, p.Volume().Equal(d("2.5")))

	// AND mark-to-market uses the mark, or the last fill without one
	withMark := p.MarkToMarket(func(string) (decimal.Decimal, bool) { return d("120"), true })
	assert.True(t, withMark.Equal(d("34.965")), "pnl %s", withMark)
	noMark := p.MarkToMarket(func(string) (decimal.Decimal, bool) { return decimal.Zero, false })
	assert.True(t, noMark.Equal(d("19.965")), "pnl %s", noMark)
}

func TestPortfolio_PositionsOmitsFlat(t *testing.T) {
	d := testutil.D
	p := NewPortfolio(FeeSchedule{})
	p.Apply(Fill{Symbol: "X", Side: book.Bid, Price: d("1"), Quantity: d("1")})
	p.Apply(Fill{Symbol: "X", Side: book.Ask, Price: d("1"), Quantity: d("1")})
	p.Apply(Fill{Symbol: "Y", Side: book.Ask, Price: d("1"), Quantity: d("2")})
	pos := p.Positions()
	assert.Len(t, pos, 1)
	assert.True(t, pos["Y"].Equal(d("-2")))
}

func TestEquityCurve_Drawdown(t *testing.T) {
	d := testutil.D
	var c EquityCurve

	// GIVEN a path 0 -> 10 -> 4 -> 12 -> 3 -> 3 -> 8
	for i, v := range []string{"0", "10", "4", "12", "3", "3", "8"} {
		c.Record(int64(i), d(v))
	}

	// THEN unchanged values are not recorded and the worst fall is 12 -> 3
	assert.Len(t, c.Points(), 6)
	assert.True(t, c.MaxDrawdown().Equal(d("9")), "max drawdown %s", c.MaxDrawdown())

	// AND the Sharpe ratio is mean/stddev of the steps 10, -6, 8, -9, 5
	assert.InDelta(t, 1.6/8.561542, c.Sharpe(), 1e-4)
}

func TestEquityCurve_Degenerate(t *testing.T) {
	d := testutil.D
	var c EquityCurve
	assert.Zero(t, c.Sharpe())
	assert.True(t, c.MaxDrawdown().IsZero())

	// a curve that only rises has no drawdown
	c.Record(0, d("-5"))
	c.Record(1, d("-1"))
	assert.True(t, c.MaxDrawdown().IsZero())
	assert.Zero(t, c.Sharpe(), "one step has no spread")

	// a curve that starts negative measures from its first point
	var neg EquityCurve
	neg.Record(0, d("-5"))
	neg.Record(1, d("-7"))
	assert.True(t, neg.MaxDrawdown().Equal(d("2")))
}
