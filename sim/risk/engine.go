// Package risk implements the synchronous pre-trade gate every outbound order passes
// before it may reach the simulated exchange.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/simerr"
)

// Reason is a machine-readable rejection cause.
type Reason string

const (
	ReasonFatFinger     Reason = "fat_finger"
	ReasonRateLimit     Reason = "rate_limit"
	ReasonPositionLimit Reason = "position_limit"
	ReasonOpenOrders    Reason = "open_order_limit"
)

// Limits of one run. Zero values disable the corresponding check.
type Limits struct {
	MaxOrderSize  decimal.Decimal `yaml:"max_order_size"`
	MaxOrderRate  int             `yaml:"max_order_rate"` // approved submissions per RateWindow
	RateWindow    int64           `yaml:"rate_window"`    // ns
	MaxPosition   decimal.Decimal `yaml:"max_position"`   // absolute, per symbol
	MaxOpenOrders int             `yaml:"max_open_orders"`
}

// DefaultLimits are loose enough for the bundled strategies.
func DefaultLimits() Limits {
	return Limits{
		MaxOrderSize: decimal.NewFromInt(1000),
		MaxOrderRate: 50,
		RateWindow:   1_000_000_000,
		MaxPosition:  decimal.NewFromInt(5000),
	}
}

// Validate returns a *simerr.ConfigurationError for the first invalid limit.
func (l Limits) Validate() error {
	if l.MaxOrderSize.IsNegative() {
		return simerr.Invalid("risk.max_order_size", "must be >= 0, got %s", l.MaxOrderSize)
	}
	if l.MaxOrderRate < 0 {
		return simerr.Invalid("risk.max_order_rate", "must be >= 0, got %d", l.MaxOrderRate)
	}
	if l.MaxOrderRate > 0 && l.RateWindow <= 0 {
		return simerr.Invalid("risk.rate_window", "must be > 0 when max_order_rate is set, got %d", l.RateWindow)
	}
	if l.MaxPosition.IsNegative() {
		return simerr.Invalid("risk.max_position", "must be >= 0, got %s", l.MaxPosition)
	}
	if l.MaxOpenOrders < 0 {
		return simerr.Invalid("risk.max_open_orders", "must be >= 0, got %d", l.MaxOpenOrders)
	}
	return nil
}

// Request is the order intent under evaluation.
type Request struct {
	OrderID  string
	Symbol   string
	Side     book.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// State is the authoritative account state the gate evaluates against.
type State struct {
	// Position is the signed exposure in the request's symbol: filled position plus
	// remaining quantity of working orders on the request's side.
	Position   decimal.Decimal
	RecentRate int // approved submissions within the current window
	OpenOrders int // working (non-terminal) orders across all symbols
}

// Decision is Approve or Reject(reason).
type Decision struct {
	Approved bool
	Reason   Reason
	Detail   string
}

func reject(r Reason, format string, args ...any) Decision {
	return Decision{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Engine holds the limits and the approved-submission window of one run.
type Engine struct {
	limits Limits
	window *SlidingWindow
}

// NewEngine creates an engine; limits must already be validated.
func NewEngine(limits Limits) *Engine {
	return &Engine{limits: limits, window: NewSlidingWindow(limits.RateWindow)}
}

// Limits returns the configured limits.
func (e *Engine) Limits() Limits { return e.limits }

// Evaluate runs the checks in order and stops at the first failure:
// order size, order rate, resulting position, open orders.
// It reads nothing but its arguments, so evaluating the same request against the
// same state always yields the same decision.
func (e *Engine) Evaluate(req Request, st State) Decision {
	l := e.limits
	if l.MaxOrderSize.IsPositive() && req.Quantity.GreaterThan(l.MaxOrderSize) {
		return reject(ReasonFatFinger, "size %s > max %s", req.Quantity, l.MaxOrderSize)
	}
	if l.MaxOrderRate > 0 && st.RecentRate >= l.MaxOrderRate {
		return reject(ReasonRateLimit, "%d orders in window >= max %d", st.RecentRate, l.MaxOrderRate)
	}
	if l.MaxPosition.IsPositive() {
		after := st.Position.Add(req.Quantity.Mul(req.Side.Sign()))
		if after.Abs().GreaterThan(l.MaxPosition) {
			return reject(ReasonPositionLimit, "resulting position %s exceeds max %s", after, l.MaxPosition)
		}
	}
	if l.MaxOpenOrders > 0 && st.OpenOrders >= l.MaxOpenOrders {
		return reject(ReasonOpenOrders, "%d open orders >= max %d", st.OpenOrders, l.MaxOpenOrders)
	}
	return Decision{Approved: true}
}

// RecentRate returns approved submissions within the window ending at now.
func (e *Engine) RecentRate(now int64) int { return e.window.Count(now) }

// Record logs an approved submission at now.
func (e *Engine) Record(now int64) { e.window.Add(now) }
