// Defines the Order struct that models one strategy order and its lifecycle as seen by
// the strategy host: the client-side state machine driven by risk decisions and exchange
// reports.

package sim

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
)

// OrderState represents the client-side lifecycle state of an order.
type OrderState string

const (
	OrderNew             OrderState = "new"
	OrderPending         OrderState = "pending" // passed risk, in flight to the exchange
	OrderAcknowledged    OrderState = "acknowledged"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderCancelled       OrderState = "cancelled"
	OrderRejected        OrderState = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// legalTransitions is the complete state machine. Anything absent is illegal.
var legalTransitions = map[OrderState]map[OrderState]bool{
	OrderNew:             {OrderPending: true, OrderRejected: true},
	OrderPending:         {OrderAcknowledged: true, OrderRejected: true, OrderCancelled: true},
	OrderAcknowledged:    {OrderPartiallyFilled: true, OrderFilled: true, OrderCancelled: true},
	OrderPartiallyFilled: {OrderPartiallyFilled: true, OrderAcknowledged: true, OrderFilled: true, OrderCancelled: true},
}

// CanTransition reports whether from → to is legal.
func CanTransition(from, to OrderState) bool {
	return legalTransitions[from][to]
}

// TransitionError is returned for an illegal state change. The order is not modified.
type TransitionError struct {
	OrderID string
	From    OrderState
	To      OrderState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
}

// Order is one strategy order. Mutated only by Simulator event handlers.
type Order struct {
	ID       string
	Tag      string // strategy-supplied label, echoed back in views
	Symbol   string
	Side     book.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Filled   decimal.Decimal

	State        OrderState
	CreateTime   int64
	SubmitTime   int64 // when it passed the risk gate
	AckTime      int64
	RejectReason string
	Err          error // *RejectedError once rejected

	// QueuePosition is the quantity ahead of the order when the exchange accepted it
	// as a resting order. Zero for orders that crossed.
	QueuePosition decimal.Decimal
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// Transition moves the order to state to, or returns *TransitionError leaving it untouched.
func (o *Order) Transition(to OrderState) error {
	if !CanTransition(o.State, to) {
		return &TransitionError{OrderID: o.ID, From: o.State, To: to}
	}
	o.State = to
	return nil
}

// View returns an immutable copy for strategies and reports.
func (o *Order) View() OrderView {
	return OrderView{
		ID:            o.ID,
		Tag:           o.Tag,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Price:         o.Price,
		Quantity:      o.Quantity,
		Filled:        o.Filled,
		State:         o.State,
		RejectReason:  o.RejectReason,
		Err:           o.Err,
		QueuePosition: o.QueuePosition,
	}
}

// OrderView is a read-only snapshot of an order.
type OrderView struct {
	ID            string          `yaml:"id"`
	Tag           string          `yaml:"tag,omitempty"`
	Symbol        string          `yaml:"symbol"`
	Side          book.Side       `yaml:"side"`
	Price         decimal.Decimal `yaml:"price"`
	Quantity      decimal.Decimal `yaml:"quantity"`
	Filled        decimal.Decimal `yaml:"filled"`
	State         OrderState      `yaml:"state"`
	RejectReason  string          `yaml:"reject_reason,omitempty"`
	Err           error           `yaml:"-"` // *RejectedError for rejected orders
	QueuePosition decimal.Decimal `yaml:"queue_position"`
}

// Remaining returns the unfilled quantity.
func (v OrderView) Remaining() decimal.Decimal { return v.Quantity.Sub(v.Filled) }

// Terminal reports whether the order is finished.
func (v OrderView) Terminal() bool { return v.State.Terminal() }
