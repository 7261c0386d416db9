package sim

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/marketdata"
)

// EventKind names an event variant.
type EventKind string

const (
	KindMarketData  EventKind = "market_data"
	KindOrderSubmit EventKind = "order_submit"
	KindOrderCancel EventKind = "order_cancel"
	KindOrderAck    EventKind = "order_ack"
	KindFill        EventKind = "fill"
	KindTimeout     EventKind = "timeout"
)

// Venue is where an event executes: the simulated exchange or the strategy host.
// Messages crossing between the two pass through the latency model.
type Venue uint8

const (
	AtExchange Venue = iota
	AtClient
)

func (v Venue) String() string {
	if v == AtExchange {
		return "exchange"
	}
	return "client"
}

// Event defines the interface for all simulation events.
// Timestamp and Seq are assigned by the EventQueue on insertion; together they are the
// only ordering key. Execute advances simulation state and may schedule further events.
// A non-nil error from Execute is fatal to the run.
type Event interface {
	Timestamp() int64
	Seq() uint64
	Kind() EventKind
	// Subject identifies what the event is about; folded into the run digest.
	Subject() string
	Execute(*Simulator) error

	stamp(t int64, seq uint64)
}

// header carries the queue-assigned ordering key of an event.
type header struct {
	time int64
	seq  uint64
}

func (h *header) Timestamp() int64          { return h.time }
func (h *header) Seq() uint64               { return h.seq }
func (h *header) stamp(t int64, seq uint64) { h.time, h.seq = t, seq }

// MarketDataEvent is one market data record. At the exchange it updates the true book and
// may execute resting orders; at the client it updates the local book and wakes the strategy.
type MarketDataEvent struct {
	header
	Venue  Venue
	Update marketdata.Update
}

func (e *MarketDataEvent) Kind() EventKind { return KindMarketData }
func (e *MarketDataEvent) Subject() string { return e.Venue.String() + " " + e.Update.String() }

func (e *MarketDataEvent) Execute(sim *Simulator) error {
	if e.Venue == AtExchange {
		return sim.onExchangeMarketData(e.Update)
	}
	return sim.onClientMarketData(e.Update)
}

// OrderRequest is what travels on the wire for a new order.
type OrderRequest struct {
	ID       string
	Symbol   string
	Side     book.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderSubmitEvent carries a new order: at the client it passes the risk gate, at the
// exchange it rests or executes.
type OrderSubmitEvent struct {
	header
	Venue   Venue
	Request OrderRequest
}

func (e *OrderSubmitEvent) Kind() EventKind { return KindOrderSubmit }
func (e *OrderSubmitEvent) Subject() string { return e.Venue.String() + " " + e.Request.ID }

func (e *OrderSubmitEvent) Execute(sim *Simulator) error {
	if e.Venue == AtExchange {
		sim.onExchangeSubmit(e.Request)
		return nil
	}
	return sim.onClientSubmit(e.Request.ID)
}

// OrderCancelEvent carries a cancel request. Auto marks cancels issued by the engine
// for orders it has written off after an ack timeout.
type OrderCancelEvent struct {
	header
	Venue   Venue
	OrderID string
	Auto    bool
}

func (e *OrderCancelEvent) Kind() EventKind { return KindOrderCancel }
func (e *OrderCancelEvent) Subject() string { return e.Venue.String() + " " + e.OrderID }

func (e *OrderCancelEvent) Execute(sim *Simulator) error {
	if e.Venue == AtExchange {
		sim.onExchangeCancel(e.OrderID)
		return nil
	}
	return sim.onClientCancel(e.OrderID, e.Auto)
}

// AckResult is the exchange's verdict carried by an OrderAckEvent.
type AckResult string

const (
	AckAccepted       AckResult = "accepted"
	AckRejected       AckResult = "rejected"
	AckCancelled      AckResult = "cancelled"
	AckCancelRejected AckResult = "cancel_rejected"
)

// OrderAckEvent is an exchange report about an order: acceptance (with the queue position
// of a resting order), rejection, or the outcome of a cancel. Always executes at the client.
type OrderAckEvent struct {
	header
	OrderID       string
	Result        AckResult
	Reason        string
	QueuePosition decimal.Decimal
	ExchangeTime  int64
}

func (e *OrderAckEvent) Kind() EventKind { return KindOrderAck }
func (e *OrderAckEvent) Subject() string {
	return fmt.Sprintf("%s %s %s", e.OrderID, e.Result, e.Reason)
}

func (e *OrderAckEvent) Execute(sim *Simulator) error { return sim.onAck(e) }

// FillEvent is an execution report. Always executes at the client.
type FillEvent struct {
	header
	Fill Fill
}

func (e *FillEvent) Kind() EventKind { return KindFill }
func (e *FillEvent) Subject() string {
	return fmt.Sprintf("%s %s %s@%s", e.Fill.OrderID, e.Fill.Liquidity, e.Fill.Quantity, e.Fill.Price)
}

func (e *FillEvent) Execute(sim *Simulator) error { return sim.onFill(e.Fill) }

// TimeoutEvent fires AckTimeout after an order passed the risk gate.
type TimeoutEvent struct {
	header
	OrderID string
}

func (e *TimeoutEvent) Kind() EventKind { return KindTimeout }
func (e *TimeoutEvent) Subject() string { return e.OrderID }

func (e *TimeoutEvent) Execute(sim *Simulator) error { return sim.onTimeout(e.OrderID) }
