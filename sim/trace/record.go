// Package trace provides run-trace recording and the regression digest of a simulation run.
// This package does not import sim/; it stores plain data types.
package trace

// EventRecord captures one dispatched event.
type EventRecord struct {
	Seq     uint64
	Clock   int64
	Kind    string
	Subject string
}

// DecisionRecord captures a pre-trade risk decision or an exchange-side verdict on an order.
type DecisionRecord struct {
	OrderID  string
	Clock    int64
	Approved bool
	Source   string // risk, exchange, timeout or validation
	Reason   string
	Detail   string
}

// DropRecord captures a message lost in transit.
type DropRecord struct {
	Clock   int64
	Channel string
	Subject string
	Reason  string
}
