package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/latency"
	"github.com/lobsim/lobsim/sim/marketdata"
	"github.com/lobsim/lobsim/sim/risk"
	"github.com/lobsim/lobsim/sim/trace"
)

// Client-side reject reasons and sources.
const (
	ReasonInvalidOrder = "invalid_order"
	ReasonAckTimeout   = "ack_timeout"

	SourceRisk       = "risk"
	SourceExchange   = "exchange"
	SourceTimeout    = "timeout"
	SourceValidation = "validation"
)

func (s *Simulator) localBook(symbol string) *book.Book {
	b, ok := s.local[symbol]
	if !ok {
		b = book.New(symbol, nil)
		s.local[symbol] = b
	}
	return b
}

// onClientMarketData applies a delivered record to the local book and shows the strategy
// the result. A crossing update is fatal unless the network lost a record of that symbol
// before this one was sent: then the local book is invalidated and the strategy sees
// nothing until a snapshot restores it.
func (s *Simulator) onClientMarketData(u marketdata.Update) error {
	b := s.localBook(u.Symbol)
	if _, err := applyUpdate(b, u); err != nil {
		lostAt, lossy := s.mdLost[u.Symbol]
		if !errors.Is(err, ErrDesync) || !lossy || lostAt > u.Timestamp {
			return err
		}
		b.AwaitSnapshot()
		logrus.Warnf("[tick %013d] %s local book invalidated after lost market data, waiting for a snapshot: %v", s.Clock, u.Symbol, err)
		return nil
	}
	if b.AwaitingSnapshot() {
		return nil
	}
	if u.Type == marketdata.Snapshot {
		if lostAt, ok := s.mdLost[u.Symbol]; ok && lostAt <= u.Timestamp {
			delete(s.mdLost, u.Symbol)
		}
	}
	s.recordEquity()
	s.dispatch(s.strategy.OnBook(s.Clock, b.Snapshot(s.Clock, s.cfg.Book.SnapshotDepth)))
	return nil
}

// dispatch turns strategy intents into client-side events at the current time.
func (s *Simulator) dispatch(intents []Intent) {
	for _, in := range intents {
		switch in := in.(type) {
		case Submit:
			s.orderSeq++
			o := &Order{
				ID:         fmt.Sprintf("o-%06d", s.orderSeq),
				Tag:        in.Tag,
				Symbol:     in.Symbol,
				Side:       in.Side,
				Price:      in.Price,
				Quantity:   in.Quantity,
				State:      OrderNew,
				CreateTime: s.Clock,
			}
			s.orders[o.ID] = o
			s.Schedule(&OrderSubmitEvent{Venue: AtClient, Request: o.request()}, 0)
		case Cancel:
			s.Schedule(&OrderCancelEvent{Venue: AtClient, OrderID: in.OrderID}, 0)
		}
	}
}

func (o *Order) request() OrderRequest {
	return OrderRequest{ID: o.ID, Symbol: o.Symbol, Side: o.Side, Price: o.Price, Quantity: o.Quantity}
}

// transition applies a state change and keeps the working set current.
func (s *Simulator) transition(o *Order, to OrderState) error {
	if err := o.Transition(to); err != nil {
		return err
	}
	switch {
	case to == OrderPending:
		s.working[o.ID] = o
	case to.Terminal():
		delete(s.working, o.ID)
	}
	return nil
}

func (s *Simulator) notify(o *Order) {
	s.dispatch(s.strategy.OnOrderUpdate(s.Clock, o.View()))
}

// reject moves a Pending order to Rejected and records why.
func (s *Simulator) reject(o *Order, source, reason, detail string) error {
	if err := s.transition(o, OrderRejected); err != nil {
		return err
	}
	rej := Rejection{
		OrderID: o.ID, Symbol: o.Symbol, Time: s.Clock,
		Source: source, Reason: reason, Detail: detail,
	}
	s.rejections = append(s.rejections, rej)
	o.RejectReason = reason
	o.Err = rej.Err()
	if source != SourceRisk {
		s.trace.RecordDecision(trace.DecisionRecord{OrderID: o.ID, Clock: s.Clock, Source: source, Reason: reason, Detail: detail})
	}
	logrus.Debugf("[tick %013d] %s rejected by %s: %s %s", s.Clock, o.ID, source, reason, detail)
	s.notify(o)
	return nil
}

func validOrder(o *Order) error {
	switch {
	case o.Symbol == "":
		return fmt.Errorf("empty symbol")
	case !o.Side.Valid():
		return fmt.Errorf("side %s", o.Side)
	case !o.Price.IsPositive():
		return fmt.Errorf("price %s must be positive", o.Price)
	case !o.Quantity.IsPositive():
		return fmt.Errorf("quantity %s must be positive", o.Quantity)
	}
	return nil
}

// riskState is the account state an order is evaluated against: filled position plus
// working orders on the same side of the same symbol, and the count of working orders.
func (s *Simulator) riskState(o *Order) risk.State {
	exposure := s.portfolio.Position(o.Symbol)
	for _, w := range s.working {
		if w.Symbol == o.Symbol && w.Side == o.Side && w.ID != o.ID {
			exposure = exposure.Add(w.Remaining().Mul(w.Side.Sign()))
		}
	}
	open := len(s.working)
	if _, ok := s.working[o.ID]; ok {
		open--
	}
	return risk.State{Position: exposure, RecentRate: s.risk.RecentRate(s.Clock), OpenOrders: open}
}

// onClientSubmit runs the pre-trade gate and, on approval, puts the order on the wire.
func (s *Simulator) onClientSubmit(id string) error {
	o := s.orders[id]
	st := s.riskState(o)
	if err := s.transition(o, OrderPending); err != nil {
		return err
	}
	o.SubmitTime = s.Clock
	if err := validOrder(o); err != nil {
		return s.reject(o, SourceValidation, ReasonInvalidOrder, err.Error())
	}

	d := s.risk.Evaluate(risk.Request{OrderID: o.ID, Symbol: o.Symbol, Side: o.Side, Price: o.Price, Quantity: o.Quantity}, st)
	s.trace.RecordDecision(trace.DecisionRecord{
		OrderID: o.ID, Clock: s.Clock, Approved: d.Approved,
		Source: SourceRisk, Reason: string(d.Reason), Detail: d.Detail,
	})
	if !d.Approved {
		s.riskBreaches++
		return s.reject(o, SourceRisk, string(d.Reason), d.Detail)
	}

	s.risk.Record(s.Clock)
	s.ordersSubmitted++
	s.quantitySubmitted = s.quantitySubmitted.Add(o.Quantity)
	s.Schedule(&TimeoutEvent{OrderID: o.ID}, s.cfg.AckTimeout)
	s.send(latency.OrderEntry, &OrderSubmitEvent{Venue: AtExchange, Request: o.request()}, o.ID)
	s.notify(o)
	return nil
}

// onClientCancel forwards a cancel to the exchange. Cancels for finished orders are
// dropped locally unless the engine issued them.
func (s *Simulator) onClientCancel(id string, auto bool) error {
	o, ok := s.orders[id]
	if !ok {
		logrus.Warnf("[tick %013d] cancel for unknown order %s ignored", s.Clock, id)
		return nil
	}
	if o.State.Terminal() && !auto {
		return nil
	}
	s.send(latency.OrderEntry, &OrderCancelEvent{Venue: AtExchange, OrderID: id, Auto: auto}, id)
	return nil
}

// onAck applies an exchange report to the client-side order. Reports for orders the
// client has already finished are ignored.
func (s *Simulator) onAck(e *OrderAckEvent) error {
	o, ok := s.orders[e.OrderID]
	if !ok {
		logrus.Warnf("[tick %013d] report for unknown order %s ignored", s.Clock, e.OrderID)
		return nil
	}
	switch e.Result {
	case AckAccepted:
		if o.State != OrderPending {
			logrus.Debugf("[tick %013d] late ack for %s (%s) ignored", s.Clock, o.ID, o.State)
			return nil
		}
		o.QueuePosition = e.QueuePosition
		o.AckTime = s.Clock
		if err := s.transition(o, OrderAcknowledged); err != nil {
			return err
		}
	case AckRejected:
		if o.State != OrderPending {
			return nil
		}
		return s.reject(o, SourceExchange, e.Reason, "")
	case AckCancelled:
		if o.State.Terminal() {
			return nil
		}
		if err := s.transition(o, OrderCancelled); err != nil {
			return err
		}
	case AckCancelRejected:
		logrus.Debugf("[tick %013d] cancel of %s refused: %s", s.Clock, o.ID, e.Reason)
		return nil
	}
	s.notify(o)
	return nil
}

// onFill books an execution. The portfolio always takes it; an order the client no
// longer considers live is left alone and the fill is counted as an orphan.
func (s *Simulator) onFill(f Fill) error {
	f.Time = s.Clock
	f = s.portfolio.Apply(f)
	s.quantityFilled = s.quantityFilled.Add(f.Quantity)

	o, ok := s.orders[f.OrderID]
	if !ok || (o.State != OrderAcknowledged && o.State != OrderPartiallyFilled) {
		f.Orphan = true
		s.orphanFills++
		s.fills = append(s.fills, f)
		s.recordEquity()
		logrus.Warnf("[tick %013d] orphan fill %s %s@%s", s.Clock, f.OrderID, f.Quantity, f.Price)
		return nil
	}
	s.fills = append(s.fills, f)
	s.recordEquity()
	o.Filled = o.Filled.Add(f.Quantity)
	to := OrderPartiallyFilled
	if !o.Remaining().IsPositive() {
		to = OrderFilled
	}
	if err := s.transition(o, to); err != nil {
		return err
	}
	s.notify(o)
	return nil
}

// onTimeout writes off an order whose ack never arrived and tells the exchange to cancel
// it in case only the ack was slow.
func (s *Simulator) onTimeout(id string) error {
	o := s.orders[id]
	if o.State != OrderPending {
		return nil
	}
	s.Schedule(&OrderCancelEvent{Venue: AtClient, OrderID: id, Auto: true}, 0)
	return s.reject(o, SourceTimeout, ReasonAckTimeout, fmt.Sprintf("no ack within %dns", s.cfg.AckTimeout))
}
