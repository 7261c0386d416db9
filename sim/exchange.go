package sim

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/latency"
	"github.com/lobsim/lobsim/sim/marketdata"
)

// Exchange-side reject and cancel reasons.
const (
	ReasonExchangeReject = "exchange_reject"
	ReasonIOCRemainder   = "ioc_remainder"
	ReasonTooLate        = "too_late"
	ReasonUnknownOrder   = "unknown_order"
)

func (s *Simulator) exchangeBook(symbol string) *book.Book {
	b, ok := s.exchange[symbol]
	if !ok {
		b = book.New(symbol, book.NewQueueTracker(s.cfg.Book.QueueModel))
		s.exchange[symbol] = b
	}
	return b
}

// levelKey identifies one price level of an exchange book.
type levelKey struct {
	side  book.Side
	price string
}

func keyOf(side book.Side, price decimal.Decimal) levelKey {
	return levelKey{side: side, price: price.String()}
}

// resetTaken forgets own taker volume at levels the record restates. The replay never
// shows our own takes, so until a level changes its visible quantity still includes
// what we already took.
func (s *Simulator) resetTaken(u marketdata.Update) {
	switch u.Type {
	case marketdata.Depth:
		if m := s.taken[u.Symbol]; m != nil {
			delete(m, keyOf(u.Side, u.Price))
		}
	case marketdata.Snapshot:
		delete(s.taken, u.Symbol)
	}
}

// report sends an exchange report to the client.
func (s *Simulator) report(ev Event) {
	s.send(latency.ExchangeReport, ev, ev.Subject())
}

// onExchangeMarketData applies a record to the true book, reports maker fills of resting
// orders, forwards the record to the client over the market data channel and pulls the
// next record from the source.
func (s *Simulator) onExchangeMarketData(u marketdata.Update) error {
	fills, err := applyUpdate(s.exchangeBook(u.Symbol), u)
	if err != nil {
		return err
	}
	s.resetTaken(u)
	for _, f := range fills {
		s.report(&FillEvent{Fill: Fill{
			OrderID:      f.OrderID,
			Symbol:       u.Symbol,
			Side:         f.Side,
			Price:        f.Price,
			Quantity:     f.Quantity,
			Liquidity:    Maker,
			ExchangeTime: s.Clock,
		}})
	}
	if !s.send(latency.MarketData, &MarketDataEvent{Venue: AtClient, Update: u}, u.String()) {
		s.mdLost[u.Symbol] = s.Clock
	}
	_, err = s.feed()
	return err
}

// onExchangeSubmit matches a new order against visible depth. A marketable order takes
// liquidity level by level up to its limit without moving the replayed book. What it
// takes is not available to later orders until the level changes, and any remainder is
// cancelled. Otherwise it joins the back of its level.
func (s *Simulator) onExchangeSubmit(r OrderRequest) {
	s.exchangeOrders[r.ID] = r.Symbol
	if s.net.ExchangeReject() {
		logrus.Debugf("[tick %013d] exchange rejected %s", s.Clock, r.ID)
		s.report(&OrderAckEvent{OrderID: r.ID, Result: AckRejected, Reason: ReasonExchangeReject, ExchangeTime: s.Clock})
		return
	}
	b := s.exchangeBook(r.Symbol)

	var taken []Fill
	remaining := r.Quantity
	used := s.taken[r.Symbol]
	for _, lvl := range b.Levels(r.Side.Opposite(), 0) {
		if !remaining.IsPositive() || r.Side.Better(lvl.Price, r.Price) {
			break
		}
		k := keyOf(r.Side.Opposite(), lvl.Price)
		avail := lvl.Quantity.Sub(used[k])
		if !avail.IsPositive() {
			continue
		}
		q := decimal.Min(remaining, avail)
		remaining = remaining.Sub(q)
		if used == nil {
			used = make(map[levelKey]decimal.Decimal)
			s.taken[r.Symbol] = used
		}
		used[k] = used[k].Add(q)
		taken = append(taken, Fill{
			OrderID:      r.ID,
			Symbol:       r.Symbol,
			Side:         r.Side,
			Price:        lvl.Price,
			Quantity:     q,
			Liquidity:    Taker,
			ExchangeTime: s.Clock,
		})
	}

	ack := &OrderAckEvent{OrderID: r.ID, Result: AckAccepted, ExchangeTime: s.Clock}
	if len(taken) == 0 && !s.marketable(b, r) {
		ack.QueuePosition = b.Queue().Add(r.ID, r.Side, r.Price, r.Quantity, b.DepthAt(r.Side, r.Price))
		logrus.Debugf("[tick %013d] %s rests at %s behind %s", s.Clock, r.ID, r.Price, ack.QueuePosition)
		s.report(ack)
		return
	}
	s.report(ack)
	if len(taken) > 0 {
		logrus.Debugf("[tick %013d] %s took %s of %s", s.Clock, r.ID, r.Quantity.Sub(remaining), r.Quantity)
	}
	for i := range taken {
		s.report(&FillEvent{Fill: taken[i]})
	}
	if remaining.IsPositive() {
		s.report(&OrderAckEvent{OrderID: r.ID, Result: AckCancelled, Reason: ReasonIOCRemainder, ExchangeTime: s.Clock})
	}
}

// marketable reports whether r's limit reaches the opposite best price.
func (s *Simulator) marketable(b *book.Book, r OrderRequest) bool {
	best, ok := b.BestAsk()
	if r.Side == book.Ask {
		best, ok = b.BestBid()
	}
	return ok && !r.Side.Better(best.Price, r.Price)
}

// onExchangeCancel removes a resting order and confirms, or refuses when the order already
// left the book or never reached the exchange.
func (s *Simulator) onExchangeCancel(id string) {
	ack := &OrderAckEvent{OrderID: id, Result: AckCancelRejected, ExchangeTime: s.Clock}
	symbol, seen := s.exchangeOrders[id]
	switch {
	case !seen:
		ack.Reason = ReasonUnknownOrder
	case s.exchangeBook(symbol).Queue().Remove(id):
		ack.Result = AckCancelled
	default:
		ack.Reason = ReasonTooLate
	}
	s.report(ack)
}
