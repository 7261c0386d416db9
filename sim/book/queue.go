package book

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ShrinkModel decides how much of the quantity ahead of a resting order disappears
// when its visible level shrinks without a trade (i.e. somebody cancelled).
type ShrinkModel string

const (
	// ShrinkProRata assumes cancellations are spread uniformly through the queue:
	// ahead' = ahead * new/old.
	ShrinkProRata ShrinkModel = "pro-rata"
	// ShrinkPessimistic assumes cancellations come from the back of the queue:
	// ahead' = min(ahead, new).
	ShrinkPessimistic ShrinkModel = "pessimistic"
)

// IsValidShrinkModel returns true for recognized model names ("" defaults to pro-rata).
func IsValidShrinkModel(m string) bool {
	switch ShrinkModel(m) {
	case "", ShrinkProRata, ShrinkPessimistic:
		return true
	}
	return false
}

// Fill is an exchange-side execution of a tracked resting order.
type Fill struct {
	OrderID  string
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Leaves   decimal.Decimal
}

type levelKey struct {
	side  Side
	price decimal.Decimal
}

func (k levelKey) id() string { return fmt.Sprintf("%d/%s", k.side, k.price.String()) }

type tracked struct {
	id     string
	side   Side
	price  decimal.Decimal
	leaves decimal.Decimal
	ahead  decimal.Decimal // visible (external) quantity still ahead
}

// QueueTracker estimates, for every own resting order, how much quantity is ahead of it
// at its price level: external visible quantity that was there first plus the remaining
// quantity of own orders inserted earlier at the same level.
//
// Nothing is ever inserted ahead of a resting order, so its position can only fall.
type QueueTracker struct {
	model  ShrinkModel
	orders map[string]*tracked
	levels map[string][]*tracked // insertion order
	keys   map[string]levelKey
}

// NewQueueTracker creates a tracker; an empty model selects ShrinkProRata.
func NewQueueTracker(model ShrinkModel) *QueueTracker {
	if model == "" {
		model = ShrinkProRata
	}
	return &QueueTracker{
		model:  model,
		orders: make(map[string]*tracked),
		levels: make(map[string][]*tracked),
		keys:   make(map[string]levelKey),
	}
}

// Len returns the number of tracked resting orders.
func (q *QueueTracker) Len() int { return len(q.orders) }

// Add starts tracking a resting order that joins the back of its level, behind
// visibleAhead of external quantity. Returns the order's initial queue position.
func (q *QueueTracker) Add(id string, side Side, price, qty, visibleAhead decimal.Decimal) decimal.Decimal {
	if _, dup := q.orders[id]; dup {
		panic(fmt.Sprintf("QueueTracker: order %s already tracked", id))
	}
	t := &tracked{id: id, side: side, price: price, leaves: qty, ahead: decimal.Max(visibleAhead, decimal.Zero)}
	k := levelKey{side: side, price: price}
	q.orders[id] = t
	q.levels[k.id()] = append(q.levels[k.id()], t)
	q.keys[k.id()] = k
	pos, _ := q.Position(id)
	return pos
}

// Remove stops tracking an order (cancelled or fully filled). Returns false if unknown.
func (q *QueueTracker) Remove(id string) bool {
	t, ok := q.orders[id]
	if !ok {
		return false
	}
	delete(q.orders, id)
	kid := levelKey{side: t.side, price: t.price}.id()
	lvl := q.levels[kid]
	for i, o := range lvl {
		if o == t {
			lvl = append(lvl[:i], lvl[i+1:]...)
			break
		}
	}
	if len(lvl) == 0 {
		delete(q.levels, kid)
		delete(q.keys, kid)
	} else {
		q.levels[kid] = lvl
	}
	return true
}

// Leaves returns the exchange-side remaining quantity of a tracked order.
func (q *QueueTracker) Leaves(id string) (decimal.Decimal, bool) {
	t, ok := q.orders[id]
	if !ok {
		return decimal.Zero, false
	}
	return t.leaves, true
}

// Position returns the quantity ahead of order id at its level.
func (q *QueueTracker) Position(id string) (decimal.Decimal, bool) {
	t, ok := q.orders[id]
	if !ok {
		return decimal.Zero, false
	}
	pos := t.ahead
	for _, o := range q.levels[levelKey{side: t.side, price: t.price}.id()] {
		if o == t {
			break
		}
		pos = pos.Add(o.leaves)
	}
	return pos, true
}

// Positions returns the queue position of every tracked order.
func (q *QueueTracker) Positions() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(q.orders))
	for id := range q.orders {
		out[id], _ = q.Position(id)
	}
	return out
}

// OnLevelChange reacts to a visible level moving from old to new quantity outside a trade.
// Growth joins behind every resting order and changes nothing.
func (q *QueueTracker) OnLevelChange(side Side, price, old, new decimal.Decimal) {
	if !new.LessThan(old) {
		return
	}
	for _, t := range q.levels[levelKey{side: side, price: price}.id()] {
		ahead := t.ahead
		switch q.model {
		case ShrinkPessimistic:
			ahead = decimal.Min(ahead, new)
		default:
			if old.IsPositive() {
				ahead = ahead.Mul(new).Div(old)
			}
		}
		ahead = decimal.Min(ahead, new)
		// Division rounding must never move an order backwards.
		t.ahead = decimal.Max(decimal.Min(ahead, t.ahead), decimal.Zero)
	}
}

// OnTrade consumes qty traded at price against resting orders on the maker side.
// Orders at strictly better prices were traded through and fill first; at the trade
// price the queue is eaten from the front (external quantity ahead, then own orders
// in insertion order). Fully filled orders stop being tracked.
func (q *QueueTracker) OnTrade(maker Side, price, qty decimal.Decimal) []Fill {
	var keys []levelKey
	for _, k := range q.keys {
		if k.side != maker {
			continue
		}
		if k.price.Equal(price) || maker.Better(k.price, price) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return maker.Better(keys[i].price, keys[j].price) })

	budget := qty
	var fills []Fill
	var done []string
	for _, k := range keys {
		throughLevel := !k.price.Equal(price)
		consumed := decimal.Zero
		for _, t := range q.levels[k.id()] {
			if throughLevel {
				if !budget.IsPositive() {
					break
				}
				t.ahead = decimal.Zero
			} else {
				// external quantity eaten so far was ahead of every later order too
				t.ahead = decimal.Max(t.ahead.Sub(consumed), decimal.Zero)
				eat := decimal.Min(budget, t.ahead)
				t.ahead = t.ahead.Sub(eat)
				consumed = consumed.Add(eat)
				budget = budget.Sub(eat)
			}
			if !budget.IsPositive() || !t.ahead.IsZero() {
				continue
			}
			fill := decimal.Min(budget, t.leaves)
			t.leaves = t.leaves.Sub(fill)
			budget = budget.Sub(fill)
			fills = append(fills, Fill{OrderID: t.id, Side: t.side, Price: t.price, Quantity: fill, Leaves: t.leaves})
			if t.leaves.IsZero() {
				done = append(done, t.id)
			}
		}
	}
	for _, id := range done {
		q.Remove(id)
	}
	return fills
}

func (q *QueueTracker) levelKeys() []levelKey {
	out := make([]levelKey, 0, len(q.keys))
	for _, k := range q.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id() < out[j].id() })
	return out
}
