// Package book reconstructs per-symbol L2 price ladders from incremental depth updates
// and trade prints, and tracks the queue position of locally submitted resting orders.
//
// A Book is owned by exactly one simulation run and is never shared across goroutines;
// the underlying B-trees are created without locks.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/btree"

	"github.com/lobsim/lobsim/sim/simerr"
)

// Level is one aggregated price level of the visible (L2) book.
type Level struct {
	Price    decimal.Decimal `yaml:"price"`
	Quantity decimal.Decimal `yaml:"quantity"`
}

// DepthUpdate sets the absolute visible quantity of one level. Quantity zero removes it.
// UpdateID is optional (0 = unsequenced); sequenced updates at or below the last
// applied ID are stale and ignored.
type DepthUpdate struct {
	Time     int64
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	UpdateID uint64
}

// TradePrint is an aggregated trade at one price. Aggressor is the taker side,
// so resting liquidity on Aggressor.Opposite() is consumed.
type TradePrint struct {
	Time      int64
	Aggressor Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
}

// Stats counts book maintenance anomalies that are not fatal.
type Stats struct {
	Updates        int
	Trades         int
	StaleUpdates   int
	SequenceGaps   int
	Resyncs        int // times the book was invalidated to wait for a snapshot
	SkippedUpdates int // records ignored while waiting for a snapshot
}

// Book is the L2 ladder for one symbol.
type Book struct {
	Symbol string

	bids *btree.BTreeG[*Level] // best (highest) first
	asks *btree.BTreeG[*Level] // best (lowest) first

	queue        *QueueTracker
	lastUpdateID uint64
	stats        Stats
	awaiting     bool // invalidated, only a snapshot is applied
}

func newLadder(side Side) *btree.BTreeG[*Level] {
	less := func(a, b *Level) bool { return a.Price.LessThan(b.Price) }
	if side == Bid {
		less = func(a, b *Level) bool { return a.Price.GreaterThan(b.Price) }
	}
	return btree.NewBTreeGOptions(less, btree.Options{NoLocks: true})
}

// New creates an empty book. A nil tracker disables queue tracking (local views
// of the feed carry no resting orders).
func New(symbol string, tracker *QueueTracker) *Book {
	return &Book{
		Symbol: symbol,
		bids:   newLadder(Bid),
		asks:   newLadder(Ask),
		queue:  tracker,
	}
}

func (b *Book) ladder(side Side) *btree.BTreeG[*Level] {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// Queue returns the queue tracker attached to this book (may be nil).
func (b *Book) Queue() *QueueTracker { return b.queue }

// Stats returns maintenance counters.
func (b *Book) Stats() Stats { return b.stats }

// AwaitSnapshot invalidates the ladder after the owner lost records it needed. Depth
// updates and trades are skipped until the next snapshot replaces the ladder.
func (b *Book) AwaitSnapshot() {
	if !b.awaiting {
		b.awaiting = true
		b.stats.Resyncs++
	}
}

// AwaitingSnapshot reports whether the book is invalidated.
func (b *Book) AwaitingSnapshot() bool { return b.awaiting }

// LastUpdateID returns the highest sequenced update applied so far.
func (b *Book) LastUpdateID() uint64 { return b.lastUpdateID }

// BestBid returns the top bid; ok is false when the bid side is empty ("no quote").
func (b *Book) BestBid() (Level, bool) { return b.best(Bid) }

// BestAsk returns the top ask; ok is false when the ask side is empty ("no quote").
func (b *Book) BestAsk() (Level, bool) { return b.best(Ask) }

func (b *Book) best(side Side) (Level, bool) {
	lvl, ok := b.ladder(side).Min()
	if !ok {
		return Level{}, false
	}
	return *lvl, true
}

// Mid returns the midpoint of the top of book, if both sides are quoted.
func (b *Book) Mid() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread returns best ask minus best bid, if both sides are quoted.
func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// DepthAt returns the visible quantity at price on side (zero if no level).
func (b *Book) DepthAt(side Side, price decimal.Decimal) decimal.Decimal {
	lvl, ok := b.ladder(side).Get(&Level{Price: price})
	if !ok {
		return decimal.Zero
	}
	return lvl.Quantity
}

// Len returns the number of levels on side.
func (b *Book) Len(side Side) int { return b.ladder(side).Len() }

// Levels returns up to n levels of side in priority order (n <= 0 means all).
func (b *Book) Levels(side Side, n int) []Level {
	out := make([]Level, 0, max(0, min(n, b.Len(side))))
	b.ladder(side).Scan(func(lvl *Level) bool {
		if n > 0 && len(out) >= n {
			return false
		}
		out = append(out, *lvl)
		return true
	})
	return out
}

// Crossed reports whether best bid >= best ask. A well-formed book never is.
func (b *Book) Crossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	return okB && okA && bid.Price.GreaterThanOrEqual(ask.Price)
}

func (b *Book) validate(side Side, price, qty decimal.Decimal, allowZero bool) error {
	if !side.Valid() {
		return simerr.Malformed("side", side.String(), "must be bid or ask")
	}
	if !price.IsPositive() {
		return simerr.Malformed("price", price.String(), "must be positive")
	}
	if qty.IsNegative() || (!allowZero && qty.IsZero()) {
		return simerr.Malformed("quantity", qty.String(), "out of range")
	}
	return nil
}

// ApplyDepth applies one incremental depth update.
// Returns *simerr.MalformedInputError for invalid fields and *simerr.DesyncError when a
// positive quantity would cross the opposite side; in both cases the book is unchanged.
func (b *Book) ApplyDepth(u DepthUpdate) error {
	if err := b.validate(u.Side, u.Price, u.Quantity, true); err != nil {
		return err
	}
	if b.awaiting {
		b.stats.SkippedUpdates++
		return nil
	}
	if u.UpdateID != 0 {
		if b.lastUpdateID != 0 && u.UpdateID <= b.lastUpdateID {
			b.stats.StaleUpdates++
			logrus.Debugf("[tick %013d] %s: stale update %d <= %d ignored", u.Time, b.Symbol, u.UpdateID, b.lastUpdateID)
			return nil
		}
		if b.lastUpdateID != 0 && u.UpdateID > b.lastUpdateID+1 {
			b.stats.SequenceGaps++
			logrus.Warnf("[tick %013d] %s: sequence gap, expected %d got %d", u.Time, b.Symbol, b.lastUpdateID+1, u.UpdateID)
		}
	}

	ladder := b.ladder(u.Side)
	key := &Level{Price: u.Price}
	old := decimal.Zero
	if lvl, ok := ladder.Get(key); ok {
		old = lvl.Quantity
	}

	if u.Quantity.IsZero() {
		ladder.Delete(key)
	} else {
		if err := b.checkCross(u.Time, u.Side, u.Price); err != nil {
			return err
		}
		ladder.Set(&Level{Price: u.Price, Quantity: u.Quantity})
	}
	if u.UpdateID != 0 {
		b.lastUpdateID = u.UpdateID
	}
	b.stats.Updates++
	if b.queue != nil {
		b.queue.OnLevelChange(u.Side, u.Price, old, u.Quantity)
	}
	return nil
}

func (b *Book) checkCross(t int64, side Side, price decimal.Decimal) error {
	opp, ok := b.best(side.Opposite())
	if !ok {
		return nil
	}
	crosses := price.GreaterThanOrEqual(opp.Price)
	if side == Ask {
		crosses = price.LessThanOrEqual(opp.Price)
	}
	if !crosses {
		return nil
	}
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	return &simerr.DesyncError{
		Symbol:  b.Symbol,
		Time:    t,
		Side:    side.String(),
		Price:   price,
		BestBid: bid.Price,
		BestAsk: ask.Price,
		Reason:  "update would cross the book",
	}
}

// ApplyTrade applies a trade print: the maker-side level at the trade price loses the
// traded quantity and own resting maker orders are consumed in priority order.
// Returned fills are exchange-side executions of tracked orders.
func (b *Book) ApplyTrade(t TradePrint) ([]Fill, error) {
	if err := b.validate(t.Aggressor, t.Price, t.Quantity, false); err != nil {
		return nil, err
	}
	if b.awaiting {
		b.stats.SkippedUpdates++
		return nil, nil
	}
	maker := t.Aggressor.Opposite()
	ladder := b.ladder(maker)
	key := &Level{Price: t.Price}
	if lvl, ok := ladder.Get(key); ok {
		rest := lvl.Quantity.Sub(t.Quantity)
		if rest.IsPositive() {
			ladder.Set(&Level{Price: t.Price, Quantity: rest})
		} else {
			ladder.Delete(key)
		}
	}
	b.stats.Trades++
	if b.queue == nil {
		return nil, nil
	}
	return b.queue.OnTrade(maker, t.Price, t.Quantity), nil
}

// ApplySnapshot replaces the whole ladder. Levels must be positive and uncrossed.
// Tracked orders see each of their levels change from the old to the new quantity.
// A sequenced snapshot at or below the last applied ID is stale and ignored, unless the
// book is waiting for a snapshot to resync.
func (b *Book) ApplySnapshot(t int64, bids, asks []Level, updateID uint64) error {
	if updateID != 0 && b.lastUpdateID != 0 && updateID <= b.lastUpdateID && !b.awaiting {
		b.stats.StaleUpdates++
		logrus.Debugf("[tick %013d] %s: stale snapshot %d <= %d ignored", t, b.Symbol, updateID, b.lastUpdateID)
		return nil
	}
	nb, na := newLadder(Bid), newLadder(Ask)
	for _, side := range []struct {
		s      Side
		levels []Level
		ladder *btree.BTreeG[*Level]
	}{{Bid, bids, nb}, {Ask, asks, na}} {
		for _, lvl := range side.levels {
			if err := b.validate(side.s, lvl.Price, lvl.Quantity, false); err != nil {
				return err
			}
			side.ladder.Set(&Level{Price: lvl.Price, Quantity: lvl.Quantity})
		}
	}
	if bb, ok := nb.Min(); ok {
		if ba, ok := na.Min(); ok && bb.Price.GreaterThanOrEqual(ba.Price) {
			return &simerr.DesyncError{
				Symbol: b.Symbol, Time: t, Side: "snapshot", Price: bb.Price,
				BestBid: bb.Price, BestAsk: ba.Price, Reason: "snapshot is crossed",
			}
		}
	}

	if b.queue != nil {
		for _, k := range b.queue.levelKeys() {
			oldQty := b.DepthAt(k.side, k.price)
			newQty := decimal.Zero
			if lvl, ok := ladderFor(k.side, nb, na).Get(&Level{Price: k.price}); ok {
				newQty = lvl.Quantity
			}
			b.queue.OnLevelChange(k.side, k.price, oldQty, newQty)
		}
	}
	b.bids, b.asks = nb, na
	if updateID != 0 {
		b.lastUpdateID = updateID
	}
	b.awaiting = false
	b.stats.Updates++
	return nil
}

func ladderFor(side Side, bids, asks *btree.BTreeG[*Level]) *btree.BTreeG[*Level] {
	if side == Bid {
		return bids
	}
	return asks
}
