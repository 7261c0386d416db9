package book

import "github.com/shopspring/decimal"

// Snapshot is an immutable copy of the top of a book, handed to strategies.
type Snapshot struct {
	Symbol string  `yaml:"symbol"`
	Time   int64   `yaml:"time"`
	Bids   []Level `yaml:"bids"`
	Asks   []Level `yaml:"asks"`
}

// Snapshot copies up to depth levels per side (depth <= 0 copies everything).
func (b *Book) Snapshot(t int64, depth int) Snapshot {
	return Snapshot{
		Symbol: b.Symbol,
		Time:   t,
		Bids:   b.Levels(Bid, depth),
		Asks:   b.Levels(Ask, depth),
	}
}

func (s Snapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

func (s Snapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

func (s Snapshot) Mid() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Equal compares two snapshots level by level using decimal equality.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Symbol != o.Symbol || len(s.Bids) != len(o.Bids) || len(s.Asks) != len(o.Asks) {
		return false
	}
	for i := range s.Bids {
		if !s.Bids[i].Price.Equal(o.Bids[i].Price) || !s.Bids[i].Quantity.Equal(o.Bids[i].Quantity) {
			return false
		}
	}
	for i := range s.Asks {
		if !s.Asks[i].Price.Equal(o.Asks[i].Price) || !s.Asks[i].Quantity.Equal(o.Asks[i].Quantity) {
			return false
		}
	}
	return true
}
