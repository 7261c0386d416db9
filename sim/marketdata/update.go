// Package marketdata defines the market data records replayed into a run and the
// sources that produce them: in-memory slices, CSV files and a seeded synthetic generator.
package marketdata

import (
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/simerr"
)

// Type of a market data record.
type Type string

const (
	Depth    Type = "depth"    // absolute quantity of one level
	Trade    Type = "trade"    // aggregated trade print, Side is the aggressor
	Snapshot Type = "snapshot" // full ladder in Bids/Asks
)

// Update is one market data record.
type Update struct {
	Symbol    string
	Timestamp int64 // ns, non-decreasing within a source
	Type      Type
	Side      book.Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	UpdateID  uint64 // 0 = unsequenced

	Bids []book.Level // Snapshot only
	Asks []book.Level // Snapshot only
}

// Validate checks the record against the input schema. Book-level consistency
// (crossing) is checked when the record is applied.
func (u Update) Validate() error {
	if u.Symbol == "" {
		return simerr.Malformed("symbol", "", "must not be empty")
	}
	if u.Timestamp < 0 {
		return simerr.Malformed("timestamp", strconv.FormatInt(u.Timestamp, 10), "must be >= 0")
	}
	switch u.Type {
	case Depth, Trade:
		if !u.Side.Valid() {
			return simerr.Malformed("side", u.Side.String(), "must be bid or ask")
		}
		if !u.Price.IsPositive() {
			return simerr.Malformed("price", u.Price.String(), "must be positive")
		}
		if u.Quantity.IsNegative() || (u.Type == Trade && u.Quantity.IsZero()) {
			return simerr.Malformed("quantity", u.Quantity.String(), "out of range")
		}
	case Snapshot:
		for _, l := range append(append([]book.Level(nil), u.Bids...), u.Asks...) {
			if !l.Price.IsPositive() || !l.Quantity.IsPositive() {
				return simerr.Malformed("snapshot level", l.Price.String()+"@"+l.Quantity.String(), "price and quantity must be positive")
			}
		}
	default:
		return simerr.Malformed("type", string(u.Type), "must be depth, trade or snapshot")
	}
	return nil
}

func (u Update) String() string {
	switch u.Type {
	case Snapshot:
		return fmt.Sprintf("%s snapshot #%d (%d bids, %d asks)", u.Symbol, u.UpdateID, len(u.Bids), len(u.Asks))
	case Trade:
		return fmt.Sprintf("%s trade %s %s@%s", u.Symbol, u.Side, u.Quantity, u.Price)
	}
	return fmt.Sprintf("%s depth %s %s@%s #%d", u.Symbol, u.Side, u.Quantity, u.Price, u.UpdateID)
}

// Source produces market data records in timestamp order. Next returns io.EOF after
// the last record. Sources are consumed once.
type Source interface {
	Next() (Update, error)
}

// SliceSource replays an in-memory sequence.
type SliceSource struct {
	updates []Update
	pos     int
}

func NewSliceSource(updates ...Update) *SliceSource {
	return &SliceSource{updates: updates}
}

func (s *SliceSource) Next() (Update, error) {
	if s.pos >= len(s.updates) {
		return Update{}, io.EOF
	}
	u := s.updates[s.pos]
	s.pos++
	return u, nil
}

// Collect drains src into a slice, stopping at the first error other than io.EOF.
func Collect(src Source) ([]Update, error) {
	var out []Update
	for {
		u, err := src.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, u)
	}
}
