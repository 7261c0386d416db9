package book

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side of the book. For trade prints it names the aggressor.
type Side int8

const (
	Bid Side = 1
	Ask Side = -1
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side { return -s }

// Valid reports whether s is Bid or Ask.
func (s Side) Valid() bool { return s == Bid || s == Ask }

// Sign is +1 for Bid and -1 for Ask, i.e. the position change per unit bought or sold.
func (s Side) Sign() decimal.Decimal { return decimal.NewFromInt(int64(s)) }

// Better reports whether price a has priority over price b on this side.
func (s Side) Better(a, b decimal.Decimal) bool {
	if s == Bid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// ParseSide accepts bid/buy/b and ask/sell/a/s (case-insensitive).
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "bid", "buy", "b":
		return Bid, nil
	case "ask", "sell", "a", "s":
		return Ask, nil
	}
	return 0, fmt.Errorf("unknown side %q", v)
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", int8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
