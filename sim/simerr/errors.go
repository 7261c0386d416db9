// Package simerr holds the run-level error taxonomy shared by every simulator package.
// It has no dependencies on sim/ so leaf packages (book, risk, latency, marketdata)
// can return these errors without import cycles; sim re-exports them.
package simerr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is matching.
var (
	ErrDesync         = errors.New("book desync")
	ErrMalformedInput = errors.New("malformed input")
	ErrConfiguration  = errors.New("invalid configuration")
	ErrRiskRejected   = errors.New("risk rejected")
)

// DesyncError reports an update that would cross the reconstructed book.
// Fatal to the run: the replay upstream is corrupt and the book is never patched.
type DesyncError struct {
	Symbol  string
	Time    int64
	Side    string
	Price   decimal.Decimal
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
	Reason  string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("desync on %s at %d: %s %s would cross (bid=%s ask=%s): %s",
		e.Symbol, e.Time, e.Side, e.Price, e.BestBid, e.BestAsk, e.Reason)
}

func (e *DesyncError) Unwrap() error { return ErrDesync }

// MalformedInputError reports an upstream record that violates the input schema.
type MalformedInputError struct {
	Field  string
	Value  string
	Reason string
	Line   int // 0 when the source has no line numbers
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input (line %d): %s=%q: %s", e.Line, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("malformed input: %s=%q: %s", e.Field, e.Value, e.Reason)
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

// Malformed is shorthand for building a MalformedInputError.
func Malformed(field, value, reason string) *MalformedInputError {
	return &MalformedInputError{Field: field, Value: value, Reason: reason}
}

// ConfigurationError reports an invalid parameter. Returned before any event is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Invalid is shorthand for building a ConfigurationError.
func Invalid(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RejectedError is an expected, recoverable rejection of an order.
// It is reported to the strategy and never retried by the engine.
type RejectedError struct {
	OrderID string
	Reason  string
	Detail  string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Reason)
	}
	return fmt.Sprintf("order %s rejected: %s (%s)", e.OrderID, e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error { return ErrRiskRejected }

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDesync) || errors.Is(err, ErrMalformedInput)
}
