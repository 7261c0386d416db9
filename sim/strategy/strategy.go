// Package strategy provides reference strategies for lobsim runs and a name-based factory
// so runs and batches can be configured from YAML or flags.
package strategy

import (
	"fmt"
	"sort"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/simerr"
)

const (
	NamePassive = "passive"
	NameQuoter  = "quoter"
)

// validStrategies maps accepted strategy names.
var validStrategies = map[string]bool{
	NamePassive: true,
	NameQuoter:  true,
	"":          true, // empty defaults to quoter
}

// IsValidStrategy returns true if name is a recognized strategy.
func IsValidStrategy(name string) bool { return validStrategies[name] }

// ValidNames returns the recognized strategy names, sorted.
func ValidNames() []string {
	out := make([]string, 0, len(validStrategies))
	for n := range validStrategies {
		if n != "" {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Spec selects and parameterizes a strategy.
type Spec struct {
	Name   string       `yaml:"name"`
	Quoter QuoterConfig `yaml:"quoter"`
}

// DefaultSpec is the quoter with default parameters.
func DefaultSpec() Spec {
	return Spec{Name: NameQuoter, Quoter: DefaultQuoterConfig()}
}

// Factory validates s and returns a factory producing one fresh instance per run.
func (s Spec) Factory() (sim.StrategyFactory, error) {
	switch s.Name {
	case NamePassive:
		return func() sim.Strategy { return Passive{} }, nil
	case NameQuoter, "":
		if err := s.Quoter.Validate(); err != nil {
			return nil, err
		}
		cfg := s.Quoter
		return func() sim.Strategy { return NewQuoter(cfg) }, nil
	}
	return nil, simerr.Invalid("strategy.name", "unknown strategy %q; valid: %v", s.Name, ValidNames())
}

// Passive never trades. Useful to measure feed handling alone.
type Passive struct{}

func (Passive) OnBook(int64, book.Snapshot) []sim.Intent        { return nil }
func (Passive) OnOrderUpdate(int64, sim.OrderView) []sim.Intent { return nil }

func (s Spec) String() string {
	if s.Name == NamePassive {
		return NamePassive
	}
	q := s.Quoter
	return fmt.Sprintf("quoter(half_spread=%s size=%s skew=%s)", q.HalfSpread, q.Size, q.Skew)
}
