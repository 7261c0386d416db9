// Package chaos runs Monte Carlo batches of simulations with randomized network
// parameters and aggregates the outcomes into distributions.
package chaos

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/simerr"
)

// Range is a closed interval sampled uniformly. Min == Max pins the value.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ParseRange parses "a,b" or a single value "a".
func ParseRange(s string) (Range, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return Range{}, fmt.Errorf("range %q: want min,max", s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	hi := lo
	if len(parts) == 2 {
		if hi, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
			return Range{}, fmt.Errorf("range %q: %w", s, err)
		}
	}
	return Range{Min: lo, Max: hi}, nil
}

func (r Range) String() string { return fmt.Sprintf("[%g, %g]", r.Min, r.Max) }

func (r Range) validate(field string, upper float64) error {
	switch {
	case math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0):
		return simerr.Invalid(field, "must be finite, got %s", r)
	case r.Min < 0:
		return simerr.Invalid(field, "must be >= 0, got %s", r)
	case r.Min > r.Max:
		return simerr.Invalid(field, "min exceeds max in %s", r)
	case r.Max > upper:
		return simerr.Invalid(field, "must be <= %g, got %s", upper, r)
	}
	return nil
}

func (r Range) draw(rng *rand.Rand) float64 {
	u := rng.Float64()
	if r.Min == r.Max {
		return r.Min
	}
	return r.Min + u*(r.Max-r.Min)
}

// ParameterRanges lists the parameters varied across a batch. A nil range keeps the
// base configuration's value. Latencies are nanoseconds and apply to every channel.
// PacketLoss applies to order entry, as the flat packet_loss_prob does.
type ParameterRanges struct {
	LatencyMean   *Range `yaml:"latency_mean"`
	LatencyStdDev *Range `yaml:"latency_stddev"`
	PacketLoss    *Range `yaml:"packet_loss_prob"`
	RejectProb    *Range `yaml:"reject_prob"`
}

// Validate returns a *simerr.ConfigurationError for the first invalid range.
func (p ParameterRanges) Validate() error {
	checks := []struct {
		field string
		r     *Range
		upper float64
	}{
		{"chaos.latency_mean", p.LatencyMean, math.MaxInt64 / 4},
		{"chaos.latency_stddev", p.LatencyStdDev, math.MaxInt64 / 4},
		{"chaos.packet_loss_prob", p.PacketLoss, 1},
		{"chaos.reject_prob", p.RejectProb, 1},
	}
	for _, c := range checks {
		if c.r == nil {
			continue
		}
		if err := c.r.validate(c.field, c.upper); err != nil {
			return err
		}
	}
	return nil
}

// Run is one planned run of a batch: its index, seed and fully derived configuration.
type Run struct {
	Index  int                `yaml:"index"`
	Seed   int64              `yaml:"seed"`
	Params map[string]float64 `yaml:"params,omitempty"`
	Config sim.Config         `yaml:"-"`
}

// Plan derives n runs from base. Seeds and parameters are drawn up front from the
// chaos stream of base.Seed, in run order, so the plan does not depend on scheduling.
func Plan(base sim.Config, ranges ParameterRanges, n int) ([]Run, error) {
	if n < 1 {
		return nil, simerr.Invalid("chaos.runs", "must be >= 1, got %d", n)
	}
	if err := ranges.Validate(); err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(base.Seed)).ForSubsystem(sim.SubsystemChaos)
	runs := make([]Run, n)
	for i := range runs {
		cfg := base
		cfg.Seed = rng.Int63()
		params := map[string]float64{}
		var flat sim.FlatParams
		if r := ranges.LatencyMean; r != nil {
			v := int64(math.Round(r.draw(rng)))
			flat.LatencyMean = &v
			params["latency_mean"] = float64(v)
		}
		if r := ranges.LatencyStdDev; r != nil {
			v := int64(math.Round(r.draw(rng)))
			flat.LatencyStdDev = &v
			params["latency_stddev"] = float64(v)
		}
		if r := ranges.PacketLoss; r != nil {
			v := r.draw(rng)
			flat.PacketLossProb = &v
			params["packet_loss_prob"] = v
		}
		cfg.ApplyFlat(flat)
		if r := ranges.RejectProb; r != nil {
			cfg.Latency.RejectProb = r.draw(rng)
			params["reject_prob"] = cfg.Latency.RejectProb
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
		runs[i] = Run{Index: i, Seed: cfg.Seed, Params: params, Config: cfg}
	}
	return runs, nil
}
