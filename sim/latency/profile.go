// Package latency models the network between the strategy host and the exchange:
// per-channel transit delay, packet loss, congestion, outages and FIFO delivery.
//
// All randomness comes from streams handed in by the owning run. Every message consumes
// exactly one draw from the loss stream and one from the delay stream regardless of
// outcome, so drop decisions for a seed never depend on latency parameters and vice versa.
package latency

import (
	"math"

	"github.com/lobsim/lobsim/sim/simerr"
)

// Distribution names a delay distribution shape.
type Distribution string

const (
	Gaussian  Distribution = "gaussian"
	LogNormal Distribution = "lognormal"
	Constant  Distribution = "constant"
)

// Channel identifies an independent message path. Each channel has its own profile
// and preserves FIFO order.
type Channel int

const (
	MarketData     Channel = iota // exchange -> strategy feed
	OrderEntry                    // strategy -> exchange submits and cancels
	ExchangeReport                // exchange -> strategy acks, fills, cancel confirms
	numChannels
)

// Channels lists every channel in declaration order.
var Channels = []Channel{MarketData, OrderEntry, ExchangeReport}

func (c Channel) String() string {
	switch c {
	case MarketData:
		return "market_data"
	case OrderEntry:
		return "order_entry"
	case ExchangeReport:
		return "exchange_report"
	}
	return "unknown"
}

// Profile is the delay and loss distribution of one channel. Times are nanoseconds.
type Profile struct {
	Distribution Distribution `yaml:"distribution"`
	Mean         int64        `yaml:"mean"`
	StdDev       int64        `yaml:"stddev"`
	LossProb     float64      `yaml:"loss_prob"`
	Cap          int64        `yaml:"cap"` // 0 = uncapped
}

// Sample maps one standard normal draw z onto the profile's distribution.
// The result is not clamped.
func (p Profile) Sample(z float64) int64 {
	mean, sd := float64(p.Mean), float64(p.StdDev)
	switch p.Distribution {
	case Constant:
		return p.Mean
	case LogNormal:
		if mean <= 0 {
			return 0
		}
		// parameters of the underlying normal chosen so the sample has the given mean/stddev
		sigma2 := math.Log1p((sd * sd) / (mean * mean))
		mu := math.Log(mean) - sigma2/2
		return int64(math.Round(math.Exp(mu + math.Sqrt(sigma2)*z)))
	default:
		return int64(math.Round(mean + sd*z))
	}
}

func (p Profile) validate(field string) error {
	switch p.Distribution {
	case "", Gaussian, LogNormal, Constant:
	default:
		return simerr.Invalid(field+".distribution", "unknown distribution %q", p.Distribution)
	}
	if p.Mean < 0 {
		return simerr.Invalid(field+".mean", "must be >= 0, got %d", p.Mean)
	}
	if p.StdDev < 0 {
		return simerr.Invalid(field+".stddev", "must be >= 0, got %d", p.StdDev)
	}
	if math.IsNaN(p.LossProb) || p.LossProb < 0 || p.LossProb > 1 {
		return simerr.Invalid(field+".loss_prob", "must be in [0,1], got %v", p.LossProb)
	}
	if p.Cap < 0 {
		return simerr.Invalid(field+".cap", "must be >= 0, got %d", p.Cap)
	}
	return nil
}

// Outage is a half-open window [Start, End) during which the exchange gateway is down
// and order-entry messages are lost. Times are relative to the start of the run, like
// the horizon.
type Outage struct {
	Start int64 `yaml:"start"`
	End   int64 `yaml:"end"`
}

// Config is the complete network model of a run.
type Config struct {
	MarketData     Profile `yaml:"market_data"`
	OrderEntry     Profile `yaml:"order_entry"`
	ExchangeReport Profile `yaml:"exchange_report"`

	// Messages on a channel beyond CongestionThreshold within CongestionWindow each add
	// CongestionPenalty of delay. A zero threshold disables congestion.
	CongestionThreshold int   `yaml:"congestion_threshold"`
	CongestionPenalty   int64 `yaml:"congestion_penalty"`
	CongestionWindow    int64 `yaml:"congestion_window"`

	// RejectProb is the chance the exchange rejects an order that reached it.
	RejectProb float64  `yaml:"reject_prob"`
	Outages    []Outage `yaml:"outages"`
}

// DefaultConfig returns a colocated-ish Gaussian network with no loss.
func DefaultConfig() Config {
	return Config{
		MarketData:       Profile{Distribution: Gaussian, Mean: 2_000_000, StdDev: 500_000},
		OrderEntry:       Profile{Distribution: Gaussian, Mean: 5_000_000, StdDev: 1_000_000},
		ExchangeReport:   Profile{Distribution: Gaussian, Mean: 3_000_000, StdDev: 500_000},
		CongestionWindow: 1_000_000_000,
	}
}

// Profile returns the profile of channel c.
func (c Config) Profile(ch Channel) Profile {
	switch ch {
	case MarketData:
		return c.MarketData
	case OrderEntry:
		return c.OrderEntry
	default:
		return c.ExchangeReport
	}
}

// Validate returns a *simerr.ConfigurationError for the first invalid field.
func (c Config) Validate() error {
	for _, ch := range Channels {
		if err := c.Profile(ch).validate("latency." + ch.String()); err != nil {
			return err
		}
	}
	if c.ExchangeReport.LossProb != 0 {
		return simerr.Invalid("latency.exchange_report.loss_prob", "exchange reports are delivered reliably, must be 0")
	}
	if c.CongestionThreshold < 0 {
		return simerr.Invalid("latency.congestion_threshold", "must be >= 0, got %d", c.CongestionThreshold)
	}
	if c.CongestionPenalty < 0 {
		return simerr.Invalid("latency.congestion_penalty", "must be >= 0, got %d", c.CongestionPenalty)
	}
	if c.CongestionThreshold > 0 && c.CongestionWindow <= 0 {
		return simerr.Invalid("latency.congestion_window", "must be > 0 when congestion is enabled")
	}
	if math.IsNaN(c.RejectProb) || c.RejectProb < 0 || c.RejectProb > 1 {
		return simerr.Invalid("latency.reject_prob", "must be in [0,1], got %v", c.RejectProb)
	}
	for i, o := range c.Outages {
		if o.Start < 0 || o.End < o.Start {
			return simerr.Invalid("latency.outages", "outage %d: need 0 <= start <= end, got [%d,%d)", i, o.Start, o.End)
		}
	}
	return nil
}
