package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/latency"
	"github.com/lobsim/lobsim/sim/risk"
	"github.com/lobsim/lobsim/sim/simerr"
	"github.com/lobsim/lobsim/sim/trace"
)

// BookConfig groups order book parameters.
type BookConfig struct {
	QueueModel    book.ShrinkModel `yaml:"queue_model"`    // "pro-rata" (default) or "pessimistic"
	SnapshotDepth int              `yaml:"snapshot_depth"` // levels per side handed to the strategy, 0 = all
}

// Config is the complete, validated parameter set of one run. Times are nanoseconds.
type Config struct {
	Seed       int64          `yaml:"seed"`
	Horizon    int64          `yaml:"horizon"` // relative to the first market data record, 0 = until data ends
	Latency    latency.Config `yaml:"latency"`
	Risk       risk.Limits    `yaml:"risk"`
	Book       BookConfig     `yaml:"book"`
	Fees       FeeSchedule    `yaml:"fees"`
	AckTimeout int64          `yaml:"ack_timeout"` // unacknowledged orders are written off after this
	TraceLevel string         `yaml:"trace_level"` // "none", "decisions" or "events"
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Seed:    42,
		Latency: latency.DefaultConfig(),
		Risk:    risk.DefaultLimits(),
		Book:    BookConfig{QueueModel: book.ShrinkProRata, SnapshotDepth: 10},
		Fees: FeeSchedule{
			Maker: decimal.RequireFromString("0.0002"),
			Taker: decimal.RequireFromString("0.0005"),
		},
		AckTimeout: 1_000_000_000,
		TraceLevel: string(trace.TraceLevelNone),
	}
}

// Validate returns a *ConfigurationError for the first invalid field.
func (c Config) Validate() error {
	if c.Horizon < 0 {
		return simerr.Invalid("horizon", "must be >= 0, got %d", c.Horizon)
	}
	if err := c.Latency.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if !book.IsValidShrinkModel(string(c.Book.QueueModel)) {
		return simerr.Invalid("book.queue_model", "unknown model %q; valid: pro-rata, pessimistic", c.Book.QueueModel)
	}
	if c.Book.SnapshotDepth < 0 {
		return simerr.Invalid("book.snapshot_depth", "must be >= 0, got %d", c.Book.SnapshotDepth)
	}
	if c.AckTimeout <= 0 {
		return simerr.Invalid("ack_timeout", "must be > 0, got %d", c.AckTimeout)
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		return simerr.Invalid("trace_level", "unknown level %q; valid: none, decisions, events", c.TraceLevel)
	}
	return nil
}

// LoadConfig reads a YAML config over DefaultConfig. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &simerr.ConfigurationError{Field: "yaml", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FlatParams is the flat parameter surface of a run. Nil fields leave the config as is.
type FlatParams struct {
	LatencyMean    *int64           `yaml:"latency_mean"`
	LatencyStdDev  *int64           `yaml:"latency_stddev"`
	PacketLossProb *float64         `yaml:"packet_loss_prob"`
	MaxOrderSize   *decimal.Decimal `yaml:"max_order_size"`
	MaxOrderRate   *int             `yaml:"max_order_rate"`
	MaxPosition    *decimal.Decimal `yaml:"max_position"`
	RandomSeed     *int64           `yaml:"random_seed"`
	Horizon        *int64           `yaml:"horizon"`
}

// ApplyFlat overlays p. Latency mean and stddev apply to every channel. Packet loss
// applies to order entry only: market data loss is opt-in through
// latency.market_data.loss_prob, and exchange reports are reliable.
func (c *Config) ApplyFlat(p FlatParams) {
	if p.LatencyMean != nil {
		c.Latency.MarketData.Mean = *p.LatencyMean
		c.Latency.OrderEntry.Mean = *p.LatencyMean
		c.Latency.ExchangeReport.Mean = *p.LatencyMean
	}
	if p.LatencyStdDev != nil {
		c.Latency.MarketData.StdDev = *p.LatencyStdDev
		c.Latency.OrderEntry.StdDev = *p.LatencyStdDev
		c.Latency.ExchangeReport.StdDev = *p.LatencyStdDev
	}
	if p.PacketLossProb != nil {
		c.Latency.OrderEntry.LossProb = *p.PacketLossProb
	}
	if p.MaxOrderSize != nil {
		c.Risk.MaxOrderSize = *p.MaxOrderSize
	}
	if p.MaxOrderRate != nil {
		c.Risk.MaxOrderRate = *p.MaxOrderRate
	}
	if p.MaxPosition != nil {
		c.Risk.MaxPosition = *p.MaxPosition
	}
	if p.RandomSeed != nil {
		c.Seed = *p.RandomSeed
	}
	if p.Horizon != nil {
		c.Horizon = *p.Horizon
	}
}
