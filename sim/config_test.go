package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/latency"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative horizon", func(c *Config) { c.Horizon = -1 }, "horizon"},
		{"loss above one", func(c *Config) { c.Latency.OrderEntry.LossProb = 1.5 }, "latency.order_entry.loss_prob"},
		{"lossy reports", func(c *Config) { c.Latency.ExchangeReport.LossProb = 0.1 }, "latency.exchange_report.loss_prob"},
		{"negative max size", func(c *Config) { c.Risk.MaxOrderSize = d("-1") }, "risk.max_order_size"},
		{"queue model", func(c *Config) { c.Book.QueueModel = "optimistic" }, "book.queue_model"},
		{"snapshot depth", func(c *Config) { c.Book.SnapshotDepth = -2 }, "book.snapshot_depth"},
		{"ack timeout", func(c *Config) { c.AckTimeout = 0 }, "ack_timeout"},
		{"trace level", func(c *Config) { c.TraceLevel = "verbose" }, "trace_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
seed: 9
horizon: 60000000000
latency:
  order_entry: {distribution: lognormal, mean: 8000000, stddev: 4000000, loss_prob: 0.01}
  outages: [{start: 10, end: 20}]
risk:
  max_order_size: "2.5"
  max_position: 10
book:
  queue_model: pessimistic
fees:
  maker: "-0.0001"
trace_level: decisions
`))
	require.NoError(t, err)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, latency.LogNormal, cfg.Latency.OrderEntry.Distribution)
	assert.Equal(t, 0.01, cfg.Latency.OrderEntry.LossProb)
	assert.Equal(t, latency.DefaultConfig().MarketData, cfg.Latency.MarketData, "untouched channel keeps defaults")
	assert.Len(t, cfg.Latency.Outages, 1)
	assert.True(t, cfg.Risk.MaxOrderSize.Equal(d("2.5")))
	assert.True(t, cfg.Risk.MaxPosition.Equal(d("10")))
	assert.Equal(t, 50, cfg.Risk.MaxOrderRate)
	assert.Equal(t, book.ShrinkPessimistic, cfg.Book.QueueModel)
	assert.Equal(t, 10, cfg.Book.SnapshotDepth)
	assert.True(t, cfg.Fees.Maker.Equal(d("-0.0001")))
	assert.True(t, cfg.Fees.Taker.Equal(d("0.0005")))
}

func TestParseConfig_RejectsUnknownAndInvalid(t *testing.T) {
	_, err := ParseConfig([]byte("seed: 1\nlatncy: {}\n"))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = ParseConfig([]byte("ack_timeout: -5\n"))
	assert.ErrorIs(t, err, ErrConfiguration)

	cfg, err := ParseConfig(nil)
	require.NoError(t, err, "empty document means defaults")
	assert.Equal(t, DefaultConfig().Seed, cfg.Seed)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 3\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cfg.Seed)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_ApplyFlat(t *testing.T) {
	mean, sd, loss := int64(7_000_000), int64(0), 0.25
	rate, seed, horizon := 5, int64(99), int64(1e9)
	size, pos := d("3"), d("30")

	cfg := DefaultConfig()
	cfg.ApplyFlat(FlatParams{
		LatencyMean: &mean, LatencyStdDev: &sd, PacketLossProb: &loss,
		MaxOrderSize: &size, MaxOrderRate: &rate, MaxPosition: &pos,
		RandomSeed: &seed, Horizon: &horizon,
	})

	for _, ch := range latency.Channels {
		p := cfg.Latency.Profile(ch)
		assert.Equal(t, mean, p.Mean, ch.String())
		assert.Equal(t, sd, p.StdDev, ch.String())
	}
	assert.Zero(t, cfg.Latency.MarketData.LossProb, "market data loss is opt-in")
	assert.Equal(t, loss, cfg.Latency.OrderEntry.LossProb)
	assert.Zero(t, cfg.Latency.ExchangeReport.LossProb)
	assert.True(t, cfg.Risk.MaxOrderSize.Equal(size))
	assert.Equal(t, rate, cfg.Risk.MaxOrderRate)
	assert.True(t, cfg.Risk.MaxPosition.Equal(pos))
	assert.Equal(t, seed, cfg.Seed)
	assert.Equal(t, horizon, cfg.Horizon)
	assert.NoError(t, cfg.Validate())

	// nil fields leave the config alone
	before := cfg
	cfg.ApplyFlat(FlatParams{})
	assert.Equal(t, before, cfg)
}
