package latency_test

import (
	"hash/fnv"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lobsim/lobsim/sim/latency"
	"github.com/lobsim/lobsim/sim/simerr"
)

type streams struct {
	seed int64
	rngs map[string]*rand.Rand
}

func newStreams(seed int64) *streams { return &streams{seed: seed, rngs: map[string]*rand.Rand{}} }

func (s *streams) ForSubsystem(name string) *rand.Rand {
	if r, ok := s.rngs[name]; ok {
		return r
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	r := rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))
	s.rngs[name] = r
	return r
}

func TestClamp(t *testing.T) {
	tests := []struct{ in, want int64 }{
		{-5, 0}, {0, 0}, {7, 7}, {-1 << 40, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, latency.Clamp(tt.in), "Clamp(%d)", tt.in)
	}
}

func TestPerturb_DelayIsNeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := latency.DefaultConfig()
		cfg.MarketData = latency.Profile{
			Distribution: rapid.SampledFrom([]latency.Distribution{latency.Gaussian, latency.LogNormal, latency.Constant}).Draw(rt, "dist"),
			Mean:         rapid.Int64Range(0, 1000).Draw(rt, "mean"),
			StdDev:       rapid.Int64Range(0, 100_000).Draw(rt, "sd"),
		}
		m := latency.NewModel(cfg, newStreams(rapid.Int64().Draw(rt, "seed")))
		now := int64(0)
		for i := 0; i < 50; i++ {
			now += rapid.Int64Range(0, 1000).Draw(rt, "gap")
			out := m.Perturb(latency.MarketData, now)
			if out.Delay < 0 {
				rt.Fatalf("negative delay %d", out.Delay)
			}
		}
	})
}

func drops(m *latency.Model, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = m.Perturb(latency.MarketData, int64(i)*1000).Dropped
	}
	return out
}

func TestPerturb_LossIsReproducible(t *testing.T) {
	cfg := latency.DefaultConfig()
	cfg.MarketData.LossProb = 0.5

	a := drops(latency.NewModel(cfg, newStreams(7)), 500)
	b := drops(latency.NewModel(cfg, newStreams(7)), 500)
	assert.Equal(t, a, b, "same seed must produce identical drop decisions")

	lost := 0
	for _, d := range a {
		if d {
			lost++
		}
	}
	assert.InDelta(t, 250, lost, 60)

	// drop decisions come from their own stream: changing delay parameters keeps them
	cfg.MarketData.Mean *= 10
	cfg.MarketData.Distribution = latency.LogNormal
	c := drops(latency.NewModel(cfg, newStreams(7)), 500)
	assert.Equal(t, a, c)

	d := drops(latency.NewModel(cfg, newStreams(8)), 500)
	assert.NotEqual(t, a, d)
}

func TestPerturb_FIFOPerChannel(t *testing.T) {
	cfg := latency.DefaultConfig()
	cfg.OrderEntry = latency.Profile{Distribution: latency.Gaussian, Mean: 1000, StdDev: 5000}
	m := latency.NewModel(cfg, newStreams(3))

	last := int64(-1)
	for now := int64(0); now < 100_000; now += 100 {
		out := m.Perturb(latency.OrderEntry, now)
		require.False(t, out.Dropped)
		arrival := now + out.Delay
		assert.GreaterOrEqual(t, arrival, last, "message sent at %d overtook its predecessor", now)
		last = arrival
	}
}

func TestPerturb_ConstantAndCap(t *testing.T) {
	cfg := latency.DefaultConfig()
	cfg.ExchangeReport = latency.Profile{Distribution: latency.Constant, Mean: 4000}
	cfg.MarketData = latency.Profile{Distribution: latency.Gaussian, Mean: 1_000_000, StdDev: 1_000_000, Cap: 1_500_000}
	m := latency.NewModel(cfg, newStreams(1))

	for i := int64(0); i < 20; i++ {
		assert.Equal(t, int64(4000), m.Perturb(latency.ExchangeReport, i*10_000).Delay)
	}
	for i := int64(0); i < 200; i++ {
		out := m.Perturb(latency.MarketData, i*10_000_000)
		assert.LessOrEqual(t, out.Delay, int64(1_500_000))
	}
}

func TestPerturb_OutageDropsOrderEntryOnly(t *testing.T) {
	cfg := latency.DefaultConfig()
	cfg.Outages = []latency.Outage{{Start: 1000, End: 2000}}
	m := latency.NewModel(cfg, newStreams(1))

	assert.False(t, m.Perturb(latency.OrderEntry, 999).Dropped)
	out := m.Perturb(latency.OrderEntry, 1000)
	assert.True(t, out.Dropped)
	assert.Equal(t, latency.DropOutage, out.Reason)
	assert.False(t, m.Perturb(latency.MarketData, 1500).Dropped)
	assert.False(t, m.Perturb(latency.OrderEntry, 2000).Dropped)
	assert.Equal(t, 1, m.Dropped(latency.OrderEntry))
	assert.Equal(t, 0, m.Dropped(latency.MarketData))
}

func TestPerturb_OutageRelativeToOrigin(t *testing.T) {
	// GIVEN epoch-nanosecond clocks and an outage one to two seconds into the run
	const start = int64(1_700_000_000_000_000_000)
	cfg := latency.DefaultConfig()
	cfg.Outages = []latency.Outage{{Start: 1_000_000_000, End: 2_000_000_000}}
	m := latency.NewModel(cfg, newStreams(1))
	m.SetOrigin(start)

	// THEN the window is measured from the origin
	assert.False(t, m.Perturb(latency.OrderEntry, 1_000_000_000).Dropped, "absolute time is not the window")
	assert.False(t, m.Perturb(latency.OrderEntry, start+999_999_999).Dropped)
	assert.True(t, m.Perturb(latency.OrderEntry, start+1_500_000_000).Dropped)
	assert.False(t, m.Perturb(latency.OrderEntry, start+2_000_000_000).Dropped)
}

func TestPerturb_CongestionPenalty(t *testing.T) {
	cfg := latency.DefaultConfig()
	cfg.OrderEntry = latency.Profile{Distribution: latency.Constant, Mean: 100}
	cfg.CongestionThreshold = 2
	cfg.CongestionPenalty = 50
	cfg.CongestionWindow = 1_000_000
	m := latency.NewModel(cfg, newStreams(1))

	// sent far apart in time so FIFO never interferes
	got := []int64{
		m.Perturb(latency.OrderEntry, 0).Delay,
		m.Perturb(latency.OrderEntry, 1000).Delay,
		m.Perturb(latency.OrderEntry, 2000).Delay,
		m.Perturb(latency.OrderEntry, 3000).Delay,
	}
	assert.Equal(t, []int64{100, 100, 150, 200}, got)

	// window expired
	assert.Equal(t, int64(100), m.Perturb(latency.OrderEntry, 10_000_000).Delay)
}

func TestExchangeReject(t *testing.T) {
	cfg := latency.DefaultConfig()
	m := latency.NewModel(cfg, newStreams(1))
	for i := 0; i < 100; i++ {
		require.False(t, m.ExchangeReject())
	}
	cfg.RejectProb = 1
	m = latency.NewModel(cfg, newStreams(1))
	assert.True(t, m.ExchangeReject())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*latency.Config)
		field  string
	}{
		{"negative loss", func(c *latency.Config) { c.MarketData.LossProb = -0.1 }, "latency.market_data.loss_prob"},
		{"loss above one", func(c *latency.Config) { c.OrderEntry.LossProb = 1.5 }, "latency.order_entry.loss_prob"},
		{"lossy reports", func(c *latency.Config) { c.ExchangeReport.LossProb = 0.1 }, "latency.exchange_report.loss_prob"},
		{"unknown distribution", func(c *latency.Config) { c.MarketData.Distribution = "pareto" }, "latency.market_data.distribution"},
		{"negative stddev", func(c *latency.Config) { c.OrderEntry.StdDev = -1 }, "latency.order_entry.stddev"},
		{"reversed outage", func(c *latency.Config) { c.Outages = []latency.Outage{{Start: 5, End: 1}} }, "latency.outages"},
		{"reject prob", func(c *latency.Config) { c.RejectProb = 2 }, "latency.reject_prob"},
	}
	require.NoError(t, latency.DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := latency.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var ce *simerr.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}
