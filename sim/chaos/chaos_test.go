package chaos

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/marketdata"
	"github.com/lobsim/lobsim/sim/simerr"
	"github.com/lobsim/lobsim/sim/strategy"
)

func feed(events int) FeedFactory {
	return func(Run) (marketdata.Source, error) {
		cfg := marketdata.DefaultGeneratorConfig()
		cfg.Events = events
		return marketdata.NewGenerator(cfg)
	}
}

func harness(t *testing.T, workers int) *Harness {
	t.Helper()
	f, err := strategy.DefaultSpec().Factory()
	require.NoError(t, err)
	return &Harness{Strategy: f, Feed: feed(1500), Workers: workers}
}

func ranges() ParameterRanges {
	return ParameterRanges{
		LatencyMean:   &Range{Min: 1e6, Max: 5e6},
		LatencyStdDev: &Range{Min: 0, Max: 1e6},
		PacketLoss:    &Range{Min: 0, Max: 0.02},
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("0.1, 0.5")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 0.1, Max: 0.5}, r)

	r, err = ParseRange("3")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 3, Max: 3}, r)

	for _, bad := range []string{"", "a,b", "1,2,3"} {
		_, err := ParseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestParameterRanges_Validate(t *testing.T) {
	tests := []struct {
		name   string
		ranges ParameterRanges
		field  string
	}{
		{"inverted", ParameterRanges{LatencyMean: &Range{Min: 5, Max: 1}}, "chaos.latency_mean"},
		{"negative", ParameterRanges{LatencyStdDev: &Range{Min: -1, Max: 1}}, "chaos.latency_stddev"},
		{"loss above one", ParameterRanges{PacketLoss: &Range{Min: 0, Max: 1.5}}, "chaos.packet_loss_prob"},
		{"nan", ParameterRanges{RejectProb: &Range{Min: math.NaN(), Max: 0.5}}, "chaos.reject_prob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *simerr.ConfigurationError
			require.ErrorAs(t, tt.ranges.Validate(), &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
	assert.NoError(t, ParameterRanges{}.Validate())
	assert.NoError(t, ranges().Validate())
}

func TestPlan_DeterministicAndWithinRanges(t *testing.T) {
	// GIVEN a base config and ranges
	base := sim.DefaultConfig()
	r := ranges()

	// WHEN the same batch is planned twice
	a, err := Plan(base, r, 20)
	require.NoError(t, err)
	b, err := Plan(base, r, 20)
	require.NoError(t, err)

	// THEN the plans are identical and every draw is in range
	require.Len(t, a, 20)
	seeds := map[int64]bool{}
	for i := range a {
		assert.Equal(t, a[i].Seed, b[i].Seed)
		assert.Equal(t, a[i].Params, b[i].Params)
		assert.Equal(t, i, a[i].Index)
		seeds[a[i].Seed] = true

		lat := a[i].Config.Latency
		assert.Equal(t, lat.MarketData.Mean, lat.OrderEntry.Mean)
		assert.GreaterOrEqual(t, lat.OrderEntry.Mean, int64(1e6))
		assert.LessOrEqual(t, lat.OrderEntry.Mean, int64(5e6))
		assert.LessOrEqual(t, lat.OrderEntry.LossProb, 0.02)
		assert.Zero(t, lat.MarketData.LossProb, "market data loss is not ranged")
		assert.Zero(t, lat.ExchangeReport.LossProb)
		assert.Equal(t, base.Latency.RejectProb, lat.RejectProb, "unranged parameter keeps its base value")
	}
	assert.Len(t, seeds, 20, "distinct seeds")

	// AND a different base seed gives a different plan
	base.Seed++
	c, err := Plan(base, r, 20)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].Seed, c[0].Seed)
}

func TestPlan_RejectsBadInput(t *testing.T) {
	_, err := Plan(sim.DefaultConfig(), ParameterRanges{}, 0)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
	_, err = Plan(sim.DefaultConfig(), ParameterRanges{PacketLoss: &Range{Min: 2, Max: 3}}, 3)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestSummarize(t *testing.T) {
	dist := Summarize([]float64{5, 1, 4, 2, 3})
	assert.Equal(t, 5, dist.N)
	assert.InDelta(t, 3, dist.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), dist.StdDev, 1e-12)
	assert.Equal(t, 1.0, dist.Min)
	assert.Equal(t, 1.0, dist.P5)
	assert.Equal(t, 3.0, dist.P50)
	assert.Equal(t, 5.0, dist.P95)
	assert.Equal(t, 5.0, dist.Max)

	one := Summarize([]float64{7})
	assert.Zero(t, one.StdDev)
	assert.Equal(t, 7.0, one.P50)

	assert.Equal(t, Distribution{}, Summarize(nil))
}

func TestRunBatch_IndependentOfWorkerCount(t *testing.T) {
	// GIVEN the same batch run serially and in parallel
	serial, err := harness(t, 1).RunBatch(context.Background(), sim.DefaultConfig(), ranges(), 6)
	require.NoError(t, err)
	parallel, err := harness(t, 4).RunBatch(context.Background(), sim.DefaultConfig(), ranges(), 6)
	require.NoError(t, err)

	// THEN every run produced the same outcome
	require.Len(t, serial.Summaries, 6)
	assert.Equal(t, serial.Summaries, parallel.Summaries)
	assert.Equal(t, serial.PnL, parallel.PnL)
	for i, s := range serial.Summaries {
		assert.Equal(t, i, s.Index)
		assert.NotEmpty(t, s.Digest)
	}
	assert.Equal(t, 6, serial.Runs)
	assert.Equal(t, serial.Runs-serial.Aborted, serial.PnL.N)
	assert.Equal(t, serial.PnL.N, serial.FillRate.N)
}

func TestRunBatch_MetricsCollected(t *testing.T) {
	h := harness(t, 2)
	h.Metrics = NewCollector()
	rep, err := h.RunBatch(context.Background(), sim.DefaultConfig(), ParameterRanges{}, 3)
	require.NoError(t, err)
	require.Zero(t, rep.Aborted)

	assert.Equal(t, 3.0, testutil.ToFloat64(h.Metrics.runs.WithLabelValues(string(sim.StatusCompleted))))
	assert.Equal(t, 1, testutil.CollectAndCount(h.Metrics.pnl))
	assert.Equal(t, 1, testutil.CollectAndCount(h.Metrics.drawdown))
	assert.InDelta(t, rep.RiskBreaches.Mean*3, testutil.ToFloat64(h.Metrics.riskBreaches), 1e-9)

	path := filepath.Join(t.TempDir(), "chaos.prom")
	require.NoError(t, h.Metrics.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `lobsim_chaos_runs_total{status="completed"} 3`)
}

func TestRunBatch_Errors(t *testing.T) {
	h := harness(t, 2)

	_, err := (&Harness{Feed: h.Feed}).RunBatch(context.Background(), sim.DefaultConfig(), ParameterRanges{}, 1)
	assert.ErrorIs(t, err, simerr.ErrConfiguration, "missing strategy")

	bad := sim.DefaultConfig()
	bad.Horizon = -1
	_, err = h.RunBatch(context.Background(), bad, ParameterRanges{}, 1)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.RunBatch(ctx, sim.DefaultConfig(), ParameterRanges{}, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBatch_MalformedFeedCountsAsAborted(t *testing.T) {
	h := harness(t, 1)
	h.Feed = func(Run) (marketdata.Source, error) {
		return marketdata.NewSliceSource(marketdata.Update{Symbol: "X", Type: "quote"}), nil
	}
	rep, err := h.RunBatch(context.Background(), sim.DefaultConfig(), ParameterRanges{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Aborted)
	assert.Zero(t, rep.PnL.N)
	assert.NotEmpty(t, rep.Summaries[0].Error)
}

func TestRunBatch_PacketLossSweepCompletes(t *testing.T) {
	// GIVEN the default market and quoter under order-entry loss of up to 5%
	h := harness(t, 4)
	h.Feed = feed(5000)
	r := ParameterRanges{PacketLoss: &Range{Min: 0, Max: 0.05}}

	rep, err := h.RunBatch(context.Background(), sim.DefaultConfig(), r, 20)
	require.NoError(t, err)

	// THEN no run aborts and every run counts toward the distributions
	assert.Zero(t, rep.Aborted)
	assert.Equal(t, 20, rep.PnL.N)
	assert.Equal(t, 20, rep.MaxDrawdown.N)
	lost := 0
	for _, res := range rep.Results {
		lost += res.Dropped["order_entry"]
		assert.Zero(t, res.Dropped["market_data"])
	}
	assert.Positive(t, lost, "the sweep lost no orders; it measures nothing")
}

func TestRunBatch_MarketDataLossResyncsOnSnapshot(t *testing.T) {
	// GIVEN market data loss opted into explicitly and a feed with periodic snapshots
	h := harness(t, 4)
	h.Feed = func(Run) (marketdata.Source, error) {
		cfg := marketdata.DefaultGeneratorConfig()
		cfg.Events = 5000
		cfg.SnapshotEvery = 250
		return marketdata.NewGenerator(cfg)
	}
	base := sim.DefaultConfig()
	base.Latency.MarketData.LossProb = 0.05

	rep, err := h.RunBatch(context.Background(), base, ParameterRanges{}, 8)
	require.NoError(t, err)

	// THEN local books that cross after a loss wait for a snapshot instead of aborting
	assert.Zero(t, rep.Aborted)
	resyncs := 0
	for _, res := range rep.Results {
		assert.Positive(t, res.Dropped["market_data"])
		resyncs += res.Resyncs
	}
	assert.Positive(t, resyncs)
}

func TestAggregate_Drawdown(t *testing.T) {
	results := []*sim.Result{
		{Status: sim.StatusCompleted, MaxDrawdown: decimal.NewFromInt(4)},
		{Status: sim.StatusCompleted, MaxDrawdown: decimal.NewFromInt(10)},
		{Status: sim.StatusAborted, MaxDrawdown: decimal.NewFromInt(1000)},
	}
	rep := Aggregate(nil, results)
	assert.Equal(t, 2, rep.MaxDrawdown.N, "aborted runs are excluded")
	assert.Equal(t, 7.0, rep.MaxDrawdown.Mean)
	assert.Equal(t, 10.0, rep.MaxDrawdown.Max)
	assert.Equal(t, 1000.0, rep.Summaries[2].MaxDrawdown)
}
