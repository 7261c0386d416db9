package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/chaos"
	"github.com/lobsim/lobsim/sim/marketdata"
	"github.com/lobsim/lobsim/sim/simerr"
)

// newRunCmd returns a command with fresh run flags; binding resets the package vars.
func newRunCmd() *cobra.Command {
	c := &cobra.Command{Use: "run"}
	addInputFlags(c.Flags())
	addOutputFlags(c.Flags())
	return c
}

func newChaosCmd() *cobra.Command {
	c := &cobra.Command{Use: "chaos"}
	addInputFlags(c.Flags())
	addChaosFlags(c.Flags())
	return c
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFlatParams_OnlyChangedFlags(t *testing.T) {
	c := newRunCmd()
	require.NoError(t, c.Flags().Set("latency-mean", "7000000"))
	require.NoError(t, c.Flags().Set("max-position", "2.5"))

	p, err := flatParams(c.Flags())
	require.NoError(t, err)
	require.NotNil(t, p.LatencyMean)
	assert.Equal(t, int64(7_000_000), *p.LatencyMean)
	require.NotNil(t, p.MaxPosition)
	assert.True(t, p.MaxPosition.Equal(decimal.RequireFromString("2.5")))
	assert.Nil(t, p.RandomSeed, "unset flags keep the config file value")
	assert.Nil(t, p.PacketLossProb)

	require.NoError(t, c.Flags().Set("max-order-size", "lots"))
	_, err = flatParams(c.Flags())
	assert.ErrorContains(t, err, "--max-order-size")
}

func TestLoadRunConfig_FileThenFlags(t *testing.T) {
	// GIVEN a config file with seed 9 and a --seed flag of 11
	c := newRunCmd()
	configPath = writeFile(t, "cfg.yaml", "seed: 9\nhorizon: 1000\n")
	require.NoError(t, c.Flags().Set("seed", "11"))

	// WHEN the config is loaded
	cfg, err := loadRunConfig(c.Flags())

	// THEN the flag wins and the rest comes from the file
	require.NoError(t, err)
	assert.Equal(t, int64(11), cfg.Seed)
	assert.Equal(t, int64(1000), cfg.Horizon)

	configPath = writeFile(t, "bad.yaml", "sed: 9\n")
	_, err = loadRunConfig(c.Flags())
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestLoadStrategy(t *testing.T) {
	newRunCmd()
	_, spec, err := loadStrategy()
	require.NoError(t, err)
	assert.Equal(t, "quoter", spec.Name)

	strategyPath = writeFile(t, "strategy.yaml", "name: quoter\nquoter: {half_spread: 3, size: 0.2}\n")
	_, spec, err = loadStrategy()
	require.NoError(t, err)
	assert.True(t, spec.Quoter.HalfSpread.Equal(decimal.NewFromInt(3)))

	strategyName = "passive"
	_, spec, err = loadStrategy()
	require.NoError(t, err)
	assert.Equal(t, "passive", spec.Name)

	strategyName = "martingale"
	_, _, err = loadStrategy()
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestRunOnce_SyntheticYAML(t *testing.T) {
	// GIVEN a small synthetic market and YAML output
	c := newRunCmd()
	syntheticPath = writeFile(t, "gen.yaml", "events: 400\nlevels: 5\n")
	require.NoError(t, c.Flags().Set("seed", "7"))
	require.NoError(t, c.Flags().Set("output", "yaml"))

	// WHEN the run executes
	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), c, &out))

	// THEN a completed result is printed
	var res map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 7, res["seed"])
	assert.Equal(t, string(sim.StatusCompleted), res["status"])
	assert.Equal(t, sim.RunID(7), res["run_id"])
	assert.NotEmpty(t, res["digest"])
}

func TestRunOnce_CSVToFile(t *testing.T) {
	c := newRunCmd()
	dataPath = writeFile(t, "md.csv", strings.Join([]string{
		"timestamp,symbol,type,side,price,quantity,update_id",
		"0,BTCUSDT,snapshot,bid,100,5,1",
		"0,BTCUSDT,snapshot,ask,101,5,1",
		"1000000,BTCUSDT,depth,bid,100,6,2",
	}, "\n")+"\n")
	outputPath = filepath.Join(t.TempDir(), "result.txt")
	require.NoError(t, c.Flags().Set("strategy", "passive"))

	require.NoError(t, runOnce(context.Background(), c, nil))
	raw, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Status               : completed")
	assert.Contains(t, string(raw), "Orders Submitted     : 0")
}

func TestRunOnce_AbortedRunIsReportedAndFails(t *testing.T) {
	c := newRunCmd()
	dataPath = writeFile(t, "crossed.csv", strings.Join([]string{
		"timestamp,symbol,type,side,price,quantity,update_id",
		"0,BTCUSDT,depth,bid,100,10,1",
		"1,BTCUSDT,depth,ask,99,5,2",
	}, "\n")+"\n")
	require.NoError(t, c.Flags().Set("strategy", "passive"))

	var out bytes.Buffer
	err := runOnce(context.Background(), c, &out)
	assert.ErrorIs(t, err, simerr.ErrDesync)
	assert.Contains(t, out.String(), "Status               : aborted")
}

func TestReporters(t *testing.T) {
	res := &sim.Result{
		RunID:       sim.RunID(1),
		Seed:        1,
		Status:      sim.StatusHorizon,
		PnL:         decimal.RequireFromString("-0.04"),
		MaxDrawdown: decimal.RequireFromString("1.5"),
		Positions:   map[string]decimal.Decimal{"ETHUSDT": decimal.NewFromInt(-1), "BTCUSDT": decimal.NewFromInt(2)},
		Dropped:     map[string]int{"order_entry": 2},
	}

	var text bytes.Buffer
	require.NoError(t, TextReporter{W: &text}.Report(res))
	s := text.String()
	assert.Contains(t, s, "PnL (mark-to-market) : -0.04")
	assert.Less(t, strings.Index(s, "BTCUSDT"), strings.Index(s, "ETHUSDT"), "positions sorted by symbol")
	assert.Contains(t, s, "Dropped order_entry  : 2")
	assert.Contains(t, s, "Max Drawdown         : 1.5")
	assert.NotContains(t, s, "Resyncs", "shown only when a book was invalidated")

	var y bytes.Buffer
	require.NoError(t, YAMLReporter{W: &y}.Report(res))
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(y.Bytes(), &back))
	assert.Equal(t, "-0.04", back["pnl"])
	assert.Equal(t, "horizon", back["status"])
	assert.Equal(t, "1.5", back["max_drawdown"])

	_, err := newReporter("json", &y)
	assert.Error(t, err)
}

func TestGenerate_WritesReadableCSV(t *testing.T) {
	c := &cobra.Command{Use: "generate"}
	addGenerateFlags(c.Flags())
	require.NoError(t, c.Flags().Set("events", "50"))

	var out bytes.Buffer
	require.NoError(t, generate(c, &out))

	src, err := marketdata.NewCSVSource(&out)
	require.NoError(t, err)
	got, err := marketdata.Collect(src)
	require.NoError(t, err)
	assert.Len(t, got, 51, "snapshot plus 50 records")
	assert.Equal(t, marketdata.Snapshot, got[0].Type)
}

func TestLoadRanges(t *testing.T) {
	c := newChaosCmd()
	chaosRangesPath = writeFile(t, "ranges.yaml", "latency_mean: {min: 1000000, max: 2000000}\n")
	require.NoError(t, c.Flags().Set("loss-range", "0,0.1"))

	r, err := loadRanges(c)
	require.NoError(t, err)
	require.NotNil(t, r.LatencyMean)
	assert.Equal(t, chaos.Range{Min: 1e6, Max: 2e6}, *r.LatencyMean)
	require.NotNil(t, r.PacketLoss)
	assert.Equal(t, 0.1, r.PacketLoss.Max)
	assert.Nil(t, r.RejectProb)

	require.NoError(t, c.Flags().Set("reject-range", "0.5,0.1"))
	_, err = loadRanges(c)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestRunChaos_ReportAndMetrics(t *testing.T) {
	// GIVEN a four-run batch over a small synthetic market
	c := newChaosCmd()
	syntheticPath = writeFile(t, "gen.yaml", "events: 300\n")
	metricsOutputPath = filepath.Join(t.TempDir(), "chaos.prom")
	for flag, v := range map[string]string{"runs": "4", "workers": "2", "latency-mean-range": "1000000,3000000"} {
		require.NoError(t, c.Flags().Set(flag, v))
	}
	var out bytes.Buffer
	c.SetOut(&out)

	// WHEN the batch runs
	require.NoError(t, runChaos(context.Background(), c))

	// THEN the text report and the metrics file are written
	assert.Contains(t, out.String(), "Runs                 : 4")
	assert.Contains(t, out.String(), "fill_rate")
	assert.Contains(t, out.String(), "max_drawdown")
	raw, err := os.ReadFile(metricsOutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "lobsim_chaos_runs_total")
}
