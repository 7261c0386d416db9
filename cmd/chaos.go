package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lobsim/lobsim/sim/chaos"
	"github.com/lobsim/lobsim/sim/marketdata"
)

var (
	chaosRuns         int
	chaosWorkers      int
	chaosRangesPath   string
	latencyMeanRange  string
	latencyStdRange   string
	packetLossRange   string
	rejectProbRange   string
	metricsOutputPath string
)

// chaosCmd runs a Monte Carlo batch over randomized network parameters
var chaosCmd = &cobra.Command{
	Use:   "chaos",
	Short: "Run a Monte Carlo batch with randomized latency, loss and rejects",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := runChaos(ctx, cmd); err != nil {
			logrus.Fatalf("chaos batch failed: %v", err)
		}
	},
}

// loadRanges reads --ranges, then overlays the individual range flags.
func loadRanges(cmd *cobra.Command) (chaos.ParameterRanges, error) {
	var ranges chaos.ParameterRanges
	if chaosRangesPath != "" {
		data, err := os.ReadFile(chaosRangesPath)
		if err != nil {
			return ranges, fmt.Errorf("read ranges: %w", err)
		}
		if err := decodeStrict(data, &ranges); err != nil {
			return ranges, fmt.Errorf("parse ranges %q: %w", chaosRangesPath, err)
		}
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **chaos.Range
	}{
		{"latency-mean-range", latencyMeanRange, &ranges.LatencyMean},
		{"latency-stddev-range", latencyStdRange, &ranges.LatencyStdDev},
		{"loss-range", packetLossRange, &ranges.PacketLoss},
		{"reject-range", rejectProbRange, &ranges.RejectProb},
	} {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		r, err := chaos.ParseRange(f.raw)
		if err != nil {
			return ranges, fmt.Errorf("--%s: %w", f.name, err)
		}
		*f.dst = &r
	}
	return ranges, ranges.Validate()
}

func runChaos(ctx context.Context, cmd *cobra.Command) error {
	base, err := loadRunConfig(cmd.Flags())
	if err != nil {
		return err
	}
	ranges, err := loadRanges(cmd)
	if err != nil {
		return err
	}
	strategyFactory, _, err := loadStrategy()
	if err != nil {
		return err
	}
	open, err := feedFactory()
	if err != nil {
		return err
	}
	h := &chaos.Harness{
		Strategy: strategyFactory,
		Feed:     func(chaos.Run) (marketdata.Source, error) { return open() },
		Workers:  chaosWorkers,
	}
	if metricsOutputPath != "" {
		h.Metrics = chaos.NewCollector()
	}
	rep, err := h.RunBatch(ctx, base, ranges, chaosRuns)
	if err != nil {
		return err
	}
	if h.Metrics != nil {
		if err := h.Metrics.WriteTextfile(metricsOutputPath); err != nil {
			return err
		}
	}
	out, closeOut, err := openOutput(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()
	return writeBatch(outputFormat, out, rep)
}

func addChaosFlags(fs *pflag.FlagSet) {
	fs.IntVar(&chaosRuns, "runs", 100, "Number of runs in the batch")
	fs.IntVar(&chaosWorkers, "workers", 0, "Parallel runs (0 = GOMAXPROCS)")
	fs.StringVar(&chaosRangesPath, "ranges", "", "Parameter ranges YAML")
	fs.StringVar(&latencyMeanRange, "latency-mean-range", "", "Latency mean range in ns: min,max")
	fs.StringVar(&latencyStdRange, "latency-stddev-range", "", "Latency stddev range in ns: min,max")
	fs.StringVar(&packetLossRange, "loss-range", "", "Order-entry packet loss probability range: min,max")
	fs.StringVar(&rejectProbRange, "reject-range", "", "Exchange reject probability range: min,max")
	fs.StringVar(&metricsOutputPath, "metrics-out", "", "Write prometheus metrics in textfile format to this path")
	fs.StringVar(&outputFormat, "output", "text", "Report format: text or yaml")
	fs.StringVar(&outputPath, "out", "", "Write the report to this file instead of stdout")
}

func init() {
	addInputFlags(chaosCmd.Flags())
	addChaosFlags(chaosCmd.Flags())
	rootCmd.AddCommand(chaosCmd)
}
