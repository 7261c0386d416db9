package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lobsim/lobsim/sim"
)

var (
	outputFormat string // text or yaml
	outputPath   string // "" = stdout
)

// runCmd replays market data through one simulation
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backtest",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := runOnce(ctx, cmd, os.Stdout); err != nil {
			logrus.Fatalf("run failed: %v", err)
		}
	},
}

// runOnce builds and runs one simulation and reports it to stdout or --out.
// A run aborted by a fatal simulation error is still reported before the error is returned.
func runOnce(ctx context.Context, cmd *cobra.Command, stdout io.Writer) error {
	cfg, err := loadRunConfig(cmd.Flags())
	if err != nil {
		return err
	}
	strategyFactory, spec, err := loadStrategy()
	if err != nil {
		return err
	}
	open, err := feedFactory()
	if err != nil {
		return err
	}
	src, err := open()
	if err != nil {
		return err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	logrus.Infof("Starting run: seed=%d horizon=%dns strategy=%s", cfg.Seed, cfg.Horizon, spec)

	s, err := sim.NewSimulator(cfg, src, strategyFactory())
	if err != nil {
		return err
	}
	startTime := time.Now()
	res, runErr := s.Run(ctx)
	logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))

	out, closeOut, err := openOutput(stdout)
	if err != nil {
		return err
	}
	defer closeOut()
	rep, err := newReporter(outputFormat, out)
	if err != nil {
		return err
	}
	if err := rep.Report(res); err != nil {
		return err
	}
	return runErr
}

// openOutput returns --out, or stdout when it is empty.
func openOutput(stdout io.Writer) (io.Writer, func(), error) {
	if outputPath == "" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			logrus.Errorf("Error closing file %s: %v", outputPath, err)
		}
	}, nil
}

func addOutputFlags(fs *pflag.FlagSet) {
	fs.StringVar(&outputFormat, "output", "text", "Result format: text or yaml")
	fs.StringVar(&outputPath, "out", "", "Write the result to this file instead of stdout")
}

func init() {
	addInputFlags(runCmd.Flags())
	addOutputFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}
