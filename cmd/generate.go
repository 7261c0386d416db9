package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lobsim/lobsim/sim/marketdata"
)

var (
	genConfigPath string
	genOutPath    string
	genEvents     int
	genSeed       int64
)

// generateCmd writes synthetic market data as CSV
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write synthetic market data as CSV",
	Run: func(cmd *cobra.Command, args []string) {
		if err := generate(cmd, os.Stdout); err != nil {
			logrus.Fatalf("generate failed: %v", err)
		}
	},
}

func generate(cmd *cobra.Command, stdout io.Writer) error {
	cfg, err := loadGeneratorConfig(genConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("events") {
		cfg.Events = genEvents
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = genSeed
	}
	g, err := marketdata.NewGenerator(cfg)
	if err != nil {
		return err
	}
	out := stdout
	if genOutPath != "" {
		f, err := os.Create(genOutPath)
		if err != nil {
			return fmt.Errorf("create %q: %w", genOutPath, err)
		}
		defer f.Close()
		out = f
	}
	w := marketdata.NewCSVWriter(out)
	n := 0
	for {
		u, err := g.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := w.Write(u); err != nil {
			return err
		}
		n++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logrus.Infof("wrote %d records for %s", n, cfg.Symbol)
	return nil
}

func addGenerateFlags(fs *pflag.FlagSet) {
	fs.StringVar(&genConfigPath, "synthetic", "", "Generator YAML (defaults apply when empty)")
	fs.StringVar(&genOutPath, "out", "", "Output CSV path (stdout when empty)")
	fs.IntVar(&genEvents, "events", 0, "Records after the initial snapshot")
	fs.Int64Var(&genSeed, "seed", 1, "Generator seed")
}

func init() {
	addGenerateFlags(generateCmd.Flags())
	rootCmd.AddCommand(generateCmd)
}
