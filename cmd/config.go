package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/marketdata"
	"github.com/lobsim/lobsim/sim/strategy"
)

// Flags shared by run and chaos
var (
	configPath    string // sim.Config YAML
	dataPath      string // CSV market data
	syntheticPath string // generator YAML
	strategyPath  string // strategy YAML
	strategyName  string // strategy name, overrides the file
	traceLevel    string

	flatSeed          int64
	flatHorizon       int64
	flatLatencyMean   int64
	flatLatencyStdDev int64
	flatPacketLoss    float64
	flatMaxOrderSize  string
	flatMaxOrderRate  int
	flatMaxPosition   string
)

func addInputFlags(fs *pflag.FlagSet) {
	fs.StringVar(&configPath, "config", "", "Simulation config YAML (defaults apply when empty)")
	fs.StringVar(&dataPath, "data", "", "Market data CSV (timestamp,symbol,type,side,price,quantity[,update_id])")
	fs.StringVar(&syntheticPath, "synthetic", "", "Synthetic market generator YAML; used when --data is empty")
	fs.StringVar(&strategyPath, "strategy-config", "", "Strategy YAML (name plus parameters)")
	fs.StringVar(&strategyName, "strategy", "", "Strategy name: passive or quoter")
	fs.StringVar(&traceLevel, "trace-level", "", "Decision trace level: none, decisions or events")

	fs.Int64Var(&flatSeed, "seed", 42, "Random seed")
	fs.Int64Var(&flatHorizon, "horizon", 0, "Simulation horizon in ns after the first record (0 = until data ends)")
	fs.Int64Var(&flatLatencyMean, "latency-mean", 0, "Mean one-way latency in ns, every channel")
	fs.Int64Var(&flatLatencyStdDev, "latency-stddev", 0, "Latency standard deviation in ns, every channel")
	fs.Float64Var(&flatPacketLoss, "packet-loss", 0, "Loss probability for order entry (market data loss is set in the config file)")
	fs.StringVar(&flatMaxOrderSize, "max-order-size", "", "Largest accepted order quantity")
	fs.IntVar(&flatMaxOrderRate, "max-order-rate", 0, "Orders allowed per rate window")
	fs.StringVar(&flatMaxPosition, "max-position", "", "Largest absolute position per symbol")
}

// flatParams collects the flat flags the user actually set.
func flatParams(fs *pflag.FlagSet) (sim.FlatParams, error) {
	var p sim.FlatParams
	if fs.Changed("seed") {
		p.RandomSeed = &flatSeed
	}
	if fs.Changed("horizon") {
		p.Horizon = &flatHorizon
	}
	if fs.Changed("latency-mean") {
		p.LatencyMean = &flatLatencyMean
	}
	if fs.Changed("latency-stddev") {
		p.LatencyStdDev = &flatLatencyStdDev
	}
	if fs.Changed("packet-loss") {
		p.PacketLossProb = &flatPacketLoss
	}
	if fs.Changed("max-order-rate") {
		p.MaxOrderRate = &flatMaxOrderRate
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **decimal.Decimal
	}{
		{"max-order-size", flatMaxOrderSize, &p.MaxOrderSize},
		{"max-position", flatMaxPosition, &p.MaxPosition},
	} {
		if !fs.Changed(f.name) {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return p, fmt.Errorf("--%s: %w", f.name, err)
		}
		*f.dst = &v
	}
	return p, nil
}

// loadRunConfig reads --config (or defaults), overlays the flat flags and validates.
func loadRunConfig(fs *pflag.FlagSet) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = sim.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}
	p, err := flatParams(fs)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyFlat(p)
	if traceLevel != "" {
		cfg.TraceLevel = traceLevel
	}
	return cfg, cfg.Validate()
}

// decodeStrict decodes YAML into out, rejecting unknown fields. Empty input keeps out.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// loadGeneratorConfig reads a generator YAML over DefaultGeneratorConfig.
func loadGeneratorConfig(path string) (marketdata.GeneratorConfig, error) {
	cfg := marketdata.DefaultGeneratorConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read generator config: %w", err)
	}
	if err := decodeStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse generator config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// loadStrategy reads --strategy-config and --strategy into a factory.
func loadStrategy() (sim.StrategyFactory, strategy.Spec, error) {
	spec := strategy.DefaultSpec()
	if strategyPath != "" {
		data, err := os.ReadFile(strategyPath)
		if err != nil {
			return nil, spec, fmt.Errorf("read strategy config: %w", err)
		}
		if err := decodeStrict(data, &spec); err != nil {
			return nil, spec, fmt.Errorf("parse strategy config %q: %w", strategyPath, err)
		}
	}
	if strategyName != "" {
		spec.Name = strategyName
	}
	f, err := spec.Factory()
	return f, spec, err
}

// feedFactory returns a factory opening --data, or a generator built from --synthetic.
func feedFactory() (func() (marketdata.Source, error), error) {
	if dataPath != "" {
		path := dataPath
		return func() (marketdata.Source, error) { return marketdata.OpenCSV(path) }, nil
	}
	gen, err := loadGeneratorConfig(syntheticPath)
	if err != nil {
		return nil, err
	}
	return func() (marketdata.Source, error) { return marketdata.NewGenerator(gen) }, nil
}
