package cmd

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/chaos"
	"github.com/lobsim/lobsim/sim/trace"
)

// TextReporter prints a human-readable run summary.
type TextReporter struct {
	W io.Writer
}

func (r TextReporter) Report(res *sim.Result) error {
	w := &errWriter{w: r.W}
	w.printf("=== Simulation Result ===\n")
	w.printf("Run ID               : %s\n", res.RunID)
	w.printf("Seed                 : %d\n", res.Seed)
	w.printf("Status               : %s\n", res.Status)
	if res.Error != "" {
		w.printf("Error                : %s\n", res.Error)
	}
	w.printf("Simulated Time       : %d -> %d ns\n", res.StartTime, res.EndTime)
	w.printf("Events Processed     : %d (%d discarded)\n", res.EventsProcessed, res.EventsDiscarded)
	w.printf("Orders Submitted     : %d\n", res.OrdersSubmitted)
	w.printf("Fills                : %d (%d orphan)\n", len(res.Fills), res.OrphanFills)
	w.printf("Fill Rate            : %.4f\n", res.FillRate)
	w.printf("Rejections           : %d (%d risk breaches)\n", len(res.Rejections), res.RiskBreaches)
	w.printf("Cash                 : %s\n", res.Cash)
	w.printf("Fees                 : %s\n", res.Fees)
	w.printf("PnL (mark-to-market) : %s\n", res.PnL)
	w.printf("Max Drawdown         : %s\n", res.MaxDrawdown)
	w.printf("Sharpe (per step)    : %.4f\n", res.Sharpe)
	for _, sym := range sortedKeys(res.Positions) {
		w.printf("Position %-12s: %s\n", sym, res.Positions[sym])
	}
	for _, ch := range sortedKeys(res.Dropped) {
		w.printf("Dropped %-13s: %d\n", ch, res.Dropped[ch])
	}
	w.printf("Sequence Gaps        : %d\n", res.SequenceGaps)
	w.printf("Stale Updates        : %d\n", res.StaleUpdates)
	if res.Resyncs > 0 {
		w.printf("Resyncs              : %d (%d records skipped)\n", res.Resyncs, res.SkippedUpdates)
	}
	w.printf("Digest               : %s\n", res.Digest)
	if res.Trace != nil {
		s := trace.Summarize(res.Trace)
		w.printf("=== Trace Summary ===\n")
		w.printf("Decisions            : %d (%d approved, %d rejected)\n", s.TotalDecisions, s.ApprovedCount, s.RejectedCount)
		for _, reason := range sortedKeys(s.RejectReasons) {
			w.printf("  %-19s: %d\n", reason, s.RejectReasons[reason])
		}
		w.printf("Drops                : %d\n", s.TotalDrops)
	}
	return w.err
}

// YAMLReporter writes the full result as YAML.
type YAMLReporter struct {
	W io.Writer
}

func (r YAMLReporter) Report(res *sim.Result) error {
	enc := yaml.NewEncoder(r.W)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return enc.Close()
}

// newReporter returns the reporter for --output.
func newReporter(format string, w io.Writer) (sim.Reporter, error) {
	switch format {
	case "text", "":
		return TextReporter{W: w}, nil
	case "yaml":
		return YAMLReporter{W: w}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (text, yaml)", format)
}

// writeBatch prints a chaos batch report in the given format.
func writeBatch(format string, w io.Writer, rep *chaos.BatchReport) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode batch report: %w", err)
		}
		return enc.Close()
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q (text, yaml)", format)
	}
	ew := &errWriter{w: w}
	ew.printf("=== Chaos Batch ===\n")
	ew.printf("Runs                 : %d (%d aborted)\n", rep.Runs, rep.Aborted)
	ew.printf("%-14s %5s %12s %12s %12s %12s %12s %12s %12s\n", "metric", "n", "mean", "stddev", "min", "p5", "p50", "p95", "max")
	for _, row := range []struct {
		name string
		d    chaos.Distribution
	}{{"pnl", rep.PnL}, {"max_drawdown", rep.MaxDrawdown}, {"fill_rate", rep.FillRate}, {"risk_breaches", rep.RiskBreaches}} {
		d := row.d
		ew.printf("%-14s %5d %12.4f %12.4f %12.4f %12.4f %12.4f %12.4f %12.4f\n",
			row.name, d.N, d.Mean, d.StdDev, d.Min, d.P5, d.P50, d.P95, d.Max)
	}
	return ew.err
}

// errWriter keeps the first write error so report code can print unconditionally.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
