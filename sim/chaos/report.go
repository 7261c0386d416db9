package chaos

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/lobsim/lobsim/sim"
)

// Distribution summarizes one metric across runs.
type Distribution struct {
	N      int     `yaml:"n"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stddev"`
	Min    float64 `yaml:"min"`
	P5     float64 `yaml:"p5"`
	P50    float64 `yaml:"p50"`
	P95    float64 `yaml:"p95"`
	Max    float64 `yaml:"max"`
}

// Summarize computes the distribution of xs. xs is not modified.
func Summarize(xs []float64) Distribution {
	if len(xs) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 || math.IsNaN(std) {
		std = 0
	}
	return Distribution{
		N:      len(sorted),
		Mean:   mean,
		StdDev: std,
		Min:    sorted[0],
		P5:     stat.Quantile(0.05, stat.Empirical, sorted, nil),
		P50:    stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

// RunSummary is the per-run line of a batch report.
type RunSummary struct {
	Index        int                `yaml:"index"`
	RunID        string             `yaml:"run_id"`
	Seed         int64              `yaml:"seed"`
	Status       sim.Status         `yaml:"status"`
	PnL          float64            `yaml:"pnl"`
	MaxDrawdown  float64            `yaml:"max_drawdown"`
	Sharpe       float64            `yaml:"sharpe"`
	FillRate     float64            `yaml:"fill_rate"`
	RiskBreaches int                `yaml:"risk_breaches"`
	Dropped      int                `yaml:"dropped"`
	Params       map[string]float64 `yaml:"params,omitempty"`
	Digest       string             `yaml:"digest,omitempty"`
	Error        string             `yaml:"error,omitempty"`
}

// BatchReport aggregates a batch. Distributions cover runs that were not aborted;
// an aborted run stops at an arbitrary point and its PnL is not comparable.
type BatchReport struct {
	Runs         int          `yaml:"runs"`
	Aborted      int          `yaml:"aborted"`
	PnL          Distribution `yaml:"pnl"`
	MaxDrawdown  Distribution `yaml:"max_drawdown"`
	FillRate     Distribution `yaml:"fill_rate"`
	RiskBreaches Distribution `yaml:"risk_breaches"`
	Summaries    []RunSummary `yaml:"summaries"`

	Results []*sim.Result `yaml:"-"`
}

// Aggregate builds the report from per-run results, indexed like runs.
func Aggregate(runs []Run, results []*sim.Result) *BatchReport {
	rep := &BatchReport{Runs: len(results), Results: results}
	var pnl, drawdown, fill, breaches []float64
	for i, res := range results {
		if res == nil {
			continue
		}
		sum := RunSummary{
			Index:        i,
			RunID:        res.RunID,
			Seed:         res.Seed,
			Status:       res.Status,
			PnL:          res.PnL.InexactFloat64(),
			MaxDrawdown:  res.MaxDrawdown.InexactFloat64(),
			Sharpe:       res.Sharpe,
			FillRate:     res.FillRate,
			RiskBreaches: res.RiskBreaches,
			Digest:       res.Digest,
			Error:        res.Error,
		}
		if i < len(runs) {
			sum.Params = runs[i].Params
		}
		for _, n := range res.Dropped {
			sum.Dropped += n
		}
		rep.Summaries = append(rep.Summaries, sum)
		if res.Status == sim.StatusAborted {
			rep.Aborted++
			continue
		}
		pnl = append(pnl, sum.PnL)
		drawdown = append(drawdown, sum.MaxDrawdown)
		fill = append(fill, sum.FillRate)
		breaches = append(breaches, float64(sum.RiskBreaches))
	}
	rep.PnL = Summarize(pnl)
	rep.MaxDrawdown = Summarize(drawdown)
	rep.FillRate = Summarize(fill)
	rep.RiskBreaches = Summarize(breaches)
	return rep
}
