package chaos

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lobsim/lobsim/sim"
)

// Collector exports batch progress as prometheus metrics on its own registry, so
// several batches in one process do not collide. A nil *Collector is a no-op.
type Collector struct {
	Registry *prometheus.Registry

	runs         *prometheus.CounterVec
	pnl          prometheus.Histogram
	drawdown     prometheus.Histogram
	fillRate     prometheus.Histogram
	riskBreaches prometheus.Counter
	dropped      *prometheus.CounterVec
	wallTime     prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		Registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "chaos",
			Name:      "runs_total",
			Help:      "Finished runs by status",
		}, []string{"status"}),
		pnl: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lobsim",
			Subsystem: "chaos",
			Name:      "pnl",
			Help:      "Mark-to-market PnL per run, quote currency",
			Buckets:   []float64{-1000, -100, -10, -1, 0, 1, 10, 100, 1000},
		}),
		drawdown: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lobsim",
			Subsystem: "chaos",
			Name:      "max_drawdown",
			Help:      "Largest fall of marked PnL from a peak per run, quote currency",
			Buckets:   []float64{0, 1, 10, 100, 1000, 10000},
		}),
		fillRate: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lobsim",
			Subsystem: "chaos",
			Name:      "fill_rate",
			Help:      "Filled over submitted quantity per run",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		riskBreaches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "chaos",
			Name:      "risk_breaches_total",
			Help:      "Orders rejected by the pre-trade risk gate",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobsim",
			Subsystem: "chaos",
			Name:      "dropped_messages_total",
			Help:      "Messages lost by the network model",
		}, []string{"channel"}),
		wallTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lobsim",
			Subsystem: "chaos",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock time per run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

// Observe records one finished run. Safe for concurrent use.
func (c *Collector) Observe(res *sim.Result, wall time.Duration) {
	if c == nil || res == nil {
		return
	}
	c.runs.WithLabelValues(string(res.Status)).Inc()
	c.wallTime.Observe(wall.Seconds())
	if res.Status == sim.StatusAborted {
		return
	}
	c.pnl.Observe(res.PnL.InexactFloat64())
	c.drawdown.Observe(res.MaxDrawdown.InexactFloat64())
	c.fillRate.Observe(res.FillRate)
	c.riskBreaches.Add(float64(res.RiskBreaches))
	for ch, n := range res.Dropped {
		c.dropped.WithLabelValues(ch).Add(float64(n))
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.Registry); err != nil {
		return fmt.Errorf("write metrics %q: %w", path, err)
	}
	return nil
}
