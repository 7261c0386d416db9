package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lobsim/lobsim/sim"
	"github.com/lobsim/lobsim/sim/marketdata"
	"github.com/lobsim/lobsim/sim/simerr"
)

// FeedFactory opens the market data of one run. Every run needs its own Source; the
// factory is called from worker goroutines and must be safe for concurrent use.
type FeedFactory func(run Run) (marketdata.Source, error)

// Harness runs batches. Strategy and Feed are required; Workers <= 0 uses GOMAXPROCS.
type Harness struct {
	Strategy sim.StrategyFactory
	Feed     FeedFactory
	Workers  int
	Metrics  *Collector // optional
}

// RunBatch plans n runs around base, executes them in parallel and aggregates the
// results. Runs share nothing: each owns its simulator, strategy, feed and RNG streams,
// and writes only its own result slot. Runs ending in a fatal simulation error count as
// aborted in the report; configuration errors, feed errors and cancellation fail the batch.
func (h *Harness) RunBatch(ctx context.Context, base sim.Config, ranges ParameterRanges, n int) (*BatchReport, error) {
	if h.Strategy == nil {
		return nil, simerr.Invalid("chaos.strategy", "strategy factory is required")
	}
	if h.Feed == nil {
		return nil, simerr.Invalid("chaos.feed", "feed factory is required")
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	runs, err := Plan(base, ranges, n)
	if err != nil {
		return nil, err
	}
	workers := h.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logrus.Infof("chaos batch: %d runs, %d workers, base seed %d", n, workers, base.Seed)

	results := make([]*sim.Result, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, run := range runs {
		g.Go(func() error {
			res, err := h.runOne(gctx, run)
			if err != nil {
				return fmt.Errorf("run %d (seed %d): %w", run.Index, run.Seed, err)
			}
			results[run.Index] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Aggregate(runs, results), nil
}

func (h *Harness) runOne(ctx context.Context, run Run) (*sim.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := h.Feed(run)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	s, err := sim.NewSimulator(run.Config, src, h.Strategy())
	if err != nil {
		if errors.Is(err, simerr.ErrConfiguration) {
			return nil, err
		}
		// the first record was unusable; the run never started
		logrus.Warnf("chaos run %d: %v", run.Index, err)
		return abortedResult(run, err), nil
	}
	start := time.Now()
	res, err := s.Run(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !simerr.IsFatal(err) {
		return nil, err
	}
	if err != nil {
		logrus.Warnf("chaos run %d (seed %d) aborted: %v", run.Index, run.Seed, err)
	} else {
		logrus.Debugf("chaos run %d (seed %d): %s, pnl %s", run.Index, run.Seed, res.Status, res.PnL)
	}
	h.Metrics.Observe(res, time.Since(start))
	return res, nil
}

func abortedResult(run Run, err error) *sim.Result {
	return &sim.Result{
		RunID:      sim.RunID(run.Seed),
		Seed:       run.Seed,
		Status:     sim.StatusAborted,
		Incomplete: true,
		Error:      err.Error(),
		Err:        err,
	}
}
