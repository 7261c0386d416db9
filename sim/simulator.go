// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/latency"
	"github.com/lobsim/lobsim/sim/marketdata"
	"github.com/lobsim/lobsim/sim/risk"
	"github.com/lobsim/lobsim/sim/simerr"
	"github.com/lobsim/lobsim/sim/trace"
)

// ctxCheckInterval is how many events run between context checks.
const ctxCheckInterval = 256

// Simulator is one SimulationRun: it holds simulation time, the event loop and every piece
// of state the run mutates. Nothing in it is shared with other runs, and everything except
// Stop must be called from a single goroutine.
type Simulator struct {
	Clock int64

	cfg       Config
	queue     *EventQueue
	rng       *PartitionedRNG
	net       *latency.Model
	risk      *risk.Engine
	strategy  Strategy
	portfolio *Portfolio
	trace     *trace.SimulationTrace
	digest    *trace.Digest

	source     marketdata.Source
	lastFeedTS int64
	start      int64

	exchange       map[string]*book.Book // ground truth, with the queue tracker
	local          map[string]*book.Book // what the strategy sees
	exchangeOrders map[string]string     // order ID -> symbol, every order the exchange has seen

	taken  map[string]map[levelKey]decimal.Decimal // own taker volume per exchange level
	mdLost map[string]int64                        // symbol -> send time of the latest lost market data record

	orders   map[string]*Order
	working  map[string]*Order // Pending, Acknowledged or PartiallyFilled
	orderSeq int

	fills             []Fill
	rejections        []Rejection
	equity            EquityCurve
	dropped           map[string]int
	riskBreaches      int
	orphanFills       int
	ordersSubmitted   int
	quantitySubmitted decimal.Decimal
	quantityFilled    decimal.Decimal
	eventsProcessed   int
	eventsDiscarded   int

	status  Status
	err     error
	stopped atomic.Bool
}

// NewSimulator validates cfg and primes the queue with the first market data record.
// Returns *ConfigurationError for bad parameters and *MalformedInputError if the first
// record is unreadable; no event has run in either case.
func NewSimulator(cfg Config, src marketdata.Source, strategy Strategy) (*Simulator, error) {
	if strategy == nil {
		panic("NewSimulator: strategy must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	s := &Simulator{
		cfg:            cfg,
		queue:          NewEventQueue(),
		rng:            rng,
		net:            latency.NewModel(cfg.Latency, rng),
		risk:           risk.NewEngine(cfg.Risk),
		strategy:       strategy,
		portfolio:      NewPortfolio(cfg.Fees),
		digest:         trace.NewDigest(),
		source:         src,
		lastFeedTS:     math.MinInt64,
		exchange:       make(map[string]*book.Book),
		local:          make(map[string]*book.Book),
		exchangeOrders: make(map[string]string),
		taken:          make(map[string]map[levelKey]decimal.Decimal),
		mdLost:         make(map[string]int64),
		orders:         make(map[string]*Order),
		working:        make(map[string]*Order),
		dropped:        make(map[string]int),
		status:         statusRunning,
	}
	if cfg.TraceLevel != "" && cfg.TraceLevel != string(trace.TraceLevelNone) {
		s.trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)})
	}
	first, err := s.feed()
	if err != nil {
		return nil, err
	}
	if first != nil {
		s.Clock = first.Timestamp()
		s.start = s.Clock
	}
	s.net.SetOrigin(s.start)
	s.equity.Record(s.start, decimal.Zero)
	return s, nil
}

// Config returns the run's configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Schedule inserts ev at Clock + max(delay, 0).
func (s *Simulator) Schedule(ev Event, delay int64) {
	s.queue.Insert(ev, s.Clock+latency.Clamp(delay))
}

// Pending returns the number of queued events.
func (s *Simulator) Pending() int { return s.queue.Len() }

// Stop asks the loop to halt before the next event. Safe to call from any goroutine.
func (s *Simulator) Stop() { s.stopped.Store(true) }

// feed pulls the next market data record and schedules it at its own timestamp.
// Returns the scheduled event, or nil once the source is exhausted.
func (s *Simulator) feed() (Event, error) {
	if s.source == nil {
		return nil, nil
	}
	u, err := s.source.Next()
	if errors.Is(err, io.EOF) {
		s.source = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("market data: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if u.Timestamp < s.lastFeedTS {
		return nil, simerr.Malformed("timestamp", strconv.FormatInt(u.Timestamp, 10),
			fmt.Sprintf("goes backwards from %d", s.lastFeedTS))
	}
	s.lastFeedTS = u.Timestamp
	ev := &MarketDataEvent{Venue: AtExchange, Update: u}
	s.queue.Insert(ev, u.Timestamp)
	return ev, nil
}

// RunUntil dispatches events in (timestamp, seq) order while the next one is due at or
// before end. It returns the fatal error that aborted the run, the context error if ctx
// was cancelled, or nil.
func (s *Simulator) RunUntil(ctx context.Context, end int64) error {
	if s.status == StatusAborted {
		return s.err
	}
	s.status = statusRunning
	for n := 0; ; n++ {
		if s.stopped.Load() {
			s.status = StatusStopped
			return nil
		}
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				s.status = StatusStopped
				return err
			}
		}
		next := s.queue.Peek()
		if next == nil {
			return nil
		}
		if next.Timestamp() > end {
			s.status = StatusHorizon
			return nil
		}
		ev := s.queue.PopNext()
		s.Clock = ev.Timestamp()
		s.eventsProcessed++
		kind, subject := string(ev.Kind()), ev.Subject()
		s.digest.Add(s.Clock, ev.Seq(), kind, subject)
		s.trace.RecordEvent(trace.EventRecord{Seq: ev.Seq(), Clock: s.Clock, Kind: kind, Subject: subject})
		logrus.Debugf("[tick %013d] Executing %s %s", s.Clock, kind, subject)

		if err := ev.Execute(s); err != nil {
			s.status = StatusAborted
			s.err = err
			logrus.Errorf("[tick %013d] run aborted: %v", s.Clock, err)
			return err
		}
	}
}

// Run executes the whole run: until the queue drains, the horizon passes, a fatal error
// occurs, Stop is called or ctx is cancelled. The Result is always returned; the error is
// the fatal or context error, if any.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	end := int64(math.MaxInt64)
	if s.cfg.Horizon > 0 && s.start <= math.MaxInt64-s.cfg.Horizon {
		end = s.start + s.cfg.Horizon
	}
	logrus.Infof("[tick %013d] run %s started (seed %d)", s.Clock, RunID(s.cfg.Seed), s.cfg.Seed)
	err := s.RunUntil(ctx, end)
	s.recordEquity()
	if s.status == statusRunning {
		s.status = StatusCompleted
	}
	if s.status != StatusCompleted {
		s.eventsDiscarded = s.queue.Discard()
	}
	logrus.Infof("[tick %013d] run ended: %s after %d events", s.Clock, s.status, s.eventsProcessed)
	return s.Result(), err
}

// Result snapshots the current run state.
func (s *Simulator) Result() *Result {
	status := s.status
	if status == statusRunning && s.queue.Len() == 0 {
		status = StatusCompleted
	}
	r := &Result{
		RunID:             RunID(s.cfg.Seed),
		Seed:              s.cfg.Seed,
		Status:            status,
		Incomplete:        status != StatusCompleted,
		Err:               s.err,
		StartTime:         s.start,
		EndTime:           s.Clock,
		EventsProcessed:   s.eventsProcessed,
		EventsDiscarded:   s.eventsDiscarded,
		OrdersSubmitted:   s.ordersSubmitted,
		QuantitySubmitted: s.quantitySubmitted,
		QuantityFilled:    s.quantityFilled,
		RiskBreaches:      s.riskBreaches,
		OrphanFills:       s.orphanFills,
		Positions:         s.portfolio.Positions(),
		Cash:              s.portfolio.Cash(),
		Fees:              s.portfolio.Fees(),
		PnL:               s.portfolio.MarkToMarket(s.mark),
		MaxDrawdown:       s.equity.MaxDrawdown(),
		Sharpe:            s.equity.Sharpe(),
		Equity:            s.equity.Points(),
		Dropped:           make(map[string]int, len(s.dropped)),
		Fills:             append([]Fill(nil), s.fills...),
		Rejections:        append([]Rejection(nil), s.rejections...),
		Books:             make(map[string]book.Snapshot, len(s.local)),
		ExchangeBooks:     make(map[string]book.Snapshot, len(s.exchange)),
		Digest:            s.digest.Sum(),
		Trace:             s.trace,
	}
	if s.err != nil {
		r.Error = s.err.Error()
	}
	if s.quantitySubmitted.IsPositive() {
		r.FillRate = s.quantityFilled.Div(s.quantitySubmitted).InexactFloat64()
	}
	for ch, n := range s.dropped {
		r.Dropped[ch] = n
	}
	for sym, b := range s.local {
		r.Books[sym] = b.Snapshot(s.Clock, 0)
		st := b.Stats()
		r.SequenceGaps += st.SequenceGaps
		r.StaleUpdates += st.StaleUpdates
		r.Resyncs += st.Resyncs
		r.SkippedUpdates += st.SkippedUpdates
	}
	for sym, b := range s.exchange {
		r.ExchangeBooks[sym] = b.Snapshot(s.Clock, 0)
	}
	r.Orders = s.Orders()
	return r
}

func (s *Simulator) recordEquity() {
	s.equity.Record(s.Clock, s.portfolio.MarkToMarket(s.mark))
}

// mark is the price positions are valued at: local mid, else exchange mid.
func (s *Simulator) mark(symbol string) (decimal.Decimal, bool) {
	if b, ok := s.local[symbol]; ok {
		if m, ok := b.Mid(); ok {
			return m, true
		}
	}
	if b, ok := s.exchange[symbol]; ok {
		return b.Mid()
	}
	return decimal.Zero, false
}

// Orders returns views of every order created so far, ordered by ID.
func (s *Simulator) Orders() []OrderView {
	out := make([]OrderView, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Order returns a view of one order.
func (s *Simulator) Order(id string) (OrderView, bool) {
	o, ok := s.orders[id]
	if !ok {
		return OrderView{}, false
	}
	return o.View(), true
}

// LocalBook returns the strategy-side book of symbol, or nil before its first record arrived.
func (s *Simulator) LocalBook(symbol string) *book.Book { return s.local[symbol] }

// ExchangeBook returns the exchange-side book of symbol, or nil.
func (s *Simulator) ExchangeBook(symbol string) *book.Book { return s.exchange[symbol] }

// send pushes ev through the latency model on ch and reports whether it will arrive.
// Lost messages are counted and traced.
func (s *Simulator) send(ch latency.Channel, ev Event, subject string) bool {
	out := s.net.Perturb(ch, s.Clock)
	if out.Dropped {
		s.dropped[ch.String()]++
		s.trace.RecordDrop(trace.DropRecord{Clock: s.Clock, Channel: ch.String(), Subject: subject, Reason: out.Reason})
		return false
	}
	s.Schedule(ev, out.Delay)
	return true
}

// applyUpdate applies one record to b and returns exchange-side fills of tracked orders.
func applyUpdate(b *book.Book, u marketdata.Update) ([]book.Fill, error) {
	switch u.Type {
	case marketdata.Depth:
		return nil, b.ApplyDepth(book.DepthUpdate{Time: u.Timestamp, Side: u.Side, Price: u.Price, Quantity: u.Quantity, UpdateID: u.UpdateID})
	case marketdata.Trade:
		return b.ApplyTrade(book.TradePrint{Time: u.Timestamp, Aggressor: u.Side, Price: u.Price, Quantity: u.Quantity})
	case marketdata.Snapshot:
		return nil, b.ApplySnapshot(u.Timestamp, u.Bids, u.Asks, u.UpdateID)
	}
	return nil, simerr.Malformed("type", string(u.Type), "must be depth, trade or snapshot")
}
