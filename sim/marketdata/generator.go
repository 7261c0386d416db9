package marketdata

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/simerr"
)

// GeneratorConfig describes a synthetic market: a random-walk ladder of integer ticks
// around StartPrice, perturbed by trades, price moves and level resizes.
type GeneratorConfig struct {
	Symbol     string          `yaml:"symbol"`
	Seed       int64           `yaml:"seed"`
	Events     int             `yaml:"events"`  // records after the initial snapshot, 0 = until Horizon
	Horizon    int64           `yaml:"horizon"` // ns, 0 = until Events
	StartTime  int64           `yaml:"start_time"`
	StartPrice decimal.Decimal `yaml:"start_price"`
	TickSize   decimal.Decimal `yaml:"tick_size"`
	LotSize    decimal.Decimal `yaml:"lot_size"`
	Levels     int             `yaml:"levels"` // target depth per side
	Arrival    ArrivalSpec     `yaml:"arrival"`
	Size       SizeSpec        `yaml:"size"`
	TradeProb  float64         `yaml:"trade_prob"`
	MoveProb   float64         `yaml:"move_prob"`

	// SnapshotEvery re-emits the full ladder after this many records, 0 = only at start.
	SnapshotEvery int `yaml:"snapshot_every"`
}

// DefaultGeneratorConfig returns a liquid BTCUSDT-like market at 200 events/s.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:     "BTCUSDT",
		Seed:       1,
		Events:     20_000,
		StartPrice: decimal.NewFromInt(30_000),
		TickSize:   decimal.RequireFromString("0.5"),
		LotSize:    decimal.RequireFromString("0.01"),
		Levels:     10,
		Arrival:    ArrivalSpec{Process: "poisson", Rate: 200},
		Size:       SizeSpec{Mean: 20, StdDev: 10, Min: 1, Max: 100},
		TradeProb:  0.25,
		MoveProb:   0.15,
	}
}

// Validate returns a *simerr.ConfigurationError for the first invalid field.
func (c GeneratorConfig) Validate() error {
	switch {
	case c.Symbol == "":
		return simerr.Invalid("generator.symbol", "must not be empty")
	case c.SnapshotEvery < 0:
		return simerr.Invalid("generator.snapshot_every", "must be >= 0, got %d", c.SnapshotEvery)
	case c.Events < 0:
		return simerr.Invalid("generator.events", "must be >= 0, got %d", c.Events)
	case c.Events == 0 && c.Horizon <= 0:
		return simerr.Invalid("generator.horizon", "events or horizon must bound the stream")
	case !c.StartPrice.IsPositive():
		return simerr.Invalid("generator.start_price", "must be positive, got %s", c.StartPrice)
	case !c.TickSize.IsPositive():
		return simerr.Invalid("generator.tick_size", "must be positive, got %s", c.TickSize)
	case !c.LotSize.IsPositive():
		return simerr.Invalid("generator.lot_size", "must be positive, got %s", c.LotSize)
	case c.Levels < 1:
		return simerr.Invalid("generator.levels", "must be >= 1, got %d", c.Levels)
	case c.Arrival.Rate <= 0:
		return simerr.Invalid("generator.arrival.rate", "must be positive, got %v", c.Arrival.Rate)
	case c.TradeProb < 0 || c.MoveProb < 0 || c.TradeProb+c.MoveProb > 1:
		return simerr.Invalid("generator.trade_prob", "trade_prob and move_prob must be >= 0 and sum to <= 1")
	}
	switch c.Arrival.Process {
	case "", "poisson", "gamma", "weibull":
	default:
		return simerr.Invalid("generator.arrival.process", "unknown process %q", c.Arrival.Process)
	}
	return nil
}

// Generator is a Source of synthetic, self-consistent market data. Every depth update
// it emits is applied to an internal book first, so the stream never crosses.
type Generator struct {
	cfg     GeneratorConfig
	rng     *rand.Rand
	arrival ArrivalSampler
	size    *SizeSampler
	book    *book.Book

	now     int64
	emitted int
	since   int // records since the last snapshot
	nextID  uint64
	queue   []Update
	started bool
}

// NewGenerator validates cfg and seeds the generator from cfg.Seed.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		arrival: NewArrivalSampler(cfg.Arrival),
		size:    NewSizeSampler(cfg.Size),
		book:    book.New(cfg.Symbol, nil),
		now:     cfg.StartTime,
	}, nil
}

func (g *Generator) Next() (Update, error) {
	if !g.started {
		g.started = true
		return g.snapshot()
	}
	if g.cfg.Events > 0 && g.emitted >= g.cfg.Events {
		return Update{}, io.EOF
	}
	if len(g.queue) == 0 && g.cfg.SnapshotEvery > 0 && g.since >= g.cfg.SnapshotEvery {
		g.since = 0
		g.emitted++
		return g.resnapshot()
	}
	for len(g.queue) == 0 {
		g.now += g.arrival.SampleIAT(g.rng)
		if g.cfg.Horizon > 0 && g.now > g.cfg.StartTime+g.cfg.Horizon {
			return Update{}, io.EOF
		}
		if err := g.step(); err != nil {
			return Update{}, err
		}
	}
	u := g.queue[0]
	g.queue = g.queue[1:]
	g.emitted++
	g.since++
	return u, nil
}

func (g *Generator) price(ticks int64) decimal.Decimal {
	return g.cfg.StartPrice.Add(g.cfg.TickSize.Mul(decimal.NewFromInt(ticks)))
}

func (g *Generator) lots() decimal.Decimal {
	return g.cfg.LotSize.Mul(decimal.NewFromInt(g.size.Sample(g.rng)))
}

func (g *Generator) snapshot() (Update, error) {
	var bids, asks []book.Level
	for i := 1; i <= g.cfg.Levels; i++ {
		if p := g.price(int64(-i)); p.IsPositive() {
			bids = append(bids, book.Level{Price: p, Quantity: g.lots()})
		}
		asks = append(asks, book.Level{Price: g.price(int64(i)), Quantity: g.lots()})
	}
	g.nextID++
	if err := g.book.ApplySnapshot(g.now, bids, asks, g.nextID); err != nil {
		return Update{}, fmt.Errorf("generator snapshot: %w", err)
	}
	return Update{Symbol: g.cfg.Symbol, Timestamp: g.now, Type: Snapshot, UpdateID: g.nextID, Bids: bids, Asks: asks}, nil
}

// resnapshot emits the current ladder as a new snapshot.
func (g *Generator) resnapshot() (Update, error) {
	bids, asks := g.book.Levels(book.Bid, 0), g.book.Levels(book.Ask, 0)
	g.nextID++
	if err := g.book.ApplySnapshot(g.now, bids, asks, g.nextID); err != nil {
		return Update{}, fmt.Errorf("generator snapshot: %w", err)
	}
	return Update{Symbol: g.cfg.Symbol, Timestamp: g.now, Type: Snapshot, UpdateID: g.nextID, Bids: bids, Asks: asks}, nil
}

func (g *Generator) side() book.Side {
	if g.rng.Intn(2) == 0 {
		return book.Bid
	}
	return book.Ask
}

func (g *Generator) depth(side book.Side, price, qty decimal.Decimal) error {
	g.nextID++
	u := book.DepthUpdate{Time: g.now, Side: side, Price: price, Quantity: qty, UpdateID: g.nextID}
	if err := g.book.ApplyDepth(u); err != nil {
		return fmt.Errorf("generator depth update: %w", err)
	}
	g.queue = append(g.queue, Update{
		Symbol: g.cfg.Symbol, Timestamp: g.now, Type: Depth,
		Side: side, Price: price, Quantity: qty, UpdateID: g.nextID,
	})
	return nil
}

func (g *Generator) step() error {
	u := g.rng.Float64()
	switch {
	case u < g.cfg.TradeProb:
		return g.trade()
	case u < g.cfg.TradeProb+g.cfg.MoveProb:
		return g.move()
	default:
		return g.resize()
	}
}

// trade prints against the best level of a random maker side.
func (g *Generator) trade() error {
	aggressor := g.side()
	maker := aggressor.Opposite()
	best, ok := g.bestOf(maker)
	if !ok {
		return g.replenish(maker)
	}
	qty := decimal.Min(g.lots(), best.Quantity)
	if _, err := g.book.ApplyTrade(book.TradePrint{Time: g.now, Aggressor: aggressor, Price: best.Price, Quantity: qty}); err != nil {
		return fmt.Errorf("generator trade: %w", err)
	}
	g.queue = append(g.queue, Update{
		Symbol: g.cfg.Symbol, Timestamp: g.now, Type: Trade,
		Side: aggressor, Price: best.Price, Quantity: qty,
	})
	return nil
}

// move improves one side by a tick. The opposite best level is removed first when the
// new price would touch it, so the book never crosses.
func (g *Generator) move() error {
	s := g.side()
	best, ok := g.bestOf(s)
	if !ok {
		return g.replenish(s)
	}
	next := best.Price.Add(g.cfg.TickSize.Mul(s.Sign()))
	if !next.IsPositive() {
		return g.resize()
	}
	if opp, ok := g.bestOf(s.Opposite()); ok && !s.Better(opp.Price, next) {
		if err := g.depth(s.Opposite(), opp.Price, decimal.Zero); err != nil {
			return err
		}
	}
	if err := g.depth(s, next, g.lots()); err != nil {
		return err
	}
	if lv := g.book.Levels(s, 0); len(lv) > g.cfg.Levels {
		return g.depth(s, lv[len(lv)-1].Price, decimal.Zero)
	}
	return nil
}

// resize sets a random existing level to a new size, or grows a thin side.
func (g *Generator) resize() error {
	s := g.side()
	lv := g.book.Levels(s, 0)
	if len(lv) < g.cfg.Levels {
		return g.replenish(s)
	}
	i := g.rng.Intn(len(lv))
	return g.depth(s, lv[i].Price, g.lots())
}

// replenish adds a level one tick behind the worst level of s, or one tick away from the
// opposite best when s is empty.
func (g *Generator) replenish(s book.Side) error {
	away := g.cfg.TickSize.Mul(s.Sign()).Neg()
	var price decimal.Decimal
	if lv := g.book.Levels(s, 0); len(lv) > 0 {
		price = lv[len(lv)-1].Price.Add(away)
	} else if opp, ok := g.bestOf(s.Opposite()); ok {
		price = opp.Price.Add(away)
	} else {
		price = g.cfg.StartPrice.Add(away)
	}
	if !price.IsPositive() {
		return nil
	}
	return g.depth(s, price, g.lots())
}

func (g *Generator) bestOf(s book.Side) (book.Level, bool) {
	if s == book.Bid {
		return g.book.BestBid()
	}
	return g.book.BestAsk()
}
