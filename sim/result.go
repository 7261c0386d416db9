package sim

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/trace"
)

// Status is how a run ended.
type Status string

const (
	statusRunning   Status = "running"
	StatusCompleted Status = "completed" // event queue drained
	StatusHorizon   Status = "horizon"   // stopped at the horizon with events pending
	StatusAborted   Status = "aborted"   // fatal error (desync, malformed input)
	StatusStopped   Status = "stopped"   // Stop() or context cancellation
)

// Rejection is one order refused by the risk gate, the exchange or the ack timeout.
type Rejection struct {
	OrderID string `yaml:"order_id"`
	Symbol  string `yaml:"symbol"`
	Time    int64  `yaml:"time"`
	Source  string `yaml:"source"` // risk, exchange, timeout or validation
	Reason  string `yaml:"reason"`
	Detail  string `yaml:"detail,omitempty"`
}

// Result is the immutable outcome of one run. Runs that did not drain their event queue
// are Incomplete and carry whatever state they had reached.
type Result struct {
	RunID      string `yaml:"run_id"`
	Seed       int64  `yaml:"seed"`
	Status     Status `yaml:"status"`
	Incomplete bool   `yaml:"incomplete"`
	Error      string `yaml:"error,omitempty"`
	Err        error  `yaml:"-"`

	StartTime       int64 `yaml:"start_time"`
	EndTime         int64 `yaml:"end_time"`
	EventsProcessed int   `yaml:"events_processed"`
	EventsDiscarded int   `yaml:"events_discarded"`

	OrdersSubmitted   int             `yaml:"orders_submitted"`
	QuantitySubmitted decimal.Decimal `yaml:"quantity_submitted"`
	QuantityFilled    decimal.Decimal `yaml:"quantity_filled"`
	FillRate          float64         `yaml:"fill_rate"`
	RiskBreaches      int             `yaml:"risk_breaches"`
	OrphanFills       int             `yaml:"orphan_fills"`

	Positions map[string]decimal.Decimal `yaml:"positions"`
	Cash      decimal.Decimal            `yaml:"cash"`
	Fees      decimal.Decimal            `yaml:"fees"`
	PnL       decimal.Decimal            `yaml:"pnl"`

	// Equity is the marked PnL path; MaxDrawdown is its largest fall from a peak and
	// Sharpe the mean over the stddev of its steps.
	Equity      []EquityPoint   `yaml:"-"`
	MaxDrawdown decimal.Decimal `yaml:"max_drawdown"`
	Sharpe      float64         `yaml:"sharpe"`

	Dropped        map[string]int `yaml:"dropped"`
	SequenceGaps   int            `yaml:"sequence_gaps"`
	StaleUpdates   int            `yaml:"stale_updates"`
	Resyncs        int            `yaml:"resyncs"`         // local books invalidated after lost market data
	SkippedUpdates int            `yaml:"skipped_updates"` // records ignored while waiting for a snapshot

	Fills         []Fill                   `yaml:"fills"`
	Rejections    []Rejection              `yaml:"rejections"`
	Orders        []OrderView              `yaml:"orders"`
	Books         map[string]book.Snapshot `yaml:"books"`          // local view
	ExchangeBooks map[string]book.Snapshot `yaml:"exchange_books"` // ground truth

	Digest string                 `yaml:"digest"`
	Trace  *trace.SimulationTrace `yaml:"-"`
}

// Reporter receives finished results.
type Reporter interface {
	Report(*Result) error
}

// runNamespace scopes run IDs derived from seeds.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/lobsim/lobsim/run"))

// RunID returns the stable identifier of a run with the given seed.
func RunID(seed int64) string {
	return uuid.NewSHA1(runNamespace, []byte(strconv.FormatInt(seed, 10))).String()
}

// Err returns the rejection as a *RejectedError, the error strategies see on the order.
func (r Rejection) Err() error {
	return &RejectedError{OrderID: r.OrderID, Reason: r.Reason, Detail: r.Detail}
}
