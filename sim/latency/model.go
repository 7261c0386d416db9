package latency

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// RNG subsystem names consumed by the model.
const (
	SubsystemDelay  = "latency"
	SubsystemLoss   = "loss"
	SubsystemReject = "reject"
)

// Streams hands out deterministic per-subsystem random sources.
type Streams interface {
	ForSubsystem(name string) *rand.Rand
}

// Drop reasons.
const (
	DropLoss   = "packet_loss"
	DropOutage = "outage"
)

// Outcome of sending one message.
type Outcome struct {
	Delay   int64  // applied transit delay, >= 0
	Dropped bool   // message never arrives
	Reason  string // DropLoss or DropOutage when Dropped
}

// Clamp returns max(d, 0). Negative sampled latency is physically meaningless.
func Clamp(d int64) int64 {
	if d < 0 {
		return 0
	}
	return d
}

// Model perturbs messages of one run. Not safe for concurrent use.
type Model struct {
	cfg    Config
	delay  *rand.Rand
	loss   *rand.Rand
	reject *rand.Rand

	origin int64 // outage windows are relative to this

	lastArrival [numChannels]int64
	sent        [numChannels][]int64 // send times within the congestion window
	dropped     [numChannels]int
}

// NewModel builds a model from a validated config.
func NewModel(cfg Config, streams Streams) *Model {
	return &Model{
		cfg:    cfg,
		delay:  streams.ForSubsystem(SubsystemDelay),
		loss:   streams.ForSubsystem(SubsystemLoss),
		reject: streams.ForSubsystem(SubsystemReject),
	}
}

// SetOrigin sets the time outage windows are measured from, normally the timestamp of
// the first market data record.
func (m *Model) SetOrigin(t int64) { m.origin = t }

// Config returns the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// Perturb decides the fate of a message sent on ch at time now.
// Delivered messages never overtake an earlier message on the same channel.
func (m *Model) Perturb(ch Channel, now int64) Outcome {
	p := m.cfg.Profile(ch)
	u := m.loss.Float64()
	z := m.delay.NormFloat64()

	if ch == OrderEntry && m.inOutage(now) {
		m.dropped[ch]++
		logrus.Debugf("[tick %013d] %s message lost: exchange outage", now, ch)
		return Outcome{Dropped: true, Reason: DropOutage}
	}
	if u < p.LossProb {
		m.dropped[ch]++
		logrus.Debugf("[tick %013d] %s message lost", now, ch)
		return Outcome{Dropped: true, Reason: DropLoss}
	}

	d := p.Sample(z) + m.congestion(ch, now)
	d = Clamp(d)
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	arrival := now + d
	if arrival < m.lastArrival[ch] {
		arrival = m.lastArrival[ch]
	}
	m.lastArrival[ch] = arrival
	return Outcome{Delay: arrival - now}
}

// congestion records a send at now and returns the penalty for the current load.
func (m *Model) congestion(ch Channel, now int64) int64 {
	if m.cfg.CongestionThreshold <= 0 {
		return 0
	}
	w := m.sent[ch]
	cut := 0
	for cut < len(w) && w[cut] <= now-m.cfg.CongestionWindow {
		cut++
	}
	w = append(w[cut:], now)
	m.sent[ch] = w
	excess := len(w) - m.cfg.CongestionThreshold
	if excess <= 0 {
		return 0
	}
	return int64(excess) * m.cfg.CongestionPenalty
}

func (m *Model) inOutage(now int64) bool {
	rel := now - m.origin
	for _, o := range m.cfg.Outages {
		if rel >= o.Start && rel < o.End {
			return true
		}
	}
	return false
}

// ExchangeReject draws whether the exchange rejects an order that reached it.
// One draw from the reject stream per call.
func (m *Model) ExchangeReject() bool {
	return m.reject.Float64() < m.cfg.RejectProb
}

// Dropped returns the number of messages lost on ch so far.
func (m *Model) Dropped(ch Channel) int { return m.dropped[ch] }
