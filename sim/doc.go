// Package sim provides the core discrete-event simulation engine of lobsim, a deterministic
// backtester for market-making strategies on L2 order book data.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go: Event variants (market data, submit, cancel, ack, fill, timeout) and their venues
//   - simulator.go: the event loop, horizon handling and Result assembly
//   - exchange.go / client.go: what happens at the simulated exchange and at the strategy host
//   - order.go: the client-side order state machine
//
// # Architecture
//
// Every market data record is applied twice: first to the exchange-side book (ground truth,
// with queue tracking of resting orders), then, after a sampled market data delay, to the
// local book the strategy sees. Orders travel the opposite way: the strategy's intent is
// gated by the pre-trade risk engine, delayed (or lost) on the order entry channel, matched
// at the exchange, and reported back on the exchange report channel.
//
// The sim package defines the run loop and bridge types; the building blocks live in
// sub-packages:
//   - sim/book/: L2 ladders and the queue position tracker
//   - sim/latency/: per-channel delay, loss, congestion and outage model
//   - sim/risk/: the pre-trade risk gate
//   - sim/marketdata/: market data records, CSV and synthetic sources
//   - sim/strategy/: reference strategies
//   - sim/chaos/: Monte Carlo batches over perturbed configurations
//   - sim/trace/: decision trace recording and the run digest
//
// # Determinism
//
// One run is single-threaded. Events are ordered by (timestamp, seq) where seq is assigned
// at insertion, and all randomness comes from a PartitionedRNG seeded by Config.Seed with one
// stream per subsystem. Two runs with the same seed, config and input produce the same
// Result.Digest.
package sim
