package trace

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a running BLAKE3 hash over the dispatched event stream. Two runs with the same
// seed, configuration and input produce the same digest.
type Digest struct {
	h   *blake3.Hasher
	buf [16]byte
	n   int
}

func NewDigest() *Digest {
	return &Digest{h: blake3.New()}
}

// Add folds one dispatched event into the digest.
func (d *Digest) Add(clock int64, seq uint64, kind, subject string) {
	binary.BigEndian.PutUint64(d.buf[:8], uint64(clock))
	binary.BigEndian.PutUint64(d.buf[8:], seq)
	d.h.Write(d.buf[:])
	d.h.Write([]byte(kind))
	d.h.Write([]byte{0})
	d.h.Write([]byte(subject))
	d.h.Write([]byte{0})
	d.n++
}

// Len returns the number of events folded in.
func (d *Digest) Len() int { return d.n }

// Sum returns the hex digest of everything added so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
