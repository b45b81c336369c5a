// Package plotstore holds the in-memory drone plot database: an ordered,
// mutex-guarded sequence of plot records with CSV and binary codecs.
package plotstore

// Flags is the per-plot bitfield. Only NewlyReceived is interpreted by the
// core; any other bits are reserved and passed through untouched.
type Flags uint16

// NewlyReceived marks a plot that arrived via replication and has not yet
// been folded into the leader time frame by the reconciliation engine.
const NewlyReceived Flags = 1 << 0

// Plot is one observation of one drone by one receiving node.
//
// Timestamp is seconds since epoch, kept as int64 so that arithmetic with
// small negative skew offsets never overflows; on the wire and in the
// binary file format it is always a 32-bit signed integer.
type Plot struct {
	DroneID   int32
	NodeID    int32
	Timestamp int64
	Latitude  float32
	Longitude float32
	Flags     Flags
}

// HasFlag reports whether all bits of f are set.
func (p *Plot) HasFlag(f Flags) bool {
	return p.Flags&f == f
}

// SetFlag turns on the given bits.
func (p *Plot) SetFlag(f Flags) {
	p.Flags |= f
}

// ClearFlag turns off the given bits.
func (p *Plot) ClearFlag(f Flags) {
	p.Flags &^= f
}
