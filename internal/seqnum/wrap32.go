// Package seqnum implements 32-bit TCP sequence-number arithmetic: the
// wrap/unwrap pair that maps a 64-bit absolute index onto the wire's
// 32-bit, wrapping sequence space and back.
package seqnum

// Wrap32 is a 32-bit sequence number, wire-compatible with the TCP
// header's seq/ack fields.
type Wrap32 uint32

// Wrap returns the 32-bit sequence number for absolute index n relative
// to the given zero point: (zero + n) mod 2^32.
func Wrap(n uint64, zero Wrap32) Wrap32 {
	return zero + Wrap32(n)
}

// Unwrap returns the 64-bit absolute index n such that Wrap(n, zero) ==
// w and |n - checkpoint| is minimized, breaking ties toward the
// smaller n.
func Unwrap(w Wrap32, zero Wrap32, checkpoint uint64) uint64 {
	const span uint64 = 1 << 32

	offset := uint64(w - zero) // d in [0, 2^32)

	if checkpoint <= offset {
		return offset
	}

	// Candidates are offset + k*span for k >= 0; find the k nearest
	// checkpoint, then break ties toward the smaller n by preferring
	// the candidate below checkpoint when the distances are equal.
	k := (checkpoint - offset) / span
	low := offset + k*span
	high := low + span

	distLow := checkpoint - low
	var distHigh uint64
	if high >= checkpoint {
		distHigh = high - checkpoint
	} else {
		distHigh = checkpoint - high
	}

	if distHigh < distLow {
		return high
	}
	return low
}
