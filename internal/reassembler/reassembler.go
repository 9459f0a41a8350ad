// Package reassembler turns out-of-order, possibly-overlapping byte
// ranges (indexed by absolute stream offset) into the contiguous
// in-order prefix a stream.ByteStream expects to receive.
package reassembler

import "github.com/tinyrange/netcore/internal/stream"

// Reassembler buffers out-of-order ranges and flushes the contiguous
// prefix to an output ByteStream as gaps close.
//
// Not safe for concurrent use; see stream.ByteStream's doc comment for
// the same single-writer/single-reader rationale.
type Reassembler struct {
	firstUnassembled uint64
	pending          map[uint64][]byte // keyed by starting absolute index
	finishReceived   bool
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{pending: make(map[uint64][]byte)}
}

// Insert stores data starting at the given absolute index and, if
// isLast is set, records that this is the final substring of the
// stream. It then flushes as much of the contiguous prefix as
// possible into output, closing output once the final substring has
// been seen and nothing remains pending.
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool, output *stream.ByteStream) {
	unacceptable := r.firstUnassembled + output.AvailableCapacity()
	dataLen := uint64(len(data))

	// Drop data that lies entirely at or below the already-assembled
	// prefix (unless it's an empty terminator), or starts beyond the
	// acceptable window.
	if (firstIndex+dataLen <= r.firstUnassembled && dataLen != 0) || firstIndex > unacceptable {
		return
	}

	if firstIndex+dataLen > unacceptable {
		data = data[:unacceptable-firstIndex]
		isLast = false
	}

	// On duplicate keys, retain the longer range; overlaps are
	// reconciled at flush time.
	if existing, ok := r.pending[firstIndex]; !ok || uint64(len(data)) > uint64(len(existing)) {
		r.pending[firstIndex] = data
	}

	r.flush(output)

	if isLast {
		r.finishReceived = true
	}
	if r.finishReceived && r.BytesPending() == 0 {
		output.Close()
	}
}

// flush repeatedly takes the lowest-keyed stored range. If it starts
// at or before firstUnassembled, the already-pushed prefix is sliced
// off, the remainder is pushed, firstUnassembled advances, and the
// range is dropped. Flushing stops at the first gap.
func (r *Reassembler) flush(output *stream.ByteStream) {
	for len(r.pending) > 0 {
		lowest, ok := r.lowestKey()
		if !ok || lowest > r.firstUnassembled {
			return
		}

		data := r.pending[lowest]
		delete(r.pending, lowest)

		end := lowest + uint64(len(data))
		if end <= r.firstUnassembled {
			continue // fully covered by what's already assembled
		}

		tail := data[r.firstUnassembled-lowest:]
		output.Push(tail)
		r.firstUnassembled = end
	}
}

func (r *Reassembler) lowestKey() (uint64, bool) {
	first := true
	var lowest uint64
	for k := range r.pending {
		if first || k < lowest {
			lowest = k
			first = false
		}
	}
	return lowest, !first
}

// BytesPending returns the number of buffered bytes not yet part of
// the contiguous prefix, after deduplicating overlaps: the sum of
// lengths of the union of all stored ranges projected onto
// [firstUnassembled, infinity).
func (r *Reassembler) BytesPending() uint64 {
	if len(r.pending) == 0 {
		return 0
	}

	type span struct{ start, end uint64 }
	spans := make([]span, 0, len(r.pending))
	for idx, data := range r.pending {
		start, end := idx, idx+uint64(len(data))
		if end <= r.firstUnassembled {
			continue
		}
		if start < r.firstUnassembled {
			start = r.firstUnassembled
		}
		spans = append(spans, span{start, end})
	}
	if len(spans) == 0 {
		return 0
	}

	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start > spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}

	var total uint64
	cursor := spans[0].start
	for _, s := range spans {
		if s.start > cursor {
			cursor = s.start
		}
		if s.end > cursor {
			total += s.end - cursor
			cursor = s.end
		}
	}
	return total
}
