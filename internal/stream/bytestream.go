// Package stream implements a bounded, single-writer/single-reader byte
// FIFO used as the boundary between stream-writing producers (an
// application, or a TCPReceiver's reassembler) and stream-reading
// consumers (an application, or a TCPSender).
//
// ByteStream never blocks and never fails: push() silently truncates
// when the buffer is full, and the only error state is the latched
// flag set by SetError for integrators that need to report a fault
// from outside this package.
package stream

// ByteStream is a capacity-bounded FIFO of bytes.
//
// It is not safe for concurrent use. Callers are expected to serialize
// access the way a single-threaded drive loop does: one writer calls
// Push/Close/SetError, one reader calls Peek/Pop, and the two never
// race because the surrounding event loop never runs them at the same
// time.
type ByteStream struct {
	capacity uint64
	buf      []byte

	pushed uint64
	popped uint64

	closed bool
	error  bool
}

// New returns an empty ByteStream with the given capacity in bytes.
func New(capacity uint64) *ByteStream {
	return &ByteStream{
		capacity: capacity,
		buf:      make([]byte, 0, capacity),
	}
}

// Push appends up to AvailableCapacity() bytes from data, silently
// truncating the rest. It never blocks and never fails.
func (s *ByteStream) Push(data []byte) {
	room := s.AvailableCapacity()
	if uint64(len(data)) > room {
		data = data[:room]
	}
	s.buf = append(s.buf, data...)
	s.pushed += uint64(len(data))
}

// Close marks the stream as closed. Idempotent.
func (s *ByteStream) Close() {
	s.closed = true
}

// SetError latches the error flag. Idempotent.
func (s *ByteStream) SetError() {
	s.error = true
}

// HasError reports whether SetError has ever been called.
func (s *ByteStream) HasError() bool {
	return s.error
}

// Peek returns a view of the currently buffered bytes. The returned
// slice aliases internal storage and must not be retained past the
// next mutating call.
func (s *ByteStream) Peek() []byte {
	return s.buf
}

// Pop discards min(n, BytesBuffered()) bytes from the front of the
// stream.
func (s *ByteStream) Pop(n uint64) {
	if n > uint64(len(s.buf)) {
		n = uint64(len(s.buf))
	}
	s.buf = s.buf[n:]
	s.popped += n
}

// AvailableCapacity is the number of additional bytes Push can accept
// right now.
func (s *ByteStream) AvailableCapacity() uint64 {
	return s.capacity - uint64(len(s.buf))
}

// BytesBuffered is the number of bytes currently held, pushed but not
// yet popped.
func (s *ByteStream) BytesBuffered() uint64 {
	return uint64(len(s.buf))
}

// BytesPushed is the cumulative count of bytes ever appended via Push.
func (s *ByteStream) BytesPushed() uint64 {
	return s.pushed
}

// BytesPopped is the cumulative count of bytes ever discarded via Pop.
func (s *ByteStream) BytesPopped() uint64 {
	return s.popped
}

// IsClosed reports whether Close has been called.
func (s *ByteStream) IsClosed() bool {
	return s.closed
}

// IsFinished reports whether the stream is closed and fully drained.
func (s *ByteStream) IsFinished() bool {
	return s.closed && len(s.buf) == 0
}
