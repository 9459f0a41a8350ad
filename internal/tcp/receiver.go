package tcp

import (
	"github.com/tinyrange/netcore/internal/reassembler"
	"github.com/tinyrange/netcore/internal/seqnum"
	"github.com/tinyrange/netcore/internal/stream"
)

// Receiver consumes inbound segments, translates their wrapped
// sequence numbers into absolute stream indices, drives a
// Reassembler, and reports the cumulative ack and advertised window.
type Receiver struct {
	isn     seqnum.Wrap32
	synSeen bool
	reassem *reassembler.Reassembler
	inbound *stream.ByteStream
	maxWnd  uint16
}

// New returns a Receiver that reassembles into inbound.
func New(inbound *stream.ByteStream) *Receiver {
	return &Receiver{
		reassem: reassembler.New(),
		inbound: inbound,
		maxWnd:  65535,
	}
}

// Receive consumes one inbound segment. If SYN has never been seen
// and this segment doesn't carry SYN, it is ignored.
func (r *Receiver) Receive(msg SenderMessage) {
	if !r.synSeen && !msg.SYN {
		return
	}
	if msg.SYN {
		r.isn = msg.Seqno
		r.synSeen = true
	}

	checkpoint := 1 + r.inbound.BytesPushed()
	absSeqno := seqnum.Unwrap(msg.Seqno, r.isn, checkpoint)

	// SYN occupies absolute sequence number 0 but absolute stream
	// index -1; the adjustment below accounts for that offset for
	// payloads carried on non-SYN segments.
	var firstIndex uint64
	if msg.SYN {
		firstIndex = absSeqno
	} else {
		firstIndex = absSeqno - 1
	}

	r.reassem.Insert(firstIndex, msg.Payload, msg.FIN, r.inbound)
}

// Send reports the current ackno and advertised window.
func (r *Receiver) Send() ReceiverMessage {
	window := r.inbound.AvailableCapacity()
	if window > uint64(r.maxWnd) {
		window = uint64(r.maxWnd)
	}

	if !r.synSeen {
		return ReceiverMessage{WindowSize: uint16(window)}
	}

	abs := 1 + r.inbound.BytesPushed()
	if r.inbound.IsClosed() {
		abs++
	}
	return ReceiverMessage{
		Ackno:      seqnum.Wrap(abs, r.isn),
		HasAckno:   true,
		WindowSize: uint16(window),
	}
}
