package tcp

import (
	"math/rand"

	"github.com/tinyrange/netcore/internal/seqnum"
	"github.com/tinyrange/netcore/internal/stream"
)

const (
	// MaxPayloadSize is the largest payload a single segment may carry.
	MaxPayloadSize = 1452

	// MaxRetxAttempts bounds consecutive retransmissions before the
	// sender gives up on a connection (leaving the stream in place;
	// there is no exception, only a stopped timer).
	MaxRetxAttempts = 8
)

// outstandingSegment pairs a sent-but-unacked message with the
// absolute sequence number of its first byte, computed once at send
// time so acks don't need to re-unwrap it against a moving
// checkpoint.
type outstandingSegment struct {
	msg      SenderMessage
	absSeqno uint64
}

func (o outstandingSegment) lastAbsSeqno() uint64 {
	return o.absSeqno + o.msg.SequenceLength()
}

type retxTimer struct {
	running     bool
	countdownMs uint64
}

// Sender turns an outbound byte stream into a sequence of segments
// respecting the peer's advertised window, tracks outstanding
// segments, and runs a retransmission timer with exponential backoff.
type Sender struct {
	isn        seqnum.Wrap32
	initialRTO uint64

	absSeqno   uint64
	absAckno   uint64
	windowSize uint16

	synSent  bool
	synAcked bool
	finSent  bool

	pendingOut  []SenderMessage
	outstanding []outstandingSegment

	timer           retxTimer
	consecutiveRetx uint64
}

// NewSender constructs a sender with the given retransmission timeout
// (milliseconds) and ISN. If fixedISN is nil a random ISN is chosen.
func NewSender(initialRTOMs uint64, fixedISN *seqnum.Wrap32) *Sender {
	isn := seqnum.Wrap32(rand.Uint32())
	if fixedISN != nil {
		isn = *fixedISN
	}
	return &Sender{
		isn:        isn,
		initialRTO: initialRTOMs,
		windowSize: 1,
	}
}

// SequenceNumbersInFlight is the count of sent-but-unacked sequence
// numbers.
func (s *Sender) SequenceNumbersInFlight() uint64 {
	return s.absSeqno - s.absAckno
}

// ConsecutiveRetransmissions is the number of consecutive retransmit
// timeouts fired since the last forward-progress ack.
func (s *Sender) ConsecutiveRetransmissions() uint64 {
	return s.consecutiveRetx
}

// Push generates as many segments as the outbound stream and the
// peer's advertised window currently allow, queuing each for
// MaybeSend and for retransmission tracking.
func (s *Sender) Push(outbound *stream.ByteStream) {
	for {
		if !s.synSent {
			msg := SenderMessage{Seqno: seqnum.Wrap(s.absSeqno, s.isn), SYN: true}
			if outbound.IsFinished() && s.windowSize != 0 {
				msg.FIN = true
				s.finSent = true
			}
			s.enqueue(msg)
			s.synSent = true
			continue
		}

		if !s.synAcked {
			return
		}
		if s.finSent {
			return
		}

		effectiveWindow := uint64(s.windowSize)
		if effectiveWindow == 0 {
			effectiveWindow = 1
		}

		inFlight := s.SequenceNumbersInFlight()
		if effectiveWindow <= inFlight {
			return
		}
		windowRoom := effectiveWindow - inFlight

		payloadLen := windowRoom
		if payloadLen > MaxPayloadSize {
			payloadLen = MaxPayloadSize
		}
		if buffered := outbound.BytesBuffered(); payloadLen > buffered {
			payloadLen = buffered
		}

		payload := append([]byte(nil), outbound.Peek()[:payloadLen]...)
		outbound.Pop(payloadLen)

		msg := SenderMessage{Seqno: seqnum.Wrap(s.absSeqno, s.isn), Payload: payload}
		if payloadLen < windowRoom && outbound.IsFinished() {
			msg.FIN = true
			s.finSent = true
		}

		if payloadLen == 0 && !msg.FIN {
			return
		}

		s.enqueue(msg)
	}
}

// enqueue records msg as both ready-to-hand-out and outstanding,
// advances absSeqno, and starts the timer if it isn't already
// running.
func (s *Sender) enqueue(msg SenderMessage) {
	s.pendingOut = append(s.pendingOut, msg)
	s.outstanding = append(s.outstanding, outstandingSegment{msg: msg, absSeqno: s.absSeqno})
	s.absSeqno += msg.SequenceLength()

	if !s.timer.running {
		s.timer.running = true
		s.timer.countdownMs = s.initialRTO
	}
}

// MaybeSend dequeues the next segment ready to be handed to the wire,
// or reports none is pending.
func (s *Sender) MaybeSend() (SenderMessage, bool) {
	if len(s.pendingOut) == 0 {
		return SenderMessage{}, false
	}
	msg := s.pendingOut[0]
	s.pendingOut = s.pendingOut[1:]
	return msg, true
}

// SendEmptyMessage returns a bare segment carrying no flags or
// payload, useful for generating an ACK-only reply. It does not
// enqueue or advance any state.
func (s *Sender) SendEmptyMessage() SenderMessage {
	return SenderMessage{Seqno: seqnum.Wrap(s.absSeqno, s.isn)}
}

// Receive processes a receiver's ack/window report.
func (s *Sender) Receive(msg ReceiverMessage) {
	if !msg.HasAckno {
		s.windowSize = msg.WindowSize
		return
	}

	newAckno := seqnum.Unwrap(msg.Ackno, s.isn, s.absAckno)
	if newAckno < s.absAckno || newAckno > s.absSeqno {
		return // protocol violation: ignore
	}

	if !s.synAcked && newAckno > 0 {
		s.synAcked = true
	}

	progressed := newAckno > s.absAckno
	s.absAckno = newAckno
	s.windowSize = msg.WindowSize

	for len(s.outstanding) > 0 && s.outstanding[0].lastAbsSeqno() <= newAckno {
		s.outstanding = s.outstanding[1:]
	}

	if progressed {
		s.consecutiveRetx = 0
		s.timer.countdownMs = s.initialRTO
		if len(s.outstanding) == 0 {
			s.timer.running = false
		}
	}
}

// Tick advances the retransmission timer by ms milliseconds. If it
// fires, the timeout is reloaded first: with exponential backoff when
// the advertised window is non-zero, or held constant (no backoff, and
// consecutiveRetx is not incremented) when probing a zero window. Only
// once the exponential-backoff path confirms consecutiveRetx is still
// within MaxRetxAttempts does exactly one segment (the head of
// outstanding) get pushed back onto the pending-out queue; the tick
// that finally exceeds the limit stops the timer and gives up without
// retransmitting anything.
func (s *Sender) Tick(ms uint64) {
	if !s.timer.running {
		return
	}

	if ms >= s.timer.countdownMs {
		s.timer.countdownMs = 0
	} else {
		s.timer.countdownMs -= ms
	}
	if s.timer.countdownMs != 0 {
		return
	}

	if s.windowSize != 0 {
		s.consecutiveRetx++
		if s.consecutiveRetx > MaxRetxAttempts {
			s.timer.running = false
			return
		}
		s.timer.countdownMs = s.initialRTO << s.consecutiveRetx
	} else {
		s.timer.countdownMs = s.initialRTO
	}

	if len(s.outstanding) > 0 {
		s.pendingOut = append(s.pendingOut, s.outstanding[0].msg)
	}
}
