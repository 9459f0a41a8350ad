// Package tcp implements the data-plane halves of a TCP connection:
// TCPReceiver (segment-in, ack-out) and TCPSender (stream-in,
// segment-out, retransmission timer). Both operate purely on the
// TCPSenderMessage/TCPReceiverMessage value types below; translating
// those to and from TCP segment bytes (the payload of an IPv4 packet)
// is handled by wire.go via gopacket, which this package treats as an
// external codec rather than something it implements itself. The IPv4
// and Ethernet layers around a segment are not built here.
package tcp

import "github.com/tinyrange/netcore/internal/seqnum"

// SenderMessage is one outbound TCP segment's logical content: the
// wire sequence number of its first byte, whether it opens (SYN) or
// closes (FIN) the connection, and its payload.
type SenderMessage struct {
	Seqno   seqnum.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
}

// SequenceLength is the number of sequence-number slots this message
// consumes: one for SYN, one per payload byte, one for FIN.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is the receiver's reply to a segment: the
// cumulative ackno (absent until SYN has been seen) and the
// advertised window size.
type ReceiverMessage struct {
	Ackno      seqnum.Wrap32
	HasAckno   bool
	WindowSize uint16
}
