package tcp

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/tinyrange/netcore/internal/seqnum"
)

// Segment is this package's on-the-wire view of a TCP header, unified
// across SenderMessage and ReceiverMessage so one codec can serialize
// either side of a duplex connection, with the ack fields piggybacked
// when present.
type Segment struct {
	SrcPort, DstPort uint16
	Seqno            seqnum.Wrap32
	SYN, ACK, FIN    bool
	Ackno            seqnum.Wrap32
	Window           uint16
	Payload          []byte
}

// EncodeSegment serializes seg as a TCP-over-IPv4 payload (everything
// after the IPv4 header), computing the TCP checksum against the
// given pseudo-header addresses.
func EncodeSegment(seg Segment, srcIP, dstIP net.IP) ([]byte, error) {
	ipForChecksum := &layers.IPv4{
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
		Protocol: layers.IPProtocolTCP,
	}
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(seg.SrcPort),
		DstPort: layers.TCPPort(seg.DstPort),
		Seq:     uint32(seg.Seqno),
		Ack:     uint32(seg.Ackno),
		SYN:     seg.SYN,
		ACK:     seg.ACK,
		FIN:     seg.FIN,
		Window:  seg.Window,
	}
	if err := tcpLayer.SetNetworkLayerForChecksum(ipForChecksum); err != nil {
		return nil, fmt.Errorf("tcp: set pseudo-header: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, tcpLayer, gopacket.Payload(seg.Payload)); err != nil {
		return nil, fmt.Errorf("tcp: serialize segment: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSegment parses ipPayload (an IPv4 packet's payload) as a TCP
// segment.
func DecodeSegment(ipPayload []byte) (Segment, error) {
	pkt := gopacket.NewPacket(ipPayload, layers.LayerTypeTCP, gopacket.NoCopy)
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return Segment{}, fmt.Errorf("tcp: not a TCP segment")
	}
	t := tcpLayer.(*layers.TCP)
	return Segment{
		SrcPort: uint16(t.SrcPort),
		DstPort: uint16(t.DstPort),
		Seqno:   seqnum.Wrap32(t.Seq),
		Ackno:   seqnum.Wrap32(t.Ack),
		SYN:     t.SYN,
		ACK:     t.ACK,
		FIN:     t.FIN,
		Window:  t.Window,
		Payload: append([]byte(nil), t.Payload...),
	}, nil
}

// FromSender merges a SenderMessage with a piggybacked ack (zero value
// if none is available yet) into a Segment ready for EncodeSegment.
func FromSender(msg SenderMessage, ack ReceiverMessage) Segment {
	seg := Segment{
		Seqno:   msg.Seqno,
		SYN:     msg.SYN,
		FIN:     msg.FIN,
		Payload: msg.Payload,
	}
	if ack.HasAckno {
		seg.ACK = true
		seg.Ackno = ack.Ackno
		seg.Window = ack.WindowSize
	}
	return seg
}

// ToSenderMessage extracts the sender-side fields of seg.
func ToSenderMessage(seg Segment) SenderMessage {
	return SenderMessage{Seqno: seg.Seqno, SYN: seg.SYN, FIN: seg.FIN, Payload: seg.Payload}
}

// ToReceiverMessage extracts the receiver-side fields of seg.
func ToReceiverMessage(seg Segment) ReceiverMessage {
	return ReceiverMessage{Ackno: seg.Ackno, HasAckno: seg.ACK, WindowSize: seg.Window}
}
