package tcp

import (
	"testing"

	"github.com/tinyrange/netcore/internal/seqnum"
	"github.com/tinyrange/netcore/internal/stream"
)

func TestReceiverIgnoresNonSYNBeforeSYN(t *testing.T) {
	in := stream.New(16)
	r := New(in)

	r.Receive(SenderMessage{Seqno: 5, Payload: []byte("hi")})
	msg := r.Send()
	if msg.HasAckno {
		t.Fatal("expected no ackno before SYN seen")
	}
}

func TestReceiverBasicHandshakeAndData(t *testing.T) {
	in := stream.New(16)
	r := New(in)

	r.Receive(SenderMessage{Seqno: 0, SYN: true})
	msg := r.Send()
	if !msg.HasAckno || msg.Ackno != 1 {
		t.Fatalf("after SYN: ackno = %v/%v, want 1/true", msg.Ackno, msg.HasAckno)
	}

	r.Receive(SenderMessage{Seqno: 1, Payload: []byte("abcd")})
	msg = r.Send()
	if msg.Ackno != 5 {
		t.Fatalf("after data: ackno = %d, want 5", msg.Ackno)
	}
	if got := string(in.Peek()); got != "abcd" {
		t.Fatalf("inbound = %q, want %q", got, "abcd")
	}

	r.Receive(SenderMessage{Seqno: 5, FIN: true})
	msg = r.Send()
	if msg.Ackno != 6 {
		t.Fatalf("after FIN: ackno = %d, want 6", msg.Ackno)
	}
	if !in.IsClosed() {
		t.Fatal("expected inbound stream closed after FIN")
	}
}

func TestReceiverWindowReflectsAvailableCapacity(t *testing.T) {
	in := stream.New(4)
	r := New(in)
	r.Receive(SenderMessage{Seqno: 0, SYN: true})
	if got := r.Send().WindowSize; got != 4 {
		t.Fatalf("WindowSize = %d, want 4", got)
	}
	r.Receive(SenderMessage{Seqno: 1, Payload: []byte("ab")})
	if got := r.Send().WindowSize; got != 2 {
		t.Fatalf("WindowSize after 2 bytes = %d, want 2", got)
	}
}

func TestReceiverOutOfOrderReordersBeforeAcking(t *testing.T) {
	in := stream.New(16)
	r := New(in)
	isn := seqnum.Wrap32(384)

	r.Receive(SenderMessage{Seqno: isn, SYN: true})
	// Second byte range arrives first: absolute seqno isn+3.
	r.Receive(SenderMessage{Seqno: seqnum.Wrap(3, isn), Payload: []byte("cd")})
	if got := r.Send().Ackno; got != seqnum.Wrap(1, isn) {
		t.Fatalf("ackno with gap = %v, want unchanged at 1", got)
	}
	r.Receive(SenderMessage{Seqno: seqnum.Wrap(1, isn), Payload: []byte("ab")})
	if got := string(in.Peek()); got != "abcd" {
		t.Fatalf("inbound after gap closes = %q, want %q", got, "abcd")
	}
}
