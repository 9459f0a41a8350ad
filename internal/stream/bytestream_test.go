package stream

import (
	"math/rand"
	"testing"
)

func TestByteStreamPushPopBasics(t *testing.T) {
	s := New(4)
	s.Push([]byte("abcdef")) // truncated to 4
	if got := string(s.Peek()); got != "abcd" {
		t.Fatalf("Peek() = %q, want %q", got, "abcd")
	}
	if s.BytesPushed() != 4 {
		t.Fatalf("BytesPushed() = %d, want 4", s.BytesPushed())
	}
	if s.AvailableCapacity() != 0 {
		t.Fatalf("AvailableCapacity() = %d, want 0", s.AvailableCapacity())
	}

	s.Pop(2)
	if got := string(s.Peek()); got != "cd" {
		t.Fatalf("Peek() after pop = %q, want %q", got, "cd")
	}
	if s.BytesPopped() != 2 {
		t.Fatalf("BytesPopped() = %d, want 2", s.BytesPopped())
	}
	if s.AvailableCapacity() != 2 {
		t.Fatalf("AvailableCapacity() = %d, want 2", s.AvailableCapacity())
	}
}

func TestByteStreamCloseAndFinished(t *testing.T) {
	s := New(4)
	if s.IsFinished() {
		t.Fatal("empty, unclosed stream should not be finished")
	}
	s.Push([]byte("ab"))
	s.Close()
	s.Close() // idempotent
	if !s.IsClosed() {
		t.Fatal("expected closed")
	}
	if s.IsFinished() {
		t.Fatal("stream with buffered bytes should not be finished yet")
	}
	s.Pop(2)
	if !s.IsFinished() {
		t.Fatal("expected finished after draining a closed stream")
	}
}

func TestByteStreamErrorLatches(t *testing.T) {
	s := New(1)
	if s.HasError() {
		t.Fatal("fresh stream should have no error")
	}
	s.SetError()
	s.SetError()
	if !s.HasError() {
		t.Fatal("expected latched error")
	}
}

func TestByteStreamNeverOverflowsInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const capacity = 16
	s := New(capacity)

	for i := 0; i < 2000; i++ {
		switch rng.Intn(2) {
		case 0:
			n := rng.Intn(8) + 1
			data := make([]byte, n)
			for j := range data {
				data[j] = byte('a' + rng.Intn(26))
			}
			s.Push(data)
		case 1:
			s.Pop(uint64(rng.Intn(8) + 1))
		}

		if s.BytesPushed()-s.BytesPopped() != s.BytesBuffered() {
			t.Fatalf("invariant broken: pushed=%d popped=%d buffered=%d",
				s.BytesPushed(), s.BytesPopped(), s.BytesBuffered())
		}
		if s.BytesBuffered()+s.AvailableCapacity() != capacity {
			t.Fatalf("invariant broken: buffered=%d available=%d capacity=%d",
				s.BytesBuffered(), s.AvailableCapacity(), capacity)
		}
	}
}
