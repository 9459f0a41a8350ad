package seqnum

import (
	"math/rand"
	"testing"
)

func TestUnwrapWrapInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		zero := Wrap32(rng.Uint32())
		checkpoint := uint64(rng.Uint32()) + uint64(rng.Uint32())<<32
		w := Wrap32(rng.Uint32())

		n := Unwrap(w, zero, checkpoint)
		if got := Wrap(n, zero); got != w {
			t.Fatalf("Wrap(Unwrap(%#x, %#x, %d), %#x) = %#x, want %#x",
				uint32(w), uint32(zero), checkpoint, uint32(zero), uint32(got), uint32(w))
		}
	}
}

func TestUnwrapNearestCheckpoint(t *testing.T) {
	// From spec.md §9.8 scenario 3: unwrap(0x00000005, zero=0xFFFFFFFE, checkpoint=0) == 7.
	got := Unwrap(0x00000005, 0xFFFFFFFE, 0)
	if got != 7 {
		t.Fatalf("Unwrap(0x5, 0xFFFFFFFE, 0) = %d, want 7", got)
	}
}

func TestUnwrapTieBreaksTowardSmallerN(t *testing.T) {
	// w=0, zero=0: candidates are 0, 2^32, 2*2^32, ...
	// checkpoint exactly halfway between 0 and 2^32 should break toward 0.
	const span uint64 = 1 << 32
	checkpoint := span / 2
	if got := Unwrap(0, 0, checkpoint); got != 0 {
		t.Fatalf("Unwrap tie-break: got %d, want 0", got)
	}
}

func TestWrapIsModularAddition(t *testing.T) {
	if got := Wrap(10, 5); got != 15 {
		t.Fatalf("Wrap(10, 5) = %d, want 15", got)
	}
	// Wrapping past 2^32 folds back via uint32 arithmetic.
	if got := Wrap(1, Wrap32(^uint32(0))); got != 0 {
		t.Fatalf("Wrap(1, max) = %d, want 0", got)
	}
}
