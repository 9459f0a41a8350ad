package reassembler

import (
	"math/rand"
	"testing"

	"github.com/tinyrange/netcore/internal/stream"
)

// TestReassembleOutOfOrder mirrors spec.md §8 scenario 2: capacity 8,
// insert(0,"ab"); insert(4,"ef"); insert(2,"cd"); insert(6,"gh", last).
func TestReassembleOutOfOrder(t *testing.T) {
	out := stream.New(8)
	r := New()

	r.Insert(0, []byte("ab"), false, out)
	r.Insert(4, []byte("ef"), false, out)
	r.Insert(2, []byte("cd"), false, out)
	r.Insert(6, []byte("gh"), true, out)

	if got := string(out.Peek()); got != "abcdefgh" {
		t.Fatalf("Peek() = %q, want %q", got, "abcdefgh")
	}
	if !out.IsClosed() {
		t.Fatal("expected output stream closed after last substring flushed")
	}
}

func TestReassembleDuplicateOverlapRetainsLonger(t *testing.T) {
	out := stream.New(10)
	r := New()

	r.Insert(0, []byte("ab"), false, out)
	r.Insert(0, []byte("abcd"), false, out) // longer range at same key wins
	if got := string(out.Peek()); got != "abcd" {
		t.Fatalf("Peek() = %q, want %q", got, "abcd")
	}
}

func TestReassembleEmptyLastSubstringClosesWithNoPending(t *testing.T) {
	out := stream.New(4)
	r := New()

	r.Insert(0, nil, true, out)
	if !out.IsClosed() {
		t.Fatal("expected empty final substring at the frontier to close the stream")
	}
	if r.BytesPending() != 0 {
		t.Fatalf("BytesPending() = %d, want 0", r.BytesPending())
	}
}

func TestReassembleDropsBeyondWindowClips(t *testing.T) {
	out := stream.New(4)
	r := New()

	// Window is [0,4). Data starting inside the window but extending
	// past it must be clipped, not dropped outright, and the trailing
	// clip must not be marked last.
	r.Insert(2, []byte("abcdef"), true, out)
	if r.BytesPending() != 2 {
		t.Fatalf("BytesPending() = %d, want 2 (clipped to window)", r.BytesPending())
	}
	if out.IsClosed() {
		t.Fatal("clipped last-substring must not close the stream")
	}
}

func TestReassembleFullyStaleRangeDropped(t *testing.T) {
	out := stream.New(8)
	r := New()

	r.Insert(0, []byte("ab"), false, out) // flushes immediately, firstUnassembled=2
	r.Insert(0, []byte("ab"), false, out) // entirely below firstUnassembled, dropped
	if r.BytesPending() != 0 {
		t.Fatalf("BytesPending() = %d, want 0", r.BytesPending())
	}
	if got := string(out.Peek()); got != "ab" {
		t.Fatalf("Peek() = %q, want %q", got, "ab")
	}
}

// TestReassembleFuzzCoversFullRange constructs random non-overlapping
// partitions of a random string, shuffles the insert order, and checks
// that the reassembled output always matches exactly once the final
// chunk (marked last) has been inserted.
func TestReassembleFuzzCoversFullRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(40) + 1
		want := make([]byte, n)
		for i := range want {
			want[i] = byte('a' + rng.Intn(26))
		}

		// Partition [0,n) into random chunks.
		var cuts []int
		for i := 1; i < n; i++ {
			if rng.Intn(3) == 0 {
				cuts = append(cuts, i)
			}
		}
		bounds := append([]int{0}, append(cuts, n)...)

		type chunk struct {
			start int
			data  []byte
			last  bool
		}
		var chunks []chunk
		for i := 0; i < len(bounds)-1; i++ {
			chunks = append(chunks, chunk{
				start: bounds[i],
				data:  want[bounds[i]:bounds[i+1]],
				last:  i == len(bounds)-2,
			})
		}
		rng.Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })

		out := stream.New(uint64(n) + 8)
		r := New()
		for _, c := range chunks {
			r.Insert(uint64(c.start), c.data, c.last, out)
		}

		if got := string(out.Peek()); got != string(want) {
			t.Fatalf("trial %d: got %q, want %q", trial, got, want)
		}
		if !out.IsClosed() {
			t.Fatalf("trial %d: expected stream closed", trial)
		}
	}
}
