package crdt

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestLocalEdits(t *testing.T) {
	txt := NewText(nil)
	if _, err := txt.Insert(0, "hello"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := txt.Insert(5, " world"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := txt.Delete(0, 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := txt.Insert(0, "J"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := txt.String(); got != "Jello world" {
		t.Fatalf("String() = %q", got)
	}
	if _, err := txt.Delete(10, 5); err == nil {
		t.Fatal("Delete() past end succeeded")
	}
}

func TestConcurrentInsertsDoNotInterleave(t *testing.T) {
	a, b := NewText(nil), NewText(nil)
	opsA, _ := a.Insert(0, "hello")
	opsB, _ := b.Insert(0, "world")
	a.Apply(opsB...)
	b.Apply(opsA...)

	if a.String() != b.String() {
		t.Fatalf("replicas diverged: %q vs %q", a.String(), b.String())
	}
	got := a.String()
	if got != "helloworld" && got != "worldhello" {
		t.Fatalf("String() = %q, want runs kept together", got)
	}
}

func TestOutOfOrderAndDuplicateDelivery(t *testing.T) {
	src := NewText(nil)
	ins, _ := src.Insert(0, "abcdef")
	del, _ := src.Delete(1, 2)

	dst := NewText(nil)
	// deletes first, inserts reversed, then everything again
	dst.Apply(del...)
	for i := len(ins) - 1; i >= 0; i-- {
		dst.Apply(ins[i])
	}
	if dst.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", dst.Pending())
	}
	dst.Apply(ins...)
	dst.Apply(del...)
	if dst.String() != src.String() || src.String() != "adef" {
		t.Fatalf("dst = %q, src = %q", dst.String(), src.String())
	}
}

func TestStateRebuildsReplica(t *testing.T) {
	a := NewText(nil)
	_, _ = a.Insert(0, "some text")
	_, _ = a.Delete(4, 1)
	b := NewText(nil)
	b.Apply(a.State()...)
	if b.String() != "sometext" {
		t.Fatalf("String() = %q", b.String())
	}
	// a later op from a still lands correctly on b
	ops, _ := a.Insert(4, "-")
	b.Apply(ops...)
	if b.String() != a.String() {
		t.Fatalf("b = %q, a = %q", b.String(), a.String())
	}
}

func TestRandomizedConvergence(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := range 20 {
		peers := []*Text{NewText(nil), NewText(nil), NewText(nil)}
		var log [][]Op // per-edit op batches, tagged by author below
		var authors []int
		for range 40 {
			p := rng.IntN(len(peers))
			txt := peers[p]
			var ops []Op
			if n := txt.Len(); n > 0 && rng.IntN(3) == 0 {
				pos := rng.IntN(n)
				ops, _ = txt.Delete(pos, 1+rng.IntN(min(3, n-pos)))
			} else {
				word := strings.Repeat(string(rune('a'+rng.IntN(26))), 1+rng.IntN(3))
				ops, _ = txt.Insert(rng.IntN(txt.Len()+1), word)
			}
			log = append(log, ops)
			authors = append(authors, p)
			// deliver a random earlier batch to a random peer, sometimes twice
			if len(log) > 0 && rng.IntN(2) == 0 {
				i := rng.IntN(len(log))
				peers[rng.IntN(len(peers))].Apply(log[i]...)
			}
		}
		for p, txt := range peers {
			order := rng.Perm(len(log))
			for _, i := range order {
				if authors[i] != p {
					txt.Apply(log[i]...)
				}
			}
		}
		if peers[0].String() != peers[1].String() || peers[1].String() != peers[2].String() {
			t.Fatalf("round %d diverged: %q | %q | %q", round, peers[0], peers[1], peers[2])
		}
	}
}

func TestClockIsMonotonic(t *testing.T) {
	c := NewClock()
	c.wall = func() int64 { return 1000 }
	first := c.Now()
	second := c.Now()
	if second <= first {
		t.Fatalf("Now() = %d after %d", second, first)
	}
	c.Observe(pack(5000, 3))
	if got := c.Now(); got <= pack(5000, 3) {
		t.Fatalf("Now() after Observe = %d, want > %d", got, pack(5000, 3))
	}
}

func TestSeedWithSameTextKeepsOneCopy(t *testing.T) {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte("room"))
	a, b := NewText(nil), NewText(nil)
	opsA := a.Seed(ns, "hello")
	opsB := b.Seed(ns, "hello")
	a.Apply(opsB...)
	b.Apply(opsA...)
	if a.String() != "hello" || b.String() != "hello" {
		t.Fatalf("seeded replicas = %q, %q", a.String(), b.String())
	}

	// diverging seeds share their common prefix and converge on the rest
	c, d := NewText(nil), NewText(nil)
	opsC := c.Seed(ns, "help")
	opsD := d.Seed(ns, "hello")
	c.Apply(opsD...)
	d.Apply(opsC...)
	if c.String() != d.String() {
		t.Fatalf("replicas diverged: %q vs %q", c.String(), d.String())
	}
	if !strings.HasPrefix(c.String(), "hel") || len([]rune(c.String())) != 6 {
		t.Fatalf("String() = %q", c.String())
	}

	if !NewText(nil).Empty() || a.Empty() {
		t.Fatal("Empty() wrong")
	}
}
