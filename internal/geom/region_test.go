package geom

import (
	"math/rand"
	"testing"
)

func TestRegionUnionKeepsRectsDisjoint(t *testing.T) {
	r := NewRegion(R(0, 0, 10, 10), R(5, 5, 10, 10))
	if got := r.Area(); got != 175 {
		t.Fatalf("expected area 175, got %d", got)
	}
	rects := r.Rects()
	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if rects[i].Overlaps(rects[j]) {
				t.Fatalf("rects %v and %v overlap", rects[i], rects[j])
			}
		}
	}
}

func TestRegionSubtractHole(t *testing.T) {
	r := NewRegion(R(0, 0, 10, 10)).Subtract(NewRegion(R(3, 3, 4, 4)))
	if got := r.Area(); got != 84 {
		t.Fatalf("expected area 84, got %d", got)
	}
	if r.Contains(4, 4) {
		t.Fatalf("hole pixel should not be contained")
	}
	if !r.Contains(0, 0) || !r.Contains(9, 9) {
		t.Fatalf("corners should be contained")
	}
}

func TestRegionIntersect(t *testing.T) {
	a := NewRegion(R(0, 0, 10, 10))
	b := NewRegion(R(5, 5, 10, 10), R(-5, -5, 6, 6))
	got := a.Intersect(b)
	want := NewRegion(R(5, 5, 5, 5), R(0, 0, 1, 1))
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRegionCoalescesAdjacentRects(t *testing.T) {
	r := NewRegion(R(0, 0, 5, 5), R(5, 0, 5, 5))
	if r.Len() != 1 {
		t.Fatalf("expected a single merged rect, got %v", r)
	}
	if r.Bounds() != R(0, 0, 10, 5) {
		t.Fatalf("unexpected bounds %v", r.Bounds())
	}
}

func TestRegionOperationsDoNotMutateOperands(t *testing.T) {
	a := NewRegion(R(0, 0, 10, 10))
	b := NewRegion(R(5, 0, 10, 10))
	_ = a.Union(b)
	_ = a.Subtract(b)
	_ = a.Intersect(b)
	if a.Area() != 100 || b.Area() != 100 {
		t.Fatalf("operands changed: a=%v b=%v", a, b)
	}
}

func TestRegionMatchesPixelModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randRect := func() Rect {
		return R(rng.Intn(20), rng.Intn(20), 1+rng.Intn(12), 1+rng.Intn(12))
	}

	for iter := 0; iter < 200; iter++ {
		a := NewRegion(randRect(), randRect())
		b := NewRegion(randRect(), randRect(), randRect())
		u, i, s := a.Union(b), a.Intersect(b), a.Subtract(b)
		for y := 0; y < 34; y++ {
			for x := 0; x < 34; x++ {
				inA, inB := a.Contains(x, y), b.Contains(x, y)
				if u.Contains(x, y) != (inA || inB) {
					t.Fatalf("union mismatch at %d,%d", x, y)
				}
				if i.Contains(x, y) != (inA && inB) {
					t.Fatalf("intersect mismatch at %d,%d", x, y)
				}
				if s.Contains(x, y) != (inA && !inB) {
					t.Fatalf("subtract mismatch at %d,%d", x, y)
				}
			}
		}
	}
}

func TestRectBoundsIgnoresEmpty(t *testing.T) {
	r := R(2, 2, 3, 3)
	if got := r.Bounds(Rect{}); got != r {
		t.Fatalf("expected %v, got %v", r, got)
	}
	if got := (Rect{}).Bounds(r); got != r {
		t.Fatalf("expected %v, got %v", r, got)
	}
}
