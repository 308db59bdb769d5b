package shadow

import (
	"errors"
	"image"
	"math"
	"math/rand"
	"testing"
)

func TestKernelIsNormalizedAndSymmetric(t *testing.T) {
	for _, radius := range []int{0, 1, 3, 12} {
		k := NewKernel(radius)
		if k.Size() != 2*radius+1 {
			t.Fatalf("radius %d: expected size %d, got %d", radius, 2*radius+1, k.Size())
		}

		total := 0.0
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				w := k.Weight(x, y)
				total += w
				for _, mirror := range [][2]int{{-x, y}, {x, -y}, {y, x}} {
					if d := math.Abs(w - k.Weight(mirror[0], mirror[1])); d > 1e-15 {
						t.Fatalf("radius %d: weight (%d,%d) differs from mirror %v by %g", radius, x, y, mirror, d)
					}
				}
			}
		}
		if math.Abs(total-1) > 1e-9 {
			t.Fatalf("radius %d: weights sum to %v", radius, total)
		}
		if k.Weight(radius+1, 0) != 0 {
			t.Fatalf("radius %d: weight outside kernel should be zero", radius)
		}
	}
}

func TestKernelSumMatchesBruteForce(t *testing.T) {
	k := NewKernel(5)
	rng := rand.New(rand.NewSource(3))
	brute := func(x0, y0, x1, y1 int) float64 {
		s := 0.0
		for y := max(y0, 0); y < min(y1, k.Size()); y++ {
			for x := max(x0, 0); x < min(x1, k.Size()); x++ {
				s += k.Weight(x-k.Radius(), y-k.Radius())
			}
		}
		return s
	}

	for i := 0; i < 500; i++ {
		x0, y0 := rng.Intn(16)-3, rng.Intn(16)-3
		x1, y1 := x0+rng.Intn(16), y0+rng.Intn(16)
		got, want := k.Sum(x0, y0, x1, y1), brute(x0, y0, x1, y1)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("sum [%d,%d)x[%d,%d): got %v want %v", x0, x1, y0, y1, got, want)
		}
	}
	if got := k.Sum(0, 0, k.Size(), k.Size()); math.Abs(got-1) > 1e-9 {
		t.Fatalf("full sum should be 1, got %v", got)
	}
}

func TestMaskGeometryAndFalloff(t *testing.T) {
	const radius = 4
	k := NewKernel(radius)
	mask := k.Mask(0.5, 40, 20)

	if got := mask.Bounds(); got != image.Rect(0, 0, 40+2*radius, 20+2*radius) {
		t.Fatalf("unexpected mask bounds %v", got)
	}

	centre := mask.AlphaAt(24, 14).A
	if centre != 128 {
		t.Fatalf("expected fully covered pixel alpha 128, got %d", centre)
	}
	corner := mask.AlphaAt(0, 0).A
	if corner >= centre/4 {
		t.Fatalf("corner alpha %d should be far below centre %d", corner, centre)
	}

	prev := uint8(0)
	for x := 0; x <= 2*radius; x++ {
		a := mask.AlphaAt(x, 14).A
		if a < prev {
			t.Fatalf("alpha should rise towards the body: x=%d alpha=%d prev=%d", x, a, prev)
		}
		prev = a
	}
}

func TestMaskZeroRadiusIsHardEdged(t *testing.T) {
	mask := NewKernel(0).Mask(1, 3, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			if a := mask.AlphaAt(x, y).A; a != 255 {
				t.Fatalf("pixel %d,%d: expected 255, got %d", x, y, a)
			}
		}
	}
}

func TestCacheSharesAndEvicts(t *testing.T) {
	uploads, releases := 0, []int{}
	c := NewCache(
		func(*image.Alpha) (int, error) { uploads++; return uploads, nil },
		func(h int) { releases = append(releases, h) },
		1,
	)

	a := KeyFor(3, 0.75, 10, 10)
	b := KeyFor(3, 0.75, 20, 10)

	h1, _ := c.Acquire(a)
	h2, _ := c.Acquire(a)
	if h1 != h2 || uploads != 1 || c.Refs(a) != 2 {
		t.Fatalf("expected shared entry, got h1=%d h2=%d uploads=%d refs=%d", h1, h2, uploads, c.Refs(a))
	}

	if _, err := c.Acquire(b); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	c.Release(a)
	c.Release(a)
	if len(releases) != 0 {
		t.Fatalf("single idle entry should be kept, released %v", releases)
	}

	c.Release(b)
	if len(releases) != 1 || releases[0] != h1 {
		t.Fatalf("expected oldest idle entry %d to be freed, got %v", h1, releases)
	}

	// Reacquiring an idle entry reuses it.
	if h, _ := c.Acquire(b); h != 2 || uploads != 2 {
		t.Fatalf("expected idle entry reuse, got handle %d after %d uploads", h, uploads)
	}
	c.Release(b)
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("purge should empty the cache, %d entries left", c.Len())
	}
}

func TestCacheUploadError(t *testing.T) {
	c := NewCache(
		func(*image.Alpha) (int, error) { return 0, errors.New("no picture") },
		nil,
		4,
	)
	if _, err := c.Acquire(KeyFor(2, 1, 4, 4)); err == nil {
		t.Fatalf("expected upload error")
	}
	if c.Len() != 0 {
		t.Fatalf("failed upload should not create an entry")
	}
}
