package geom

import "strings"

// Region is a set of pixels described by disjoint rectangles.
//
// Regions are values: every operation returns a new Region and never
// mutates its operands, so a Region can be shared freely between windows,
// the pending damage accumulator and a frame in progress. The zero value is
// the empty region.
type Region struct {
	rects []Rect
}

// NewRegion builds a region covering the union of rects.
func NewRegion(rects ...Rect) Region {
	var r Region
	for _, rect := range rects {
		r = r.UnionRect(rect)
	}
	return r
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return len(r.rects) == 0
}

// Rects returns a copy of the disjoint rectangles making up the region.
func (r Region) Rects() []Rect {
	if len(r.rects) == 0 {
		return nil
	}
	out := make([]Rect, len(r.rects))
	copy(out, r.rects)
	return out
}

// Len returns the number of rectangles in the region.
func (r Region) Len() int { return len(r.rects) }

// Bounds returns the bounding box of the region.
func (r Region) Bounds() Rect {
	var b Rect
	for _, rect := range r.rects {
		b = b.Bounds(rect)
	}
	return b
}

// Area returns the number of pixels covered.
func (r Region) Area() int {
	total := 0
	for _, rect := range r.rects {
		total += rect.Area()
	}
	return total
}

// Contains reports whether the pixel (x, y) is inside the region.
func (r Region) Contains(x, y int) bool {
	for _, rect := range r.rects {
		if rect.Contains(x, y) {
			return true
		}
	}
	return false
}

// Overlaps reports whether r and o share at least one pixel.
func (r Region) Overlaps(o Region) bool {
	for _, a := range r.rects {
		for _, b := range o.rects {
			if a.Overlaps(b) {
				return true
			}
		}
	}
	return false
}

// UnionRect returns r ∪ rect.
func (r Region) UnionRect(rect Rect) Region {
	if rect.Empty() {
		return r
	}
	pieces := []Rect{rect}
	for _, existing := range r.rects {
		pieces = subtractAll(pieces, existing)
		if len(pieces) == 0 {
			return r
		}
	}
	out := make([]Rect, 0, len(r.rects)+len(pieces))
	out = append(out, r.rects...)
	out = append(out, pieces...)
	return Region{rects: coalesce(out)}
}

// Union returns r ∪ o.
func (r Region) Union(o Region) Region {
	if r.Empty() {
		return o
	}
	out := r
	for _, rect := range o.rects {
		out = out.UnionRect(rect)
	}
	return out
}

// Intersect returns r ∩ o.
func (r Region) Intersect(o Region) Region {
	var out []Rect
	for _, a := range r.rects {
		for _, b := range o.rects {
			if isect := a.Intersect(b); !isect.Empty() {
				out = append(out, isect)
			}
		}
	}
	return Region{rects: coalesce(out)}
}

// IntersectRect returns r ∩ rect.
func (r Region) IntersectRect(rect Rect) Region {
	return r.Intersect(Region{rects: []Rect{rect}})
}

// Subtract returns r − o.
func (r Region) Subtract(o Region) Region {
	if r.Empty() || o.Empty() {
		return r
	}
	pieces := r.Rects()
	for _, rect := range o.rects {
		pieces = subtractAll(pieces, rect)
		if len(pieces) == 0 {
			return Region{}
		}
	}
	return Region{rects: coalesce(pieces)}
}

// Translate returns r moved by (dx, dy).
func (r Region) Translate(dx, dy int) Region {
	if dx == 0 && dy == 0 {
		return r
	}
	out := make([]Rect, len(r.rects))
	for i, rect := range r.rects {
		out[i] = rect.Translate(dx, dy)
	}
	return Region{rects: out}
}

// Equal reports whether r and o cover exactly the same pixels, regardless
// of how they are split into rectangles.
func (r Region) Equal(o Region) bool {
	return r.Area() == o.Area() && r.Subtract(o).Empty()
}

func (r Region) String() string {
	if r.Empty() {
		return "{}"
	}
	parts := make([]string, len(r.rects))
	for i, rect := range r.rects {
		parts[i] = rect.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func subtractAll(pieces []Rect, cut Rect) []Rect {
	out := pieces[:0:0]
	for _, p := range pieces {
		out = append(out, p.subtract(cut)...)
	}
	return out
}

// coalesce merges horizontally adjacent rectangles that share the same
// vertical span, then vertically adjacent ones sharing a horizontal span.
// It keeps long-lived regions (pending damage, clips) from fragmenting.
func coalesce(rects []Rect) []Rect {
	if len(rects) < 2 {
		return rects
	}
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(rects); i++ {
			for j := i + 1; j < len(rects); j++ {
				a, b := rects[i], rects[j]
				var joined Rect
				ok := false
				switch {
				case a.Y == b.Y && a.Height == b.Height && (a.Right() == b.X || b.Right() == a.X):
					joined, ok = a.Bounds(b), true
				case a.X == b.X && a.Width == b.Width && (a.Bottom() == b.Y || b.Bottom() == a.Y):
					joined, ok = a.Bounds(b), true
				}
				if ok {
					rects[i] = joined
					rects = append(rects[:j], rects[j+1:]...)
					merged = true
					j--
				}
			}
		}
	}
	return rects
}
