// Package geom holds the screen-space geometry used by the compositor:
// rectangles and regions built from disjoint rectangles.
package geom

import "fmt"

// Rect describes a rectangular area in screen coordinates.
// Width and Height of zero or less describe an empty rectangle.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// R is shorthand for Rect{X: x, Y: y, Width: w, Height: h}.
func R(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Area returns the number of pixels covered by r.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Contains reports whether the pixel (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// Intersect returns the overlap of r and o, or an empty Rect.
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.Right(), o.Right())
	y2 := min(r.Bottom(), o.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Overlaps reports whether r and o share at least one pixel.
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// Bounds returns the smallest rectangle containing both r and o.
// Empty operands are ignored.
func (r Rect) Bounds(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x1 := min(r.X, o.X)
	y1 := min(r.Y, o.Y)
	x2 := max(r.Right(), o.Right())
	y2 := max(r.Bottom(), o.Bottom())
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Inset shrinks r by n pixels on every side. Negative n grows it.
func (r Rect) Inset(n int) Rect {
	return Rect{X: r.X + n, Y: r.Y + n, Width: r.Width - 2*n, Height: r.Height - 2*n}
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// subtract returns the parts of r not covered by o, as at most four
// disjoint rectangles.
func (r Rect) subtract(o Rect) []Rect {
	isect := r.Intersect(o)
	if isect.Empty() {
		return []Rect{r}
	}

	out := make([]Rect, 0, 4)
	if isect.Y > r.Y {
		out = append(out, Rect{X: r.X, Y: r.Y, Width: r.Width, Height: isect.Y - r.Y})
	}
	if isect.Bottom() < r.Bottom() {
		out = append(out, Rect{X: r.X, Y: isect.Bottom(), Width: r.Width, Height: r.Bottom() - isect.Bottom()})
	}
	if isect.X > r.X {
		out = append(out, Rect{X: r.X, Y: isect.Y, Width: isect.X - r.X, Height: isect.Height})
	}
	if isect.Right() < r.Right() {
		out = append(out, Rect{X: isect.Right(), Y: isect.Y, Width: r.Right() - isect.Right(), Height: isect.Height})
	}
	return out
}
