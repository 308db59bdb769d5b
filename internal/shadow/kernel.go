// Package shadow renders the soft drop-shadow masks painted beneath
// windows: a normalized gaussian kernel, its summed-area table, and the
// alpha masks built from them.
package shadow

import "math"

// Kernel is an immutable square table of gaussian weights covering
// [-radius, radius] on both axes, normalized to sum to 1, together with a
// summed-area table over those weights.
type Kernel struct {
	radius  int
	size    int
	weights []float64
	// prefix has (size+1)² entries; prefix[y*(size+1)+x] is the sum of all
	// weights with column < x and row < y.
	prefix []float64
}

// Gaussian returns the unnormalized 2D gaussian weight at (x, y).
func Gaussian(radius, x, y float64) float64 {
	return math.Exp(-(x*x+y*y)/(2*radius*radius)) / (2 * math.Pi * radius * radius)
}

// NewKernel builds the kernel for radius. A radius of zero or less gives a
// single unit weight, which renders a hard-edged shadow.
func NewKernel(radius int) *Kernel {
	if radius < 0 {
		radius = 0
	}
	size := 2*radius + 1
	k := &Kernel{
		radius:  radius,
		size:    size,
		weights: make([]float64, size*size),
	}

	if radius == 0 {
		k.weights[0] = 1
	} else {
		total := 0.0
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				w := Gaussian(float64(radius), float64(x-radius), float64(y-radius))
				k.weights[y*size+x] = w
				total += w
			}
		}
		for i := range k.weights {
			k.weights[i] /= total
		}
	}

	k.prefix = prefixSum(k.weights, size)
	return k
}

func prefixSum(weights []float64, size int) []float64 {
	stride := size + 1
	p := make([]float64, stride*stride)
	for y := 0; y < size; y++ {
		row := 0.0
		for x := 0; x < size; x++ {
			row += weights[y*size+x]
			p[(y+1)*stride+x+1] = p[y*stride+x+1] + row
		}
	}
	return p
}

// Radius returns the blur radius the kernel was built for.
func (k *Kernel) Radius() int { return k.radius }

// Size returns the side length of the kernel, 2·radius+1.
func (k *Kernel) Size() int { return k.size }

// Weight returns the normalized weight at offset (x, y) from the centre.
// Offsets outside [-radius, radius] weigh nothing.
func (k *Kernel) Weight(x, y int) float64 {
	x += k.radius
	y += k.radius
	if x < 0 || y < 0 || x >= k.size || y >= k.size {
		return 0
	}
	return k.weights[y*k.size+x]
}

// Sum returns the total weight of the kernel cells with column in
// [x0, x1) and row in [y0, y1), in table coordinates 0..Size(). The bounds
// are clamped to the table, so any rectangle is accepted. It costs four
// lookups regardless of the rectangle's size.
func (k *Kernel) Sum(x0, y0, x1, y1 int) float64 {
	x0, x1 = clamp(x0, 0, k.size), clamp(x1, 0, k.size)
	y0, y1 = clamp(y0, 0, k.size), clamp(y1, 0, k.size)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	stride := k.size + 1
	return k.prefix[y1*stride+x1] - k.prefix[y0*stride+x1] - k.prefix[y1*stride+x0] + k.prefix[y0*stride+x0]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
