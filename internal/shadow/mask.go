package shadow

import "image"

// Mask renders the shadow of a width×height rectangle: an alpha image of
// (width+2r)×(height+2r) where each pixel holds the kernel weight that
// falls inside the rectangle, scaled by opacity. The rectangle sits at
// (r, r) inside the mask.
func (k *Kernel) Mask(opacity float64, width, height int) *image.Alpha {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	opacity = clampUnit(opacity)

	r := k.radius
	mw, mh := width+2*r, height+2*r
	img := image.NewAlpha(image.Rect(0, 0, mw, mh))
	if mw == 0 || mh == 0 {
		return img
	}

	// Kernel column c at mask column px samples source column
	// px + c - 2r; only columns landing inside [0, width) contribute.
	xs := make([][2]int, mw)
	for px := range xs {
		xs[px] = [2]int{2*r - px, width + 2*r - px}
	}

	scale := opacity * 255
	for py := 0; py < mh; py++ {
		y0, y1 := 2*r-py, height+2*r-py
		row := img.Pix[py*img.Stride : py*img.Stride+mw]
		for px := range row {
			v := k.Sum(xs[px][0], y0, xs[px][1], y1)
			// Rounding in the summed-area table can land a full
			// window a hair below 1.
			if v > 1-1e-9 {
				v = 1
			}
			row[px] = uint8(v*scale + 0.5)
		}
	}
	return img
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
