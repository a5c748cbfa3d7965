package stream

import (
	"image"
	"math"
)

// PaddedRect grows r by pad (a fraction of its size) on every side, keeps it
// at least minSize wide and high, and shifts it back inside bounds. The
// result never exceeds bounds.
func PaddedRect(r, bounds image.Rectangle, pad float64, minSize int) image.Rectangle {
	if r.Empty() || bounds.Empty() {
		return image.Rectangle{}
	}

	w := int(math.Round(float64(r.Dx()) * (1 + 2*pad)))
	h := int(math.Round(float64(r.Dy()) * (1 + 2*pad)))
	w = min(max(w, minSize), bounds.Dx())
	h = min(max(h, minSize), bounds.Dy())

	cx := r.Min.X + r.Dx()/2
	cy := r.Min.Y + r.Dy()/2
	x := cx - w/2
	y := cy - h/2

	x = min(max(x, bounds.Min.X), bounds.Max.X-w)
	y = min(max(y, bounds.Min.Y), bounds.Max.Y-h)
	return image.Rect(x, y, x+w, y+h)
}
