package metadata

import "fmt"

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

func NewExtent(w, h uint32) Extent {
	return Extent{Width: w, Height: h}
}

// IsZero reports whether either dimension is zero.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Scale multiplies both dimensions by q, keeping at least one pixel per axis.
func (e Extent) Scale(q float32) Extent {
	if q <= 0 {
		q = 1
	}
	w := uint32(float32(e.Width) * q)
	h := uint32(float32(e.Height) * q)
	if w == 0 && e.Width > 0 {
		w = 1
	}
	if h == 0 && e.Height > 0 {
		h = 1
	}
	return Extent{Width: w, Height: h}
}

// Ratio is width over height, or 0 for an empty extent.
func (e Extent) Ratio() float32 {
	if e.Height == 0 {
		return 0
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}
