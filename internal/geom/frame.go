package geom

import (
	"fmt"
	"image"
)

// Frame is a 2-D grid of signed luminance samples in row-major order.
// Samples are int16 so that signed frame arithmetic (differences,
// negative clutter residues) does not wrap. A frame is immutable once
// handed to the analysis engine; operations that derive a new frame
// allocate.
type Frame struct {
	W, H int
	Pix  []int16
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(w, h int) Frame {
	return Frame{W: w, H: h, Pix: make([]int16, w*h)}
}

// Bounds returns the frame extent as a Rect anchored at the origin.
func (f Frame) Bounds() Rect {
	return Rect{Left: 0, Right: f.W, Top: 0, Bottom: f.H}
}

// At returns the sample at (x, y). No bounds checking; callers index
// within Bounds.
func (f Frame) At(x, y int) int16 { return f.Pix[y*f.W+x] }

// Set stores a sample at (x, y).
func (f Frame) Set(x, y int, v int16) { f.Pix[y*f.W+x] = v }

// Crop extracts the sub-grid covered by r. The rect is clamped to the
// frame extent first, so callers may pass rects that stick out past the
// edges.
func (f Frame) Crop(r Rect) Frame {
	c := r.Clamped(f.Bounds())
	out := NewFrame(c.Width(), c.Height())
	for y := c.Top; y < c.Bottom; y++ {
		copy(out.Pix[(y-c.Top)*out.W:(y-c.Top+1)*out.W], f.Pix[y*f.W+c.Left:y*f.W+c.Right])
	}
	return out
}

// ToGray converts the frame to an 8-bit grayscale image, clipping
// samples to [0, 255].
func (f Frame) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.W, f.H))
	for i, v := range f.Pix {
		switch {
		case v < 0:
			img.Pix[i] = 0
		case v > 255:
			img.Pix[i] = 255
		default:
			img.Pix[i] = uint8(v)
		}
	}
	return img
}

// FromGray converts an 8-bit grayscale image into a frame.
func FromGray(img *image.Gray) Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < f.H; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+f.W]
		for x, v := range row {
			f.Pix[y*f.W+x] = int16(v)
		}
	}
	return f
}

// SameShape reports whether two frames have identical dimensions.
func (f Frame) SameShape(o Frame) bool { return f.W == o.W && f.H == o.H }

func (f Frame) String() string {
	return fmt.Sprintf("Frame(%dx%d)", f.W, f.H)
}
