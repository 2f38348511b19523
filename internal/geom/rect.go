// Package geom provides the pixel-space primitives shared by the capture
// and analysis layers: axis-aligned rectangles and luminance frames.
package geom

import "fmt"

// Rect is an axis-aligned rectangle in pixel coordinates. Bounds are
// half-open: a pixel (x, y) is inside when Left <= x < Right and
// Top <= y < Bottom. Rects are value types; all operations return a new
// Rect and never mutate the receiver. Two rects compare equal exactly
// when all four bounds match, which is what the engine relies on to
// notice "did the calibration change".
type Rect struct {
	Left, Right, Top, Bottom int
}

// NewRect builds a rect from its four bounds.
func NewRect(left, right, top, bottom int) Rect {
	return Rect{Left: left, Right: right, Top: top, Bottom: bottom}
}

// CenteredSquare returns a square of the given side length centered on
// (cx, cy).
func CenteredSquare(cx, cy, side int) Rect {
	half := side / 2
	return Rect{Left: cx - half, Right: cx - half + side, Top: cy - half, Bottom: cy - half + side}
}

func (r Rect) String() string {
	return fmt.Sprintf("Rect(left: %d, right: %d, top: %d, bottom: %d)", r.Left, r.Right, r.Top, r.Bottom)
}

// Width returns the horizontal extent.
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the vertical extent.
func (r Rect) Height() int { return r.Bottom - r.Top }

// Empty reports whether the rect covers no pixels.
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// Center returns the center pixel position (x, y).
func (r Rect) Center() (int, int) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Scaled scales the rect by fac around its own center. A factor of 1.0
// is the identity.
func (r Rect) Scaled(fac float64) Rect {
	return r.ScaledXY(fac, fac)
}

// ScaledXY scales the rect around its own center with independent
// horizontal and vertical factors.
func (r Rect) ScaledXY(fx, fy float64) Rect {
	cx, cy := r.Center()
	return Rect{
		Left:   cx + int(fx*float64(r.Left-cx)),
		Right:  cx + int(fx*float64(r.Right-cx)),
		Top:    cy + int(fy*float64(r.Top-cy)),
		Bottom: cy + int(fy*float64(r.Bottom-cy)),
	}
}

// Moved translates the rect by (dx, dy).
func (r Rect) Moved(dx, dy int) Rect {
	return Rect{Left: r.Left + dx, Right: r.Right + dx, Top: r.Top + dy, Bottom: r.Bottom + dy}
}

// RelativeTo re-expresses the rect in the local coordinate frame of ref,
// so that ref's top-left corner becomes the origin.
func (r Rect) RelativeTo(ref Rect) Rect {
	return r.Moved(-ref.Left, -ref.Top)
}

// Clamped intersects the rect with bounds. Rects that lie entirely
// outside bounds clamp to an empty rect on the nearest edge rather than
// producing inverted bounds.
func (r Rect) Clamped(bounds Rect) Rect {
	c := Rect{
		Left:   max(r.Left, bounds.Left),
		Right:  min(r.Right, bounds.Right),
		Top:    max(r.Top, bounds.Top),
		Bottom: min(r.Bottom, bounds.Bottom),
	}
	if c.Right < c.Left {
		c.Right = c.Left
	}
	if c.Bottom < c.Top {
		c.Bottom = c.Top
	}
	return c
}

// Contains reports whether pixel (x, y) lies inside the rect.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x < r.Right && y >= r.Top && y < r.Bottom
}
