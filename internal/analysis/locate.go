package analysis

import (
	"gonum.org/v1/gonum/stat"

	"github.com/openrange-dev/spotter/internal/geom"
	"github.com/openrange-dev/spotter/internal/monitoring"
)

// LocateParams tunes the one-shot mirror search.
type LocateParams struct {
	// PickSize is the width and height in pixels of the square sampled
	// at the frame center to characterise the mirror luminance.
	PickSize int
	// Tolerance widens the sampled luminance range on both sides. The
	// effective tolerance grows with the sample spread so a noisy pick
	// does not fragment the mirror mask.
	Tolerance int
	// MinExtent and MaxExtent bound the plausible mirror size as a
	// fraction of the frame extent. Results outside are discarded in
	// favour of the centered fallback square.
	MinExtent float64
	MaxExtent float64
	// FallbackRatio sizes the centered fallback square relative to the
	// smaller frame dimension.
	FallbackRatio float64
}

// DefaultLocateParams mirror the field-proven values.
func DefaultLocateParams() LocateParams {
	return LocateParams{
		PickSize:      10,
		Tolerance:     15,
		MinExtent:     0.05,
		MaxExtent:     0.80,
		FallbackRatio: 0.25,
	}
}

// LocateMirror finds the bounding rect of the dark mirror disk in a raw
// frame. It samples a small square at the frame center, masks all pixels
// whose luminance falls within the sampled range (widened by the
// tolerance), grows the connected region containing the center pixel and
// returns its bounding rect.
//
// If the grown region is implausibly small or large relative to the
// frame, a fixed-ratio centered square is returned instead so that
// calibration never yields a degenerate crop. The second return reports
// whether the fallback was taken.
func LocateMirror(f geom.Frame, p LocateParams) (geom.Rect, bool) {
	cx, cy := f.W/2, f.H/2

	pick := f.Crop(geom.CenteredSquare(cx, cy, p.PickSize))
	sample := make([]float64, len(pick.Pix))
	lo, hi := pick.Pix[0], pick.Pix[0]
	for i, v := range pick.Pix {
		sample[i] = float64(v)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	mean, std := stat.MeanStdDev(sample, nil)

	// A spread-out sample means the pick square straddles a luminance
	// edge; widen the acceptance window accordingly.
	tol := int16(p.Tolerance)
	if adaptive := int16(3 * std); adaptive > tol {
		tol = adaptive
	}
	lo -= tol
	hi += tol
	monitoring.Logf("[MirrorLocator] pick mean=%.1f stddev=%.2f window=[%d,%d]", mean, std, lo, hi)

	bounds, ok := floodBounds(f, cx, cy, lo, hi)
	if ok {
		wFrac := float64(bounds.Width()) / float64(f.W)
		hFrac := float64(bounds.Height()) / float64(f.H)
		if wFrac >= p.MinExtent && wFrac <= p.MaxExtent && hFrac >= p.MinExtent && hFrac <= p.MaxExtent {
			return bounds, false
		}
		monitoring.Logf("[MirrorLocator] implausible mirror size %dx%d in %dx%d frame; using fallback", bounds.Width(), bounds.Height(), f.W, f.H)
	}

	side := int(p.FallbackRatio * float64(min(f.W, f.H)))
	return geom.CenteredSquare(cx, cy, side), true
}

// floodBounds grows the connected region of pixels with luminance in
// [lo, hi] seeded at (sx, sy) and returns its bounding rect. Growth uses
// 4-connectivity over an explicit stack so frame size does not bound
// recursion depth.
func floodBounds(f geom.Frame, sx, sy int, lo, hi int16) (geom.Rect, bool) {
	if v := f.At(sx, sy); v < lo || v > hi {
		return geom.Rect{}, false
	}
	visited := make([]bool, len(f.Pix))
	stack := make([][2]int, 0, 1024)
	stack = append(stack, [2]int{sx, sy})
	visited[sy*f.W+sx] = true

	minX, maxX, minY, maxY := sx, sx, sy, sy
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := p[0], p[1]
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= f.W || ny < 0 || ny >= f.H {
				continue
			}
			i := ny*f.W + nx
			if visited[i] {
				continue
			}
			if v := f.Pix[i]; v >= lo && v <= hi {
				visited[i] = true
				stack = append(stack, [2]int{nx, ny})
			}
		}
	}
	return geom.NewRect(minX, maxX+1, minY, maxY+1), true
}
