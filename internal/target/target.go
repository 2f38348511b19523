// Package target models the scoring geometry of a paper target: the set
// of concentric rings defined relative to the mirror diameter, and the
// mapping from a pixel position to the ring value it scores.
package target

import (
	"fmt"
	"math"
	"sort"

	"github.com/openrange-dev/spotter/internal/geom"
)

// Ring is one scoring band. Value is the ring score; higher values are
// further in. Ratio is the ring diameter relative to the mirror
// diameter.
type Ring struct {
	Value int
	Ratio float64
}

// Target describes one target type: the physical mirror diameter, the
// expected hole diameter and the ring table. Immutable for the session
// once constructed.
type Target struct {
	Name string
	// MirrorDiameter is the real-world mirror diameter in millimetres.
	// It anchors the pixel-per-millimetre scale for hole sizing.
	MirrorDiameter float64
	// HoleDiameter is the expected bullet hole diameter in millimetres.
	HoleDiameter float64

	rings []Ring // sorted by descending value: innermost first
}

// New builds a target from a ring table mapping ring value to diameter
// ratio relative to the mirror. The table must not be empty and all
// ratios must be positive.
func New(name string, mirrorDiameter, holeDiameter float64, table map[int]float64) (*Target, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("target %q: empty ring table", name)
	}
	if mirrorDiameter <= 0 {
		return nil, fmt.Errorf("target %q: mirror diameter must be positive, got %v", name, mirrorDiameter)
	}
	rings := make([]Ring, 0, len(table))
	for value, ratio := range table {
		if ratio <= 0 {
			return nil, fmt.Errorf("target %q: ring %d has non-positive ratio %v", name, value, ratio)
		}
		rings = append(rings, Ring{Value: value, Ratio: ratio})
	}
	sort.Slice(rings, func(i, j int) bool { return rings[i].Value > rings[j].Value })
	return &Target{Name: name, MirrorDiameter: mirrorDiameter, HoleDiameter: holeDiameter, rings: rings}, nil
}

// Default is the built-in eleven-ring table used when no database target
// is selected: ring 1 at 2.5 mirror diameters down to ring 11 at 0.125.
func Default() *Target {
	t, err := New("default-11", 60.0, 5.6, map[int]float64{
		1: 2.5, 2: 2.25, 3: 2.0, 4: 1.75, 5: 1.5,
		6: 1.25, 7: 1.0, 8: 0.75, 9: 0.5, 10: 0.25, 11: 0.125,
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Rings returns the ring table, innermost (highest value) first.
func (t *Target) Rings() []Ring {
	out := make([]Ring, len(t.rings))
	copy(out, t.rings)
	return out
}

// MinValue returns the lowest ring value, the scoring floor.
func (t *Target) MinValue() int {
	return t.rings[len(t.rings)-1].Value
}

// RingBounds maps the detected mirror rect to the pixel-space bounding
// rect of every ring. Rings are ellipses when the mirror rect is not
// square. Keys are ring values.
func (t *Target) RingBounds(mirror geom.Rect) map[int]geom.Rect {
	out := make(map[int]geom.Rect, len(t.rings))
	for _, r := range t.rings {
		out[r.Value] = mirror.Scaled(r.Ratio)
	}
	return out
}

// DistanceToEdge returns the normalised ellipse distance of a point from
// the ring boundary: exactly 1 on the boundary, below 1 inside.
func DistanceToEdge(x, y int, ring geom.Rect) float64 {
	cx, cy := ring.Center()
	rx := float64(ring.Width()) / 2
	ry := float64(ring.Height()) / 2
	if rx <= 0 || ry <= 0 {
		return math.Inf(1)
	}
	dx := float64(x-cx) / rx
	dy := float64(y-cy) / ry
	return math.Sqrt(dx*dx + dy*dy)
}

// IsWithinRing reports whether a hole of the given pixel radius centered
// at (x, y) counts for a ring: a finite-size hole is in if any part of
// it crosses the ring boundary.
func IsWithinRing(x, y int, ring geom.Rect, holeRadiusPx float64) bool {
	if ring.Width() <= 0 {
		return false
	}
	return DistanceToEdge(x, y, ring) <= 1+holeRadiusPx/float64(ring.Width())
}

// HoleRadiusPixels converts the expected physical hole diameter into a
// pixel radius using the detected mirror width as the scale reference.
func (t *Target) HoleRadiusPixels(mirror geom.Rect) float64 {
	if t.MirrorDiameter <= 0 {
		return 0
	}
	pxPerMM := float64(mirror.Width()) / t.MirrorDiameter
	return t.HoleDiameter * pxPerMM / 2
}

// ScoreRing resolves the ring value for a hole at (x, y). Rings are
// checked from the innermost outwards and the first qualifying ring
// wins, so an edge hit takes the higher score. Points outside every ring
// score the lowest ring as a floor.
func (t *Target) ScoreRing(x, y int, mirror geom.Rect) int {
	holeRadius := t.HoleRadiusPixels(mirror)
	bounds := t.RingBounds(mirror)
	for _, r := range t.rings {
		if IsWithinRing(x, y, bounds[r.Value], holeRadius) {
			return r.Value
		}
	}
	return t.MinValue()
}
