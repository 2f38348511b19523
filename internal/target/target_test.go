package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrange-dev/spotter/internal/geom"
)

func TestNewValidation(t *testing.T) {
	_, err := New("empty", 60, 5.6, nil)
	assert.Error(t, err)

	_, err = New("bad-mirror", 0, 5.6, map[int]float64{1: 1.0})
	assert.Error(t, err)

	_, err = New("bad-ratio", 60, 5.6, map[int]float64{1: -0.5})
	assert.Error(t, err)
}

func TestRingsSortedInnermostFirst(t *testing.T) {
	tgt, err := New("t", 60, 5.6, map[int]float64{1: 2.0, 5: 0.4, 3: 1.0})
	require.NoError(t, err)

	rings := tgt.Rings()
	require.Len(t, rings, 3)
	assert.Equal(t, 5, rings[0].Value)
	assert.Equal(t, 3, rings[1].Value)
	assert.Equal(t, 1, rings[2].Value)
	assert.Equal(t, 1, tgt.MinValue())
}

func TestRingBoundsScaleWithMirror(t *testing.T) {
	tgt := Default()
	mirror := geom.NewRect(100, 200, 100, 200)

	bounds := tgt.RingBounds(mirror)
	require.Len(t, bounds, 11)
	// Ring 7 is at exactly the mirror diameter.
	assert.Equal(t, mirror, bounds[7])
	// Outer rings are larger, inner rings smaller.
	assert.Greater(t, bounds[1].Width(), mirror.Width())
	assert.Less(t, bounds[11].Width(), mirror.Width())

	// All rings share the mirror center.
	mcx, mcy := mirror.Center()
	for v, r := range bounds {
		cx, cy := r.Center()
		assert.InDelta(t, mcx, cx, 1, "ring %d", v)
		assert.InDelta(t, mcy, cy, 1, "ring %d", v)
	}
}

func TestDistanceToEdge(t *testing.T) {
	ring := geom.NewRect(0, 100, 0, 100)
	cx, cy := ring.Center()

	assert.InDelta(t, 0, DistanceToEdge(cx, cy, ring), 0.01)
	assert.InDelta(t, 1, DistanceToEdge(ring.Right, cy, ring), 0.05)
	assert.Greater(t, DistanceToEdge(ring.Right+30, cy, ring), 1.0)

	// Degenerate ring rejects everything.
	assert.True(t, DistanceToEdge(0, 0, geom.Rect{}) > 1e9)
}

func TestScoreRingCenterScoresInnermost(t *testing.T) {
	tgt := Default()
	mirror := geom.NewRect(100, 200, 100, 200)
	cx, cy := mirror.Center()
	assert.Equal(t, 11, tgt.ScoreRing(cx, cy, mirror))
}

func TestScoreRingOutsideScoresFloor(t *testing.T) {
	tgt := Default()
	mirror := geom.NewRect(100, 200, 100, 200)
	// Far outside the outermost ring (2.5 mirror diameters).
	assert.Equal(t, tgt.MinValue(), tgt.ScoreRing(1000, 1000, mirror))
}

func TestScoreRingMonotonicAlongRadius(t *testing.T) {
	tgt := Default()
	mirror := geom.NewRect(100, 200, 100, 200)
	cx, cy := mirror.Center()

	prev := 12
	for dx := 0; dx <= 140; dx += 4 {
		ring := tgt.ScoreRing(cx+dx, cy, mirror)
		assert.LessOrEqual(t, ring, prev, "score must not increase outwards at dx=%d", dx)
		prev = ring
	}
	assert.Equal(t, tgt.MinValue(), prev)
}

func TestScoreRingEdgeHitTakesHigherRing(t *testing.T) {
	tgt := Default()
	mirror := geom.NewRect(100, 200, 100, 200)
	cx, cy := mirror.Center()

	// Ring 7 boundary is the mirror edge at dx=50. A hole centered just
	// outside still clips the boundary and scores 7.
	holeRadius := tgt.HoleRadiusPixels(mirror)
	require.Greater(t, holeRadius, 1.0)
	just := cx + 50 + int(holeRadius/2)
	assert.Equal(t, 7, tgt.ScoreRing(just, cy, mirror))
}

func TestHoleRadiusPixels(t *testing.T) {
	tgt := Default() // 60mm mirror, 5.6mm hole
	mirror := geom.NewRect(0, 120, 0, 120)
	// 120px for 60mm is 2 px/mm, so the hole radius is 5.6mm/2 * 2 px/mm.
	assert.InDelta(t, 5.6, tgt.HoleRadiusPixels(mirror), 0.01)
}
