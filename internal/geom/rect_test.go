package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectDerivedValues(t *testing.T) {
	r := NewRect(10, 50, 20, 40)
	assert.Equal(t, 40, r.Width())
	assert.Equal(t, 20, r.Height())
	cx, cy := r.Center()
	assert.Equal(t, 30, cx)
	assert.Equal(t, 30, cy)
	assert.False(t, r.Empty())
	assert.True(t, NewRect(5, 5, 0, 10).Empty())
}

func TestScaledKeepsCenter(t *testing.T) {
	tests := []struct {
		name string
		rect Rect
		fac  float64
	}{
		{"identity", NewRect(10, 50, 20, 40), 1.0},
		{"grow", NewRect(10, 50, 20, 40), 3.0},
		{"shrink", NewRect(0, 100, 0, 60), 0.5},
		{"odd bounds", NewRect(3, 18, 7, 22), 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx, cy := tt.rect.Center()
			sx, sy := tt.rect.Scaled(tt.fac).Center()
			assert.InDelta(t, cx, sx, 1)
			assert.InDelta(t, cy, sy, 1)
		})
	}
}

func TestScaledIdentity(t *testing.T) {
	r := NewRect(10, 50, 20, 40)
	assert.Equal(t, r, r.Scaled(1.0))
}

func TestMovedRoundTrip(t *testing.T) {
	r := NewRect(10, 50, 20, 40)
	assert.Equal(t, r, r.Moved(7, -13).Moved(-7, 13))
}

func TestRelativeToSelf(t *testing.T) {
	r := NewRect(10, 50, 20, 40)
	got := r.RelativeTo(r)
	assert.Equal(t, NewRect(0, r.Width(), 0, r.Height()), got)
}

func TestClamped(t *testing.T) {
	bounds := NewRect(0, 100, 0, 60)

	t.Run("inside is unchanged", func(t *testing.T) {
		r := NewRect(10, 50, 20, 40)
		assert.Equal(t, r, r.Clamped(bounds))
	})

	t.Run("overhang is cut", func(t *testing.T) {
		r := NewRect(-10, 120, -5, 80)
		assert.Equal(t, bounds, r.Clamped(bounds))
	})

	t.Run("fully outside collapses to empty", func(t *testing.T) {
		r := NewRect(200, 300, 200, 300)
		c := r.Clamped(bounds)
		require.True(t, c.Empty())
		assert.GreaterOrEqual(t, c.Right, c.Left)
		assert.GreaterOrEqual(t, c.Bottom, c.Top)
	})
}

func TestCenteredSquare(t *testing.T) {
	r := CenteredSquare(50, 50, 20)
	assert.Equal(t, 20, r.Width())
	assert.Equal(t, 20, r.Height())
	cx, cy := r.Center()
	assert.Equal(t, 50, cx)
	assert.Equal(t, 50, cy)
}

func TestContains(t *testing.T) {
	r := NewRect(10, 20, 10, 20)
	assert.True(t, r.Contains(10, 10))
	assert.True(t, r.Contains(19, 19))
	assert.False(t, r.Contains(20, 10))
	assert.False(t, r.Contains(9, 15))
}
