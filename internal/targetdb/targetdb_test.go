package targetdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrange-dev/spotter/internal/geom"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "targets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBSeedsBuiltins(t *testing.T) {
	db := openTestDB(t)
	names, err := db.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"air-rifle-10m", "pistol-25m", "precision-11"}, names)
}

func TestSeedIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening the same file must not duplicate the seed rows.
	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM targets").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestLoadPrecisionTarget(t *testing.T) {
	db := openTestDB(t)
	tgt, err := db.Load("precision-11")
	require.NoError(t, err)

	assert.Equal(t, "precision-11", tgt.Name)
	assert.Equal(t, 60.0, tgt.MirrorDiameter)
	assert.Equal(t, 5.6, tgt.HoleDiameter)

	rings := tgt.Rings()
	require.Len(t, rings, 11)
	// Ring diameters become ratios relative to the mirror: the 60mm ring
	// 7 is exactly 1.0, the outermost 150mm ring is 2.5.
	assert.Equal(t, 11, rings[0].Value)
	assert.InDelta(t, 0.125, rings[0].Ratio, 1e-9)
	assert.Equal(t, 1, rings[10].Value)
	assert.InDelta(t, 2.5, rings[10].Ratio, 1e-9)
}

func TestLoadedTargetScores(t *testing.T) {
	db := openTestDB(t)
	tgt, err := db.Load("air-rifle-10m")
	require.NoError(t, err)

	mirror := geom.NewRect(0, 120, 0, 120)
	cx, cy := mirror.Center()
	assert.Equal(t, 10, tgt.ScoreRing(cx, cy, mirror))
	assert.Equal(t, tgt.MinValue(), tgt.ScoreRing(2000, 2000, mirror))
}

func TestLoadUnknownTarget(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Load("clay-pigeon")
	assert.ErrorContains(t, err, "unknown target")
}
